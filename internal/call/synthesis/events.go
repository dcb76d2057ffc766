package synthesis

import "sync"

// Events observes one spoken reply. OnStart fires when audio actually
// begins; exactly one of OnEnd or OnError follows, no matter how many
// times the underlying player reports completion.
type Events struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Start invokes the start callback if set.
func (e Events) Start() {
	if e.OnStart != nil {
		e.OnStart()
	}
}

// End invokes the end callback if set.
func (e Events) End() {
	if e.OnEnd != nil {
		e.OnEnd()
	}
}

// Error invokes the error callback if set.
func (e Events) Error(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

// Guard wraps ev so the terminal callbacks share a single firing. A
// player that reports both an error and an end delivers only the first.
func Guard(ev Events) Events {
	var once sync.Once
	return Events{
		OnStart: ev.OnStart,
		OnEnd: func() {
			once.Do(ev.End)
		},
		OnError: func(err error) {
			once.Do(func() { ev.Error(err) })
		},
	}
}
