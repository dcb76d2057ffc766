package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/AmanYadav007/BonusLYF/internal/observability/telemetry"
)

// DefaultRestartDelay coalesces rapid restart requests so a flapping
// recognizer does not thrash the provider connection.
const DefaultRestartDelay = 250 * time.Millisecond

// MaxRestartFailures is how many consecutive restart attempts may fail
// before the engine gives up instead of hammering a dead provider.
const MaxRestartFailures = 5

// Config wires an Engine.
type Config struct {
	Recognizer Recognizer
	// ShouldRun gates restarts. It is re-checked when the debounced
	// restart fires, not when it is scheduled.
	ShouldRun    func() bool
	Language     string
	RestartDelay time.Duration
	OnInterim    func(text string)
	OnFinal      func(text string)
	OnError      func(kind ErrorKind, err error)
	Emitter      telemetry.Emitter
	Correlation  telemetry.Correlation
}

// Engine keeps one recognizer session alive while listening is allowed.
type Engine struct {
	cfg      Config
	debounce func(func())

	mu         sync.Mutex
	ctx        context.Context
	active     bool
	language   string
	generation uint64
	session    Session
	restarts   uint64
	failStreak int
}

// NewEngine validates the wiring and builds an idle engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("capture: recognizer is required")
	}
	if cfg.ShouldRun == nil {
		return nil, fmt.Errorf("capture: should-run gate is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.DefaultEmitter()
	}
	return &Engine{
		cfg:      cfg,
		debounce: debounce.New(cfg.RestartDelay),
		language: cfg.Language,
	}, nil
}

// Start opens a recognizer session. Starting an active engine is a
// no-op, as is starting while the gate denies: the caller's liveness
// check and this call are not atomic, so the gate is re-checked here.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return nil
	}
	if !e.cfg.ShouldRun() {
		return nil
	}
	e.ctx = ctx
	e.active = true
	e.failStreak = 0
	if err := e.startSessionLocked(); err != nil {
		e.active = false
		return err
	}
	return nil
}

// Stop tears down the current session. Stopping an idle engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	e.generation++
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

// SetLanguage switches the capture language. An active engine tears the
// session down and reopens it with the new language.
func (e *Engine) SetLanguage(languageCode string) error {
	e.mu.Lock()
	if languageCode == "" || languageCode == e.language {
		e.mu.Unlock()
		return nil
	}
	e.language = languageCode
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	e.generation++
	old := e.session
	e.session = nil
	err := e.startSessionLocked()
	e.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return err
}

// IsActive reports whether a recognizer session is live.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active && e.session != nil
}

// Language returns the current capture language.
func (e *Engine) Language() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.language
}

// Restarts returns how many debounced restarts have fired.
func (e *Engine) Restarts() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restarts
}

// SendAudio forwards an audio chunk to the live session.
func (e *Engine) SendAudio(chunk []byte) error {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("capture: no live session")
	}
	return sess.SendAudio(chunk)
}

func (e *Engine) startSessionLocked() error {
	e.generation++
	gen := e.generation
	sess, err := e.cfg.Recognizer.Start(e.ctx, e.language)
	if err != nil {
		return fmt.Errorf("capture: start recognizer: %w", err)
	}
	e.session = sess
	go e.consume(gen, sess)
	return nil
}

func (e *Engine) consume(gen uint64, sess Session) {
	for ev := range sess.Events() {
		if !e.isCurrent(gen) {
			// Stale session draining after a restart.
			continue
		}
		switch ev.Kind {
		case EventInterim:
			if e.cfg.OnInterim != nil {
				e.cfg.OnInterim(ev.Text)
			}
		case EventFinal:
			if e.cfg.OnFinal != nil {
				e.cfg.OnFinal(ev.Text)
			}
		case EventError:
			if ev.ErrKind == ErrorPermissionDenied || ev.ErrKind == ErrorUnsupported {
				// Not recoverable by reconnecting.
				e.Stop()
			}
			if e.cfg.OnError != nil {
				e.cfg.OnError(ev.ErrKind, ev.Err)
			}
		}
	}
	if e.isCurrent(gen) {
		e.scheduleRestart()
	}
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active && e.generation == gen
}

func (e *Engine) scheduleRestart() {
	e.debounce(e.restart)
}

func (e *Engine) restart() {
	e.mu.Lock()
	if !e.active || !e.cfg.ShouldRun() {
		e.mu.Unlock()
		return
	}
	e.restarts++
	err := e.startSessionLocked()
	if err == nil {
		e.failStreak = 0
		e.mu.Unlock()
		e.cfg.Emitter.EmitMetric(telemetry.MetricRecognizerRestarts, 1, "count", nil, e.cfg.Correlation)
		return
	}
	e.failStreak++
	streak := e.failStreak
	e.mu.Unlock()

	e.cfg.Emitter.EmitMetric(telemetry.MetricRecognizerRestarts, 1, "count", nil, e.cfg.Correlation)
	if streak >= MaxRestartFailures {
		e.Stop()
		if e.cfg.OnError != nil {
			e.cfg.OnError(ErrorNetwork, fmt.Errorf("capture: giving up after %d failed restarts: %w", streak, err))
		}
		return
	}
	if e.cfg.OnError != nil {
		e.cfg.OnError(ErrorNetwork, err)
	}
	e.scheduleRestart()
}
