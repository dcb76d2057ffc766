package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	events chan Event

	mu     sync.Mutex
	closed bool
	audio  [][]byte
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan Event, 16)}
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	langs    []string
	startErr error
}

func (r *fakeRecognizer) Start(ctx context.Context, languageCode string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	s := newFakeSession()
	r.sessions = append(r.sessions, s)
	r.langs = append(r.langs, languageCode)
	return s, nil
}

func (r *fakeRecognizer) setStartErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

func (r *fakeRecognizer) session(i int) *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.sessions) {
		return nil
	}
	return r.sessions[i]
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{Recognizer: rec, ShouldRun: func() bool { return true }})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected one session, got %d", rec.count())
	}
	if !eng.IsActive() {
		t.Fatalf("engine should be active")
	}

	eng.Stop()
	eng.Stop()
	if eng.IsActive() {
		t.Fatalf("engine should be idle after stop")
	}
	if !rec.session(0).isClosed() {
		t.Fatalf("stop should close the session")
	}
}

func TestEventsAreForwarded(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var interims, finals []string

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer: rec,
		ShouldRun:  func() bool { return true },
		OnInterim: func(text string) {
			mu.Lock()
			interims = append(interims, text)
			mu.Unlock()
		},
		OnFinal: func(text string) {
			mu.Lock()
			finals = append(finals, text)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	sess := rec.session(0)
	sess.events <- Event{Kind: EventInterim, Text: "hel"}
	sess.events <- Event{Kind: EventFinal, Text: "hello there"}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(interims) == 1 && len(finals) == 1
	}, "events to be forwarded")

	mu.Lock()
	defer mu.Unlock()
	if interims[0] != "hel" || finals[0] != "hello there" {
		t.Fatalf("unexpected events: interims=%v finals=%v", interims, finals)
	}
}

func TestDebouncedRestartAfterSessionEnds(t *testing.T) {
	t.Parallel()

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer:   rec,
		ShouldRun:    func() bool { return true },
		RestartDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	// Provider drops the session.
	rec.session(0).Close()

	waitFor(t, func() bool { return rec.count() == 2 }, "restart session")
	if eng.Restarts() != 1 {
		t.Fatalf("restarts = %d, want 1", eng.Restarts())
	}
}

func TestRestartSuppressedWhenGateDenies(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	allowed := true
	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer: rec,
		ShouldRun: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return allowed
		},
		RestartDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	// Gate flips before the debounced restart fires.
	mu.Lock()
	allowed = false
	mu.Unlock()
	rec.session(0).Close()

	time.Sleep(100 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("restart should be suppressed, got %d sessions", rec.count())
	}
	if eng.Restarts() != 0 {
		t.Fatalf("restarts = %d, want 0", eng.Restarts())
	}
}

func TestStartDeniedByGateStaysIdle(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	allowed := false
	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer: rec,
		ShouldRun: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return allowed
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// The gate can flip between the caller's liveness check and Start;
	// a denied Start must not open a session.
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if eng.IsActive() {
		t.Fatal("engine started against a denying gate")
	}
	if rec.count() != 0 {
		t.Fatalf("sessions = %d, want 0", rec.count())
	}

	mu.Lock()
	allowed = true
	mu.Unlock()
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()
	if !eng.IsActive() || rec.count() != 1 {
		t.Fatalf("engine should run once the gate allows, sessions = %d", rec.count())
	}
}

func TestRestartGivesUpOnDeadRecognizer(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var errs []error
	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer:   rec,
		ShouldRun:    func() bool { return true },
		RestartDelay: time.Millisecond,
		OnError: func(kind ErrorKind, e error) {
			if kind != ErrorNetwork {
				t.Errorf("error kind = %s, want network", kind)
			}
			mu.Lock()
			errs = append(errs, e)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.setStartErr(errors.New("recognizer unreachable"))
	rec.session(0).Close()

	waitFor(t, func() bool { return !eng.IsActive() }, "engine to give up")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	count := len(errs)
	last := errs[count-1]
	mu.Unlock()
	if count != MaxRestartFailures {
		t.Fatalf("errors surfaced = %d, want %d", count, MaxRestartFailures)
	}
	if !strings.Contains(last.Error(), "giving up") {
		t.Fatalf("final error = %v, want the give-up error", last)
	}

	// No further retries after giving up.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := len(errs)
	mu.Unlock()
	if after != count {
		t.Fatalf("errors kept arriving after the engine stopped: %d -> %d", count, after)
	}
}

func TestRapidDropsCoalesceIntoOneRestart(t *testing.T) {
	t.Parallel()

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer:   rec,
		ShouldRun:    func() bool { return true },
		RestartDelay: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	// Two quick drops inside one debounce window.
	rec.session(0).Close()
	time.Sleep(10 * time.Millisecond)
	eng.scheduleRestart()

	waitFor(t, func() bool { return rec.count() == 2 }, "single coalesced restart")
	time.Sleep(100 * time.Millisecond)
	if rec.count() != 2 {
		t.Fatalf("expected exactly one restart, got %d sessions", rec.count())
	}
}

func TestPermissionDeniedStopsEngine(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotKind ErrorKind

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{
		Recognizer:   rec,
		ShouldRun:    func() bool { return true },
		RestartDelay: 10 * time.Millisecond,
		OnError: func(kind ErrorKind, err error) {
			mu.Lock()
			gotKind = kind
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	sess := rec.session(0)
	sess.events <- Event{Kind: EventError, ErrKind: ErrorPermissionDenied, Err: errors.New("mic denied")}

	waitFor(t, func() bool { return !eng.IsActive() }, "engine to stop")
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("permission denial must not trigger restart, got %d sessions", rec.count())
	}
	mu.Lock()
	defer mu.Unlock()
	if gotKind != ErrorPermissionDenied {
		t.Fatalf("error kind = %q", gotKind)
	}
}

func TestSetLanguageRecreatesSession(t *testing.T) {
	t.Parallel()

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{Recognizer: rec, ShouldRun: func() bool { return true }, Language: "en-US"})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	if err := eng.SetLanguage("ja-JP"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("expected new session for new language, got %d", rec.count())
	}
	if !rec.session(0).isClosed() {
		t.Fatalf("old session should be closed")
	}
	rec.mu.Lock()
	lang := rec.langs[1]
	rec.mu.Unlock()
	if lang != "ja-JP" {
		t.Fatalf("new session language = %q", lang)
	}

	// Same language is a no-op.
	if err := eng.SetLanguage("ja-JP"); err != nil {
		t.Fatalf("set same language: %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("same language must not recreate the session")
	}
}

func TestSetLanguageWhileIdleTakesEffectOnStart(t *testing.T) {
	t.Parallel()

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{Recognizer: rec, ShouldRun: func() bool { return true }})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.SetLanguage("fr-FR"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("idle engine must not open a session")
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()
	rec.mu.Lock()
	lang := rec.langs[0]
	rec.mu.Unlock()
	if lang != "fr-FR" {
		t.Fatalf("session language = %q, want fr-FR", lang)
	}
}

func TestSendAudioRequiresLiveSession(t *testing.T) {
	t.Parallel()

	rec := &fakeRecognizer{}
	eng, err := NewEngine(Config{Recognizer: rec, ShouldRun: func() bool { return true }})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.SendAudio([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error without a session")
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()
	if err := eng.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
}
