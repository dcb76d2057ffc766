// Package session composes a full call: the phase machine, speech
// capture, reply generation, speech synthesis, and media access, glued
// together so one user utterance flows through one turn at a time.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AmanYadav007/BonusLYF/internal/call/capture"
	"github.com/AmanYadav007/BonusLYF/internal/call/media"
	"github.com/AmanYadav007/BonusLYF/internal/call/synthesis"
	"github.com/AmanYadav007/BonusLYF/internal/call/turn"
	"github.com/AmanYadav007/BonusLYF/internal/companion"
	"github.com/AmanYadav007/BonusLYF/internal/log"
	"github.com/AmanYadav007/BonusLYF/internal/observability/telemetry"
	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

// DefaultConnectDelay is how long the call shows the connecting phase
// before listening starts, giving the media pipeline time to settle.
const DefaultConnectDelay = 2500 * time.Millisecond

// DefaultHistoryWindow is how many prior messages go back to the reply
// generator.
const DefaultHistoryWindow = 10

// Config wires a Session.
type Config struct {
	Companion companion.Companion
	Language  string
	WantVideo bool

	HistoryWindow int
	ConnectDelay  time.Duration
	NoticeTTL     time.Duration
	MinFinalChars int
	RestartDelay  time.Duration

	// Generators are tried in order per turn until one replies.
	Generators []contracts.TextGenerator
	Speech     *synthesis.Client
	Recognizer capture.Recognizer
	Devices    media.Devices

	Logger  *log.Logger
	Emitter telemetry.Emitter
	Now     func() time.Time

	NewSessionID func() string
}

// Session is one live call. All exported methods are safe for
// concurrent use.
type Session struct {
	id  string
	cfg Config

	turns   *turn.Controller
	engine  *capture.Engine
	guard   *media.Guard
	history *History
	notices *noticeBoard

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	liveTranscript string
	turnWG         sync.WaitGroup
	endOnce        sync.Once
}

// Snapshot is a point-in-time view of the whole call.
type Snapshot struct {
	SessionID  string
	Phase      turn.Phase
	MediaMode  media.Mode
	Language   string
	Transcript string
	Notices    []Notice
	Turns      turn.Snapshot
}

// New validates the wiring and builds an unstarted session.
func New(cfg Config) (*Session, error) {
	if cfg.Companion.ID == "" {
		return nil, fmt.Errorf("session: companion is required")
	}
	if len(cfg.Generators) == 0 {
		return nil, fmt.Errorf("session: at least one reply generator is required")
	}
	if cfg.Speech == nil {
		return nil, fmt.Errorf("session: speech client is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("session: recognizer is required")
	}
	if cfg.Devices == nil {
		return nil, fmt.Errorf("session: devices are required")
	}
	if cfg.Language == "" {
		cfg.Language = companion.DefaultLanguageCode
	}
	if !companion.IsSupportedLanguage(cfg.Language) {
		return nil, fmt.Errorf("session: unsupported language %q", cfg.Language)
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = DefaultConnectDelay
	}
	if cfg.ConnectDelay < 0 {
		cfg.ConnectDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewForTesting(nil)
	}
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.DefaultEmitter()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = func() string { return uuid.NewString() }
	}

	s := &Session{
		id:      cfg.NewSessionID(),
		cfg:     cfg,
		guard:   media.NewGuard(cfg.Devices),
		history: &History{},
		notices: newNoticeBoard(cfg.NoticeTTL, cfg.Now),
	}

	s.turns = turn.NewController(turn.Config{
		MinFinalChars: cfg.MinFinalChars,
		OnTransition: func(from, to turn.Phase, reason string) {
			cfg.Logger.Debug("phase transition",
				"session_id", s.id, "from", string(from), "to", string(to), "reason", reason)
		},
	})

	engine, err := capture.NewEngine(capture.Config{
		Recognizer:   cfg.Recognizer,
		ShouldRun:    s.turns.CaptureShouldRun,
		Language:     cfg.Language,
		RestartDelay: cfg.RestartDelay,
		OnInterim:    s.onInterim,
		OnFinal:      s.onFinal,
		OnError:      s.onCaptureError,
		Emitter:      cfg.Emitter,
		Correlation:  telemetry.Correlation{SessionID: s.id, CompanionID: cfg.Companion.ID},
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start acquires media, waits out the connect delay, and begins
// listening. It blocks for the connect delay; cancel ctx to abort.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	mode, err := s.guard.Acquire(s.ctx, s.cfg.WantVideo)
	switch {
	case err != nil:
		s.cfg.Logger.Warnf("mic unavailable: %v", err)
		s.notices.Post("Microphone unavailable. The call will run without voice capture.")
		s.turns.SetMicEnabled(false)
	case mode == media.ModeMicOnly && s.cfg.WantVideo:
		s.notices.Post("Camera unavailable. Continuing with audio only.")
	}

	if s.cfg.ConnectDelay > 0 {
		timer := time.NewTimer(s.cfg.ConnectDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}

	s.turns.Connect()
	s.syncCapture()
	s.cfg.Logger.Info("call connected",
		"session_id", s.id, "companion_id", s.cfg.Companion.ID, "language", s.cfg.Language)
	return nil
}

// SetPaused pauses or resumes the call.
func (s *Session) SetPaused(paused bool) {
	s.turns.SetPaused(paused)
	s.syncCapture()
}

// SetMicEnabled toggles the mic.
func (s *Session) SetMicEnabled(enabled bool) {
	s.turns.SetMicEnabled(enabled)
	s.syncCapture()
}

// SetVideoEnabled attaches or releases the camera.
func (s *Session) SetVideoEnabled(enabled bool) {
	if !enabled {
		s.guard.ReleaseCamera()
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.guard.AttachCamera(ctx); err != nil {
		s.cfg.Logger.Warnf("camera attach failed: %v", err)
		s.notices.Post("Camera unavailable.")
	}
}

// SetLanguage switches the capture language mid-call.
func (s *Session) SetLanguage(code string) error {
	if !companion.IsSupportedLanguage(code) {
		return fmt.Errorf("session: unsupported language %q", code)
	}
	return s.engine.SetLanguage(code)
}

// SetGainBoost reconfigures the mic gain.
func (s *Session) SetGainBoost(boost bool) error {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.guard.SetGainBoost(ctx, boost)
}

// End tears the call down: liveness first, then the recognizer, then
// media, then any in-flight turn, then the cached clips. Ending twice
// is a no-op.
func (s *Session) End() {
	s.endOnce.Do(func() {
		s.turns.End()
		s.engine.Stop()
		s.guard.ReleaseAll()
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.turnWG.Wait()
		s.cfg.Speech.ReleaseClips()
		s.cfg.Logger.Info("call ended", "session_id", s.id, "turns", s.turns.Snapshot().TurnsTotal)
	})
}

// Phase returns the current call phase.
func (s *Session) Phase() turn.Phase { return s.turns.Phase() }

// Transcript returns the latest displayed line, the live interim or the
// last reply.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveTranscript
}

// Notices returns the unexpired transient notices.
func (s *Session) Notices() []Notice { return s.notices.Active() }

// History returns the conversation transcript so far.
func (s *Session) History() []contracts.Message { return s.history.All() }

// Snapshot returns a consistent view of the call.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:  s.id,
		Phase:      s.turns.Phase(),
		MediaMode:  s.guard.Mode(),
		Language:   s.engine.Language(),
		Transcript: s.Transcript(),
		Notices:    s.notices.Active(),
		Turns:      s.turns.Snapshot(),
	}
}

// CaptureActive reports whether the recognizer is live right now.
func (s *Session) CaptureActive() bool { return s.engine.IsActive() }

func (s *Session) onInterim(text string) {
	s.setTranscript(text)
}

func (s *Session) onFinal(text string) {
	s.setTranscript(text)
	turnID, ok := s.turns.OfferFinal(text)
	if !ok {
		return
	}
	s.syncCapture()

	userText := strings.TrimSpace(text)
	window := s.history.Window(s.cfg.HistoryWindow)
	s.history.AddUser(userText)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		// Finals cannot arrive before Start, but an unstarted session
		// must not spin up a turn.
		s.turns.EndTurn(turnID)
		return
	}
	turnCtx, cancelTurn := context.WithCancel(ctx)

	s.turnWG.Add(1)
	go s.runTurn(turnCtx, cancelTurn, turnID, userText, window)
}

func (s *Session) runTurn(ctx context.Context, cancel context.CancelFunc, turnID, userText string, window []contracts.Message) {
	defer s.turnWG.Done()
	defer cancel()

	start := s.cfg.Now()
	corr := telemetry.Correlation{
		SessionID:   s.id,
		TurnID:      turnID,
		CompanionID: s.cfg.Companion.ID,
	}

	reply, ok := s.generate(ctx, turnID, userText, window)
	if !ok {
		// A turn cancelled by teardown is not a reply failure; stale
		// completions must not surface to the user.
		if ctx.Err() == nil {
			s.notices.Post("Your companion is having trouble replying right now.")
		}
		s.turns.EndTurn(turnID)
		s.syncCapture()
		return
	}
	s.history.AddAssistant(reply)
	s.setTranscript(reply)

	done := make(chan struct{})
	events := synthesis.Events{
		OnStart: func() {
			s.turns.BeginSpeaking(turnID)
			s.syncCapture()
		},
		OnEnd: func() {
			s.finishTurn(turnID, start, corr)
			close(done)
		},
		OnError: func(err error) {
			s.cfg.Logger.Warnf("playback failed: %v", err)
			s.finishTurn(turnID, start, corr)
			close(done)
		},
	}

	if err := s.cfg.Speech.Speak(ctx, contracts.SpeechRequest{
		SessionID: s.id,
		TurnID:    turnID,
		Text:      reply,
		Voice:     s.cfg.Companion.VoiceSpec(),
	}, events); err != nil {
		s.cfg.Logger.Warnf("speak failed: %v", err)
	}

	select {
	case <-done:
	default:
		// Players report a terminal event before Speak returns; recover
		// the turn if one did not.
		s.finishTurn(turnID, start, corr)
	}
}

func (s *Session) finishTurn(turnID string, start time.Time, corr telemetry.Correlation) {
	if !s.turns.EndTurn(turnID) {
		return
	}
	s.syncCapture()
	latency := s.cfg.Now().Sub(start)
	s.cfg.Emitter.EmitMetric(telemetry.MetricTurnLatencyMS, float64(latency.Milliseconds()), "ms", nil, corr)
}

func (s *Session) generate(ctx context.Context, turnID, userText string, window []contracts.Message) (string, bool) {
	req := contracts.ReplyRequest{
		SessionID:     s.id,
		TurnID:        turnID,
		CompanionType: string(s.cfg.Companion.Type),
		UserText:      userText,
		History:       window,
	}
	for _, gen := range s.cfg.Generators {
		result, err := gen.GenerateReply(ctx, req)
		if err != nil {
			s.cfg.Logger.Warnf("%s: generate reply: %v", gen.Name(), err)
			continue
		}
		if result.Outcome.Class == contracts.OutcomeCancelled {
			return "", false
		}
		if result.Outcome.OK() && strings.TrimSpace(result.Text) != "" {
			return result.Text, true
		}
		s.cfg.Logger.Warn("reply generation failed",
			"provider", gen.Name(), "class", string(result.Outcome.Class), "reason", result.Outcome.Reason)
	}
	return "", false
}

func (s *Session) onCaptureError(kind capture.ErrorKind, err error) {
	switch kind {
	case capture.ErrorPermissionDenied:
		s.turns.SetMicEnabled(false)
		s.notices.Post("Microphone access was denied.")
	case capture.ErrorUnsupported:
		s.turns.SetMicEnabled(false)
		s.notices.Post("Voice capture is not supported on this device.")
	case capture.ErrorNetwork:
		s.notices.Post("Connection hiccup. Reconnecting the microphone.")
	case capture.ErrorNoSpeech, capture.ErrorAborted:
		// Routine recognizer endings; the engine restarts on its own.
	}
	if err != nil {
		s.cfg.Logger.Warnf("capture error (%s): %v", kind, err)
	}
}

func (s *Session) setTranscript(text string) {
	s.mu.Lock()
	s.liveTranscript = text
	s.mu.Unlock()
}

func (s *Session) syncCapture() {
	if s.turns.CaptureShouldRun() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		if err := s.engine.Start(ctx); err != nil {
			s.cfg.Logger.Warnf("capture start failed: %v", err)
			s.notices.Post("Could not start voice capture.")
		}
		return
	}
	s.engine.Stop()
}
