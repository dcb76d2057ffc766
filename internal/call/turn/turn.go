// Package turn owns the call phase machine. One controller tracks which
// phase the call is in, whether it is paused, and which turn is allowed
// to move the phase forward. Capture is permitted exactly when the call
// is listening with the mic enabled and not paused.
package turn

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Phase is the call's visible state.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseListening  Phase = "listening"
	PhaseThinking   Phase = "thinking"
	PhaseSpeaking   Phase = "speaking"
	PhasePaused     Phase = "paused"
	PhaseEnded      Phase = "ended"
)

// DefaultMinFinalChars is the shortest trimmed utterance accepted as a
// turn. Shorter finals are treated as recognizer noise.
const DefaultMinFinalChars = 2

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Phase      Phase
	Paused     bool
	MicEnabled bool
	ActiveTurn string
	TurnsTotal uint64
	NoiseDrops uint64
	StaleDrops uint64
}

// Config wires a Controller.
type Config struct {
	MinFinalChars int
	// OnTransition observes phase changes. Called outside the lock with
	// transitions delivered in order.
	OnTransition func(from, to Phase, reason string)
	// NewTurnID overrides turn ID generation, used by tests.
	NewTurnID func() string
}

// Controller is the phase machine. All methods are safe for concurrent use.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	phase      Phase
	paused     bool
	micEnabled bool
	activeTurn string
	turnsTotal uint64
	noiseDrops uint64
	staleDrops uint64
}

// NewController builds a controller in the connecting phase with the
// mic enabled.
func NewController(cfg Config) *Controller {
	if cfg.MinFinalChars <= 0 {
		cfg.MinFinalChars = DefaultMinFinalChars
	}
	if cfg.NewTurnID == nil {
		cfg.NewTurnID = func() string { return uuid.NewString() }
	}
	return &Controller{
		cfg:        cfg,
		phase:      PhaseConnecting,
		micEnabled: true,
	}
}

// Connect moves from connecting to listening. Any other phase is a no-op.
func (c *Controller) Connect() {
	c.mu.Lock()
	if c.phase != PhaseConnecting {
		c.mu.Unlock()
		return
	}
	to := PhaseListening
	if c.paused {
		to = PhasePaused
	}
	notify := c.transitionLocked(to, "connected")
	c.mu.Unlock()
	notify()
}

// OfferFinal proposes a finalized utterance as a new turn. It is accepted
// only while listening, unpaused, and long enough after trimming; the
// returned turn ID is empty when the final is dropped.
func (c *Controller) OfferFinal(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if c.phase != PhaseListening || c.paused {
		c.staleDrops++
		c.mu.Unlock()
		return "", false
	}
	if len([]rune(trimmed)) < c.cfg.MinFinalChars {
		c.noiseDrops++
		c.mu.Unlock()
		return "", false
	}
	turnID := c.cfg.NewTurnID()
	c.activeTurn = turnID
	c.turnsTotal++
	notify := c.transitionLocked(PhaseThinking, "final_accepted")
	c.mu.Unlock()
	notify()
	return turnID, true
}

// BeginSpeaking moves the active turn from thinking to speaking. Stale
// turn IDs are ignored.
func (c *Controller) BeginSpeaking(turnID string) bool {
	c.mu.Lock()
	if c.phase != PhaseThinking || turnID == "" || turnID != c.activeTurn {
		c.staleDrops++
		c.mu.Unlock()
		return false
	}
	notify := c.transitionLocked(PhaseSpeaking, "speak_started")
	c.mu.Unlock()
	notify()
	return true
}

// EndTurn finishes the active turn from thinking or speaking. The call
// returns to listening, or to paused when a pause arrived mid-turn.
// Stale turn IDs are ignored.
func (c *Controller) EndTurn(turnID string) bool {
	c.mu.Lock()
	if (c.phase != PhaseThinking && c.phase != PhaseSpeaking) || turnID == "" || turnID != c.activeTurn {
		c.staleDrops++
		c.mu.Unlock()
		return false
	}
	c.activeTurn = ""
	to := PhaseListening
	reason := "turn_finished"
	if c.paused {
		to = PhasePaused
		reason = "turn_finished_paused"
	}
	notify := c.transitionLocked(to, reason)
	c.mu.Unlock()
	notify()
	return true
}

// SetPaused updates the pause flag. Pausing while listening moves to the
// paused phase immediately; pausing mid-turn lets the turn finish and
// lands in paused afterwards. Unpausing from the paused phase resumes
// listening.
func (c *Controller) SetPaused(paused bool) {
	c.mu.Lock()
	if c.phase == PhaseEnded || c.paused == paused {
		c.mu.Unlock()
		return
	}
	c.paused = paused
	notify := func() {}
	switch {
	case paused && c.phase == PhaseListening:
		notify = c.transitionLocked(PhasePaused, "paused")
	case !paused && c.phase == PhasePaused:
		notify = c.transitionLocked(PhaseListening, "resumed")
	}
	c.mu.Unlock()
	notify()
}

// SetMicEnabled updates the mic flag. The phase does not change; the
// flag only gates capture.
func (c *Controller) SetMicEnabled(enabled bool) {
	c.mu.Lock()
	c.micEnabled = enabled
	c.mu.Unlock()
}

// End moves to the terminal phase from any phase. Ending twice is a no-op.
func (c *Controller) End() {
	c.mu.Lock()
	if c.phase == PhaseEnded {
		c.mu.Unlock()
		return
	}
	c.activeTurn = ""
	notify := c.transitionLocked(PhaseEnded, "ended")
	c.mu.Unlock()
	notify()
}

// CaptureShouldRun reports whether speech capture is permitted right now.
func (c *Controller) CaptureShouldRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseListening && c.micEnabled && !c.paused
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ActiveTurn returns the in-flight turn ID, empty when idle.
func (c *Controller) ActiveTurn() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeTurn
}

// Snapshot returns a consistent view of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Phase:      c.phase,
		Paused:     c.paused,
		MicEnabled: c.micEnabled,
		ActiveTurn: c.activeTurn,
		TurnsTotal: c.turnsTotal,
		NoiseDrops: c.noiseDrops,
		StaleDrops: c.staleDrops,
	}
}

// transitionLocked flips the phase and returns the observer call to run
// after the lock is released.
func (c *Controller) transitionLocked(to Phase, reason string) func() {
	from := c.phase
	c.phase = to
	if c.cfg.OnTransition == nil || from == to {
		return func() {}
	}
	hook := c.cfg.OnTransition
	return func() { hook(from, to, reason) }
}
