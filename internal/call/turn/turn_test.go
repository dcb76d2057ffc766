package turn

import (
	"fmt"
	"sync"
	"testing"
)

func newTestController(cfg Config) *Controller {
	if cfg.NewTurnID == nil {
		var n int
		cfg.NewTurnID = func() string {
			n++
			return fmt.Sprintf("turn-%d", n)
		}
	}
	return NewController(cfg)
}

func connectedController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c := newTestController(cfg)
	c.Connect()
	if c.Phase() != PhaseListening {
		t.Fatalf("expected listening after connect, got %s", c.Phase())
	}
	return c
}

func TestConnectOnlyFromConnecting(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	if c.Phase() != PhaseConnecting {
		t.Fatalf("initial phase = %s", c.Phase())
	}
	if c.CaptureShouldRun() {
		t.Fatalf("capture must not run while connecting")
	}
	c.Connect()
	if c.Phase() != PhaseListening {
		t.Fatalf("phase after connect = %s", c.Phase())
	}
	// Second connect is a no-op.
	c.Connect()
	if c.Phase() != PhaseListening {
		t.Fatalf("phase after duplicate connect = %s", c.Phase())
	}
}

func TestConnectWhilePausedLandsInPaused(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	c.SetPaused(true)
	c.Connect()
	if c.Phase() != PhasePaused {
		t.Fatalf("expected paused after connecting paused, got %s", c.Phase())
	}
	c.SetPaused(false)
	if c.Phase() != PhaseListening {
		t.Fatalf("expected listening after resume, got %s", c.Phase())
	}
}

func TestFullTurnCycle(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})

	turnID, ok := c.OfferFinal("  hello there  ")
	if !ok || turnID == "" {
		t.Fatalf("expected final to be accepted")
	}
	if c.Phase() != PhaseThinking {
		t.Fatalf("phase = %s, want thinking", c.Phase())
	}
	if c.CaptureShouldRun() {
		t.Fatalf("capture must not run while thinking")
	}

	if !c.BeginSpeaking(turnID) {
		t.Fatalf("begin speaking rejected")
	}
	if c.Phase() != PhaseSpeaking {
		t.Fatalf("phase = %s, want speaking", c.Phase())
	}

	if !c.EndTurn(turnID) {
		t.Fatalf("end turn rejected")
	}
	if c.Phase() != PhaseListening {
		t.Fatalf("phase = %s, want listening", c.Phase())
	}
	if c.ActiveTurn() != "" {
		t.Fatalf("active turn should be cleared")
	}
	if !c.CaptureShouldRun() {
		t.Fatalf("capture should resume after the turn")
	}
}

func TestNoiseFinalsAreDropped(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	for _, text := range []string{"", " ", "a", " a "} {
		if _, ok := c.OfferFinal(text); ok {
			t.Fatalf("noise final %q should be dropped", text)
		}
	}
	if c.Phase() != PhaseListening {
		t.Fatalf("noise must not change phase, got %s", c.Phase())
	}
	if got := c.Snapshot().NoiseDrops; got != 4 {
		t.Fatalf("noise drops = %d, want 4", got)
	}

	// Two-rune utterances pass the filter, including multibyte ones.
	if _, ok := c.OfferFinal("ok"); !ok {
		t.Fatalf("two-char final should be accepted")
	}
}

func TestMultibyteNoiseFilterCountsRunes(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	if _, ok := c.OfferFinal("あ"); ok {
		t.Fatalf("single rune should be dropped")
	}
	if _, ok := c.OfferFinal("あい"); !ok {
		t.Fatalf("two runes should be accepted")
	}
}

func TestFinalsWhileNotListeningAreDropped(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	turnID, _ := c.OfferFinal("first utterance")

	// A trailing final arrives while thinking.
	if _, ok := c.OfferFinal("late final"); ok {
		t.Fatalf("final while thinking should be dropped")
	}
	c.BeginSpeaking(turnID)
	if _, ok := c.OfferFinal("another late final"); ok {
		t.Fatalf("final while speaking should be dropped")
	}
	c.EndTurn(turnID)
	if _, ok := c.OfferFinal("fresh final"); !ok {
		t.Fatalf("final after turn end should be accepted")
	}
}

func TestStaleTurnIDsAreIgnored(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	turnID, _ := c.OfferFinal("hello there")

	if c.BeginSpeaking("bogus") {
		t.Fatalf("stale begin speaking must be ignored")
	}
	if c.EndTurn("bogus") {
		t.Fatalf("stale end turn must be ignored")
	}
	if c.Phase() != PhaseThinking {
		t.Fatalf("stale IDs must not change phase, got %s", c.Phase())
	}

	c.BeginSpeaking(turnID)
	c.EndTurn(turnID)

	// The old turn ID is dead after the turn finishes.
	if c.BeginSpeaking(turnID) {
		t.Fatalf("finished turn must not restart")
	}
	if c.EndTurn(turnID) {
		t.Fatalf("finished turn must not end twice")
	}
}

func TestPauseWhileListening(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	c.SetPaused(true)
	if c.Phase() != PhasePaused {
		t.Fatalf("phase = %s, want paused", c.Phase())
	}
	if c.CaptureShouldRun() {
		t.Fatalf("capture must not run while paused")
	}
	if _, ok := c.OfferFinal("spoken while paused"); ok {
		t.Fatalf("finals while paused must be dropped")
	}
	c.SetPaused(false)
	if c.Phase() != PhaseListening {
		t.Fatalf("phase = %s, want listening after resume", c.Phase())
	}
}

func TestPauseDuringTurnDefersUntilTurnEnds(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	turnID, _ := c.OfferFinal("hello there")
	c.BeginSpeaking(turnID)

	// Pause mid-speech: the reply keeps playing.
	c.SetPaused(true)
	if c.Phase() != PhaseSpeaking {
		t.Fatalf("pause must not interrupt speaking, got %s", c.Phase())
	}

	c.EndTurn(turnID)
	if c.Phase() != PhasePaused {
		t.Fatalf("phase = %s, want paused after deferred pause", c.Phase())
	}
	if c.CaptureShouldRun() {
		t.Fatalf("capture must stay off after deferred pause")
	}

	c.SetPaused(false)
	if c.Phase() != PhaseListening {
		t.Fatalf("phase = %s, want listening after resume", c.Phase())
	}
}

func TestUnpauseDuringTurnClearsFlagWithoutPhaseChange(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	turnID, _ := c.OfferFinal("hello there")
	c.SetPaused(true)
	c.SetPaused(false)
	c.EndTurn(turnID)
	if c.Phase() != PhaseListening {
		t.Fatalf("phase = %s, want listening when pause was cancelled mid-turn", c.Phase())
	}
}

func TestMicToggleGatesCaptureOnly(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	c.SetMicEnabled(false)
	if c.Phase() != PhaseListening {
		t.Fatalf("mic toggle must not change phase, got %s", c.Phase())
	}
	if c.CaptureShouldRun() {
		t.Fatalf("capture must not run with mic disabled")
	}
	c.SetMicEnabled(true)
	if !c.CaptureShouldRun() {
		t.Fatalf("capture should run with mic re-enabled")
	}
}

func TestEndIsTerminalFromAnyPhase(t *testing.T) {
	t.Parallel()

	phases := []struct {
		name  string
		setup func(c *Controller)
	}{
		{name: "connecting", setup: func(c *Controller) {}},
		{name: "listening", setup: func(c *Controller) { c.Connect() }},
		{name: "thinking", setup: func(c *Controller) {
			c.Connect()
			c.OfferFinal("hello there")
		}},
		{name: "speaking", setup: func(c *Controller) {
			c.Connect()
			id, _ := c.OfferFinal("hello there")
			c.BeginSpeaking(id)
		}},
		{name: "paused", setup: func(c *Controller) {
			c.Connect()
			c.SetPaused(true)
		}},
	}

	for _, tc := range phases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestController(Config{})
			tc.setup(c)
			c.End()
			if c.Phase() != PhaseEnded {
				t.Fatalf("phase = %s, want ended", c.Phase())
			}
			if c.CaptureShouldRun() {
				t.Fatalf("capture must not run after end")
			}
			// Everything is inert after end.
			c.Connect()
			c.SetPaused(true)
			if _, ok := c.OfferFinal("hello there"); ok {
				t.Fatalf("finals after end must be dropped")
			}
			if c.Phase() != PhaseEnded {
				t.Fatalf("ended is terminal, got %s", c.Phase())
			}
		})
	}
}

func TestTransitionsAreObservedInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	c := newTestController(Config{
		OnTransition: func(from, to Phase, reason string) {
			mu.Lock()
			seen = append(seen, fmt.Sprintf("%s>%s:%s", from, to, reason))
			mu.Unlock()
		},
	})

	c.Connect()
	id, _ := c.OfferFinal("hello there")
	c.BeginSpeaking(id)
	c.EndTurn(id)
	c.End()

	want := []string{
		"connecting>listening:connected",
		"listening>thinking:final_accepted",
		"thinking>speaking:speak_started",
		"speaking>listening:turn_finished",
		"listening>ended:ended",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestCaptureInvariantAcrossStates(t *testing.T) {
	t.Parallel()

	c := connectedController(t, Config{})
	check := func(want bool, when string) {
		t.Helper()
		snap := c.Snapshot()
		derived := snap.Phase == PhaseListening && snap.MicEnabled && !snap.Paused
		if got := c.CaptureShouldRun(); got != derived || got != want {
			t.Fatalf("%s: CaptureShouldRun=%v derived=%v want=%v", when, got, derived, want)
		}
	}

	check(true, "listening")
	c.SetMicEnabled(false)
	check(false, "mic off")
	c.SetMicEnabled(true)
	c.SetPaused(true)
	check(false, "paused")
	c.SetPaused(false)
	id, _ := c.OfferFinal("hello there")
	check(false, "thinking")
	c.BeginSpeaking(id)
	check(false, "speaking")
	c.EndTurn(id)
	check(true, "back to listening")
}
