// Package media guards access to the user's capture devices. The guard
// owns at most one mic stream and one camera stream at a time, degrades
// from full access to mic-only to disabled as permissions allow, and
// releases everything on teardown.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPermissionDenied is returned (possibly wrapped) by Devices when the
// user or platform refuses access.
var ErrPermissionDenied = errors.New("media: permission denied")

// maxCameraAttempts bounds camera reattach retries per request.
const maxCameraAttempts = 2

// Constraints selects what a requested stream must carry.
type Constraints struct {
	Audio bool
	Video bool
	// BoostGain asks for a higher-gain audio pipeline when supported.
	BoostGain bool
}

// Stream is one live device stream.
type Stream interface {
	Stop()
}

// Devices opens device streams. Implementations sit over the platform
// capture API.
type Devices interface {
	RequestStream(ctx context.Context, c Constraints) (Stream, error)
}

// Mode is the guard's current access level.
type Mode string

const (
	// ModeFull has both mic and camera streams.
	ModeFull Mode = "full"
	// ModeMicOnly has a mic stream but no camera.
	ModeMicOnly Mode = "mic_only"
	// ModeDisabled has no streams; mic permission was refused.
	ModeDisabled Mode = "disabled"
)

// Guard tracks the acquired streams.
type Guard struct {
	devices Devices

	mu         sync.Mutex
	mic        Stream
	camera     Stream
	micBoosted bool
	disabled   bool
}

// NewGuard builds a guard over the given device opener.
func NewGuard(devices Devices) *Guard {
	return &Guard{devices: devices}
}

// Acquire opens the initial streams: the mic always, the camera when
// wantVideo is set. A refused mic disables the guard; a refused camera
// only degrades to mic-only.
func (g *Guard) Acquire(ctx context.Context, wantVideo bool) (Mode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mic == nil {
		mic, err := g.devices.RequestStream(ctx, Constraints{Audio: true, BoostGain: g.micBoosted})
		if err != nil {
			g.disabled = true
			return ModeDisabled, fmt.Errorf("mic access: %w", err)
		}
		g.mic = mic
		g.disabled = false
	}

	if !wantVideo {
		return ModeMicOnly, nil
	}
	if err := g.attachCameraLocked(ctx); err != nil {
		return ModeMicOnly, nil
	}
	return ModeFull, nil
}

// AttachCamera opens the camera stream, retrying a bounded number of
// times. A guard without a mic cannot attach a camera.
func (g *Guard) AttachCamera(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disabled || g.mic == nil {
		return fmt.Errorf("media: cannot attach camera without mic access")
	}
	return g.attachCameraLocked(ctx)
}

func (g *Guard) attachCameraLocked(ctx context.Context) error {
	if g.camera != nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < maxCameraAttempts; attempt++ {
		cam, err := g.devices.RequestStream(ctx, Constraints{Video: true})
		if err == nil {
			g.camera = cam
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrPermissionDenied) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("camera access: %w", lastErr)
}

// ReleaseCamera stops the camera stream. The mic stays up.
func (g *Guard) ReleaseCamera() {
	g.mu.Lock()
	cam := g.camera
	g.camera = nil
	g.mu.Unlock()
	if cam != nil {
		cam.Stop()
	}
}

// SetGainBoost swaps the mic stream for one with the requested gain
// setting. The old stream is stopped before the new one is opened, so
// the guard never holds two mic streams. If the swap fails, the guard
// reacquires the previous setting; failing that too disables the guard.
func (g *Guard) SetGainBoost(ctx context.Context, boost bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mic == nil {
		return fmt.Errorf("media: no mic stream to reconfigure")
	}
	if g.micBoosted == boost {
		return nil
	}

	g.mic.Stop()
	g.mic = nil

	mic, err := g.devices.RequestStream(ctx, Constraints{Audio: true, BoostGain: boost})
	if err == nil {
		g.mic = mic
		g.micBoosted = boost
		return nil
	}

	// Swap failed; try to restore the previous setting.
	mic, restoreErr := g.devices.RequestStream(ctx, Constraints{Audio: true, BoostGain: g.micBoosted})
	if restoreErr != nil {
		g.disabled = true
		return fmt.Errorf("mic gain swap failed and restore failed: %w", restoreErr)
	}
	g.mic = mic
	return fmt.Errorf("mic gain swap: %w", err)
}

// Mode reports the current access level.
func (g *Guard) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.disabled || g.mic == nil:
		return ModeDisabled
	case g.camera != nil:
		return ModeFull
	default:
		return ModeMicOnly
	}
}

// HasCamera reports whether a camera stream is live.
func (g *Guard) HasCamera() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.camera != nil
}

// GainBoosted reports the current mic gain setting.
func (g *Guard) GainBoosted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.micBoosted
}

// ReleaseAll stops every stream. The guard can be reacquired afterwards.
func (g *Guard) ReleaseAll() {
	g.mu.Lock()
	mic, cam := g.mic, g.camera
	g.mic, g.camera = nil, nil
	g.mu.Unlock()
	if cam != nil {
		cam.Stop()
	}
	if mic != nil {
		mic.Stop()
	}
}
