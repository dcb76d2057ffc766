// Package synthesis turns reply text into spoken audio. A client tries
// the remote voice vendors in order, caches rendered clips, and drops to
// the on-device voice when every remote attempt fails, so the companion
// never goes silent over a flaky vendor.
package synthesis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AmanYadav007/BonusLYF/internal/observability/telemetry"
	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

const (
	// DefaultCacheSize bounds the rendered-clip cache per client.
	DefaultCacheSize = 32
	// DefaultMaxTextChars caps spoken text length.
	DefaultMaxTextChars = 300
)

// Player renders a remote clip to the audio output.
type Player interface {
	Play(ctx context.Context, clip contracts.Clip, ev Events) error
}

// FallbackSpeaker speaks text with an on-device voice.
type FallbackSpeaker interface {
	Speak(ctx context.Context, text string, voice contracts.VoiceSpec, ev Events) error
}

// Config wires a Client.
type Config struct {
	// Remotes are tried in order until one returns a usable clip.
	Remotes  []contracts.SpeechSynthesizer
	Player   Player
	Fallback FallbackSpeaker

	CacheSize    int
	MaxTextChars int
	Emitter      telemetry.Emitter
	Correlation  telemetry.Correlation
}

// Client speaks companion replies.
type Client struct {
	cfg   Config
	cache *lru.Cache[string, contracts.Clip]
}

// NewClient validates the wiring and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Remotes) > 0 && cfg.Player == nil {
		return nil, fmt.Errorf("synthesis: player is required with remote synthesizers")
	}
	if len(cfg.Remotes) == 0 && cfg.Fallback == nil {
		return nil, fmt.Errorf("synthesis: at least one voice source is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = DefaultMaxTextChars
	}
	if cfg.Emitter == nil {
		cfg.Emitter = telemetry.DefaultEmitter()
	}
	cache, err := lru.New[string, contracts.Clip](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("synthesis: clip cache: %w", err)
	}
	return &Client{cfg: cfg, cache: cache}, nil
}

// Speak renders and plays req.Text. The events fire around the actual
// playback, remote or fallback, with the terminal callback guaranteed
// exactly once.
func (c *Client) Speak(ctx context.Context, req contracts.SpeechRequest, ev Events) error {
	ev = Guard(ev)
	req.Text = truncate(req.Text, c.cfg.MaxTextChars)

	key := clipKey(req.Voice.ID, req.Text)
	if clip, ok := c.cache.Get(key); ok {
		return c.cfg.Player.Play(ctx, clip, ev)
	}

	lastReason := "no remote synthesizers"
	for _, remote := range c.cfg.Remotes {
		if ctx.Err() != nil {
			ev.Error(ctx.Err())
			return ctx.Err()
		}
		clip, outcome, err := remote.Synthesize(ctx, req)
		if err != nil {
			lastReason = fmt.Sprintf("%s: %v", remote.Name(), err)
			continue
		}
		if outcome.Class == contracts.OutcomeCancelled {
			err := context.Canceled
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			ev.Error(err)
			return err
		}
		if outcome.OK() {
			c.cache.Add(key, clip)
			return c.cfg.Player.Play(ctx, clip, ev)
		}
		lastReason = fmt.Sprintf("%s: %s", remote.Name(), outcome.Reason)
	}

	if c.cfg.Fallback != nil {
		c.cfg.Emitter.EmitMetric(telemetry.MetricSynthesisFallbacks, 1, "count",
			map[string]string{"reason": lastReason}, c.cfg.Correlation)
		return c.cfg.Fallback.Speak(ctx, req.Text, req.Voice, ev)
	}

	err := fmt.Errorf("synthesis: all voices failed: %s", lastReason)
	ev.Error(err)
	return err
}

// CachedClips reports how many rendered clips are held.
func (c *Client) CachedClips() int {
	return c.cache.Len()
}

// ReleaseClips drops every cached clip, freeing their audio buffers.
func (c *Client) ReleaseClips() {
	c.cache.Purge()
}

func clipKey(voiceID, text string) string {
	sum := sha256.Sum256([]byte(voiceID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}
