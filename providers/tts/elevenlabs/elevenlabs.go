// Package elevenlabs implements the primary speech synthesizer against
// the ElevenLabs text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AmanYadav007/BonusLYF/internal/config"
	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
	"github.com/AmanYadav007/BonusLYF/providers/common/httpadapter"
)

const ProviderID = "tts-elevenlabs"

const (
	// DefaultMaxTextChars caps spoken text length per request.
	DefaultMaxTextChars = 300
	// DefaultMinAudioBytes is the smallest payload accepted as a real clip.
	DefaultMinAudioBytes = 512
)

type Config struct {
	APIKey       string
	EndpointBase string
	ModelID      string
	MaxTextChars int
	MinClipBytes int
	Timeout      time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:       config.ResolveEnvValue("BLYF_TTS_ELEVENLABS_API_KEY", "BLYF_TTS_ELEVENLABS_API_KEY_REF", os.Getenv("ELEVENLABS_API_KEY")),
		EndpointBase: config.ResolveEnvValue("BLYF_TTS_ELEVENLABS_ENDPOINT", "BLYF_TTS_ELEVENLABS_ENDPOINT_REF", "https://api.elevenlabs.io/v1/text-to-speech"),
		ModelID:      defaultString(os.Getenv("BLYF_TTS_ELEVENLABS_MODEL"), "eleven_monolingual_v1"),
		MaxTextChars: config.EnvInt("BLYF_TTS_MAX_TEXT_CHARS", DefaultMaxTextChars),
		MinClipBytes: config.EnvInt("BLYF_TTS_MIN_CLIP_BYTES", DefaultMinAudioBytes),
		Timeout:      config.EnvDuration("BLYF_TTS_ELEVENLABS_TIMEOUT", 15*time.Second),
	}
}

// Synthesizer implements contracts.SpeechSynthesizer.
type Synthesizer struct {
	cfg  Config
	http *http.Client
}

func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	if cfg.EndpointBase == "" {
		return nil, fmt.Errorf("elevenlabs: endpoint is required")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_monolingual_v1"
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = DefaultMaxTextChars
	}
	if cfg.MinClipBytes <= 0 {
		cfg.MinClipBytes = DefaultMinAudioBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Synthesizer{cfg: cfg, http: &http.Client{}}, nil
}

func (s *Synthesizer) Name() string { return ProviderID }

type synthesisBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize renders req.Text with the companion's voice. A non-success
// outcome with a nil error signals the caller to try the fallback voice.
func (s *Synthesizer) Synthesize(ctx context.Context, req contracts.SpeechRequest) (contracts.Clip, contracts.Outcome, error) {
	if s.cfg.APIKey == "" {
		return contracts.Clip{}, contracts.Outcome{
			Class:  contracts.OutcomeBlocked,
			Reason: "provider_api_key_missing",
		}, nil
	}
	if req.Voice.ID == "" {
		return contracts.Clip{}, contracts.Outcome{
			Class:  contracts.OutcomeBlocked,
			Reason: "voice_id_missing",
		}, nil
	}
	text := TruncateText(req.Text, s.cfg.MaxTextChars)
	if strings.TrimSpace(text) == "" {
		return contracts.Clip{}, contracts.Outcome{
			Class:  contracts.OutcomeBlocked,
			Reason: "empty_text",
		}, nil
	}

	body, err := json.Marshal(synthesisBody{
		Text:    text,
		ModelID: s.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       req.Voice.Stability,
			SimilarityBoost: req.Voice.SimilarityBoost,
			Style:           req.Voice.Style,
			UseSpeakerBoost: req.Voice.SpeakerBoost,
		},
	})
	if err != nil {
		return contracts.Clip{}, contracts.Outcome{}, err
	}

	endpoint := strings.TrimRight(s.cfg.EndpointBase, "/") + "/" + req.Voice.ID

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return contracts.Clip{}, contracts.Outcome{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", s.cfg.APIKey)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return contracts.Clip{}, httpadapter.NormalizeNetworkError(err), nil
	}
	defer resp.Body.Close()

	outcome := httpadapter.NormalizeStatus(resp.StatusCode, resp.Header.Get("Retry-After"))
	if !outcome.OK() {
		sample, _, readErr := httpadapter.ReadBodySample(resp.Body, 0)
		if readErr == nil && len(sample) > 0 {
			outcome.Reason = fmt.Sprintf("%s: %s", outcome.Reason, sample)
		}
		return contracts.Clip{}, outcome, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		return contracts.Clip{}, contracts.Outcome{
			Class:      contracts.OutcomeInfrastructureFailure,
			Retryable:  true,
			Reason:     fmt.Sprintf("unexpected_content_type %q", contentType),
			StatusCode: resp.StatusCode,
		}, nil
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return contracts.Clip{}, contracts.Outcome{
			Class:      contracts.OutcomeInfrastructureFailure,
			Retryable:  true,
			Reason:     "audio_read_error",
			StatusCode: resp.StatusCode,
		}, nil
	}
	if len(audio) < s.cfg.MinClipBytes {
		return contracts.Clip{}, contracts.Outcome{
			Class:      contracts.OutcomeInfrastructureFailure,
			Retryable:  true,
			Reason:     fmt.Sprintf("audio_too_small bytes=%d", len(audio)),
			StatusCode: resp.StatusCode,
		}, nil
	}

	return contracts.Clip{Audio: audio, MimeType: contentType}, outcome, nil
}

// TruncateText limits text to maxChars runes without splitting a rune.
func TruncateText(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
