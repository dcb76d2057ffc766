// Package polly implements the secondary remote speech synthesizer on
// Amazon Polly. It is tried when the primary synthesizer fails before
// the session drops to the on-device voice.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

const ProviderID = "tts-amazon-polly"

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Config struct {
	Region       string
	Engine       string
	MaxTextChars int
	Timeout      time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Region:       defaultString(os.Getenv("BLYF_TTS_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		Engine:       defaultString(os.Getenv("BLYF_TTS_POLLY_ENGINE"), "neural"),
		MaxTextChars: 300,
		Timeout:      15 * time.Second,
	}
}

// Synthesizer implements contracts.SpeechSynthesizer on Polly.
type Synthesizer struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	return NewSynthesizerWithClient(cfg, nil)
}

// NewSynthesizerWithClient wires an explicit Polly client, used by tests.
func NewSynthesizerWithClient(cfg Config, client synthClient) (*Synthesizer, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Synthesizer{client: client, cfg: cfg}, nil
}

func NewSynthesizerFromEnv() (*Synthesizer, error) {
	return NewSynthesizer(ConfigFromEnv())
}

func (s *Synthesizer) Name() string { return ProviderID }

func (s *Synthesizer) Synthesize(ctx context.Context, req contracts.SpeechRequest) (contracts.Clip, contracts.Outcome, error) {
	text := req.Text
	if runes := []rune(text); len(runes) > s.cfg.MaxTextChars {
		text = string(runes[:s.cfg.MaxTextChars])
	}
	if strings.TrimSpace(text) == "" {
		return contracts.Clip{}, contracts.Outcome{Class: contracts.OutcomeBlocked, Reason: "empty_text"}, nil
	}

	client, err := s.resolveClient()
	if err != nil {
		return contracts.Clip{}, contracts.Outcome{}, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voiceID := pollyVoiceFor(req.Voice)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      voiceID,
	})
	if err != nil {
		return contracts.Clip{}, normalizePollyError(err), nil
	}
	if output == nil || output.AudioStream == nil {
		return contracts.Clip{}, contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_empty_audio"}, nil
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return contracts.Clip{}, contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "audio_read_error"}, nil
	}
	if len(audio) == 0 {
		return contracts.Clip{}, contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_empty_audio"}, nil
	}
	return contracts.Clip{Audio: audio, MimeType: "audio/mpeg"}, contracts.Success(), nil
}

// pollyVoiceFor maps a companion voice spec to the closest Polly voice.
// The companion voice IDs belong to the primary vendor, so mapping is by
// language and gender.
func pollyVoiceFor(voice contracts.VoiceSpec) pollytypes.VoiceId {
	lang := strings.ToLower(voice.LanguageCode)
	male := strings.EqualFold(voice.Gender, "male")
	switch {
	case strings.HasPrefix(lang, "es"):
		if male {
			return pollytypes.VoiceIdEnrique
		}
		return pollytypes.VoiceIdLucia
	case strings.HasPrefix(lang, "fr"):
		if male {
			return pollytypes.VoiceIdMathieu
		}
		return pollytypes.VoiceIdLea
	case strings.HasPrefix(lang, "de"):
		if male {
			return pollytypes.VoiceIdHans
		}
		return pollytypes.VoiceIdVicki
	case strings.HasPrefix(lang, "ja"):
		if male {
			return pollytypes.VoiceIdTakumi
		}
		return pollytypes.VoiceIdMizuki
	case strings.HasPrefix(lang, "ko"):
		return pollytypes.VoiceIdSeoyeon
	case strings.HasPrefix(lang, "hi"):
		return pollytypes.VoiceIdAditi
	case strings.HasPrefix(lang, "it"):
		if male {
			return pollytypes.VoiceIdGiorgio
		}
		return pollytypes.VoiceIdCarla
	case strings.HasPrefix(lang, "pt"):
		if male {
			return pollytypes.VoiceIdCristiano
		}
		return pollytypes.VoiceIdInes
	case strings.HasPrefix(lang, "zh"):
		return pollytypes.VoiceIdZhiyu
	case strings.HasPrefix(lang, "pl"):
		if male {
			return pollytypes.VoiceIdJacek
		}
		return pollytypes.VoiceIdEwa
	default:
		if male {
			return pollytypes.VoiceIdMatthew
		}
		return pollytypes.VoiceIdJoanna
	}
}

func normalizePollyError(err error) contracts.Outcome {
	if errors.Is(err, context.Canceled) {
		return contracts.Outcome{Class: contracts.OutcomeCancelled, Retryable: false, Reason: "provider_cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.Outcome{Class: contracts.OutcomeTimeout, Retryable: true, Reason: "provider_timeout"}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return contracts.Outcome{Class: contracts.OutcomeOverload, Retryable: true, Reason: "provider_overload", BackoffMS: 500}
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return contracts.Outcome{Class: contracts.OutcomeBlocked, Retryable: false, Reason: "provider_client_error"}
		default:
			return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_server_error"}
		}
	}

	return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_transport_error"}
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (s *Synthesizer) resolveClient() (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}
