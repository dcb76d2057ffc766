// Package contracts defines the interfaces and data shapes shared by the
// call engine and the provider adapters. Adapters normalize their vendor
// failures into Outcome values so the calling code can make retry and
// fallback decisions without vendor-specific knowledge.
package contracts

import "context"

// Modality identifies which leg of the call pipeline a provider serves.
type Modality string

const (
	ModalitySTT Modality = "stt"
	ModalityLLM Modality = "llm"
	ModalityTTS Modality = "tts"
)

// OutcomeClass is the normalized result category for a provider attempt.
type OutcomeClass string

const (
	OutcomeSuccess               OutcomeClass = "success"
	OutcomeTimeout               OutcomeClass = "timeout"
	OutcomeOverload              OutcomeClass = "overload"
	OutcomeBlocked               OutcomeClass = "blocked"
	OutcomeInfrastructureFailure OutcomeClass = "infrastructure_failure"
	OutcomeCancelled             OutcomeClass = "cancelled"
)

// Outcome is the normalized result of one provider attempt.
type Outcome struct {
	Class      OutcomeClass
	Retryable  bool
	Reason     string
	StatusCode int
	// BackoffMS carries a server-suggested retry delay when the provider
	// returned one (Retry-After on 429), zero otherwise.
	BackoffMS int
}

// OK reports whether the attempt produced a usable result.
func (o Outcome) OK() bool { return o.Class == OutcomeSuccess }

// Success returns the canonical successful outcome.
func Success() Outcome {
	return Outcome{Class: OutcomeSuccess}
}

// Role labels a conversation message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one exchange in the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ReplyRequest asks a text generator for the companion's next reply.
type ReplyRequest struct {
	SessionID     string
	TurnID        string
	CompanionType string
	UserText      string
	// History holds the prior exchanges, oldest first, already trimmed
	// to the caller's window.
	History []Message
}

// ReplyResult carries the generated reply text and the normalized outcome.
type ReplyResult struct {
	Text    string
	Outcome Outcome
}

// TextGenerator produces companion replies. Implementations must honor
// ctx cancellation and report it as OutcomeCancelled.
type TextGenerator interface {
	Name() string
	GenerateReply(ctx context.Context, req ReplyRequest) (ReplyResult, error)
}

// VoiceSpec describes the synthetic voice a companion speaks with.
type VoiceSpec struct {
	ID              string
	LanguageCode    string
	Gender          string
	Stability       float64
	SimilarityBoost float64
	Style           float64
	SpeakerBoost    bool
}

// SpeechRequest asks a synthesizer to render text in a given voice.
type SpeechRequest struct {
	SessionID string
	TurnID    string
	Text      string
	Voice     VoiceSpec
}

// Clip is one rendered audio payload.
type Clip struct {
	Audio    []byte
	MimeType string
}

// SpeechSynthesizer renders text to audio. A non-success Outcome with a
// nil error means the vendor answered but the result is unusable; the
// caller decides whether to fall back.
type SpeechSynthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SpeechRequest) (Clip, Outcome, error)
}
