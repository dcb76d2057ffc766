// Package gemini implements the fallback reply generator on the Google
// GenAI SDK. It is tried when the primary generator reports a retryable
// failure.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/AmanYadav007/BonusLYF/internal/config"
	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

const ProviderID = "llm-gemini"

type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
	SystemPromptFor func(companionType string) (string, bool)
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:          config.ResolveEnvValue("BLYF_LLM_GEMINI_API_KEY", "BLYF_LLM_GEMINI_API_KEY_REF", os.Getenv("GEMINI_API_KEY")),
		Model:           defaultString(os.Getenv("BLYF_LLM_GEMINI_MODEL"), "gemini-2.0-flash"),
		Temperature:     0.8,
		MaxOutputTokens: 150,
		Timeout:         config.EnvDuration("BLYF_LLM_GEMINI_TIMEOUT", 10*time.Second),
	}
}

// contentModel is the slice of the SDK the generator needs. *genai.Models
// satisfies it; tests substitute a fake.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements contracts.TextGenerator on the GenAI SDK.
type Generator struct {
	cfg   Config
	model contentModel
}

func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return NewGeneratorWithModel(cfg, client.Models)
}

// NewGeneratorWithModel wires an explicit content model, used by tests.
func NewGeneratorWithModel(cfg Config, model contentModel) (*Generator, error) {
	if model == nil {
		return nil, fmt.Errorf("gemini: content model is required")
	}
	if cfg.SystemPromptFor == nil {
		return nil, fmt.Errorf("gemini: system prompt resolver is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Generator{cfg: cfg, model: model}, nil
}

func (g *Generator) Name() string { return ProviderID }

func (g *Generator) GenerateReply(ctx context.Context, req contracts.ReplyRequest) (contracts.ReplyResult, error) {
	prompt, ok := g.cfg.SystemPromptFor(req.CompanionType)
	if !ok {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class:  contracts.OutcomeBlocked,
			Reason: "unknown_companion_type",
		}}, nil
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		var role genai.Role = genai.RoleUser
		if msg.Role == contracts.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.UserText, genai.RoleUser))

	genCfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](g.cfg.Temperature),
		MaxOutputTokens:   g.cfg.MaxOutputTokens,
		SystemInstruction: genai.NewContentFromText(prompt, genai.RoleUser),
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, g.cfg.Model, contents, genCfg)
	if err != nil {
		return contracts.ReplyResult{Outcome: normalizeError(ctx, err)}, nil
	}

	text := resp.Text()
	if text == "" {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class:     contracts.OutcomeInfrastructureFailure,
			Retryable: true,
			Reason:    "provider_empty_reply",
		}}, nil
	}
	return contracts.ReplyResult{Text: text, Outcome: contracts.Success()}, nil
}

func normalizeError(ctx context.Context, err error) contracts.Outcome {
	if ctx.Err() == context.Canceled {
		return contracts.Outcome{Class: contracts.OutcomeCancelled, Reason: "provider_cancelled"}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return contracts.Outcome{Class: contracts.OutcomeTimeout, Retryable: true, Reason: "provider_timeout"}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return contracts.Outcome{Class: contracts.OutcomeOverload, Retryable: true, Reason: "provider_overload", StatusCode: apiErr.Code, BackoffMS: 500}
		case apiErr.Code == 401 || apiErr.Code == 403:
			return contracts.Outcome{Class: contracts.OutcomeBlocked, Reason: "provider_auth_or_policy_block", StatusCode: apiErr.Code}
		case apiErr.Code >= 400 && apiErr.Code <= 499:
			return contracts.Outcome{Class: contracts.OutcomeBlocked, Reason: "provider_client_error", StatusCode: apiErr.Code}
		default:
			return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_server_error", StatusCode: apiErr.Code}
		}
	}
	return contracts.Outcome{Class: contracts.OutcomeInfrastructureFailure, Retryable: true, Reason: "provider_transport_error"}
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
