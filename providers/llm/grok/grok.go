// Package grok implements the primary reply generator against the xAI
// chat-completions API.
package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AmanYadav007/BonusLYF/internal/config"
	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
	"github.com/AmanYadav007/BonusLYF/providers/common/httpadapter"
)

const ProviderID = "llm-grok"

type Config struct {
	APIKey      string
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// SystemPromptFor resolves the persona prompt for a companion type.
	// Required; the generator refuses requests it cannot prompt for.
	SystemPromptFor func(companionType string) (string, bool)
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      config.ResolveEnvValue("BLYF_LLM_XAI_API_KEY", "BLYF_LLM_XAI_API_KEY_REF", os.Getenv("XAI_API_KEY")),
		Endpoint:    defaultString(os.Getenv("BLYF_LLM_XAI_ENDPOINT"), "https://api.x.ai/v1/chat/completions"),
		Model:       defaultString(os.Getenv("BLYF_LLM_XAI_MODEL"), "grok-4-latest"),
		Temperature: 0.8,
		MaxTokens:   150,
		Timeout:     config.EnvDuration("BLYF_LLM_XAI_TIMEOUT", 10*time.Second),
	}
}

// Generator implements contracts.TextGenerator against xAI.
type Generator struct {
	cfg  Config
	http *http.Client
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("grok: endpoint is required")
	}
	if cfg.SystemPromptFor == nil {
		return nil, fmt.Errorf("grok: system prompt resolver is required")
	}
	if cfg.Model == "" {
		cfg.Model = "grok-4-latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Generator{cfg: cfg, http: &http.Client{}}, nil
}

func (g *Generator) Name() string { return ProviderID }

type chatRequest struct {
	Messages    []contracts.Message `json:"messages"`
	Model       string              `json:"model"`
	Stream      bool                `json:"stream"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateReply sends the persona prompt, the trimmed history and the
// user's new utterance, and returns the companion's reply.
func (g *Generator) GenerateReply(ctx context.Context, req contracts.ReplyRequest) (contracts.ReplyResult, error) {
	if g.cfg.APIKey == "" {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class:  contracts.OutcomeBlocked,
			Reason: "provider_api_key_missing",
		}}, nil
	}
	prompt, ok := g.cfg.SystemPromptFor(req.CompanionType)
	if !ok {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class:  contracts.OutcomeBlocked,
			Reason: "unknown_companion_type",
		}}, nil
	}

	messages := make([]contracts.Message, 0, len(req.History)+2)
	messages = append(messages, contracts.Message{Role: contracts.RoleSystem, Content: prompt})
	messages = append(messages, req.History...)
	messages = append(messages, contracts.Message{Role: contracts.RoleUser, Content: req.UserText})

	body, err := json.Marshal(chatRequest{
		Messages:    messages,
		Model:       g.cfg.Model,
		Stream:      false,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return contracts.ReplyResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return contracts.ReplyResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return contracts.ReplyResult{Outcome: httpadapter.NormalizeNetworkError(err)}, nil
	}
	defer resp.Body.Close()

	outcome := httpadapter.NormalizeStatus(resp.StatusCode, resp.Header.Get("Retry-After"))
	if !outcome.OK() {
		sample, _, readErr := httpadapter.ReadBodySample(resp.Body, 0)
		if readErr == nil && len(sample) > 0 {
			outcome.Reason = fmt.Sprintf("%s: %s", outcome.Reason, sample)
		}
		return contracts.ReplyResult{Outcome: outcome}, nil
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class:      contracts.OutcomeInfrastructureFailure,
			Retryable:  true,
			Reason:     "provider_malformed_response",
			StatusCode: resp.StatusCode,
		}}, nil
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class:      contracts.OutcomeInfrastructureFailure,
			Retryable:  true,
			Reason:     "provider_empty_reply",
			StatusCode: resp.StatusCode,
		}}, nil
	}

	return contracts.ReplyResult{
		Text:    parsed.Choices[0].Message.Content,
		Outcome: outcome,
	}, nil
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
