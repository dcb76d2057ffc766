package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

type fakeModel struct {
	lastModel    string
	lastContents []*genai.Content
	lastConfig   *genai.GenerateContentConfig
	resp         *genai.GenerateContentResponse
	err          error
}

func (f *fakeModel) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastContents = contents
	f.lastConfig = config
	return f.resp, f.err
}

func testPromptResolver(companionType string) (string, bool) {
	if companionType == "human" {
		return "You are Sarah.", true
	}
	return "", false
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestGenerateReplyMapsRolesAndPersona(t *testing.T) {
	t.Parallel()

	fake := &fakeModel{resp: textResponse("I hear you.")}
	gen, err := NewGeneratorWithModel(Config{
		Model:           "gemini-2.0-flash",
		Temperature:     0.8,
		MaxOutputTokens: 150,
		SystemPromptFor: testPromptResolver,
	}, fake)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	result, err := gen.GenerateReply(context.Background(), contracts.ReplyRequest{
		CompanionType: "human",
		UserText:      "rough day",
		History: []contracts.Message{
			{Role: contracts.RoleUser, Content: "hi"},
			{Role: contracts.RoleAssistant, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("generate reply: %v", err)
	}
	if !result.Outcome.OK() || result.Text != "I hear you." {
		t.Fatalf("unexpected result %+v", result)
	}

	if fake.lastModel != "gemini-2.0-flash" {
		t.Fatalf("model = %q", fake.lastModel)
	}
	if len(fake.lastContents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(fake.lastContents))
	}
	if fake.lastContents[0].Role != string(genai.RoleUser) {
		t.Fatalf("history user role = %q", fake.lastContents[0].Role)
	}
	if fake.lastContents[1].Role != string(genai.RoleModel) {
		t.Fatalf("history assistant role = %q", fake.lastContents[1].Role)
	}
	if fake.lastConfig.SystemInstruction == nil {
		t.Fatalf("expected system instruction")
	}
	if fake.lastConfig.MaxOutputTokens != 150 {
		t.Fatalf("max output tokens = %d", fake.lastConfig.MaxOutputTokens)
	}
}

func TestGenerateReplyEmptyTextIsRetryable(t *testing.T) {
	t.Parallel()

	fake := &fakeModel{resp: textResponse("")}
	gen, err := NewGeneratorWithModel(Config{SystemPromptFor: testPromptResolver}, fake)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	result, err := gen.GenerateReply(context.Background(), contracts.ReplyRequest{CompanionType: "human", UserText: "hi"})
	if err != nil {
		t.Fatalf("generate reply: %v", err)
	}
	if result.Outcome.Class != contracts.OutcomeInfrastructureFailure || !result.Outcome.Retryable {
		t.Fatalf("unexpected outcome %+v", result.Outcome)
	}
}

func TestGenerateReplyNormalizesAPIErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		wantClass contracts.OutcomeClass
	}{
		{name: "overload", err: genai.APIError{Code: 429}, wantClass: contracts.OutcomeOverload},
		{name: "auth", err: genai.APIError{Code: 403}, wantClass: contracts.OutcomeBlocked},
		{name: "client", err: genai.APIError{Code: 400}, wantClass: contracts.OutcomeBlocked},
		{name: "server", err: genai.APIError{Code: 500}, wantClass: contracts.OutcomeInfrastructureFailure},
		{name: "transport", err: errors.New("dial tcp: refused"), wantClass: contracts.OutcomeInfrastructureFailure},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeModel{err: tc.err}
			gen, err := NewGeneratorWithModel(Config{SystemPromptFor: testPromptResolver}, fake)
			if err != nil {
				t.Fatalf("new generator: %v", err)
			}
			result, err := gen.GenerateReply(context.Background(), contracts.ReplyRequest{CompanionType: "human", UserText: "hi"})
			if err != nil {
				t.Fatalf("generate reply: %v", err)
			}
			if result.Outcome.Class != tc.wantClass {
				t.Fatalf("class = %s, want %s", result.Outcome.Class, tc.wantClass)
			}
		})
	}
}

func TestGenerateReplyUnknownCompanionType(t *testing.T) {
	t.Parallel()

	gen, err := NewGeneratorWithModel(Config{SystemPromptFor: testPromptResolver}, &fakeModel{})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	result, err := gen.GenerateReply(context.Background(), contracts.ReplyRequest{CompanionType: "robot", UserText: "hi"})
	if err != nil {
		t.Fatalf("generate reply: %v", err)
	}
	if result.Outcome.Class != contracts.OutcomeBlocked {
		t.Fatalf("unexpected outcome %+v", result.Outcome)
	}
}
