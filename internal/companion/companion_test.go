package companion

import (
	"strings"
	"testing"
)

func TestDefaultRosterLoadsAndIndexes(t *testing.T) {
	t.Parallel()

	r, err := DefaultRoster()
	if err != nil {
		t.Fatalf("DefaultRoster() error = %v", err)
	}
	if got := len(r.All()); got != 2 {
		t.Fatalf("expected 2 companions, got %d", got)
	}

	aiko, ok := r.ByType(TypeAnime)
	if !ok {
		t.Fatalf("expected an anime companion")
	}
	if aiko.Name != "Aiko" {
		t.Fatalf("anime companion name = %q, want Aiko", aiko.Name)
	}
	if aiko.Voice.VoiceID == "" {
		t.Fatalf("anime companion has no voice id")
	}

	sarah, ok := r.ByID("comp_human_01")
	if !ok {
		t.Fatalf("expected comp_human_01 in roster")
	}
	if sarah.Type != TypeHuman {
		t.Fatalf("comp_human_01 type = %q, want human", sarah.Type)
	}
	if r.Default().ID != sarah.ID {
		t.Fatalf("default companion = %q, want %q", r.Default().ID, sarah.ID)
	}
}

func TestVoiceSpecConversion(t *testing.T) {
	t.Parallel()

	r, err := DefaultRoster()
	if err != nil {
		t.Fatalf("DefaultRoster() error = %v", err)
	}
	aiko, _ := r.ByType(TypeAnime)
	spec := aiko.VoiceSpec()
	if spec.ID != aiko.Voice.VoiceID {
		t.Fatalf("spec id = %q, want %q", spec.ID, aiko.Voice.VoiceID)
	}
	if spec.Stability != 0.45 || spec.SimilarityBoost != 0.8 || spec.Style != 0.7 {
		t.Fatalf("unexpected voice settings: %+v", spec)
	}
	if !spec.SpeakerBoost {
		t.Fatalf("expected speaker boost enabled")
	}
}

func TestLoadRosterRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty roster", raw: `{"companions": []}`},
		{name: "missing voice", raw: `{"companions": [{"id": "x", "type": "human", "name": "X", "system_prompt": "p"}]}`},
		{name: "unknown type", raw: `{"companions": [{"id": "x", "type": "robot", "name": "X", "system_prompt": "p", "voice": {"voice_id": "v"}}]}`},
		{name: "unknown field", raw: `{"companions": [{"id": "x", "type": "human", "name": "X", "system_prompt": "p", "voice": {"voice_id": "v"}, "mood": "sunny"}]}`},
		{name: "duplicate id", raw: `{"companions": [
			{"id": "x", "type": "human", "name": "X", "system_prompt": "p", "voice": {"voice_id": "v"}},
			{"id": "x", "type": "anime", "name": "Y", "system_prompt": "p", "voice": {"voice_id": "v"}}
		]}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadRoster([]byte(tc.raw)); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestSystemPromptsPinLanguageMirroring(t *testing.T) {
	t.Parallel()

	r, err := DefaultRoster()
	if err != nil {
		t.Fatalf("DefaultRoster() error = %v", err)
	}
	for _, c := range r.All() {
		if !strings.Contains(c.SystemPrompt, "SAME language") {
			t.Fatalf("companion %s prompt does not pin reply language", c.ID)
		}
	}
}

func TestSupportedLanguages(t *testing.T) {
	t.Parallel()

	langs := SupportedLanguages()
	if len(langs) != 11 {
		t.Fatalf("expected 11 languages, got %d", len(langs))
	}
	if langs[0].Code != DefaultLanguageCode {
		t.Fatalf("first language = %q, want default %q", langs[0].Code, DefaultLanguageCode)
	}
	if !IsSupportedLanguage("ja-JP") {
		t.Fatalf("ja-JP should be supported")
	}
	if IsSupportedLanguage("xx-XX") {
		t.Fatalf("xx-XX should not be supported")
	}
}
