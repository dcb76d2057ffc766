// Package companion holds the roster of selectable companions and the
// voice and persona settings each one speaks with.
package companion

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

//go:embed roster.json
var defaultRosterJSON []byte

//go:embed roster.schema.json
var rosterSchemaJSON []byte

// Type distinguishes companion personas.
type Type string

const (
	TypeAnime Type = "anime"
	TypeHuman Type = "human"
)

// Voice carries the synthesis settings for one companion.
type Voice struct {
	VoiceID         string  `json:"voice_id"`
	LanguageCode    string  `json:"language_code,omitempty"`
	Gender          string  `json:"gender,omitempty"`
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
	Style           float64 `json:"style,omitempty"`
	SpeakerBoost    bool    `json:"use_speaker_boost,omitempty"`
}

// Companion is one selectable persona.
type Companion struct {
	ID           string `json:"id"`
	Type         Type   `json:"type"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	SystemPrompt string `json:"system_prompt"`
	Voice        Voice  `json:"voice"`
}

// VoiceSpec converts the companion's voice settings into the provider shape.
func (c Companion) VoiceSpec() contracts.VoiceSpec {
	return contracts.VoiceSpec{
		ID:              c.Voice.VoiceID,
		LanguageCode:    c.Voice.LanguageCode,
		Gender:          c.Voice.Gender,
		Stability:       c.Voice.Stability,
		SimilarityBoost: c.Voice.SimilarityBoost,
		Style:           c.Voice.Style,
		SpeakerBoost:    c.Voice.SpeakerBoost,
	}
}

// Roster is a validated set of companions.
type Roster struct {
	companions []Companion
	byID       map[string]Companion
	byType     map[Type]Companion
}

type rosterDocument struct {
	Companions []Companion `json:"companions"`
}

// DefaultRoster loads the embedded roster. The embedded document is
// validated at startup; failure indicates a broken build.
func DefaultRoster() (*Roster, error) {
	return LoadRoster(defaultRosterJSON)
}

// LoadRoster parses and validates a roster document against the embedded
// schema, then against the typed rules.
func LoadRoster(raw []byte) (*Roster, error) {
	if err := validateAgainstSchema(raw); err != nil {
		return nil, fmt.Errorf("roster schema: %w", err)
	}

	var doc rosterDocument
	if err := strictUnmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("roster decode: %w", err)
	}

	r := &Roster{
		companions: doc.Companions,
		byID:       make(map[string]Companion, len(doc.Companions)),
		byType:     make(map[Type]Companion, len(doc.Companions)),
	}
	for _, c := range doc.Companions {
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("roster: duplicate companion id %q", c.ID)
		}
		r.byID[c.ID] = c
		if _, seen := r.byType[c.Type]; !seen {
			r.byType[c.Type] = c
		}
	}
	return r, nil
}

// All returns the companions in roster order.
func (r *Roster) All() []Companion {
	out := make([]Companion, len(r.companions))
	copy(out, r.companions)
	return out
}

// ByID looks up a companion by its identifier.
func (r *Roster) ByID(id string) (Companion, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// ByType returns the first companion of the given persona type.
func (r *Roster) ByType(t Type) (Companion, bool) {
	c, ok := r.byType[t]
	return c, ok
}

// Default returns the companion used when no selection is stored.
func (r *Roster) Default() Companion {
	if c, ok := r.byType[TypeHuman]; ok {
		return c
	}
	return r.companions[0]
}

func validateAgainstSchema(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("roster.schema.json", bytes.NewReader(rosterSchemaJSON)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("roster.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

func strictUnmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}
