package synthesis

import (
	"context"
	"strings"
	"sync"

	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

// LocalVoice describes one on-device voice.
type LocalVoice struct {
	Name         string
	LanguageCode string
	Gender       string
}

// VoiceCatalog lists the on-device voices. Catalogs can be slow to
// populate, so the speaker loads the list once on first use.
type VoiceCatalog interface {
	Voices(ctx context.Context) ([]LocalVoice, error)
}

// Utterer speaks text with a named on-device voice. An empty voice name
// selects the engine default.
type Utterer interface {
	Utter(ctx context.Context, text string, voiceName string, ev Events) error
}

// LocalSpeaker implements FallbackSpeaker on the device's own voices,
// picking the closest match to the companion's voice profile.
type LocalSpeaker struct {
	catalog VoiceCatalog
	utterer Utterer

	loadOnce sync.Once
	mu       sync.Mutex
	voices   []LocalVoice
}

// NewLocalSpeaker builds a speaker over the given catalog and utterer.
func NewLocalSpeaker(catalog VoiceCatalog, utterer Utterer) *LocalSpeaker {
	return &LocalSpeaker{catalog: catalog, utterer: utterer}
}

// Speak voices text with the best-matching local voice. A failed catalog
// load falls through to the engine default voice rather than failing the
// reply.
func (s *LocalSpeaker) Speak(ctx context.Context, text string, voice contracts.VoiceSpec, ev Events) error {
	s.loadOnce.Do(func() {
		voices, err := s.catalog.Voices(ctx)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.voices = voices
		s.mu.Unlock()
	})

	s.mu.Lock()
	voices := s.voices
	s.mu.Unlock()

	return s.utterer.Utter(ctx, text, MatchVoice(voices, voice), ev)
}

// MatchVoice picks the local voice closest to the requested profile:
// language and gender, then language alone, then common female voice
// names when the profile asks for one, then the first voice. Returns
// empty when nothing matches so the engine default applies.
func MatchVoice(voices []LocalVoice, want contracts.VoiceSpec) string {
	if len(voices) == 0 {
		return ""
	}

	wantLang := strings.ToLower(want.LanguageCode)
	wantBase := baseLanguage(wantLang)
	wantFemale := want.Gender == "" || strings.EqualFold(want.Gender, "female")

	if wantLang != "" {
		for _, v := range voices {
			if strings.EqualFold(v.LanguageCode, wantLang) && genderMatches(v, want.Gender) {
				return v.Name
			}
		}
		for _, v := range voices {
			if baseLanguage(strings.ToLower(v.LanguageCode)) == wantBase && genderMatches(v, want.Gender) {
				return v.Name
			}
		}
		for _, v := range voices {
			if baseLanguage(strings.ToLower(v.LanguageCode)) == wantBase {
				return v.Name
			}
		}
	}

	if wantFemale {
		for _, v := range voices {
			if strings.Contains(v.Name, "Female") ||
				strings.Contains(v.Name, "Zira") ||
				strings.Contains(v.Name, "Samantha") {
				return v.Name
			}
		}
	}

	return voices[0].Name
}

func genderMatches(v LocalVoice, wantGender string) bool {
	if wantGender == "" || v.Gender == "" {
		return true
	}
	return strings.EqualFold(v.Gender, wantGender)
}

func baseLanguage(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}
