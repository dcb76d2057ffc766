// Package account resolves caller profiles and their companion
// preferences. Profiles live in WorkOS user management; the companion
// selection, preferred language, and plan ride along as user metadata.
package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/workos/workos-go/v6/pkg/usermanagement"

	"github.com/AmanYadav007/BonusLYF/internal/companion"
	"github.com/AmanYadav007/BonusLYF/internal/config"
	"github.com/AmanYadav007/BonusLYF/internal/log"
)

// Metadata keys on the WorkOS user record.
const (
	metadataCompanionKey = "selected_companion"
	metadataLanguageKey  = "preferred_language"
	metadataPlanKey      = "plan"
)

// Plan names stored in user metadata.
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// Config carries the WorkOS credentials.
type Config struct {
	APIKey string
}

// ConfigFromEnv loads the WorkOS configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		APIKey: config.ResolveEnvValue("BLYF_WORKOS_API_KEY", "BLYF_WORKOS_API_KEY_SECRET_REF",
			config.EnvString("WORKOS_API_KEY", "")),
	}
}

// Profile is the caller-facing view of a user record.
type Profile struct {
	UserID            string
	Email             string
	FirstName         string
	LastName          string
	SelectedCompanion string
	PreferredLanguage string
	Plan              string
}

type userAPI interface {
	GetUser(ctx context.Context, opts usermanagement.GetUserOpts) (usermanagement.User, error)
	UpdateUser(ctx context.Context, opts usermanagement.UpdateUserOpts) (usermanagement.User, error)
}

type workosAPI struct{}

func (workosAPI) GetUser(ctx context.Context, opts usermanagement.GetUserOpts) (usermanagement.User, error) {
	return usermanagement.GetUser(ctx, opts)
}

func (workosAPI) UpdateUser(ctx context.Context, opts usermanagement.UpdateUserOpts) (usermanagement.User, error) {
	return usermanagement.UpdateUser(ctx, opts)
}

// Service reads and writes caller profiles.
type Service struct {
	api    userAPI
	roster *companion.Roster
	logger *log.Logger
}

// NewService builds a service against the WorkOS API.
func NewService(cfg Config, roster *companion.Roster, logger *log.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("account: WorkOS API key is required")
	}
	usermanagement.SetAPIKey(cfg.APIKey)
	return newService(workosAPI{}, roster, logger)
}

// NewServiceWithAPI builds a service over a caller-supplied user API.
func NewServiceWithAPI(api userAPI, roster *companion.Roster, logger *log.Logger) (*Service, error) {
	return newService(api, roster, logger)
}

func newService(api userAPI, roster *companion.Roster, logger *log.Logger) (*Service, error) {
	if api == nil {
		return nil, fmt.Errorf("account: user API is required")
	}
	if roster == nil {
		return nil, fmt.Errorf("account: companion roster is required")
	}
	if logger == nil {
		logger = log.NewForTesting(nil)
	}
	return &Service{api: api, roster: roster, logger: logger}, nil
}

// Profile loads a user and resolves their companion preferences, falling
// back to the roster default and the default language when unset.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return Profile{}, fmt.Errorf("account: user id is required")
	}
	user, err := s.api.GetUser(ctx, usermanagement.GetUserOpts{User: userID})
	if err != nil {
		return Profile{}, fmt.Errorf("account: get user %s: %w", userID, err)
	}
	return s.profileFromUser(user), nil
}

// SelectCompanion persists a roster companion choice on the user record.
func (s *Service) SelectCompanion(ctx context.Context, userID, companionID string) (Profile, error) {
	if _, ok := s.roster.ByID(companionID); !ok {
		return Profile{}, fmt.Errorf("account: unknown companion %q", companionID)
	}
	return s.updateMetadata(ctx, userID, metadataCompanionKey, companionID)
}

// SetPreferredLanguage persists the caller's capture language.
func (s *Service) SetPreferredLanguage(ctx context.Context, userID, code string) (Profile, error) {
	if !companion.IsSupportedLanguage(code) {
		return Profile{}, fmt.Errorf("account: unsupported language %q", code)
	}
	return s.updateMetadata(ctx, userID, metadataLanguageKey, code)
}

// SetPlan records the billing plan on the user record.
func (s *Service) SetPlan(ctx context.Context, userID, plan string) error {
	if plan != PlanFree && plan != PlanPremium {
		return fmt.Errorf("account: unknown plan %q", plan)
	}
	_, err := s.updateMetadata(ctx, userID, metadataPlanKey, plan)
	return err
}

func (s *Service) updateMetadata(ctx context.Context, userID, key, value string) (Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return Profile{}, fmt.Errorf("account: user id is required")
	}
	user, err := s.api.GetUser(ctx, usermanagement.GetUserOpts{User: userID})
	if err != nil {
		return Profile{}, fmt.Errorf("account: get user %s: %w", userID, err)
	}

	// Carry the remaining metadata keys through the update.
	metadata := make(map[string]*string, len(user.Metadata)+1)
	for k, v := range user.Metadata {
		v := v
		metadata[k] = &v
	}
	metadata[key] = &value

	updated, err := s.api.UpdateUser(ctx, usermanagement.UpdateUserOpts{
		User:     userID,
		Metadata: metadata,
	})
	if err != nil {
		return Profile{}, fmt.Errorf("account: update user %s: %w", userID, err)
	}
	s.logger.Debug("profile updated", "user_id", userID, "key", key)
	return s.profileFromUser(updated), nil
}

func (s *Service) profileFromUser(user usermanagement.User) Profile {
	p := Profile{
		UserID:            user.ID,
		Email:             user.Email,
		FirstName:         user.FirstName,
		LastName:          user.LastName,
		SelectedCompanion: user.Metadata[metadataCompanionKey],
		PreferredLanguage: user.Metadata[metadataLanguageKey],
		Plan:              user.Metadata[metadataPlanKey],
	}
	if _, ok := s.roster.ByID(p.SelectedCompanion); !ok {
		p.SelectedCompanion = s.roster.Default().ID
	}
	if !companion.IsSupportedLanguage(p.PreferredLanguage) {
		p.PreferredLanguage = companion.DefaultLanguageCode
	}
	if p.Plan != PlanPremium {
		p.Plan = PlanFree
	}
	return p
}
