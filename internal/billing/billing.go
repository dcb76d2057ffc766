// Package billing sells the premium plan through Stripe Checkout and
// keeps the stored plan in sync from Stripe webhooks.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/AmanYadav007/BonusLYF/internal/account"
	"github.com/AmanYadav007/BonusLYF/internal/config"
	"github.com/AmanYadav007/BonusLYF/internal/log"
)

const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionDeleted = "customer.subscription.deleted"

	subscriptionUserIDKey = "user_id"
)

// Config carries the Stripe credentials and checkout wiring.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

// ConfigFromEnv loads the Stripe configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		SecretKey: config.ResolveEnvValue("BLYF_STRIPE_SECRET_KEY", "BLYF_STRIPE_SECRET_KEY_SECRET_REF",
			config.EnvString("STRIPE_SECRET_KEY", "")),
		WebhookSecret: config.ResolveEnvValue("BLYF_STRIPE_WEBHOOK_SECRET", "BLYF_STRIPE_WEBHOOK_SECRET_SECRET_REF",
			config.EnvString("STRIPE_WEBHOOK_SECRET", "")),
		PriceID:    config.EnvString("BLYF_STRIPE_PRICE_ID", ""),
		SuccessURL: config.EnvString("BLYF_CHECKOUT_SUCCESS_URL", "https://bonuslyf.app/billing/success"),
		CancelURL:  config.EnvString("BLYF_CHECKOUT_CANCEL_URL", "https://bonuslyf.app/billing/cancel"),
	}
}

// PlanStore persists plan changes for a user.
type PlanStore interface {
	SetPlan(ctx context.Context, userID, plan string) error
}

type checkoutAPI interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeCheckout struct {
	client *session.Client
}

func (c stripeCheckout) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.client.New(params)
}

// Service starts checkouts and applies webhook plan changes.
type Service struct {
	cfg      Config
	checkout checkoutAPI
	plans    PlanStore
	logger   *log.Logger
}

// NewService builds a service against the Stripe API.
func NewService(cfg Config, plans PlanStore, logger *log.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("billing: Stripe secret key is required")
	}
	client := &session.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: cfg.SecretKey,
	}
	return newService(cfg, stripeCheckout{client: client}, plans, logger)
}

// NewServiceWithCheckout builds a service over a caller-supplied
// checkout API.
func NewServiceWithCheckout(cfg Config, api checkoutAPI, plans PlanStore, logger *log.Logger) (*Service, error) {
	return newService(cfg, api, plans, logger)
}

func newService(cfg Config, api checkoutAPI, plans PlanStore, logger *log.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.PriceID) == "" {
		return nil, fmt.Errorf("billing: price id is required")
	}
	if api == nil {
		return nil, fmt.Errorf("billing: checkout API is required")
	}
	if plans == nil {
		return nil, fmt.Errorf("billing: plan store is required")
	}
	if logger == nil {
		logger = log.NewForTesting(nil)
	}
	return &Service{cfg: cfg, checkout: api, plans: plans, logger: logger}, nil
}

// StartCheckout opens a subscription checkout for the user and returns
// the hosted payment page URL.
func (s *Service) StartCheckout(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("billing: user id is required")
	}
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(s.cfg.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{subscriptionUserIDKey: userID},
		},
	}
	sess, err := s.checkout.NewSession(params)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	s.logger.Info("checkout started", "user_id", userID, "checkout_session", sess.ID)
	return sess.URL, nil
}

// HandleWebhook verifies a Stripe webhook payload and applies the plan
// change it carries. Event types this service does not sell are ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if strings.TrimSpace(s.cfg.WebhookSecret) == "" {
		return fmt.Errorf("billing: webhook secret is not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return fmt.Errorf("billing: verify webhook: %w", err)
	}

	switch string(event.Type) {
	case eventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("billing: decode checkout session: %w", err)
		}
		if cs.ClientReferenceID == "" {
			return fmt.Errorf("billing: checkout session %s has no client reference", cs.ID)
		}
		if err := s.plans.SetPlan(ctx, cs.ClientReferenceID, account.PlanPremium); err != nil {
			return fmt.Errorf("billing: upgrade %s: %w", cs.ClientReferenceID, err)
		}
		s.logger.Info("plan upgraded", "user_id", cs.ClientReferenceID)
	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("billing: decode subscription: %w", err)
		}
		userID := sub.Metadata[subscriptionUserIDKey]
		if userID == "" {
			return fmt.Errorf("billing: subscription %s has no user metadata", sub.ID)
		}
		if err := s.plans.SetPlan(ctx, userID, account.PlanFree); err != nil {
			return fmt.Errorf("billing: downgrade %s: %w", userID, err)
		}
		s.logger.Info("plan downgraded", "user_id", userID)
	default:
		s.logger.Debug("webhook ignored", "type", string(event.Type))
	}
	return nil
}
