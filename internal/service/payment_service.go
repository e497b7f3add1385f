package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/digkill/veocreator/internal/config"
	"github.com/digkill/veocreator/internal/metrics"
	"github.com/digkill/veocreator/internal/models"
)

var (
	ErrInvalidWebhook     = errors.New("invalid stripe webhook")
	ErrPaymentUnavailable = errors.New("payments are not configured")
)

// CheckoutSessionCreator creates a Stripe Checkout session.
type CheckoutSessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// PaymentService connects Stripe billing to subscriptions.
type PaymentService struct {
	cfg           config.Config
	subscriptions *SubscriptionService
	newSession    CheckoutSessionCreator
	log           *slog.Logger
}

func NewPaymentService(cfg config.Config, subscriptions *SubscriptionService, log *slog.Logger) *PaymentService {
	return &PaymentService{
		cfg:           cfg,
		subscriptions: subscriptions,
		newSession:    session.New,
		log:           log,
	}
}

// WithSessionCreator replaces the Stripe API call used by CreateCheckout.
func (s *PaymentService) WithSessionCreator(fn CheckoutSessionCreator) *PaymentService {
	s.newSession = fn
	return s
}

// CreateCheckout starts a subscription checkout for user and returns its URL.
func (s *PaymentService) CreateCheckout(ctx context.Context, user *models.User) (string, error) {
	if s.cfg.StripePriceID == "" {
		return "", ErrPaymentUnavailable
	}
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(s.cfg.StripeSuccessURL),
		CancelURL:         stripe.String(s.cfg.StripeCancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(user.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": user.ID},
		},
	}
	if user.Email != "" {
		params.CustomerEmail = stripe.String(user.Email)
	}
	params.Context = ctx

	sess, err := s.newSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	s.log.Info("checkout session created", "user_id", user.ID, "session_id", sess.ID)
	return sess.URL, nil
}

// HandleStripeWebhook verifies and applies one Stripe event.
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		metrics.StripeEvents.WithLabelValues("unknown", "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	outcome := "handled"
	defer func() {
		metrics.StripeEvents.WithLabelValues(string(event.Type), outcome).Inc()
	}()

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			outcome = "error"
			return fmt.Errorf("%w: parse checkout session: %v", ErrInvalidWebhook, err)
		}
		return s.completeCheckout(ctx, &sess, &outcome)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			outcome = "error"
			return fmt.Errorf("%w: parse subscription: %v", ErrInvalidWebhook, err)
		}
		userID := sub.Metadata["user_id"]
		if userID == "" {
			outcome = "ignored"
			s.log.Warn("subscription deleted without user id", "subscription_id", sub.ID)
			return nil
		}
		if err := s.subscriptions.Deactivate(ctx, userID); err != nil {
			outcome = "error"
			return err
		}
		return nil

	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			outcome = "error"
			return fmt.Errorf("%w: parse invoice: %v", ErrInvalidWebhook, err)
		}
		s.log.Warn("invoice payment failed", "invoice_id", inv.ID, "customer_email", inv.CustomerEmail)
		return nil

	default:
		outcome = "ignored"
		s.log.Debug("unhandled stripe event", "type", event.Type)
		return nil
	}
}

func (s *PaymentService) completeCheckout(ctx context.Context, sess *stripe.CheckoutSession, outcome *string) error {
	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	if userID == "" {
		*outcome = "ignored"
		s.log.Warn("checkout completed without user reference", "session_id", sess.ID)
		return nil
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		*outcome = "ignored"
		s.log.Info("checkout completed but unpaid", "session_id", sess.ID, "user_id", userID)
		return nil
	}

	raw, _ := json.Marshal(sess)
	applied, err := s.subscriptions.Activate(ctx, ActivationInput{
		UserID:   userID,
		Provider: ProviderStripe,
		ChargeID: sess.ID,
		Currency: string(sess.Currency),
		Amount:   sess.AmountTotal,
		Raw:      string(raw),
	})
	if err != nil {
		*outcome = "error"
		return err
	}
	if !applied {
		*outcome = "duplicate"
	}
	return nil
}
