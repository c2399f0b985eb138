package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/metrics"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookBodyLimit caps the accepted webhook payload size.
const WebhookBodyLimit = 1 << 20

// WebhookResult reports what a delivery did.
type WebhookResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

type completedSession struct {
	ID              string            `json:"id"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerEmail   string            `json:"customer_email"`
	ClientReference string            `json:"client_reference_id"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// HandleWebhook verifies and applies a Stripe event delivery. Duplicate
// deliveries are acknowledged without side effects.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if s.webhookSecret == "" {
		return WebhookResult{}, apperrors.Unavailable("Stripe webhook secret is not configured", nil)
	}
	if strings.TrimSpace(signature) == "" {
		return WebhookResult{}, apperrors.BadRequest("Invalid Stripe signature")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.log.LogSecurityEvent(ctx, "invalid_webhook_signature", map[string]interface{}{"error": err.Error()})
		return WebhookResult{}, apperrors.Wrap(apperrors.BadRequest("Invalid Stripe signature"), err)
	}

	out := WebhookResult{EventID: event.ID, Type: string(event.Type), Status: "ignored"}
	if event.Type != "checkout.session.completed" {
		s.log.WithContext(ctx).WithField("type", event.Type).WithField("event_id", event.ID).Debug("webhook ignored")
		return out, nil
	}

	var sess completedSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return out, apperrors.BadRequest(fmt.Sprintf("decode checkout session: %v", err))
	}
	out.Status, err = s.completeOrder(ctx, sess)
	return out, err
}

func (s *Service) completeOrder(ctx context.Context, sess completedSession) (string, error) {
	log := s.log.WithContext(ctx).WithField("session_id", sess.ID)
	if sess.PaymentStatus != "" && sess.PaymentStatus != "paid" {
		log.WithField("payment_status", sess.PaymentStatus).Info("checkout completed without payment")
		return "unpaid", nil
	}

	order, err := s.orders.GetOrderBySession(ctx, sess.ID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("webhook for unknown checkout session")
		return "unknown_session", nil
	}
	if err != nil {
		return "", err
	}
	if order.Status == payment.OrderPaid && order.CustomerEmail != "" {
		return "duplicate", nil
	}

	email := strings.ToLower(strings.TrimSpace(sess.CustomerEmail))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(sess.CustomerDetails.Email))
	}
	wasPaid := order.Status == payment.OrderPaid
	if _, err := s.markPaid(ctx, order, email); err != nil {
		return "", err
	}
	if wasPaid {
		return "duplicate", nil
	}
	metrics.RecordCheckout("webhook_paid")
	log.WithField("order_id", order.ID).Info("order paid via webhook")
	return "processed", nil
}
