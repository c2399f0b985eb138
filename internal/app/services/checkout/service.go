// Package checkout sends visitors to the hosted payment page and restores
// their phrases when they come back.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/metrics"
	"github.com/clicklone/clicklone/internal/app/services/pending"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
)

const ProductName = "Clicklone: 10 marketing taglines"

// Hosted sessions must stay open between 30 minutes and 24 hours.
const (
	MinSessionWindow = 30 * time.Minute
	MaxSessionWindow = 24 * time.Hour
)

// Return outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
)

// EventRecorder receives funnel events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, evt analytics.Event) (analytics.Event, error)
}

// Service runs the checkout part of the funnel.
type Service struct {
	pending       *pending.Service
	orders        storage.OrderStore
	gateway       Gateway
	events        EventRecorder
	baseURL       string
	webhookSecret string
	log           *logging.Logger
	now           func() time.Time
}

// Config wires a checkout service.
type Config struct {
	Pending       *pending.Service
	Orders        storage.OrderStore
	Gateway       Gateway
	Events        EventRecorder
	PublicBaseURL string
	WebhookSecret string
}

// New creates a checkout service. A nil gateway selects the test gateway.
func New(cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("checkout")
	}
	gateway := cfg.Gateway
	if gateway == nil {
		gateway = NewTestGateway()
		log.Warn("no payment processor configured, using test checkout")
	}
	return &Service{
		pending:       cfg.Pending,
		orders:        cfg.Orders,
		gateway:       gateway,
		events:        cfg.Events,
		baseURL:       cfg.PublicBaseURL,
		webhookSecret: cfg.WebhookSecret,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ReturnQuery holds the parameters the processor appends to the return URL.
type ReturnQuery struct {
	Payment   string
	ResultID  string
	SessionID string
}

// ParseReturnQuery reads payment, result_id and session_id.
func ParseReturnQuery(values url.Values) ReturnQuery {
	return ReturnQuery{
		Payment:   values.Get("payment"),
		ResultID:  values.Get("result_id"),
		SessionID: values.Get("session_id"),
	}
}

// ReturnResult is what the visitor gets back after the payment page.
type ReturnResult struct {
	Outcome  string   `json:"outcome"`
	ResultID string   `json:"result_id"`
	Phrases  []string `json:"phrases,omitempty"`
}

// SuccessURL is the return target after payment. The session placeholder is
// substituted by the processor.
func (s *Service) SuccessURL(resultID string) string {
	return fmt.Sprintf("%s/?payment=success&result_id=%s&session_id=%s", s.baseURL, url.QueryEscape(resultID), sessionPlaceholder)
}

// CancelURL is the return target when the visitor abandons payment.
func (s *Service) CancelURL(resultID string) string {
	return fmt.Sprintf("%s/?payment=cancelled&result_id=%s", s.baseURL, url.QueryEscape(resultID))
}

// StartCheckout opens a hosted checkout for a pending result and returns the
// redirect URL.
func (s *Service) StartCheckout(ctx context.Context, resultID, visitorID string) (string, error) {
	res, err := s.pending.GetPending(ctx, resultID)
	if err != nil {
		return "", err
	}
	tok, err := s.pending.GetTokenByResult(ctx, res.ID)
	if err != nil {
		return "", err
	}
	if tok.Used {
		return "", apperrors.Conflict("this result has already been paid for")
	}
	expiresAt, ok := s.sessionExpiry(res.ExpiresAt)
	if !ok {
		return "", apperrors.Conflict("these phrases expire too soon to pay for, please generate again")
	}

	sess, err := s.gateway.CreateSession(ctx, SessionParams{
		ResultID:    res.ID,
		TokenID:     tok.ID,
		AmountCents: tok.AmountCents,
		Currency:    tok.Currency,
		ProductName: ProductName,
		SuccessURL:  s.SuccessURL(res.ID),
		CancelURL:   s.CancelURL(res.ID),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		metrics.RecordCheckout("start_failed")
		s.log.WithContext(ctx).WithError(err).WithField("result_id", res.ID).Error("checkout session creation failed")
		return "", apperrors.Unavailable("Payment is temporarily unavailable", err)
	}

	if _, err := s.pending.AttachCheckoutSession(ctx, tok.ID, sess.ID); err != nil {
		return "", err
	}
	if _, err := s.orders.CreateOrder(ctx, payment.Order{
		ResultID:          res.ID,
		TokenID:           tok.ID,
		CheckoutSessionID: sess.ID,
		AmountCents:       tok.AmountCents,
		Currency:          tok.Currency,
		Status:            payment.OrderPending,
		CreatedAt:         s.now(),
	}); err != nil {
		return "", apperrors.Internal("failed to record order", err)
	}

	metrics.RecordCheckout("started")
	s.record(ctx, analytics.Event{Type: analytics.EventCheckoutStarted, Path: "/checkout", VisitorID: visitorID})
	s.log.WithContext(ctx).
		WithField("result_id", res.ID).
		WithField("session_id", sess.ID).
		WithField("gateway", s.gateway.Name()).
		Info("checkout started")
	return sess.URL, nil
}

// HandleReturn resolves the visitor's return from the payment page.
func (s *Service) HandleReturn(ctx context.Context, q ReturnQuery) (ReturnResult, error) {
	if q.ResultID == "" {
		return ReturnResult{}, apperrors.Validation("result_id", "result_id is required")
	}
	switch q.Payment {
	case OutcomeSuccess:
		return s.handleSuccess(ctx, q)
	case OutcomeCancelled:
		return s.handleCancel(ctx, q)
	default:
		return ReturnResult{}, apperrors.Validation("payment", "payment must be success or cancelled")
	}
}

func (s *Service) handleSuccess(ctx context.Context, q ReturnQuery) (ReturnResult, error) {
	if q.SessionID == "" {
		return ReturnResult{}, apperrors.Validation("session_id", "session_id is required")
	}
	tok, err := s.pending.GetTokenByResult(ctx, q.ResultID)
	if err != nil {
		return ReturnResult{}, err
	}

	sess, err := s.gateway.GetSession(ctx, q.SessionID)
	if err != nil {
		return ReturnResult{}, apperrors.Unavailable("Unable to verify payment", err)
	}
	if sess.ResultID != "" && sess.ResultID != q.ResultID {
		s.log.LogSecurityEvent(ctx, "checkout_session_mismatch", map[string]interface{}{
			"result_id": q.ResultID, "session_id": q.SessionID,
		})
		return ReturnResult{}, apperrors.Forbidden("checkout session does not belong to this result")
	}
	if !sess.Paid() {
		metrics.RecordCheckout("unpaid_return")
		return ReturnResult{}, apperrors.PaymentRequired("payment has not been completed")
	}

	// The payment is confirmed, so the result is restored even past its TTL.
	res, err := s.pending.GetPaid(ctx, q.ResultID)
	if err != nil {
		return ReturnResult{}, err
	}

	order, err := s.orders.GetOrderBySession(ctx, q.SessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return ReturnResult{}, err
	}
	hasOrder := err == nil

	if _, err := s.pending.MarkTokenUsed(ctx, tok.ID); err != nil {
		if !errors.Is(err, storage.ErrTokenUsed) {
			return ReturnResult{}, err
		}
		if !hasOrder || order.Status != payment.OrderPaid {
			return ReturnResult{}, err
		}
		metrics.RecordCheckout("reload")
		return ReturnResult{Outcome: OutcomeSuccess, ResultID: res.ID, Phrases: res.Phrases}, nil
	}

	if hasOrder {
		if _, err := s.markPaid(ctx, order, sess.CustomerEmail); err != nil {
			return ReturnResult{}, err
		}
	} else {
		s.log.WithContext(ctx).WithField("session_id", q.SessionID).Warn("paid session without order")
	}

	metrics.RecordCheckout("paid")
	s.record(ctx, analytics.Event{Type: analytics.EventPaymentSucceeded, Path: "/checkout/return", VisitorID: res.VisitorID})
	s.log.WithContext(ctx).WithField("result_id", res.ID).WithField("session_id", q.SessionID).Info("payment confirmed")
	return ReturnResult{Outcome: OutcomeSuccess, ResultID: res.ID, Phrases: res.Phrases}, nil
}

func (s *Service) handleCancel(ctx context.Context, q ReturnQuery) (ReturnResult, error) {
	sessionID := q.SessionID
	if sessionID == "" {
		tok, err := s.pending.GetTokenByResult(ctx, q.ResultID)
		if err == nil {
			sessionID = tok.CheckoutSessionID
		}
	}
	if sessionID != "" {
		order, err := s.orders.GetOrderBySession(ctx, sessionID)
		switch {
		case err == nil && order.Status == payment.OrderPending && order.ResultID == q.ResultID:
			order.Status = payment.OrderCancelled
			if _, err := s.orders.UpdateOrder(ctx, order); err != nil {
				return ReturnResult{}, err
			}
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return ReturnResult{}, err
		}
	}
	metrics.RecordCheckout("cancelled")
	s.log.WithContext(ctx).WithField("result_id", q.ResultID).Info("checkout cancelled")
	return ReturnResult{Outcome: OutcomeCancelled, ResultID: q.ResultID}, nil
}

// sessionExpiry caps the hosted session at the result's own expiry. ok is
// false when less than MinSessionWindow is left.
func (s *Service) sessionExpiry(resultExpiry time.Time) (time.Time, bool) {
	now := s.now()
	expiresAt := now.Add(MaxSessionWindow)
	if !resultExpiry.IsZero() && resultExpiry.Before(expiresAt) {
		expiresAt = resultExpiry
	}
	if expiresAt.Sub(now) < MinSessionWindow {
		return time.Time{}, false
	}
	return expiresAt, true
}

func (s *Service) markPaid(ctx context.Context, order payment.Order, email string) (payment.Order, error) {
	if order.Status == payment.OrderPaid {
		if email == "" || order.CustomerEmail != "" {
			return order, nil
		}
	} else {
		paidAt := s.now()
		order.Status = payment.OrderPaid
		order.PaidAt = &paidAt
	}
	if email != "" {
		order.CustomerEmail = email
	}
	return s.orders.UpdateOrder(ctx, order)
}

func (s *Service) record(ctx context.Context, evt analytics.Event) {
	if s.events == nil {
		return
	}
	if _, err := s.events.RecordEvent(ctx, evt); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("type", evt.Type).Warn("failed to record funnel event")
	}
}
