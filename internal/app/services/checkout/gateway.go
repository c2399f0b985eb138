package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// SessionParams describes a one-time hosted checkout.
type SessionParams struct {
	ResultID    string
	TokenID     string
	AmountCents int
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	// ExpiresAt closes the hosted page. Zero leaves the processor default.
	ExpiresAt time.Time
}

// Session is the processor-side view of a checkout.
type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	ResultID      string
	CustomerEmail string
}

// Paid reports whether the processor captured the payment.
func (s Session) Paid() bool {
	return s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

// Gateway creates and retrieves hosted checkout sessions.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, params SessionParams) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}

// StripeGateway talks to Stripe Checkout.
type StripeGateway struct {
	apiKey string
	create func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	get    func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeGateway returns a gateway authenticated with apiKey.
func NewStripeGateway(apiKey string) *StripeGateway {
	return &StripeGateway{
		apiKey: strings.TrimSpace(apiKey),
		create: stripesession.New,
		get:    stripesession.Get,
	}
}

// Name identifies the gateway in logs.
func (g *StripeGateway) Name() string { return "stripe" }

// CreateSession opens a payment-mode Checkout session with one line item.
func (g *StripeGateway) CreateSession(_ context.Context, p SessionParams) (Session, error) {
	stripe.Key = g.apiKey
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.ResultID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(int64(p.AmountCents)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"result_id": p.ResultID,
			"token_id":  p.TokenID,
		},
	}

	if !p.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(p.ExpiresAt.Unix())
	}

	sess, err := g.create(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	if sess == nil || strings.TrimSpace(sess.URL) == "" {
		return Session{}, fmt.Errorf("create checkout session: empty redirect url")
	}
	return fromStripe(sess), nil
}

// GetSession retrieves a Checkout session by id.
func (g *StripeGateway) GetSession(_ context.Context, id string) (Session, error) {
	stripe.Key = g.apiKey
	sess, err := g.get(id, nil)
	if err != nil {
		return Session{}, fmt.Errorf("retrieve checkout session: %w", err)
	}
	if sess == nil {
		return Session{}, fmt.Errorf("retrieve checkout session: not found")
	}
	return fromStripe(sess), nil
}

func fromStripe(sess *stripe.CheckoutSession) Session {
	out := Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		ResultID:      sess.ClientReferenceID,
		CustomerEmail: sess.CustomerEmail,
	}
	if id := sess.Metadata["result_id"]; id != "" {
		out.ResultID = id
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	return out
}

// TestGateway completes every checkout immediately. The application only
// selects it for the memory driver or when CHECKOUT_TEST_MODE is set.
type TestGateway struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewTestGateway creates an in-process gateway.
func NewTestGateway() *TestGateway {
	return &TestGateway{sessions: make(map[string]Session)}
}

// Name identifies the gateway in logs.
func (g *TestGateway) Name() string { return "test" }

// CreateSession records a session that is already paid and whose URL is
// the success URL.
func (g *TestGateway) CreateSession(_ context.Context, p SessionParams) (Session, error) {
	id := "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	sess := Session{
		ID:            id,
		URL:           strings.ReplaceAll(p.SuccessURL, sessionPlaceholder, id),
		PaymentStatus: string(stripe.CheckoutSessionPaymentStatusPaid),
		ResultID:      p.ResultID,
	}
	g.mu.Lock()
	g.sessions[id] = sess
	g.mu.Unlock()
	return sess, nil
}

// GetSession returns a session created by this gateway.
func (g *TestGateway) GetSession(_ context.Context, id string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("unknown test session %s", id)
	}
	return sess, nil
}
