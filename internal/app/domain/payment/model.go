package payment

import (
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/generation"
)

// PendingResult holds generated phrases until checkout succeeds.
type PendingResult struct {
	ID        string             `json:"id"`
	Phrases   []string           `json:"phrases"`
	Request   generation.Request `json:"request"`
	VisitorID string             `json:"visitor_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Expired reports whether the result is past its TTL at now.
func (p PendingResult) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Token links a pending result to a one-time payment.
type Token struct {
	ID                string     `json:"id"`
	ResultID          string     `json:"result_id"`
	AmountCents       int        `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Used              bool       `json:"used"`
	UsedAt            *time.Time `json:"used_at,omitempty"`
	CheckoutSessionID string     `json:"checkout_session_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderCancelled:
		return true
	}
	return false
}

// Order is a checkout attempt as shown in the admin dashboard.
type Order struct {
	ID                string      `json:"id"`
	ResultID          string      `json:"result_id"`
	TokenID           string      `json:"token_id"`
	CheckoutSessionID string      `json:"checkout_session_id,omitempty"`
	AmountCents       int         `json:"amount_cents"`
	Currency          string      `json:"currency"`
	Status            OrderStatus `json:"status"`
	CustomerEmail     string      `json:"customer_email,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	PaidAt            *time.Time  `json:"paid_at,omitempty"`
}

// OrderFilter restricts an order listing.
type OrderFilter struct {
	Status OrderStatus
	Limit  int
	Offset int
}

// OrderPage is one page of orders plus aggregate revenue.
type OrderPage struct {
	Orders            []Order        `json:"orders"`
	Total             int            `json:"total"`
	RevenueByCurrency map[string]int `json:"revenue_by_currency"`
}
