package storage

import (
	"context"
	"errors"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/seo"
	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/domain/user"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrTokenUsed is returned when a payment token is consumed twice.
	ErrTokenUsed = errors.New("payment token already used")
)

// SettingsStore persists the app_settings key/value rows.
type SettingsStore interface {
	ListSettings(ctx context.Context) ([]settings.Entry, error)
	PutSettings(ctx context.Context, entries []settings.Entry) error
}

// PendingStore persists pending results and their payment tokens.
type PendingStore interface {
	CreatePendingResult(ctx context.Context, res payment.PendingResult) (payment.PendingResult, error)
	GetPendingResult(ctx context.Context, id string) (payment.PendingResult, error)
	DeleteExpiredPendingResults(ctx context.Context, now time.Time) (int, error)

	CreateToken(ctx context.Context, tok payment.Token) (payment.Token, error)
	GetTokenByResult(ctx context.Context, resultID string) (payment.Token, error)
	SetTokenCheckoutSession(ctx context.Context, tokenID, sessionID string) (payment.Token, error)
	// MarkTokenUsed flips the used flag atomically; ErrTokenUsed when it was
	// already set.
	MarkTokenUsed(ctx context.Context, tokenID string, at time.Time) (payment.Token, error)
}

// OrderStore persists checkout orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order payment.Order) (payment.Order, error)
	UpdateOrder(ctx context.Context, order payment.Order) (payment.Order, error)
	GetOrderBySession(ctx context.Context, sessionID string) (payment.Order, error)
	ListOrders(ctx context.Context, filter payment.OrderFilter) ([]payment.Order, int, error)
	RevenueByCurrency(ctx context.Context) (map[string]int, error)
}

// AnalyticsStore persists funnel events.
type AnalyticsStore interface {
	CreateEvent(ctx context.Context, evt analytics.Event) (analytics.Event, error)
	// AggregateEvents rolls up events created in [from, to], keeping the top
	// pages and referrers of page views.
	AggregateEvents(ctx context.Context, from, to time.Time, top int) (analytics.Aggregate, error)
}

// SEOStore persists per-path SEO metadata.
type SEOStore interface {
	GetSEO(ctx context.Context, path string) (seo.Metadata, error)
	ListSEO(ctx context.Context) ([]seo.Metadata, error)
	UpsertSEO(ctx context.Context, meta seo.Metadata) (seo.Metadata, error)
	DeleteSEO(ctx context.Context, path string) error
}

// UserStore persists dashboard-visible users.
type UserStore interface {
	UpsertUser(ctx context.Context, u user.User) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]user.User, int, error)
}

// Store groups every persistence interface; each backend implements all of them.
type Store interface {
	SettingsStore
	PendingStore
	OrderStore
	AnalyticsStore
	SEOStore
	UserStore
}
