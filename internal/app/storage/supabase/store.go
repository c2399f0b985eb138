// Package supabase implements the storage interfaces over the Supabase
// PostgREST API, for deployments without direct database access.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/generation"
	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/seo"
	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/storage"
	sb "github.com/clicklone/clicklone/internal/supabase"
	"github.com/google/uuid"
)

const (
	tableSettings = "app_settings"
	tablePending  = "pending_results"
	tableTokens   = "payment_tokens"
	tableOrders   = "orders"
	tableEvents   = "analytics_events"
	tableSEO      = "seo_metadata"
	tableUsers    = "app_users"
)

// Store implements storage.Store on top of a Supabase project.
type Store struct {
	client *sb.Client
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using client.
func New(client *sb.Client) *Store {
	return &Store{client: client}
}

func rows[T any](resp *sb.Response, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out []T
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func one[T any](resp *sb.Response, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if err := resp.Err(); err != nil {
		if errors.Is(err, sb.ErrNoRows) {
			return zero, storage.ErrNotFound
		}
		return zero, err
	}
	var out T
	if err := resp.JSON(&out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// --- SettingsStore ----------------------------------------------------------

func (s *Store) ListSettings(ctx context.Context) ([]settings.Entry, error) {
	return rows[settings.Entry](s.client.From(tableSettings).Select("key,value").Order("key", true).Execute(ctx))
}

func (s *Store) PutSettings(ctx context.Context, entries []settings.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := rows[settings.Entry](s.client.From(tableSettings).Upsert("key").ExecuteInsert(ctx, entries))
	return err
}

// --- PendingStore -----------------------------------------------------------

type pendingRow struct {
	ID        string    `json:"id"`
	Phrases   []string  `json:"phrases"`
	Concept   string    `json:"concept"`
	Tone      string    `json:"tone"`
	Language  string    `json:"language"`
	VisitorID string    `json:"visitor_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r pendingRow) toDomain() payment.PendingResult {
	return payment.PendingResult{
		ID:      r.ID,
		Phrases: r.Phrases,
		Request: generation.Request{
			Concept:  r.Concept,
			Tone:     generation.Tone(r.Tone),
			Language: r.Language,
		},
		VisitorID: r.VisitorID,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
}

func (s *Store) CreatePendingResult(ctx context.Context, res payment.PendingResult) (payment.PendingResult, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	row := pendingRow{
		ID:        res.ID,
		Phrases:   res.Phrases,
		Concept:   res.Request.Concept,
		Tone:      string(res.Request.Tone),
		Language:  res.Request.Language,
		VisitorID: res.VisitorID,
		CreatedAt: res.CreatedAt,
		ExpiresAt: res.ExpiresAt,
	}
	created, err := rows[pendingRow](s.client.From(tablePending).ExecuteInsert(ctx, row))
	if err != nil {
		return payment.PendingResult{}, err
	}
	if len(created) == 0 {
		return res, nil
	}
	return created[0].toDomain(), nil
}

func (s *Store) GetPendingResult(ctx context.Context, id string) (payment.PendingResult, error) {
	row, err := one[pendingRow](s.client.From(tablePending).Select("*").Eq("id", id).Single().Execute(ctx))
	if err != nil {
		return payment.PendingResult{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteExpiredPendingResults(ctx context.Context, now time.Time) (int, error) {
	removed, err := one[int](s.client.RPC(ctx, "purge_expired_pending_results", map[string]string{"cutoff": ts(now)}))
	if err != nil {
		return 0, fmt.Errorf("purge expired results: %w", err)
	}
	return removed, nil
}

type tokenRow struct {
	ID                string     `json:"id"`
	ResultID          string     `json:"result_id"`
	AmountCents       int        `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Used              bool       `json:"used"`
	UsedAt            *time.Time `json:"used_at"`
	CheckoutSessionID string     `json:"checkout_session_id"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (s *Store) CreateToken(ctx context.Context, tok payment.Token) (payment.Token, error) {
	if _, err := s.GetPendingResult(ctx, tok.ResultID); err != nil {
		return payment.Token{}, fmt.Errorf("pending result %s: %w", tok.ResultID, err)
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	tok.Used = false
	tok.UsedAt = nil
	if _, err := rows[tokenRow](s.client.From(tableTokens).ExecuteInsert(ctx, tokenRow(tok))); err != nil {
		return payment.Token{}, err
	}
	return tok, nil
}

func (s *Store) GetTokenByResult(ctx context.Context, resultID string) (payment.Token, error) {
	row, err := one[tokenRow](s.client.From(tableTokens).Select("*").Eq("result_id", resultID).Single().Execute(ctx))
	if err != nil {
		return payment.Token{}, err
	}
	return payment.Token(row), nil
}

func (s *Store) getToken(ctx context.Context, id string) (payment.Token, error) {
	row, err := one[tokenRow](s.client.From(tableTokens).Select("*").Eq("id", id).Single().Execute(ctx))
	if err != nil {
		return payment.Token{}, err
	}
	return payment.Token(row), nil
}

func (s *Store) SetTokenCheckoutSession(ctx context.Context, tokenID, sessionID string) (payment.Token, error) {
	updated, err := rows[tokenRow](s.client.From(tableTokens).Eq("id", tokenID).
		ExecuteUpdate(ctx, map[string]string{"checkout_session_id": sessionID}))
	if err != nil {
		return payment.Token{}, err
	}
	if len(updated) == 0 {
		return payment.Token{}, storage.ErrNotFound
	}
	return payment.Token(updated[0]), nil
}

func (s *Store) MarkTokenUsed(ctx context.Context, tokenID string, at time.Time) (payment.Token, error) {
	// The used=is.false filter makes the PATCH a compare-and-set.
	updated, err := rows[tokenRow](s.client.From(tableTokens).Eq("id", tokenID).Is("used", false).
		ExecuteUpdate(ctx, map[string]any{"used": true, "used_at": ts(at)}))
	if err != nil {
		return payment.Token{}, err
	}
	if len(updated) > 0 {
		return payment.Token(updated[0]), nil
	}
	tok, err := s.getToken(ctx, tokenID)
	if err != nil {
		return payment.Token{}, err
	}
	return tok, storage.ErrTokenUsed
}

// --- OrderStore -------------------------------------------------------------

type orderRow struct {
	ID                string              `json:"id"`
	ResultID          string              `json:"result_id"`
	TokenID           string              `json:"token_id"`
	CheckoutSessionID string              `json:"checkout_session_id"`
	AmountCents       int                 `json:"amount_cents"`
	Currency          string              `json:"currency"`
	Status            payment.OrderStatus `json:"status"`
	CustomerEmail     string              `json:"customer_email"`
	CreatedAt         time.Time           `json:"created_at"`
	PaidAt            *time.Time          `json:"paid_at"`
}

func (s *Store) CreateOrder(ctx context.Context, order payment.Order) (payment.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if _, err := rows[orderRow](s.client.From(tableOrders).ExecuteInsert(ctx, orderRow(order))); err != nil {
		return payment.Order{}, err
	}
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order payment.Order) (payment.Order, error) {
	patch := map[string]any{
		"checkout_session_id": order.CheckoutSessionID,
		"status":              order.Status,
		"customer_email":      order.CustomerEmail,
		"paid_at":             order.PaidAt,
	}
	updated, err := rows[orderRow](s.client.From(tableOrders).Eq("id", order.ID).ExecuteUpdate(ctx, patch))
	if err != nil {
		return payment.Order{}, err
	}
	if len(updated) == 0 {
		return payment.Order{}, storage.ErrNotFound
	}
	return payment.Order(updated[0]), nil
}

func (s *Store) GetOrderBySession(ctx context.Context, sessionID string) (payment.Order, error) {
	found, err := rows[orderRow](s.client.From(tableOrders).Select("*").Eq("checkout_session_id", sessionID).Range(1, 0).Execute(ctx))
	if err != nil {
		return payment.Order{}, err
	}
	if len(found) == 0 {
		return payment.Order{}, storage.ErrNotFound
	}
	return payment.Order(found[0]), nil
}

func (s *Store) ListOrders(ctx context.Context, filter payment.OrderFilter) ([]payment.Order, int, error) {
	q := s.client.From(tableOrders).Select("*").Order("created_at", false).Range(filter.Limit, filter.Offset).Count("exact")
	if filter.Status != "" {
		q = q.Eq("status", filter.Status)
	}
	resp, err := q.Execute(ctx)
	found, err := rows[orderRow](resp, err)
	if err != nil {
		return nil, 0, err
	}
	orders := make([]payment.Order, 0, len(found))
	for _, r := range found {
		orders = append(orders, payment.Order(r))
	}
	total, ok := resp.Total()
	if !ok {
		total = len(orders)
	}
	return orders, total, nil
}

func (s *Store) RevenueByCurrency(ctx context.Context) (map[string]int, error) {
	found, err := rows[struct {
		Currency string `json:"currency"`
		Total    int    `json:"total"`
	}](s.client.RPC(ctx, "order_revenue_by_currency", nil))
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(found))
	for _, r := range found {
		out[r.Currency] = r.Total
	}
	return out, nil
}

// --- AnalyticsStore ---------------------------------------------------------

func (s *Store) CreateEvent(ctx context.Context, evt analytics.Event) (analytics.Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if _, err := rows[analytics.Event](s.client.From(tableEvents).ExecuteInsert(ctx, evt)); err != nil {
		return analytics.Event{}, err
	}
	return evt, nil
}

func (s *Store) AggregateEvents(ctx context.Context, from, to time.Time, top int) (analytics.Aggregate, error) {
	return one[analytics.Aggregate](s.client.RPC(ctx, "analytics_event_summary", map[string]any{
		"from_ts": ts(from),
		"to_ts":   ts(to),
		"top_n":   top,
	}))
}

// --- SEOStore ---------------------------------------------------------------

func (s *Store) GetSEO(ctx context.Context, path string) (seo.Metadata, error) {
	return one[seo.Metadata](s.client.From(tableSEO).Select("*").Eq("path", path).Single().Execute(ctx))
}

func (s *Store) ListSEO(ctx context.Context) ([]seo.Metadata, error) {
	return rows[seo.Metadata](s.client.From(tableSEO).Select("*").Order("path", true).Execute(ctx))
}

func (s *Store) UpsertSEO(ctx context.Context, meta seo.Metadata) (seo.Metadata, error) {
	meta.UpdatedAt = time.Now().UTC()
	if _, err := rows[seo.Metadata](s.client.From(tableSEO).Upsert("path").ExecuteInsert(ctx, meta)); err != nil {
		return seo.Metadata{}, err
	}
	return meta, nil
}

func (s *Store) DeleteSEO(ctx context.Context, path string) error {
	deleted, err := rows[seo.Metadata](s.client.From(tableSEO).Eq("path", path).ExecuteDelete(ctx))
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- UserStore --------------------------------------------------------------

func (s *Store) UpsertUser(ctx context.Context, u user.User) (user.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return user.User{}, fmt.Errorf("email is required")
	}

	existing, err := s.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		patch := map[string]any{}
		if u.Role != "" {
			patch["role"] = u.Role
		}
		if u.LastSignInAt != nil {
			patch["last_sign_in_at"] = ts(*u.LastSignInAt)
		}
		if len(patch) == 0 {
			return existing, nil
		}
		updated, err := rows[user.User](s.client.From(tableUsers).Eq("id", existing.ID).ExecuteUpdate(ctx, patch))
		if err != nil {
			return user.User{}, err
		}
		if len(updated) == 0 {
			return user.User{}, storage.ErrNotFound
		}
		return updated[0], nil
	case !errors.Is(err, storage.ErrNotFound):
		return user.User{}, err
	}

	u.Email = email
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = user.RoleCustomer
	}
	if _, err := rows[user.User](s.client.From(tableUsers).ExecuteInsert(ctx, u)); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return one[user.User](s.client.From(tableUsers).Select("*").
		Eq("email", strings.ToLower(strings.TrimSpace(email))).Single().Execute(ctx))
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]user.User, int, error) {
	resp, err := s.client.From(tableUsers).Select("*").Order("created_at", false).
		Range(limit, offset).Count("exact").Execute(ctx)
	found, err := rows[user.User](resp, err)
	if err != nil {
		return nil, 0, err
	}
	total, ok := resp.Total()
	if !ok {
		total = len(found)
	}
	if found == nil {
		found = []user.User{}
	}
	return found, total, nil
}
