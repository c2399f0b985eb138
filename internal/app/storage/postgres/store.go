package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
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
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// --- SettingsStore ----------------------------------------------------------

func (s *Store) ListSettings(ctx context.Context) ([]settings.Entry, error) {
	var entries []settings.Entry
	if err := s.db.SelectContext(ctx, &entries, `SELECT key, value FROM app_settings ORDER BY key`); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) PutSettings(ctx context.Context, entries []settings.Entry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO app_settings (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, e.Key, e.Value); err != nil {
			return fmt.Errorf("put setting %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// --- PendingStore -----------------------------------------------------------

type pendingRow struct {
	ID        string    `db:"id"`
	Phrases   []byte    `db:"phrases"`
	Concept   string    `db:"concept"`
	Tone      string    `db:"tone"`
	Language  string    `db:"language"`
	VisitorID string    `db:"visitor_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (r pendingRow) toDomain() (payment.PendingResult, error) {
	var phrases []string
	if err := json.Unmarshal(r.Phrases, &phrases); err != nil {
		return payment.PendingResult{}, fmt.Errorf("decode phrases: %w", err)
	}
	return payment.PendingResult{
		ID:      r.ID,
		Phrases: phrases,
		Request: generation.Request{
			Concept:  r.Concept,
			Tone:     generation.Tone(r.Tone),
			Language: r.Language,
		},
		VisitorID: r.VisitorID,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}, nil
}

func (s *Store) CreatePendingResult(ctx context.Context, res payment.PendingResult) (payment.PendingResult, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	phrasesJSON, err := json.Marshal(res.Phrases)
	if err != nil {
		return payment.PendingResult{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_results (id, phrases, concept, tone, language, visitor_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.ID, phrasesJSON, res.Request.Concept, string(res.Request.Tone), res.Request.Language, res.VisitorID, res.CreatedAt, res.ExpiresAt)
	if err != nil {
		return payment.PendingResult{}, err
	}
	return res, nil
}

func (s *Store) GetPendingResult(ctx context.Context, id string) (payment.PendingResult, error) {
	var row pendingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phrases, concept, tone, language, visitor_id, created_at, expires_at
		FROM pending_results
		WHERE id = $1
	`, id)
	if err != nil {
		return payment.PendingResult{}, notFound(err)
	}
	return row.toDomain()
}

func (s *Store) DeleteExpiredPendingResults(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_results p
		WHERE p.expires_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM payment_tokens t WHERE t.result_id = p.id AND t.used
		  )
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type tokenRow struct {
	ID                string     `db:"id"`
	ResultID          string     `db:"result_id"`
	AmountCents       int        `db:"amount_cents"`
	Currency          string     `db:"currency"`
	Used              bool       `db:"used"`
	UsedAt            *time.Time `db:"used_at"`
	CheckoutSessionID string     `db:"checkout_session_id"`
	CreatedAt         time.Time  `db:"created_at"`
}

func (r tokenRow) toDomain() payment.Token {
	return payment.Token(r)
}

const tokenColumns = `id, result_id, amount_cents, currency, used, used_at, checkout_session_id, created_at`

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_tokens (id, result_id, amount_cents, currency, used, checkout_session_id, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
	`, tok.ID, tok.ResultID, tok.AmountCents, tok.Currency, tok.CheckoutSessionID, tok.CreatedAt)
	if err != nil {
		return payment.Token{}, err
	}
	return tok, nil
}

func (s *Store) GetTokenByResult(ctx context.Context, resultID string) (payment.Token, error) {
	var row tokenRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+tokenColumns+` FROM payment_tokens WHERE result_id = $1`, resultID); err != nil {
		return payment.Token{}, notFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) SetTokenCheckoutSession(ctx context.Context, tokenID, sessionID string) (payment.Token, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE payment_tokens SET checkout_session_id = $2
		WHERE id = $1
		RETURNING `+tokenColumns, tokenID, sessionID)
	if err != nil {
		return payment.Token{}, notFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) MarkTokenUsed(ctx context.Context, tokenID string, at time.Time) (payment.Token, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE payment_tokens SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
		RETURNING `+tokenColumns, tokenID, at.UTC())
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return payment.Token{}, err
	}

	// Either the token does not exist or another request consumed it first.
	if err := s.db.GetContext(ctx, &row, `SELECT `+tokenColumns+` FROM payment_tokens WHERE id = $1`, tokenID); err != nil {
		return payment.Token{}, notFound(err)
	}
	return row.toDomain(), storage.ErrTokenUsed
}

// --- OrderStore -------------------------------------------------------------

type orderRow struct {
	ID                string     `db:"id"`
	ResultID          string     `db:"result_id"`
	TokenID           string     `db:"token_id"`
	CheckoutSessionID string     `db:"checkout_session_id"`
	AmountCents       int        `db:"amount_cents"`
	Currency          string     `db:"currency"`
	Status            string     `db:"status"`
	CustomerEmail     string     `db:"customer_email"`
	CreatedAt         time.Time  `db:"created_at"`
	PaidAt            *time.Time `db:"paid_at"`
}

func (r orderRow) toDomain() payment.Order {
	return payment.Order{
		ID:                r.ID,
		ResultID:          r.ResultID,
		TokenID:           r.TokenID,
		CheckoutSessionID: r.CheckoutSessionID,
		AmountCents:       r.AmountCents,
		Currency:          r.Currency,
		Status:            payment.OrderStatus(r.Status),
		CustomerEmail:     r.CustomerEmail,
		CreatedAt:         r.CreatedAt.UTC(),
		PaidAt:            r.PaidAt,
	}
}

const orderColumns = `id, result_id, token_id, checkout_session_id, amount_cents, currency, status, customer_email, created_at, paid_at`

func (s *Store) CreateOrder(ctx context.Context, order payment.Order) (payment.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, order.ID, order.ResultID, order.TokenID, order.CheckoutSessionID, order.AmountCents,
		order.Currency, string(order.Status), order.CustomerEmail, order.CreatedAt, order.PaidAt)
	if err != nil {
		return payment.Order{}, err
	}
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order payment.Order) (payment.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE orders
		SET checkout_session_id = $2, status = $3, customer_email = $4, paid_at = $5
		WHERE id = $1
		RETURNING `+orderColumns,
		order.ID, order.CheckoutSessionID, string(order.Status), order.CustomerEmail, order.PaidAt)
	if err != nil {
		return payment.Order{}, notFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetOrderBySession(ctx context.Context, sessionID string) (payment.Order, error) {
	var row orderRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE checkout_session_id = $1`, sessionID); err != nil {
		return payment.Order{}, notFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListOrders(ctx context.Context, filter payment.OrderFilter) ([]payment.Order, int, error) {
	status := string(filter.Status)

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders WHERE ($1 = '' OR status = $1)`, status); err != nil {
		return nil, 0, err
	}

	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0) OFFSET $3
	`, status, filter.Limit, max(filter.Offset, 0))
	if err != nil {
		return nil, 0, err
	}

	orders := make([]payment.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toDomain())
	}
	return orders, total, nil
}

func (s *Store) RevenueByCurrency(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Currency string `db:"currency"`
		Total    int    `db:"total"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT currency, COALESCE(SUM(amount_cents), 0) AS total
		FROM orders
		WHERE status = 'paid'
		GROUP BY currency
	`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, type, path, referrer, visitor_id, user_agent, created_at, referrer_host)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, evt.ID, string(evt.Type), evt.Path, evt.Referrer, evt.VisitorID, evt.UserAgent, evt.CreatedAt, evt.ReferrerHost)
	if err != nil {
		return analytics.Event{}, err
	}
	return evt, nil
}

// AggregateEvents counts the window inside the database with
// analytics_event_summary so no event rows cross the wire.
func (s *Store) AggregateEvents(ctx context.Context, from, to time.Time, top int) (analytics.Aggregate, error) {
	var raw []byte
	err := s.db.QueryRowxContext(ctx, `SELECT analytics_event_summary($1, $2, $3)`, from.UTC(), to.UTC(), top).Scan(&raw)
	if err != nil {
		return analytics.Aggregate{}, err
	}
	var agg analytics.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return analytics.Aggregate{}, fmt.Errorf("decode event summary: %w", err)
	}
	return agg, nil
}

// --- SEOStore ---------------------------------------------------------------

type seoRow struct {
	Path        string    `db:"path"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Keywords    string    `db:"keywords"`
	OGImage     string    `db:"og_image"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const seoColumns = `path, title, description, keywords, og_image, updated_at`

func (s *Store) GetSEO(ctx context.Context, path string) (seo.Metadata, error) {
	var row seoRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+seoColumns+` FROM seo_metadata WHERE path = $1`, path); err != nil {
		return seo.Metadata{}, notFound(err)
	}
	return seo.Metadata(row), nil
}

func (s *Store) ListSEO(ctx context.Context) ([]seo.Metadata, error) {
	var rows []seoRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+seoColumns+` FROM seo_metadata ORDER BY path`); err != nil {
		return nil, err
	}
	out := make([]seo.Metadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, seo.Metadata(r))
	}
	return out, nil
}

func (s *Store) UpsertSEO(ctx context.Context, meta seo.Metadata) (seo.Metadata, error) {
	meta.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seo_metadata (`+seoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			keywords = EXCLUDED.keywords,
			og_image = EXCLUDED.og_image,
			updated_at = EXCLUDED.updated_at
	`, meta.Path, meta.Title, meta.Description, meta.Keywords, meta.OGImage, meta.UpdatedAt)
	if err != nil {
		return seo.Metadata{}, err
	}
	return meta, nil
}

func (s *Store) DeleteSEO(ctx context.Context, path string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM seo_metadata WHERE path = $1`, path)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- UserStore --------------------------------------------------------------

type userRow struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	Role         string     `db:"role"`
	CreatedAt    time.Time  `db:"created_at"`
	LastSignInAt *time.Time `db:"last_sign_in_at"`
}

const userColumns = `id, email, role, created_at, last_sign_in_at`

func (s *Store) UpsertUser(ctx context.Context, u user.User) (user.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return user.User{}, fmt.Errorf("email is required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	var row userRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO app_users (id, email, role, created_at, last_sign_in_at)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'customer'), $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			role = COALESCE(NULLIF($3, ''), app_users.role),
			last_sign_in_at = COALESCE(EXCLUDED.last_sign_in_at, app_users.last_sign_in_at)
		RETURNING `+userColumns, u.ID, email, u.Role, u.CreatedAt, u.LastSignInAt)
	if err != nil {
		return user.User{}, err
	}
	return user.User(row), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM app_users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return user.User{}, notFound(err)
	}
	return user.User(row), nil
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]user.User, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM app_users`); err != nil {
		return nil, 0, err
	}
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+userColumns+`
		FROM app_users
		ORDER BY created_at DESC
		LIMIT NULLIF($1, 0) OFFSET $2
	`, limit, max(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	out := make([]user.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, user.User(r))
	}
	return out, total, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
