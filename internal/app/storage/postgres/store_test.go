package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clicklone/clicklone/internal/app/domain/analytics"
	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/settings"
	"github.com/clicklone/clicklone/internal/app/storage"
	"github.com/clicklone/clicklone/internal/platform/migrations"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

var tokenCols = []string{"id", "result_id", "amount_cents", "currency", "used", "used_at", "checkout_session_id", "created_at"}

func TestMarkTokenUsedOnce(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE payment_tokens SET used = TRUE")).
		WithArgs("tok-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tok-1", "res-1", 499, "eur", true, now, "cs_1", now))

	tok, err := store.MarkTokenUsed(context.Background(), "tok-1", now)
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if !tok.Used || tok.CheckoutSessionID != "cs_1" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkTokenUsedTwice(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE payment_tokens SET used = TRUE")).
		WithArgs("tok-1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_tokens WHERE id = $1")).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("tok-1", "res-1", 499, "eur", true, now, "", now))

	_, err := store.MarkTokenUsed(context.Background(), "tok-1", now)
	if !errors.Is(err, storage.ErrTokenUsed) {
		t.Fatalf("expected ErrTokenUsed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkTokenUsedMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE payment_tokens SET used = TRUE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_tokens WHERE id = $1")).WillReturnError(sql.ErrNoRows)

	_, err := store.MarkTokenUsed(context.Background(), "nope", time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutSettingsUsesTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO app_settings")).
		WithArgs(settings.KeyPriceCents, "999").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO app_settings")).
		WithArgs(settings.KeyCurrency, "usd").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.PutSettings(context.Background(), []settings.Entry{
		{Key: settings.KeyPriceCents, Value: "999"},
		{Key: settings.KeyCurrency, Value: "usd"},
	})
	if err != nil {
		t.Fatalf("put settings: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetPendingResultDecodesPhrases(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{"id", "phrases", "concept", "tone", "language", "visitor_id", "created_at", "expires_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM pending_results")).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("res-1", []byte(`["Brew bold.","Sip smarter."]`), "coffee", "direct", "en", "v1", now, now.Add(time.Hour)))

	res, err := store.GetPendingResult(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(res.Phrases) != 2 || res.Request.Concept != "coffee" || res.VisitorID != "v1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestListOrdersWithStatus(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders")).
		WithArgs("paid").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	cols := []string{"id", "result_id", "token_id", "checkout_session_id", "amount_cents", "currency", "status", "customer_email", "created_at", "paid_at"}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("paid", 20, 0).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("o1", "r1", "t1", "cs_1", 499, "eur", "paid", "a@b.c", now, now))

	orders, total, err := store.ListOrders(context.Background(), payment.OrderFilter{Status: payment.OrderPaid, Limit: 20})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].Status != payment.OrderPaid {
		t.Fatalf("unexpected orders: %d %+v", total, orders)
	}
}

func TestDeleteSEOMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM seo_metadata")).
		WithArgs("/missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteSEO(context.Background(), "/missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateEventStoresReferrerHost(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analytics_events")).
		WithArgs(sqlmock.AnyArg(), "page_view", "/", "https://www.google.com/search", "v1", "", sqlmock.AnyArg(), "google.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.CreateEvent(context.Background(), analytics.Event{
		Type:         analytics.EventPageView,
		Path:         "/",
		Referrer:     "https://www.google.com/search",
		ReferrerHost: "google.com",
		VisitorID:    "v1",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAggregateEventsUsesSummaryFunction(t *testing.T) {
	store, mock := newMockStore(t)
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	summary := `{"totals":{"page_view":3,"checkout_start":1},"unique_visitors":2,` +
		`"views_per_day":{"2026-10-18":3},"top_pages":[{"label":"/","count":2},{"label":"/about","count":1}],` +
		`"top_referrers":[{"label":"google.com","count":2}]}`
	mock.ExpectQuery(regexp.QuoteMeta("SELECT analytics_event_summary($1, $2, $3)")).
		WithArgs(from, to, 5).
		WillReturnRows(sqlmock.NewRows([]string{"analytics_event_summary"}).AddRow([]byte(summary)))

	agg, err := store.AggregateEvents(context.Background(), from, to, 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Totals[analytics.EventPageView] != 3 || agg.UniqueVisitors != 2 {
		t.Fatalf("unexpected totals: %+v", agg)
	}
	if agg.ViewsPerDay["2026-10-18"] != 3 {
		t.Fatalf("unexpected views per day: %+v", agg.ViewsPerDay)
	}
	if len(agg.TopPages) != 2 || agg.TopPages[0].Label != "/" || agg.TopReferrers[0].Label != "google.com" {
		t.Fatalf("unexpected rankings: %+v %+v", agg.TopPages, agg.TopReferrers)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	store := New(db)

	res, err := store.CreatePendingResult(ctx, payment.PendingResult{
		Phrases:   []string{"One.", "Two."},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	tok, err := store.CreateToken(ctx, payment.Token{ResultID: res.ID, AmountCents: 499, Currency: "eur"})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := store.MarkTokenUsed(ctx, tok.ID, time.Now()); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if _, err := store.MarkTokenUsed(ctx, tok.ID, time.Now()); !errors.Is(err, storage.ErrTokenUsed) {
		t.Fatalf("expected ErrTokenUsed, got %v", err)
	}
}
