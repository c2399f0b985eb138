package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/clicklone/clicklone/internal/app"
	"github.com/clicklone/clicklone/internal/app/services/adminauth"
	"github.com/clicklone/clicklone/internal/config"
	"github.com/clicklone/clicklone/internal/httputil"
	"github.com/clicklone/clicklone/internal/logging"
)

const (
	adminEmail    = "admin@clicklone.test"
	adminPassword = "correct horse battery"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := adminauth.HashPassword(adminPassword)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.JWTSecret = "handler-test-secret"
	cfg.AdminEmail = adminEmail
	cfg.AdminPasswordHash = hash
	cfg.RateLimitRPM = 600
	cfg.RateLimitBurst = 100
	return cfg
}

func newTestHandler(t *testing.T, cfg *config.Config) (http.Handler, *app.Application) {
	t.Helper()
	if cfg == nil {
		cfg = newTestConfig(t)
	}
	log := logging.New("test", "error", "json")
	application, err := app.New(context.Background(), cfg, app.Overrides{Backend: app.MemoryBackend()}, log)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() { _ = application.Stop(context.Background()) })
	return NewHandler(application, log), application
}

func do(t *testing.T, h http.Handler, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorPayload {
	t.Helper()
	return decode[httputil.ErrorBody](t, rec).Error
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/admin/login", map[string]string{"email": adminEmail, "password": adminPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[adminauth.LoginResult](t, rec)
	require.NotEmpty(t, res.Token)
	return res.Token
}

type generateResponse struct {
	Decision    string   `json:"decision"`
	Phrases     []string `json:"phrases"`
	TrialCount  int      `json:"trial_count"`
	ResultID    string   `json:"result_id"`
	CheckoutURL string   `json:"checkout_url"`
	State       struct {
		Step            string `json:"step"`
		PendingResultID string `json:"pending_result_id"`
	} `json:"state"`
}

func TestHealthAndConfig(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = do(t, h, http.MethodGet, "/api/v1/config", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[map[string]any](t, rec)
	assert.EqualValues(t, 499, cfg["price_cents"])
	assert.Len(t, cfg["languages"], 6)

	rec = do(t, h, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateTrialThenPaidReturn(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/generate", map[string]any{"concept": "Solar backpack", "visitor_id": "v1"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[generateResponse](t, rec)
	assert.Equal(t, "trial", first.Decision)
	assert.Len(t, first.Phrases, 10)
	assert.Equal(t, "results", first.State.Step)

	rec = do(t, h, http.MethodPost, "/api/v1/generate", map[string]any{"concept": "Solar backpack", "visitor_id": "v1", "trial_count": first.TrialCount}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[generateResponse](t, rec)
	assert.Equal(t, "payment_required", second.Decision)
	assert.Empty(t, second.Phrases)
	require.NotEmpty(t, second.CheckoutURL)
	assert.Equal(t, "payment", second.State.Step)

	u, err := url.Parse(second.CheckoutURL)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/v1/checkout/return?"+u.RawQuery, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ret := decode[map[string]any](t, rec)
	assert.Equal(t, "success", ret["outcome"])
	assert.Len(t, ret["phrases"], 10)

	rec = do(t, h, http.MethodPost, "/api/v1/checkout/"+second.ResultID, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateErrors(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/generate", map[string]any{"concept": "x"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := errorOf(t, rec)
	assert.Equal(t, "validation_failed", e.Code)
	assert.Equal(t, "concept", e.Details["field"])
	assert.NotEmpty(t, e.TraceID)

	rec = do(t, h, http.MethodPost, "/api/v1/generate", map[string]any{"concept": "Solar backpack", "mood": "happy"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errorOf(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/generate", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorOf(t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/checkout/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateIsRateLimited(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimitRPM = 1
	cfg.RateLimitBurst = 1
	h, _ := newTestHandler(t, cfg)

	body := map[string]any{"concept": "Solar backpack"}
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/generate", body, "").Code)
	rec := do(t, h, http.MethodPost, "/api/v1/generate", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other endpoints are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/config", nil, "").Code)
}

func TestEventsAndSEO(t *testing.T) {
	h, application := newTestHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/events", map[string]any{"path": "/pricing", "referrer": "https://www.google.com/search", "visitor_id": "v9"}, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/events", map[string]any{"type": "payment_succeeded", "path": "/"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sum, err := application.Analytics.Summary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.UniqueVisitors)

	rec = do(t, h, http.MethodGet, "/api/v1/seo?path=/unknown", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode[map[string]any](t, rec)
	assert.Equal(t, "/unknown", meta["path"])
	assert.NotEmpty(t, meta["title"])
}

func TestStripeWebhook(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec := do(t, h, http.MethodPost, "/api/v1/stripe/webhook", map[string]any{"id": "evt_1"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	cfg := newTestConfig(t)
	cfg.StripeWebhookSecret = "whsec_test"
	h, _ = newTestHandler(t, cfg)
	rec = do(t, h, http.MethodPost, "/api/v1/stripe/webhook", map[string]any{"id": "evt_1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := strings.Repeat("a", 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", strings.NewReader(big))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, out.Code)
}

func TestAdminRoutes(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/admin/settings", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/admin/login", map[string]string{"email": adminEmail, "password": "wrong password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := login(t, h)

	rec = do(t, h, http.MethodGet, "/api/v1/admin/settings", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["payment_required"])

	rec = do(t, h, http.MethodPut, "/api/v1/admin/settings", map[string]any{"price_cents": -1}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "price_cents", errorOf(t, rec).Details["field"])

	rec = do(t, h, http.MethodPut, "/api/v1/admin/settings", map[string]any{"price_cents": 999, "currency": "usd"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 999, decode[map[string]any](t, rec)["price_cents"])

	rec = do(t, h, http.MethodPut, "/api/v1/admin/seo", map[string]any{"path": "/pricing", "title": "Pricing", "description": "Plans"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodGet, "/api/v1/admin/seo", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/pricing")
	rec = do(t, h, http.MethodDelete, "/api/v1/admin/seo?path=/pricing", nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/admin/seo?path=/pricing", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/admin/orders?status=paid&limit=10", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/admin/orders?status=bogus", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/admin/users?limit=abc", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/admin/users", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/admin/analytics?days=7", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string]any](t, rec)["views_per_day"], 7)
	rec = do(t, h, http.MethodGet, "/api/v1/admin/analytics?days=1000", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/admin/audit", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[struct {
		Entries []auditEntry `json:"entries"`
	}](t, rec)
	require.Len(t, audit.Entries, 5)
	assert.Equal(t, adminEmail, audit.Entries[0].User)
	assert.Equal(t, http.StatusBadRequest, audit.Entries[0].Status)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	cfg := config.Default()
	h, _ := newTestHandler(t, cfg)
	rec := do(t, h, http.MethodPost, "/api/v1/admin/login", map[string]string{"email": "a@b.c", "password": "whatever1"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/admin/orders", nil, "anything")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AllowedOrigins = "https://clicklone.test"
	h, _ := newTestHandler(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/admin/settings", nil)
	req.Header.Set("Origin", "https://clicklone.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://clicklone.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLiveAnalytics(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	token := login(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/admin/analytics/live?access_token=" + url.QueryEscape(token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var msg liveMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "hello", msg.Type)

	rec := do(t, h, http.MethodPost, "/api/v1/events", map[string]any{"path": "/live"}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "/live", msg.Data.Path)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/admin/analytics/live", nil)
	assert.Error(t, err)
}
