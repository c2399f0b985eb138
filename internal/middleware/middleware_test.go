package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clicklone/clicklone/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://clicklone.app/", " http://localhost:5173"}).Handler(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	req.Header.Set("Origin", "https://clicklone.app")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://clicklone.app", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	req.Header.Set("Origin", "https://evil-clicklone.app")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/generate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSAllowAll(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	assert.True(t, m.Allowed("https://anything.example"))
	assert.False(t, NewCORSMiddleware(nil).Allowed("https://anything.example"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2, false, logging.New("test", "error", "json"))
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler)

	hit := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:2222").Code)
	rec := hit("10.0.0.1:3333")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Code)

	assert.Equal(t, http.StatusOK, hit("10.0.0.2:1111").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:4444").Code)

	assert.Equal(t, 2, rl.Size())
	now = now.Add(time.Hour)
	assert.Equal(t, 2, rl.Cleanup(10*time.Minute))
	assert.Equal(t, 0, rl.Size())
}

func TestRateLimiterForwardedFor(t *testing.T) {
	rl := NewRateLimiter(60, 1, true, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", rl.clientIP(req))

	rl.trustProxy = false
	assert.Equal(t, "127.0.0.1", rl.clientIP(req))
}

func TestTracingSetsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput("test", "info", "json", &buf)
	tm := NewTracingMiddleware(logger)

	var seen string
	h := tm.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", rec.Header().Get("X-Trace-ID"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "trace-123", line["trace_id"])
	assert.EqualValues(t, http.StatusCreated, line["status"])

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "bad id\n")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id\n", seen)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestRecover(t *testing.T) {
	tm := NewTracingMiddleware(logging.New("test", "error", "json"))
	h := tm.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Code)
}
