package supabase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", APIKey: "service-key"})
	require.NoError(t, err)
	return c
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://x"})
	assert.Error(t, err)
}

func TestSelectBuildsPostgRESTQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/orders", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "eq.paid", q.Get("status"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "20", q.Get("offset"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Range", "20-29/42")
		_, _ = io.WriteString(w, `[{"id":"o1"}]`)
	})

	resp, err := c.From("orders").Select("*").Eq("status", "paid").
		Order("created_at", false).Range(10, 20).Count("exact").Execute(context.Background())
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	total, ok := resp.Total()
	assert.True(t, ok)
	assert.Equal(t, 42, total)

	var rows []map[string]any
	require.NoError(t, resp.JSON(&rows))
	assert.Len(t, rows, 1)
}

func TestUpsertSetsPreferAndConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `[{"key":"currency","value":"usd"}]`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})

	resp, err := c.From("app_settings").Upsert("key").
		ExecuteInsert(context.Background(), []map[string]string{{"key": "currency", "value": "usd"}})
	require.NoError(t, err)
	assert.NoError(t, resp.Err())
}

func TestSingleNoRowsMapsToErrNoRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = io.WriteString(w, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned","details":"The result contains 0 rows"}`)
	})

	resp, err := c.From("seo_metadata").Select("*").Eq("path", "/x").Single().Execute(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Err(), ErrNoRows)
}

func TestErrReportsAPIMessage(t *testing.T) {
	resp := &Response{StatusCode: http.StatusConflict, Body: []byte(`{"code":"23505","message":"duplicate key"}`)}
	var apiErr *APIError
	require.True(t, errors.As(resp.Err(), &apiErr))
	assert.Equal(t, "23505", apiErr.Code)
	assert.Equal(t, "duplicate key", apiErr.Message)

	noRows := &Response{StatusCode: http.StatusNotAcceptable, Body: []byte(`{"code":"PGRST116","message":"The result contains 0 rows"}`)}
	assert.ErrorIs(t, noRows.Err(), ErrNoRows)
}

func TestSignIn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		_, _ = io.WriteString(w, `{"access_token":"at","user":{"id":"u1","email":"admin@example.com","app_metadata":{"role":"admin"}}}`)
	})

	resp, err := c.Auth().SignIn(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "admin", resp.User.AppRole())
}

func TestSignInRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	})

	_, err := c.Auth().SignIn(context.Background(), "a@b.c", "bad")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid login credentials", apiErr.Message)
}

func TestRetryTransportRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1, RetryableStatusCodes: []int{http.StatusServiceUnavailable}}
	c, err := New(Config{URL: srv.URL, APIKey: "k", Retry: &cfg})
	require.NoError(t, err)

	resp, err := c.RPC(context.Background(), "fn", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}
