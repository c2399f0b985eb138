package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/services/adminauth"
	"github.com/clicklone/clicklone/internal/httputil"
	"github.com/clicklone/clicklone/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *adminauth.Tokens {
	t.Helper()
	tokens, err := adminauth.NewTokens("test-secret-value", time.Hour)
	require.NoError(t, err)
	return tokens
}

func issue(t *testing.T, tokens *adminauth.Tokens, role string) string {
	t.Helper()
	tok, _, err := tokens.Issue(adminauth.Identity{UserID: "u1", Email: "admin@example.com", Role: role})
	require.NoError(t, err)
	return tok
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorPayload {
	t.Helper()
	var body httputil.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestAdminAuth(t *testing.T) {
	tokens := newTestTokens(t)
	logger := logging.New("test", "error", "json")

	var gotUser, gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotRole = GetUserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := NewAdminAuth(tokens, logger).Handler(next)

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "unauthorized"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid_token"},
		{"customer role", "Bearer " + issue(t, tokens, user.RoleCustomer), http.StatusForbidden, "forbidden"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "bearer "+issue(t, tokens, user.RoleAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin@example.com", gotUser)
	assert.Equal(t, user.RoleAdmin, gotRole)
}

func TestAdminAuthWithoutVerifier(t *testing.T) {
	h := NewAdminAuth(nil, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, h := range []string{"", "Bearer", "Bearer   ", "Token abc"} {
		_, ok := bearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestAdminAuthAcceptsQueryTokenOnWebsocketUpgrade(t *testing.T) {
	tokens := newTestTokens(t)
	h := NewAdminAuth(tokens, nil).Handler(okHandler)
	tok := issue(t, tokens, user.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/analytics/live?access_token="+tok, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/analytics/live?access_token="+tok, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
