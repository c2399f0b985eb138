// Package middleware provides HTTP middleware for the Clicklone API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/services/adminauth"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/httputil"
	"github.com/clicklone/clicklone/internal/logging"
	"github.com/gorilla/websocket"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*adminauth.Claims, error)
}

// AdminAuth rejects requests that do not carry a valid admin token.
type AdminAuth struct {
	verifier TokenVerifier
	logger   *logging.Logger
}

// NewAdminAuth creates the admin auth middleware.
func NewAdminAuth(verifier TokenVerifier, logger *logging.Logger) *AdminAuth {
	if logger == nil {
		logger = logging.NewDefault("admin-auth")
	}
	return &AdminAuth{verifier: verifier, logger: logger}
}

// Handler returns the middleware handler.
func (m *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.verifier == nil {
			m.respondError(w, r, apperrors.Unavailable("admin login is not configured", nil))
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok && websocket.IsWebSocketUpgrade(r) {
			// Browsers cannot set headers on a websocket handshake.
			token = r.URL.Query().Get("access_token")
			ok = token != ""
		}
		if !ok {
			m.respondError(w, r, apperrors.Unauthorized("missing bearer token"))
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.LogSecurityEvent(r.Context(), "admin_token_rejected", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			m.respondError(w, r, err)
			return
		}
		if claims.Role != user.RoleAdmin {
			m.logger.LogSecurityEvent(r.Context(), "admin_role_required", map[string]interface{}{
				"path":  r.URL.Path,
				"email": claims.Email,
			})
			m.respondError(w, r, apperrors.Forbidden("admin role required"))
			return
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, claims.Email)
		ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AdminAuth) respondError(w http.ResponseWriter, r *http.Request, err error) {
	se := apperrors.GetServiceError(err)
	if se == nil {
		se = apperrors.InvalidToken(err)
	}
	httputil.WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetUserID returns the authenticated admin's email.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole returns the authenticated admin's role.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}
