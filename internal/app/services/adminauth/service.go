// Package adminauth signs dashboard administrators in.
package adminauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clicklone/clicklone/internal/app/domain/user"
	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/logging"
	sb "github.com/clicklone/clicklone/internal/supabase"
)

// ErrInvalidCredentials is returned by authenticators for a wrong email or
// password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is an authenticated dashboard user.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Authenticator checks an email and password.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
}

// Local checks a single configured admin against a bcrypt hash.
type Local struct {
	email string
	hash  []byte
}

// NewLocal creates the env-configured authenticator.
func NewLocal(email, passwordHash string) *Local {
	return &Local{email: normalizeEmail(email), hash: []byte(passwordHash)}
}

func (l *Local) Authenticate(_ context.Context, email, password string) (Identity, error) {
	if l.email == "" || len(l.hash) == 0 {
		return Identity{}, ErrInvalidCredentials
	}
	emailOK := subtle.ConstantTimeCompare([]byte(normalizeEmail(email)), []byte(l.email)) == 1
	pwErr := bcrypt.CompareHashAndPassword(l.hash, []byte(password))
	if !emailOK || pwErr != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: "local-admin", Email: l.email, Role: user.RoleAdmin}, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type signInClient interface {
	SignIn(ctx context.Context, email, password string) (*sb.AuthResponse, error)
}

// Supabase signs in through Supabase Auth and requires the admin role,
// either in app_metadata or on the users table.
type Supabase struct {
	auth  signInClient
	users storage.UserStore
	now   func() time.Time
}

// NewSupabase creates a Supabase-backed authenticator.
func NewSupabase(client *sb.Client, users storage.UserStore) *Supabase {
	return newSupabase(client.Auth(), users)
}

func newSupabase(auth signInClient, users storage.UserStore) *Supabase {
	return &Supabase{auth: auth, users: users, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Supabase) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	resp, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		var apiErr *sb.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}
	if resp.User == nil {
		return Identity{}, ErrInvalidCredentials
	}

	role := resp.User.AppRole()
	stored, err := s.users.GetUserByEmail(ctx, resp.User.Email)
	switch {
	case err == nil:
		if role == "" {
			role = stored.Role
		}
	case !errors.Is(err, storage.ErrNotFound):
		return Identity{}, err
	}

	now := s.now()
	saved, err := s.users.UpsertUser(ctx, user.User{Email: resp.User.Email, Role: role, LastSignInAt: &now})
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: resp.User.ID, Email: saved.Email, Role: saved.Role}, nil
}

// Service issues admin tokens after a successful sign-in.
type Service struct {
	authenticators []Authenticator
	tokens         *Tokens
	log            *logging.Logger
}

// LoginResult is returned to the dashboard.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

// New creates the login service. Authenticators are tried in order.
func New(tokens *Tokens, log *logging.Logger, authenticators ...Authenticator) *Service {
	if log == nil {
		log = logging.NewDefault("adminauth")
	}
	return &Service{authenticators: authenticators, tokens: tokens, log: log}
}

// Tokens exposes the verifier used by the admin middleware.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Login authenticates an admin and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, apperrors.Validation("email", "email and password are required")
	}

	for _, auth := range s.authenticators {
		id, err := auth.Authenticate(ctx, email, password)
		if errors.Is(err, ErrInvalidCredentials) {
			continue
		}
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Error("admin authenticator failed")
			return LoginResult{}, apperrors.Unavailable("Sign-in is temporarily unavailable", err)
		}
		if id.Role != user.RoleAdmin {
			s.log.LogSecurityEvent(ctx, "admin_login_forbidden", map[string]interface{}{"email": email})
			return LoginResult{}, apperrors.Forbidden("Administrator access required")
		}

		token, expires, err := s.tokens.Issue(id)
		if err != nil {
			return LoginResult{}, apperrors.Internal("failed to issue token", err)
		}
		s.log.WithContext(ctx).WithField("email", id.Email).Info("admin signed in")
		return LoginResult{Token: token, ExpiresAt: expires, Email: id.Email, Role: id.Role}, nil
	}

	s.log.LogSecurityEvent(ctx, "admin_login_failed", map[string]interface{}{"email": email})
	return LoginResult{}, apperrors.Unauthorized("Invalid email or password")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
