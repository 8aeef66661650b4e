// Package mw contains HTTP middleware for the consult-billing API.
package mw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmylchreest/consult-billing/internal/auth"
	"github.com/jmylchreest/consult-billing/internal/logging"
	"github.com/jmylchreest/consult-billing/internal/models"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// Development-mode identity headers, honored only when auth is disabled.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

var errMissingAuth = errors.New("missing authorization header")

// UserClaims is the authenticated caller.
type UserClaims struct {
	UserID string
	Role   models.Role
	Name   string
}

// IsAdmin reports whether the caller may use admin endpoints.
func (c *UserClaims) IsAdmin() bool {
	return c != nil && c.Role == models.RoleAdmin
}

// IsProvider reports whether the caller is acting as a provider.
func (c *UserClaims) IsProvider() bool {
	return c != nil && c.Role == models.RoleProvider
}

// Authenticator resolves the caller from request headers.
type Authenticator struct {
	verifier *auth.Verifier
	disabled bool
}

// NewAuthenticator creates an authenticator. With disabled set, identity is
// taken from X-User-ID / X-User-Role and no token is checked.
func NewAuthenticator(verifier *auth.Verifier, disabled bool) *Authenticator {
	if disabled {
		slog.Warn("authentication disabled - trusting identity headers")
	}
	return &Authenticator{verifier: verifier, disabled: disabled}
}

// authenticate resolves claims using header lookups. token is an optional
// fallback used when no Authorization header is present.
func (a *Authenticator) authenticate(header func(string) string, token string) (*UserClaims, error) {
	if a.disabled {
		userID := header(HeaderUserID)
		if userID == "" {
			return nil, errMissingAuth
		}
		role := models.Role(header(HeaderUserRole))
		if role == "" {
			role = models.RoleConsumer
		}
		if !role.IsValid() {
			return nil, auth.ErrInvalidRole
		}
		return &UserClaims{UserID: userID, Role: role}, nil
	}

	if authHeader := header("Authorization"); authHeader != "" {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		return nil, errMissingAuth
	}
	if a.verifier == nil {
		return nil, auth.ErrInvalidToken
	}

	claims, err := a.verifier.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &UserClaims{
		UserID: claims.UserID(),
		Role:   claims.Role,
		Name:   claims.Name,
	}, nil
}

// Auth returns a chi middleware that requires a valid caller. Browsers
// cannot set headers on EventSource, so the token may also be passed as the
// access_token query parameter.
func Auth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.authenticate(r.Header.Get, r.URL.Query().Get("access_token"))
			if err != nil {
				if errors.Is(err, errMissingAuth) {
					http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
					return
				}
				slog.Debug("auth validation failed", "error", err)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth returns middleware that validates auth if present but allows
// unauthenticated requests. It lets per-user rate limiting see the caller
// before Huma enforces auth per operation.
func OptionalAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.authenticate(r.Header.Get, "")
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

// GetUserClaims retrieves user claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithUserClaims returns a context carrying claims.
func WithUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	if claims != nil {
		ctx = logging.WithUserID(ctx, claims.UserID)
	}
	return context.WithValue(ctx, UserClaimsKey, claims)
}
