package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/garage/internal/models"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// PrincipalContextKey is the key for the authenticated principal in context
	PrincipalContextKey contextKey = "principal"
)

// Authenticator resolves a session token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error)
}

// Principal is the authenticated caller of a request
type Principal struct {
	User    *models.User
	Session *models.Session
	Token   string
}

// AuthMiddleware requires a valid session token (Authorization header or
// session cookie) and injects the Principal into the request context
func AuthMiddleware(authn Authenticator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := pkghttp.ExtractSessionToken(r)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			user, session, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				writeAuthError(w, r, logger, err)
				return
			}

			ctx := WithPrincipal(r.Context(), &Principal{User: user, Session: session, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth injects the Principal when a valid token is present and
// otherwise passes the request through unchanged
func OptionalAuth(authn Authenticator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := pkghttp.ExtractSessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, session, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrStorageUnavailable) {
					writeAuthError(w, r, logger, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), &Principal{User: user, Session: session, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces the admin > staff > customer hierarchy: the caller's
// role must be min or higher. Must run after AuthMiddleware.
func RequireRole(min string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !user.HasRole(min) {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrStorageUnavailable):
		logger.Error("session backend unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "session_expired", "Session expired")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		logger.Error("authentication error", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipal extracts the authenticated principal from the request context
func GetPrincipal(r *http.Request) *Principal {
	p, ok := r.Context().Value(PrincipalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	if p := GetPrincipal(r); p != nil {
		return p.User
	}
	return nil
}
