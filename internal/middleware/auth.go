package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/launchlog/launchlog-go/internal/crypto"
	"github.com/launchlog/launchlog-go/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	msgTokenRequired = "Access token required"
	msgTokenInvalid  = "Invalid or expired token"
)

// TokenVerifier is implemented by *crypto.TokenIssuer.
type TokenVerifier interface {
	Verify(token string) (crypto.Identity, error)
}

// Authenticate returns middleware that requires a valid Bearer token.
// A missing token is answered with 401, an invalid one with 403.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, status, msg := resolve(v, r)
			if status != 0 {
				writeJSONError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth is like Authenticate, except that a request without an
// Authorization header proceeds as the default user.
func OptionalAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, status, msg := resolve(v, r)
			if status != 0 {
				writeJSONError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects authenticated callers without role. It must run
// after Authenticate.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, msgTokenRequired)
				return
			}
			if model.Role(id.Role) != role {
				writeJSONError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolve(v TokenVerifier, r *http.Request) (crypto.Identity, int, string) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return crypto.Identity{}, http.StatusUnauthorized, msgTokenRequired
	}

	id, err := v.Verify(token)
	if err != nil {
		return crypto.Identity{}, http.StatusForbidden, msgTokenInvalid
	}
	return id, 0, ""
}

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id crypto.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) (crypto.Identity, bool) {
	id, ok := ctx.Value(identityKey).(crypto.Identity)
	return id, ok
}

// UserIDFromContext returns the authenticated user id, or the default
// owner for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID
	}
	return model.DefaultUserID
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
