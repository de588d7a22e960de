package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/token"
)

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "identity context value " + k.name
}

var identityKey = &contextKey{"Identity"}

// TokenFromCookie extracts the access token from the request cookie
func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(token.ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// FromContext returns the identity stored on the request context, or
// nil when the request was not resolved.
func FromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// WithIdentity returns a context carrying the given identity. Exposed
// for handler tests.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Middleware resolves the bearer token on every request and stores the
// resulting identity on the context. Requests without a resolvable
// token are rejected with 401 before reaching the handler.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := jwtauth.TokenFromHeader(r)
			if bearer == "" {
				bearer = TokenFromCookie(r)
			}
			if bearer == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			identity, err := resolver.Resolve(r.Context(), bearer)
			if err != nil {
				slog.Debug("Failed to resolve request identity", "path", r.URL.Path, "err", err)
				writeUnauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose acting identity is not an admin.
// The check runs against the effective user, so an admin impersonating
// a regular user does not keep admin access while impersonating.
// Must be used after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := FromContext(r.Context())
		if identity == nil {
			writeUnauthorized(w, r, "missing bearer token")
			return
		}

		if !identity.User.Admin {
			slog.Warn("Non-admin request to admin resource", "user_id", identity.User.ID, "path", r.URL.Path)
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{
				"code":    string(errors.ErrCodeAdminRequired),
				"message": "admin privileges required",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{
		"code":    string(errors.ErrCodeUnauthorized),
		"message": message,
	})
}
