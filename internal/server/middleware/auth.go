package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/quantflow/quantflow/internal/domain"
)

// Authenticator resolves a bearer token to the account it was minted
// for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

type contextKey int

const userKey contextKey = iota

// UserFrom returns the authenticated user stored in the request
// context by Auth.
func UserFrom(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey).(domain.User)
	return u, ok
}

// ContextWithUser returns ctx carrying the given user. Exported for
// handler tests.
func ContextWithUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// Auth returns middleware that validates the bearer token on every
// request and stores the resolved user in the request context. Paths
// in publicPaths pass through without a token.
func Auth(auth Authenticator, publicPaths []string) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer
// scheme) or, for websocket clients that cannot set headers, the
// "token" query parameter.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if tok := r.URL.Query().Get("token"); tok != "" {
		return strings.TrimSpace(tok)
	}

	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
