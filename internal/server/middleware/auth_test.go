package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quantflow/quantflow/internal/domain"
)

// stubAuthenticator accepts a single token.
type stubAuthenticator struct {
	token string
	user  domain.User
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (domain.User, error) {
	if token != s.token {
		return domain.User{}, domain.ErrUnauthorized
	}
	return s.user, nil
}

func newAuthedMux(t *testing.T) (http.Handler, *domain.User) {
	t.Helper()

	var seen domain.User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFrom(r.Context()); ok {
			seen = u
		}
		w.WriteHeader(http.StatusOK)
	})

	auth := &stubAuthenticator{token: "good-token", user: domain.User{ID: 42, Username: "alice"}}
	return Auth(auth, []string{"/api/health"})(inner), &seen
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	h, seen := newAuthedMux(t)

	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if seen.ID != 42 {
		t.Fatalf("handler saw user %d, want 42", seen.ID)
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	h, seen := newAuthedMux(t)

	r := httptest.NewRequest(http.MethodGet, "/ws?token=good-token", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if seen.Username != "alice" {
		t.Fatalf("handler saw user %q, want alice", seen.Username)
	}
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	h, _ := newAuthedMux(t)

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(_ *http.Request) {}},
		{"wrong token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic good-token") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			tt.setup(r)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAuthSkipsPublicPaths(t *testing.T) {
	h, _ := newAuthedMux(t)

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for public path", w.Code)
	}
}
