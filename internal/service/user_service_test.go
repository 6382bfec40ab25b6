package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/quantflow/quantflow/internal/crypto"
	"github.com/quantflow/quantflow/internal/domain"
)

// fakeUserStore is an in-memory UserStore for tests.
type fakeUserStore struct {
	users  map[int64]domain.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]domain.User), nextID: 1}
}

func (f *fakeUserStore) Create(_ context.Context, u domain.User) (domain.User, error) {
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return domain.User{}, domain.ErrAlreadyExists
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now().UTC()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (domain.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUserStore) Update(_ context.Context, u domain.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	f.users[u.ID] = u
	return nil
}

func newUserService(store domain.UserStore) *UserService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := crypto.NewTokenAuth("test-secret", time.Hour)
	// MinCost keeps the bcrypt work factor cheap for tests.
	return NewUserService(store, tokens, bcrypt.MinCost, logger)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(newFakeUserStore())

	user, err := svc.Register(ctx, "alice", "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("Register returned zero user ID")
	}
	if !user.IsActive {
		t.Fatal("registered user should be active")
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password stored in plain text")
	}

	token, got, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("Login returned empty token")
	}
	if got.ID != user.ID {
		t.Fatalf("Login returned user %d, want %d", got.ID, user.ID)
	}

	authed, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("Authenticate returned user %d, want %d", authed.ID, user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(newFakeUserStore())

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty username", "", "a@b.c", "long-enough"},
		{"short password", "bob", "a@b.c", "short"},
		{"bad email", "bob", "not-an-email", "long-enough"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.email, tt.password)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("Register(%q) error = %v, want ErrInvalidInput", tt.username, err)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(newFakeUserStore())

	if _, err := svc.Register(ctx, "carol", "", "password123"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, "carol", "", "password123")
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate Register error = %v, want ErrAlreadyExists", err)
	}
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	store := newFakeUserStore()
	svc := newUserService(store)

	if _, err := svc.Register(ctx, "dave", "", "password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Wrong password and unknown user must both map to ErrUnauthorized.
	if _, _, err := svc.Login(ctx, "dave", "wrong-password"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("wrong password error = %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("unknown user error = %v, want ErrUnauthorized", err)
	}

	// Disabled accounts cannot log in.
	u, err := store.GetByUsername(ctx, "dave")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	u.IsActive = false
	if err := store.Update(ctx, u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := svc.Login(ctx, "dave", "password123"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("disabled account error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	svc := newUserService(newFakeUserStore())
	if _, err := svc.Authenticate(context.Background(), "not-a-token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Authenticate error = %v, want ErrUnauthorized", err)
	}
}
