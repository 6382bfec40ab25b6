// Package service implements the application use cases on top of the
// domain stores, caches, and platform clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quantflow/quantflow/internal/crypto"
	"github.com/quantflow/quantflow/internal/domain"
)

// UserService handles registration, login, and session tokens.
type UserService struct {
	users      domain.UserStore
	tokens     *crypto.TokenAuth
	bcryptCost int
	logger     *slog.Logger
}

// NewUserService creates a UserService. bcryptCost below the bcrypt
// minimum falls back to bcrypt.DefaultCost.
func NewUserService(users domain.UserStore, tokens *crypto.TokenAuth, bcryptCost int, logger *slog.Logger) *UserService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates a new account. The username must be non-empty and
// the password at least 8 characters.
func (s *UserService) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return domain.User{}, fmt.Errorf("user_service: username required: %w", domain.ErrInvalidInput)
	}
	if len(password) < 8 {
		return domain.User{}, fmt.Errorf("user_service: password too short: %w", domain.ErrInvalidInput)
	}
	if email != "" && !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("user_service: invalid email: %w", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: register %q: %w", username, err)
	}

	s.logger.InfoContext(ctx, "user_service: user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login verifies credentials and mints a session token. Invalid
// credentials map to domain.ErrUnauthorized without revealing whether
// the username exists.
func (s *UserService) Login(ctx context.Context, username, password string) (string, domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.User{}, fmt.Errorf("user_service: login: %w", domain.ErrUnauthorized)
		}
		return "", domain.User{}, fmt.Errorf("user_service: login lookup: %w", err)
	}
	if !user.IsActive {
		return "", domain.User{}, fmt.Errorf("user_service: login: account disabled: %w", domain.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.User{}, fmt.Errorf("user_service: login: %w", domain.ErrUnauthorized)
	}

	token := s.tokens.Mint(user.ID)

	s.logger.InfoContext(ctx, "user_service: user logged in",
		slog.Int64("user_id", user.ID),
	)

	return token, user, nil
}

// Authenticate parses a session token and loads the account it names.
func (s *UserService) Authenticate(ctx context.Context, token string) (domain.User, error) {
	userID, err := s.tokens.Parse(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: authenticate: %w", domain.ErrUnauthorized)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: authenticate user %d: %w", userID, err)
	}
	if !user.IsActive {
		return domain.User{}, fmt.Errorf("user_service: authenticate: account disabled: %w", domain.ErrUnauthorized)
	}

	return user, nil
}

// GetUser loads an account by ID.
func (s *UserService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get user %d: %w", id, err)
	}
	return user, nil
}
