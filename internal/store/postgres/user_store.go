package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantflow/quantflow/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, username, email, password_hash, is_active, created_at, updated_at`

// Create inserts a new user and returns it with the assigned ID.
func (s *UserStore) Create(ctx context.Context, u domain.User) (domain.User, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		u.Username, u.Email, u.PasswordHash, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domain.User{}, domain.ErrAlreadyExists
		}
		return domain.User{}, fmt.Errorf("postgres: create user %s: %w", u.Username, err)
	}
	return u, nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (domain.User, error) {
	var u domain.User
	err := scanner.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID retrieves a single user by ID.
func (s *UserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", id, err)
	}
	return u, nil
}

// GetByUsername retrieves a single user by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", username, err)
	}
	return u, nil
}

// Update rewrites a user's mutable fields.
func (s *UserStore) Update(ctx context.Context, u domain.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email = $1, password_hash = $2, is_active = $3, updated_at = NOW()
		WHERE id = $4`,
		u.Email, u.PasswordHash, u.IsActive, u.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update user %d: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
