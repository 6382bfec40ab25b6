package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantflow/quantflow/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a new StrategyStore backed by the given pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

const strategySelectCols = `id, user_id, name, description, kind, params, status, created_at, updated_at`

// Create inserts a strategy definition and returns it with the assigned ID.
func (s *StrategyStore) Create(ctx context.Context, st domain.Strategy) (domain.Strategy, error) {
	params, err := json.Marshal(st.Params)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("postgres: marshal strategy params: %w", err)
	}
	if st.Status == "" {
		st.Status = domain.StrategyStatusInactive
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO strategies (user_id, name, description, kind, params, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		st.UserID, st.Name, st.Description, st.Kind, params, string(st.Status),
	).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("postgres: create strategy %s: %w", st.Name, err)
	}
	return st, nil
}

func scanStrategy(scanner interface{ Scan(dest ...any) error }) (domain.Strategy, error) {
	var st domain.Strategy
	var status string
	var params []byte

	err := scanner.Scan(&st.ID, &st.UserID, &st.Name, &st.Description,
		&st.Kind, &params, &status, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return domain.Strategy{}, err
	}

	st.Status = domain.StrategyStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &st.Params); err != nil {
			return domain.Strategy{}, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return st, nil
}

// GetByID retrieves a single strategy by ID.
func (s *StrategyStore) GetByID(ctx context.Context, id int64) (domain.Strategy, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+strategySelectCols+` FROM strategies WHERE id = $1`, id)
	st, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Strategy{}, domain.ErrNotFound
		}
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy %d: %w", id, err)
	}
	return st, nil
}

// ListByUser returns a user's strategies, newest first.
func (s *StrategyStore) ListByUser(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Strategy, error) {
	query := `SELECT ` + strategySelectCols + ` FROM strategies
		WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Update rewrites a strategy's mutable fields.
func (s *StrategyStore) Update(ctx context.Context, st domain.Strategy) error {
	params, err := json.Marshal(st.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal strategy params: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE strategies
		SET name = $1, description = $2, kind = $3, params = $4, status = $5, updated_at = NOW()
		WHERE id = $6`,
		st.Name, st.Description, st.Kind, params, string(st.Status), st.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update strategy %d: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a strategy definition.
func (s *StrategyStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete strategy %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// applyLimitOffset appends LIMIT/OFFSET clauses for the standard list
// options, continuing the positional argument numbering.
func applyLimitOffset(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
