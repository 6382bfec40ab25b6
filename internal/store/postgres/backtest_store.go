package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantflow/quantflow/internal/domain"
)

// BacktestStore implements domain.BacktestStore using PostgreSQL.
type BacktestStore struct {
	pool *pgxpool.Pool
}

// NewBacktestStore creates a new BacktestStore backed by the given pool.
func NewBacktestStore(pool *pgxpool.Pool) *BacktestStore {
	return &BacktestStore{pool: pool}
}

const backtestSelectCols = `id, strategy_id, user_id, exchange, symbol, timeframe,
	start_date, end_date, initial_capital, commission_rate,
	final_capital, total_return, sharpe_ratio, max_drawdown, win_rate,
	total_trades, status, error, result, created_at`

// Create inserts a backtest row in running status, before the engine
// starts.
func (s *BacktestStore) Create(ctx context.Context, b domain.BacktestRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backtests (
			id, strategy_id, user_id, exchange, symbol, timeframe,
			start_date, end_date, initial_capital, commission_rate, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.StrategyID, b.UserID, b.Exchange, b.Symbol, b.Timeframe,
		b.StartDate, b.EndDate, b.InitialCapital, b.CommissionRate,
		string(domain.BacktestStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("postgres: create backtest %s: %w", b.ID, err)
	}
	return nil
}

// Finish records the terminal state of a run: summary metrics and the
// full result payload on success, or the failure reason.
func (s *BacktestStore) Finish(ctx context.Context, b domain.BacktestRecord) error {
	var result any
	if len(b.ResultJSON) > 0 {
		result = b.ResultJSON
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE backtests
		SET final_capital = $1, total_return = $2, sharpe_ratio = $3,
		    max_drawdown = $4, win_rate = $5, total_trades = $6,
		    status = $7, error = $8, result = $9
		WHERE id = $10`,
		b.FinalCapital, b.TotalReturn, b.SharpeRatio,
		b.MaxDrawdown, b.WinRate, b.TotalTrades,
		string(b.Status), b.Error, result, b.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish backtest %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBacktest(scanner interface{ Scan(dest ...any) error }) (domain.BacktestRecord, error) {
	var b domain.BacktestRecord
	var status string
	var result []byte

	err := scanner.Scan(&b.ID, &b.StrategyID, &b.UserID, &b.Exchange, &b.Symbol,
		&b.Timeframe, &b.StartDate, &b.EndDate, &b.InitialCapital,
		&b.CommissionRate, &b.FinalCapital, &b.TotalReturn, &b.SharpeRatio,
		&b.MaxDrawdown, &b.WinRate, &b.TotalTrades, &status, &b.Error,
		&result, &b.CreatedAt)
	if err != nil {
		return domain.BacktestRecord{}, err
	}
	b.Status = domain.BacktestStatus(status)
	b.ResultJSON = result
	return b, nil
}

// GetByID retrieves a single backtest including its result payload.
func (s *BacktestStore) GetByID(ctx context.Context, id string) (domain.BacktestRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+backtestSelectCols+` FROM backtests WHERE id = $1`, id)
	b, err := scanBacktest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BacktestRecord{}, domain.ErrNotFound
		}
		return domain.BacktestRecord{}, fmt.Errorf("postgres: get backtest %s: %w", id, err)
	}
	return b, nil
}

func (s *BacktestStore) list(ctx context.Context, where string, id int64, opts domain.ListOpts) ([]domain.BacktestRecord, error) {
	query := `SELECT ` + backtestSelectCols + ` FROM backtests
		WHERE ` + where + ` = $1 ORDER BY created_at DESC`
	args := []any{id}
	query, args = applyLimitOffset(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list backtests: %w", err)
	}
	defer rows.Close()

	var out []domain.BacktestRecord
	for rows.Next() {
		b, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan backtest: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListByStrategy returns backtests for a strategy, newest first.
func (s *BacktestStore) ListByStrategy(ctx context.Context, strategyID int64, opts domain.ListOpts) ([]domain.BacktestRecord, error) {
	return s.list(ctx, "strategy_id", strategyID, opts)
}

// ListByUser returns backtests for a user, newest first.
func (s *BacktestStore) ListByUser(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.BacktestRecord, error) {
	return s.list(ctx, "user_id", userID, opts)
}
