package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantflow/quantflow/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, order_id, exchange, symbol, side, price, amount, commission, ts`

// Insert records a single fill.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (user_id, order_id, exchange, symbol, side, price, amount, commission, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.UserID, t.OrderID, t.Exchange, t.Symbol, string(t.Side),
		t.Price, t.Amount, t.Commission, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade for order %s: %w", t.OrderID, err)
	}
	return nil
}

// InsertBatch records multiple fills in a single round trip.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (user_id, order_id, exchange, symbol, side, price, amount, commission, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.UserID, t.OrderID, t.Exchange, t.Symbol, string(t.Side),
			t.Price, t.Amount, t.Commission, t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch: %w", err)
		}
	}
	return nil
}

func (s *TradeStore) queryTrades(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Exchange, &t.Symbol,
			&side, &t.Price, &t.Amount, &t.Commission, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByUser returns a user's fills, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		WHERE user_id = $1 ORDER BY ts DESC`
	args := []any{userID}
	query, args = applyLimitOffset(query, args, opts)
	return s.queryTrades(ctx, query, args...)
}

// ListByOrder returns the fills recorded against one order.
func (s *TradeStore) ListByOrder(ctx context.Context, orderID string) ([]domain.Trade, error) {
	return s.queryTrades(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE order_id = $1 ORDER BY ts`, orderID)
}
