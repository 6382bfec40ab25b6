package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantflow/quantflow/internal/domain"
)

// KlineStore implements domain.KlineStore using PostgreSQL.
type KlineStore struct {
	pool *pgxpool.Pool
}

// NewKlineStore creates a new KlineStore backed by the given pool.
func NewKlineStore(pool *pgxpool.Pool) *KlineStore {
	return &KlineStore{pool: pool}
}

const klineSelectCols = `id, exchange, symbol, timeframe, ts, open, high, low, close, volume, created_at`

// UpsertBatch inserts bars, overwriting any existing row for the same
// (exchange, symbol, timeframe, ts). Collectors re-fetch the most recent
// bar on every tick, so the last write for an interval wins.
func (s *KlineStore) UpsertBatch(ctx context.Context, klines []domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, k := range klines {
		batch.Queue(`
			INSERT INTO klines (exchange, symbol, timeframe, ts, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (exchange, symbol, timeframe, ts) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume`,
			k.Exchange, k.Symbol, k.Timeframe, k.Timestamp,
			k.Open, k.High, k.Low, k.Close, k.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range klines {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert klines: %w", err)
		}
	}
	return nil
}

func (s *KlineStore) queryKlines(ctx context.Context, query string, args ...any) ([]domain.Kline, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query klines: %w", err)
	}
	defer rows.Close()

	var out []domain.Kline
	for rows.Next() {
		var k domain.Kline
		if err := rows.Scan(&k.ID, &k.Exchange, &k.Symbol, &k.Timeframe, &k.Timestamp,
			&k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan kline: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Range returns bars within [from, to] in ascending time order, the
// order the backtest engine consumes them in.
func (s *KlineStore) Range(ctx context.Context, exchange, symbol, timeframe string, from, to time.Time) ([]domain.Kline, error) {
	return s.queryKlines(ctx, `
		SELECT `+klineSelectCols+` FROM klines
		WHERE exchange = $1 AND symbol = $2 AND timeframe = $3 AND ts >= $4 AND ts <= $5
		ORDER BY ts`,
		exchange, symbol, timeframe, from, to)
}

// Latest returns the most recent bars in ascending time order.
func (s *KlineStore) Latest(ctx context.Context, exchange, symbol, timeframe string, limit int) ([]domain.Kline, error) {
	klines, err := s.queryKlines(ctx, `
		SELECT `+klineSelectCols+` FROM klines
		WHERE exchange = $1 AND symbol = $2 AND timeframe = $3
		ORDER BY ts DESC LIMIT $4`,
		exchange, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
	return klines, nil
}

// DeleteBefore removes bars older than cutoff and reports how many
// rows were deleted. The archiver calls this after exporting them.
func (s *KlineStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM klines WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete klines before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// OldestBefore returns up to limit of the oldest bars before cutoff.
func (s *KlineStore) OldestBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Kline, error) {
	return s.queryKlines(ctx, `
		SELECT `+klineSelectCols+` FROM klines
		WHERE ts < $1
		ORDER BY ts LIMIT $2`,
		cutoff, limit)
}
