package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantflow/quantflow/internal/domain"
)

// klineWindowLen bounds how many recent bars are kept per instrument.
const klineWindowLen = 1000

// KlineCache implements domain.KlineCache using Redis lists. Bars are
// appended to a list at key "klines:{exchange}:{symbol}:{timeframe}" in
// ascending time order and the list is trimmed to the newest
// klineWindowLen entries.
type KlineCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewKlineCache creates a KlineCache backed by the given Client.
// Lists expire after ttl of inactivity; ttl <= 0 disables expiry.
func NewKlineCache(c *Client, ttl time.Duration) *KlineCache {
	return &KlineCache{rdb: c.Underlying(), ttl: ttl}
}

func klineKey(exchange, symbol, timeframe string) string {
	return "klines:" + exchange + ":" + symbol + ":" + timeframe
}

// Push appends bars to the instrument's window. Callers are expected
// to push bars in ascending time order, as the collector produces them.
func (kc *KlineCache) Push(ctx context.Context, exchange, symbol, timeframe string, klines []domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	key := klineKey(exchange, symbol, timeframe)

	vals := make([]interface{}, 0, len(klines))
	for _, k := range klines {
		data, err := json.Marshal(k)
		if err != nil {
			return fmt.Errorf("redis: marshal kline %s: %w", key, err)
		}
		vals = append(vals, data)
	}

	pipe := kc.rdb.Pipeline()
	pipe.RPush(ctx, key, vals...)
	pipe.LTrim(ctx, key, -klineWindowLen, -1)
	if kc.ttl > 0 {
		pipe.Expire(ctx, key, kc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push klines %s: %w", key, err)
	}
	return nil
}

// Recent returns up to limit of the newest cached bars in ascending
// time order. It returns domain.ErrNotFound when the window is empty.
func (kc *KlineCache) Recent(ctx context.Context, exchange, symbol, timeframe string, limit int) ([]domain.Kline, error) {
	key := klineKey(exchange, symbol, timeframe)
	if limit <= 0 || limit > klineWindowLen {
		limit = klineWindowLen
	}

	raw, err := kc.rdb.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent klines %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}

	out := make([]domain.Kline, 0, len(raw))
	for _, item := range raw {
		var k domain.Kline
		if err := json.Unmarshal([]byte(item), &k); err != nil {
			return nil, fmt.Errorf("redis: unmarshal kline %s: %w", key, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.KlineCache = (*KlineCache)(nil)
