package domain

import (
	"context"
	"time"
)

// PriceCache stores the latest observed price per instrument.
type PriceCache interface {
	SetPrice(ctx context.Context, exchange, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, exchange, symbol string) (float64, time.Time, error)
}

// KlineCache stores a bounded window of recent bars per instrument so
// hot chart queries avoid hitting Postgres.
type KlineCache interface {
	Push(ctx context.Context, exchange, symbol, timeframe string, klines []Kline) error
	Recent(ctx context.Context, exchange, symbol, timeframe string, limit int) ([]Kline, error)
}

// RateLimiter enforces a sliding-window request budget per key.
type RateLimiter interface {
	// Allow reports whether another event fits inside the window and
	// records it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion so background jobs
// do not run concurrently across instances.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns
	// an unlock function. It returns ErrLockHeld when another holder
	// has the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// EventBus fans application events out to all running instances.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads published to the given
	// channel. It is closed when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
