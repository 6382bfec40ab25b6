package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Update(ctx context.Context, u User) error
}

// StrategyStore persists strategy definitions.
type StrategyStore interface {
	Create(ctx context.Context, s Strategy) (Strategy, error)
	GetByID(ctx context.Context, id int64) (Strategy, error)
	ListByUser(ctx context.Context, userID int64, opts ListOpts) ([]Strategy, error)
	Update(ctx context.Context, s Strategy) error
	Delete(ctx context.Context, id int64) error
}

// BacktestStore persists backtest runs and their results.
type BacktestStore interface {
	Create(ctx context.Context, b BacktestRecord) error
	Finish(ctx context.Context, b BacktestRecord) error
	GetByID(ctx context.Context, id string) (BacktestRecord, error)
	ListByStrategy(ctx context.Context, strategyID int64, opts ListOpts) ([]BacktestRecord, error)
	ListByUser(ctx context.Context, userID int64, opts ListOpts) ([]BacktestRecord, error)
}

// OrderStore persists user orders.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID int64, opts ListOpts) ([]Order, error)
	ListOpenByUser(ctx context.Context, userID int64) ([]Order, error)
}

// TradeStore persists trade fills.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByUser(ctx context.Context, userID int64, opts ListOpts) ([]Trade, error)
	ListByOrder(ctx context.Context, orderID string) ([]Trade, error)
}

// KlineStore persists historical bars.
type KlineStore interface {
	UpsertBatch(ctx context.Context, klines []Kline) error
	Range(ctx context.Context, exchange, symbol, timeframe string, from, to time.Time) ([]Kline, error)
	Latest(ctx context.Context, exchange, symbol, timeframe string, limit int) ([]Kline, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	OldestBefore(ctx context.Context, cutoff time.Time, limit int) ([]Kline, error)
}
