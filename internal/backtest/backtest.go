// Package backtest implements a deterministic, single-asset, bar-driven
// market simulator. It replays an ordered feed of historical bars
// through a Strategy, simulates market-order execution against each
// bar's close with a proportional commission, tracks cash and position,
// and computes summary performance metrics over the resulting equity
// curve and trade log.
//
// A single run is strictly sequential: the Strategy callback and the
// fill step for a bar complete fully before the next bar is considered.
// The engine holds no shared state across runs; concurrent backtests
// need one Engine each and nothing more.
package backtest

import (
	"time"

	"github.com/quantflow/quantflow/internal/domain"
)

// Broker is the capability surface the engine exposes to a strategy
// while a bar callback is executing. Buy and Sell append a pending
// order to the engine-owned queue and return a read handle to it; the
// strategy never holds a mutable reference to the queue itself.
type Broker interface {
	// Buy places a buy order. price is a hint recorded on the order;
	// market orders fill at the current bar's close regardless.
	Buy(price, amount float64, orderType domain.OrderType) *Order
	// Sell places a sell order.
	Sell(price, amount float64, orderType domain.OrderType) *Order
	// Position returns the current holding.
	Position() Position
	// Capital returns the current free cash.
	Capital() float64
}

// Strategy receives each bar exactly once, in feed order, before that
// bar's fills and equity sample are processed. Implementations must
// confine side effects to Broker calls and must not look ahead.
type Strategy interface {
	Name() string
	OnBar(b Broker, bar domain.Bar)
}

// Order is an engine-owned order created by a Broker call. Only Status
// is mutated after creation.
type Order struct {
	ID        int              `json:"id"`
	Side      domain.OrderSide `json:"side"`
	Price     float64          `json:"price"` // requested price hint
	Amount    float64          `json:"amount"`
	Type      domain.OrderType   `json:"type"`
	Status    domain.OrderStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"` // timestamp of the bar that created it
}

// Trade is an immutable record of an executed fill.
type Trade struct {
	Timestamp  time.Time        `json:"timestamp"`
	Side       domain.OrderSide `json:"side"`
	Price      float64          `json:"price"`
	Amount     float64          `json:"amount"`
	Commission float64          `json:"commission"`
}

// Position is the single-instrument holding. EntryPrice is the price of
// the most recent opening fill (averaging-in is not modelled).
type Position struct {
	Amount     float64 `json:"amount"`
	EntryPrice float64 `json:"entry_price"`
}

// EquityPoint is the mark-to-market portfolio value at one bar's close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result bundles everything a completed run produced. Orders includes
// orders that never filled, still in pending status, for callers that
// want to inspect execution shortfalls.
type Result struct {
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	TotalReturn    float64       `json:"total_return"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	WinRate        float64       `json:"win_rate"`
	TotalTrades    int           `json:"total_trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Trades         []Trade       `json:"trades"`
	Orders         []Order       `json:"orders"`
}
