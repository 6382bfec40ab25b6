package backtest

import (
	"fmt"
	"log/slog"

	"github.com/quantflow/quantflow/internal/domain"
)

// DefaultCommissionRate is the proportional transaction cost applied
// symmetrically to buy and sell fills when the caller does not set one.
const DefaultCommissionRate = 0.001

// Config holds the run parameters for one backtest.
type Config struct {
	Strategy       Strategy
	InitialCapital float64
	// CommissionRate is proportional (0.001 = 10 bps). Zero is a valid
	// rate; use DefaultCommissionRate to get the standard one.
	CommissionRate float64
	Logger         *slog.Logger
}

// Engine executes one backtest run. An Engine is single-use: construct,
// Run once, read the Result. It is not safe for concurrent use, but
// independent engines may run in parallel.
type Engine struct {
	strategy   Strategy
	initial    float64
	commission float64
	logger     *slog.Logger

	cash     float64
	position Position
	orders   []*Order
	trades   []Trade
	equity   []EquityPoint

	currentBar domain.Bar
	done       bool
}

// New validates cfg and returns a ready Engine. Configuration errors
// fail here, before any bar is processed.
func New(cfg Config) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("backtest: strategy must not be nil")
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("backtest: initial capital must be > 0, got %v", cfg.InitialCapital)
	}
	if cfg.CommissionRate < 0 {
		return nil, fmt.Errorf("backtest: commission rate must be >= 0, got %v", cfg.CommissionRate)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		strategy:   cfg.Strategy,
		initial:    cfg.InitialCapital,
		commission: cfg.CommissionRate,
		logger:     logger.With(slog.String("component", "backtest")),
		cash:       cfg.InitialCapital,
	}, nil
}

// Run replays the bar feed through the strategy and returns the
// completed result. Bars are consumed in slice order; the feed is
// assumed to be time-ordered ascending and is not validated. An empty
// feed completes normally with an empty equity curve and zero metrics.
func (e *Engine) Run(bars []domain.Bar) Result {
	if e.done {
		// A second Run on the same engine would corrupt the frozen
		// result; return it unchanged instead.
		return e.buildResult()
	}

	for _, bar := range bars {
		e.currentBar = bar

		e.strategy.OnBar(e, bar)
		e.processOrders(bar)

		e.equity = append(e.equity, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    e.cash + e.position.Amount*bar.Close,
		})
	}

	e.done = true
	res := e.buildResult()

	e.logger.Info("backtest finished",
		slog.String("strategy", e.strategy.Name()),
		slog.Int("bars", len(bars)),
		slog.Int("trades", res.TotalTrades),
		slog.Float64("total_return", res.TotalReturn),
	)
	return res
}

// processOrders scans the order queue in insertion order and fills
// every pending market order the portfolio can afford. There is no
// error path: a buy the cash cannot cover, or a sell exceeding the
// held amount, simply stays pending.
func (e *Engine) processOrders(bar domain.Bar) {
	for _, order := range e.orders {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		// Limit orders are queued but never matched. Known limitation.
		if order.Type != domain.OrderTypeMarket {
			continue
		}

		price := bar.Close
		amount := order.Amount

		switch order.Side {
		case domain.OrderSideBuy:
			cost := price * amount * (1 + e.commission)
			if e.cash < cost {
				continue
			}
			e.cash -= cost
			e.position.Amount += amount
			e.position.EntryPrice = price
			e.recordFill(bar, order, price, amount)

		case domain.OrderSideSell:
			if e.position.Amount < amount {
				continue
			}
			e.cash += price * amount * (1 - e.commission)
			e.position.Amount -= amount
			e.recordFill(bar, order, price, amount)
		}
	}
}

func (e *Engine) recordFill(bar domain.Bar, order *Order, price, amount float64) {
	e.trades = append(e.trades, Trade{
		Timestamp:  bar.Timestamp,
		Side:       order.Side,
		Price:      price,
		Amount:     amount,
		Commission: price * amount * e.commission,
	})
	order.Status = domain.OrderStatusFilled
}

// Buy implements Broker. The order is owned by the engine; the returned
// handle is for status inspection only.
func (e *Engine) Buy(price, amount float64, orderType domain.OrderType) *Order {
	return e.appendOrder(domain.OrderSideBuy, price, amount, orderType)
}

// Sell implements Broker.
func (e *Engine) Sell(price, amount float64, orderType domain.OrderType) *Order {
	return e.appendOrder(domain.OrderSideSell, price, amount, orderType)
}

func (e *Engine) appendOrder(side domain.OrderSide, price, amount float64, orderType domain.OrderType) *Order {
	order := &Order{
		ID:     len(e.orders) + 1,
		Side:   side,
		Price:  price,
		Amount: amount,
		Type:   orderType,
		Status: domain.OrderStatusPending,
		// Bar time, not wall clock, so identical inputs produce
		// identical results.
		CreatedAt: e.currentBar.Timestamp,
	}
	e.orders = append(e.orders, order)
	return order
}

// Position implements Broker.
func (e *Engine) Position() Position { return e.position }

// Capital implements Broker.
func (e *Engine) Capital() float64 { return e.cash }

func (e *Engine) buildResult() Result {
	orders := make([]Order, len(e.orders))
	for i, o := range e.orders {
		orders[i] = *o
	}
	res := computeMetrics(e.initial, e.equity, e.trades)
	res.Orders = orders
	return res
}
