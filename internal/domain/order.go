package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects the execution model. The backtest engine only ever
// executes market orders; limit orders are accepted into the queue but
// never leave pending status.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a persisted user order.
type Order struct {
	ID          string      `json:"id"`
	UserID      int64       `json:"user_id"`
	Exchange    string      `json:"exchange"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Price       float64     `json:"price"`
	Amount      float64     `json:"amount"`
	FilledPrice float64     `json:"filled_price"`
	Status      OrderStatus `json:"status"`
	StrategyID  *int64      `json:"strategy_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	FilledAt    *time.Time  `json:"filled_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}
