package domain

import "time"

// Trade is a persisted fill record for a user order.
type Trade struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	OrderID    string    `json:"order_id"`
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Commission float64   `json:"commission"`
	Timestamp  time.Time `json:"timestamp"`
}
