package domain

import "time"

// Bar is a single OHLCV sample for a fixed time interval. Bars are
// immutable once constructed; a bar feed is assumed to be time-ordered
// ascending and the backtest engine does not re-sort or validate it.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Kline is a persisted bar row: a Bar tagged with its instrument and
// sampling interval so it can be stored, queried, and archived.
type Kline struct {
	ID        int64     `json:"id"`
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"` // "1m", "5m", "1h", "1d", ...
	Bar
	CreatedAt time.Time `json:"created_at"`
}

// Ticker is a latest-price snapshot for an instrument.
type Ticker struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
