package domain

import "time"

// BacktestStatus tracks a stored backtest run.
type BacktestStatus string

const (
	BacktestStatusRunning  BacktestStatus = "running"
	BacktestStatusFinished BacktestStatus = "finished"
	BacktestStatusFailed   BacktestStatus = "failed"
)

// BacktestRecord is a persisted backtest run: the configuration it was
// started with, the summary metrics, and the full result payload
// (equity curve + trade log) as JSON.
type BacktestRecord struct {
	ID             string         `json:"id"`
	StrategyID     int64          `json:"strategy_id"`
	UserID         int64          `json:"user_id"`
	Exchange       string         `json:"exchange"`
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	InitialCapital float64        `json:"initial_capital"`
	CommissionRate float64        `json:"commission_rate"`
	FinalCapital   float64        `json:"final_capital"`
	TotalReturn    float64        `json:"total_return"`
	SharpeRatio    float64        `json:"sharpe_ratio"`
	MaxDrawdown    float64        `json:"max_drawdown"`
	WinRate        float64        `json:"win_rate"`
	TotalTrades    int            `json:"total_trades"`
	Status         BacktestStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	ResultJSON     []byte         `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}
