package domain

import "time"

// StrategyStatus tracks whether a stored strategy is eligible to run.
type StrategyStatus string

const (
	StrategyStatusInactive StrategyStatus = "inactive"
	StrategyStatusActive   StrategyStatus = "active"
	StrategyStatusPaused   StrategyStatus = "paused"
)

// Strategy is a persisted strategy definition. Kind names a registered
// strategy implementation (e.g. "ma_cross"); Params configures it.
type Strategy struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Kind        string         `json:"kind"`
	Params      map[string]any `json:"params"`
	Status      StrategyStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
