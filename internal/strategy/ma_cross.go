package strategy

import (
	"fmt"

	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
)

const (
	defaultShortPeriod = 10
	defaultLongPeriod  = 30

	// capitalFraction is the share of free cash committed on entry.
	capitalFraction = 0.95
)

// MACross is a simple moving-average crossover strategy. It keeps a
// trailing window of the most recent long-period closes; once the
// window is full it compares the short- and long-period means. Short
// above long with no position held buys with 95% of current capital at
// the bar close (fractional sizing, no lot rounding); short below long
// with a position held sells the full holding. Exact equality is
// neither signal.
type MACross struct {
	shortPeriod int
	longPeriod  int
	closes      []float64
}

// NewMACross builds an MACross from a parameter map. Recognized keys:
//
//   - "short_period" (int): fast average window. Defaults to 10.
//   - "long_period" (int): slow average window and warm-up length.
//     Defaults to 30.
func NewMACross(params map[string]any) (*MACross, error) {
	short := intParam(params, "short_period", defaultShortPeriod)
	long := intParam(params, "long_period", defaultLongPeriod)

	if short < 1 || long < 1 {
		return nil, fmt.Errorf("strategy: ma_cross periods must be >= 1, got short=%d long=%d", short, long)
	}
	if short >= long {
		return nil, fmt.Errorf("strategy: ma_cross short_period %d must be < long_period %d", short, long)
	}

	return &MACross{
		shortPeriod: short,
		longPeriod:  long,
		closes:      make([]float64, 0, long),
	}, nil
}

// Name returns the strategy identifier.
func (s *MACross) Name() string { return "ma_cross" }

// OnBar records the close, and once warmed up, emits at most one order
// per bar based on the crossover state.
func (s *MACross) OnBar(b backtest.Broker, bar domain.Bar) {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.longPeriod {
		s.closes = s.closes[1:]
	}
	if len(s.closes) < s.longPeriod {
		return
	}

	shortMA := mean(s.closes[len(s.closes)-s.shortPeriod:])
	longMA := mean(s.closes)

	pos := b.Position()
	switch {
	case shortMA > longMA && pos.Amount == 0:
		amount := b.Capital() * capitalFraction / bar.Close
		b.Buy(bar.Close, amount, domain.OrderTypeMarket)

	case shortMA < longMA && pos.Amount > 0:
		b.Sell(bar.Close, pos.Amount, domain.OrderTypeMarket)
	}
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// intParam reads an integer parameter, tolerating the float64 values
// that JSON-decoded parameter maps produce.
func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
