package backtest

import (
	"math"

	"github.com/quantflow/quantflow/internal/domain"
)

// annualization is the square root of the assumed 252 trading days per
// year, applied to the Sharpe ratio.
var annualization = math.Sqrt(252)

// computeMetrics derives the summary statistics from a completed equity
// curve and trade log. A run with no bars yields neutral zero values
// rather than NaN or a fault.
func computeMetrics(initialCapital float64, equity []EquityPoint, trades []Trade) Result {
	res := Result{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		EquityCurve:    equity,
		Trades:         trades,
		TotalTrades:    len(trades),
	}
	if equity == nil {
		res.EquityCurve = []EquityPoint{}
	}
	if trades == nil {
		res.Trades = []Trade{}
	}

	if len(equity) > 0 {
		final := equity[len(equity)-1].Equity
		res.FinalCapital = final
		res.TotalReturn = (final - initialCapital) / initialCapital
	}

	res.SharpeRatio = sharpeRatio(equity)
	res.MaxDrawdown = maxDrawdown(equity)
	res.WinRate = winRate(trades)
	return res
}

// sharpeRatio is mean per-bar return over its sample standard
// deviation, annualized. The first equity point has no return and is
// excluded. Zero variance is defined as a Sharpe of 0.
func sharpeRatio(equity []EquityPoint) float64 {
	returns := stepReturns(equity)
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	if len(returns) < 2 {
		return 0
	}
	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * annualization
}

// stepReturns is the simple percentage change between consecutive
// equity points.
func stepReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	return returns
}

// maxDrawdown is the most negative percentage decline of equity from
// its running peak; 0 when equity never dips below a prior peak.
func maxDrawdown(equity []EquityPoint) float64 {
	var peak, worst float64
	for i, p := range equity {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		dd := (p.Equity - peak) / peak
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// winRate reproduces the reference engine's placeholder: 0.5 whenever
// the trade log contains at least one sell, otherwise 0. A true
// per-round-trip win/loss calculation is intentionally not performed.
func winRate(trades []Trade) float64 {
	for _, t := range trades {
		if t.Side == domain.OrderSideSell {
			return 0.5
		}
	}
	return 0
}
