package ai

import (
	"fmt"
	"strings"

	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
)

const analystSystemPrompt = `You are a quantitative trading analyst. Answer
concisely with concrete observations about the data you are given. Do not
give financial advice disclaimers.`

const advisorSystemPrompt = `You are a quantitative strategy advisor. Given a
strategy's backtest metrics, suggest specific, actionable parameter or logic
changes. Answer in short bullet points.`

// MarketAnalysisPrompt renders recent bars into a prompt asking for a
// market state summary. Only the last window bars are included to keep
// the prompt bounded.
func MarketAnalysisPrompt(symbol, timeframe string, bars []domain.Bar) (system, user string) {
	const window = 50
	if len(bars) > window {
		bars = bars[len(bars)-window:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the recent %s price action for %s.\n", timeframe, symbol)
	fmt.Fprintf(&b, "OHLCV bars, oldest first (time, open, high, low, close, volume):\n")
	for _, bar := range bars {
		fmt.Fprintf(&b, "%s %.8g %.8g %.8g %.8g %.8g\n",
			bar.Timestamp.Format("2006-01-02T15:04"),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	b.WriteString("\nSummarize the trend, volatility, and notable levels.")

	return analystSystemPrompt, b.String()
}

// StrategyAdvicePrompt renders a backtest result into a prompt asking
// for improvement suggestions.
func StrategyAdvicePrompt(strategyName string, params map[string]any, result backtest.Result) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategy %q was backtested with parameters %v.\n", strategyName, params)
	fmt.Fprintf(&b, "Results:\n")
	fmt.Fprintf(&b, "  initial capital: %.2f\n", result.InitialCapital)
	fmt.Fprintf(&b, "  final capital:   %.2f\n", result.FinalCapital)
	fmt.Fprintf(&b, "  total return:    %.4f\n", result.TotalReturn)
	fmt.Fprintf(&b, "  sharpe ratio:    %.4f\n", result.SharpeRatio)
	fmt.Fprintf(&b, "  max drawdown:    %.4f\n", result.MaxDrawdown)
	fmt.Fprintf(&b, "  total trades:    %d\n", result.TotalTrades)
	b.WriteString("\nSuggest concrete changes to improve risk-adjusted return.")

	return advisorSystemPrompt, b.String()
}
