package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
)

func makeBars(n int) []domain.Bar {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Bar, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: 10,
		}
	}
	return out
}

func TestMarketAnalysisPromptBoundsWindow(t *testing.T) {
	system, user := MarketAnalysisPrompt("BTCUSDT", "1h", makeBars(200))

	if system == "" {
		t.Fatal("empty system prompt")
	}
	if !strings.Contains(user, "BTCUSDT") || !strings.Contains(user, "1h") {
		t.Fatalf("prompt missing symbol or timeframe:\n%s", user)
	}

	// Only the most recent 50 bars may appear. The oldest included bar
	// closes at 100+150=250; bar 0 (close 100) must be dropped.
	if strings.Contains(user, "2025-01-01T00:00") {
		t.Fatal("prompt includes bars outside the window")
	}
	lines := strings.Count(user, "\n")
	if lines > 60 {
		t.Fatalf("prompt has %d lines, window not applied", lines)
	}
}

func TestMarketAnalysisPromptShortHistory(t *testing.T) {
	_, user := MarketAnalysisPrompt("ETHUSDT", "1d", makeBars(3))
	if !strings.Contains(user, "2025-01-01T00:00") {
		t.Fatal("short history should include the first bar")
	}
}

func TestStrategyAdvicePrompt(t *testing.T) {
	result := backtest.Result{
		InitialCapital: 100000,
		FinalCapital:   112000,
		TotalReturn:    0.12,
		SharpeRatio:    1.5,
		MaxDrawdown:    -0.08,
		TotalTrades:    24,
	}
	system, user := StrategyAdvicePrompt("ma_cross", map[string]any{"short_period": 10}, result)

	if system == "" {
		t.Fatal("empty system prompt")
	}
	for _, want := range []string{"ma_cross", "short_period", "112000.00", "0.1200", "1.5000", "24"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q:\n%s", want, user)
		}
	}
}
