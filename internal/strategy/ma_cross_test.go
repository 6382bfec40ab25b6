package strategy

import (
	"testing"
	"time"

	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
)

// recordingBroker captures Broker calls without simulating fills.
type recordingBroker struct {
	pos     backtest.Position
	capital float64
	buys    []backtest.Order
	sells   []backtest.Order
}

func (r *recordingBroker) Buy(price, amount float64, typ domain.OrderType) *backtest.Order {
	o := backtest.Order{Side: domain.OrderSideBuy, Price: price, Amount: amount, Type: typ}
	r.buys = append(r.buys, o)
	return &o
}

func (r *recordingBroker) Sell(price, amount float64, typ domain.OrderType) *backtest.Order {
	o := backtest.Order{Side: domain.OrderSideSell, Price: price, Amount: amount, Type: typ}
	r.sells = append(r.sells, o)
	return &o
}

func (r *recordingBroker) Position() backtest.Position { return r.pos }
func (r *recordingBroker) Capital() float64            { return r.capital }

func feedBars(s backtest.Strategy, b backtest.Broker, closes []float64) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.OnBar(b, domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
		})
	}
}

func TestNewMACrossDefaults(t *testing.T) {
	s, err := NewMACross(nil)
	if err != nil {
		t.Fatalf("NewMACross(nil) error: %v", err)
	}
	if s.shortPeriod != 10 || s.longPeriod != 30 {
		t.Errorf("defaults = %d/%d, want 10/30", s.shortPeriod, s.longPeriod)
	}
}

func TestNewMACrossParams(t *testing.T) {
	// JSON-decoded params arrive as float64.
	s, err := NewMACross(map[string]any{"short_period": float64(3), "long_period": float64(5)})
	if err != nil {
		t.Fatalf("NewMACross error: %v", err)
	}
	if s.shortPeriod != 3 || s.longPeriod != 5 {
		t.Errorf("periods = %d/%d, want 3/5", s.shortPeriod, s.longPeriod)
	}

	if _, err := NewMACross(map[string]any{"short_period": 30, "long_period": 10}); err == nil {
		t.Error("expected error for short >= long")
	}
	if _, err := NewMACross(map[string]any{"short_period": 0}); err == nil {
		t.Error("expected error for period < 1")
	}
}

func TestMACrossWarmup(t *testing.T) {
	s, _ := NewMACross(map[string]any{"short_period": 2, "long_period": 4})
	b := &recordingBroker{capital: 10000}

	// Only 3 bars: window never reaches long_period, no signals.
	feedBars(s, b, []float64{100, 110, 120})

	if len(b.buys) != 0 || len(b.sells) != 0 {
		t.Fatalf("orders emitted during warm-up: %d buys, %d sells", len(b.buys), len(b.sells))
	}
}

func TestMACrossGoldenCrossBuys(t *testing.T) {
	s, _ := NewMACross(map[string]any{"short_period": 2, "long_period": 4})
	b := &recordingBroker{capital: 10000}

	// Rising closes: short mean > long mean once warmed up.
	feedBars(s, b, []float64{100, 102, 104, 106})

	if len(b.buys) != 1 {
		t.Fatalf("len(buys) = %d, want 1", len(b.buys))
	}
	buy := b.buys[0]
	if buy.Type != domain.OrderTypeMarket {
		t.Errorf("order type = %q, want market", buy.Type)
	}
	// 95% of capital at the close, fractional sizing.
	want := 10000 * 0.95 / 106
	if buy.Amount != want {
		t.Errorf("buy amount = %v, want %v", buy.Amount, want)
	}
	if buy.Price != 106 {
		t.Errorf("buy price hint = %v, want 106", buy.Price)
	}
}

func TestMACrossNoRebuyWhileHolding(t *testing.T) {
	s, _ := NewMACross(map[string]any{"short_period": 2, "long_period": 4})
	b := &recordingBroker{capital: 10000, pos: backtest.Position{Amount: 5, EntryPrice: 100}}

	feedBars(s, b, []float64{100, 102, 104, 106})

	if len(b.buys) != 0 {
		t.Errorf("len(buys) = %d, want 0 while a position is held", len(b.buys))
	}
}

func TestMACrossDeathCrossSellsFullPosition(t *testing.T) {
	s, _ := NewMACross(map[string]any{"short_period": 2, "long_period": 4})
	b := &recordingBroker{capital: 500, pos: backtest.Position{Amount: 7, EntryPrice: 110}}

	// Falling closes: short mean < long mean.
	feedBars(s, b, []float64{110, 108, 106, 104})

	if len(b.sells) != 1 {
		t.Fatalf("len(sells) = %d, want 1", len(b.sells))
	}
	if b.sells[0].Amount != 7 {
		t.Errorf("sell amount = %v, want full held 7", b.sells[0].Amount)
	}
}

func TestMACrossEqualMeansNoAction(t *testing.T) {
	s, _ := NewMACross(map[string]any{"short_period": 2, "long_period": 4})
	b := &recordingBroker{capital: 10000}

	// Constant closes: short mean == long mean exactly.
	feedBars(s, b, []float64{100, 100, 100, 100, 100, 100})

	if len(b.buys) != 0 || len(b.sells) != 0 {
		t.Errorf("equality case emitted orders: %d buys, %d sells", len(b.buys), len(b.sells))
	}
}

func TestMACrossWindowBounded(t *testing.T) {
	s, _ := NewMACross(map[string]any{"short_period": 2, "long_period": 4})
	b := &recordingBroker{capital: 10000}

	feedBars(s, b, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	if len(s.closes) != 4 {
		t.Errorf("len(closes) = %d, want bounded at long_period 4", len(s.closes))
	}
}

func TestBaseStrategyIsNoOp(t *testing.T) {
	b := &recordingBroker{capital: 1000}
	s := NewBase("")

	feedBars(s, b, []float64{100, 200, 300})

	if s.Name() != "base" {
		t.Errorf("Name = %q, want base", s.Name())
	}
	if len(b.buys) != 0 || len(b.sells) != 0 {
		t.Error("base strategy emitted orders")
	}
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	kinds := r.List()
	if len(kinds) != 2 || kinds[0] != "base" || kinds[1] != "ma_cross" {
		t.Fatalf("List() = %v, want [base ma_cross]", kinds)
	}

	s, err := r.New("ma_cross", map[string]any{"short_period": 5, "long_period": 20})
	if err != nil {
		t.Fatalf("New(ma_cross) error: %v", err)
	}
	if s.Name() != "ma_cross" {
		t.Errorf("Name = %q, want ma_cross", s.Name())
	}

	if _, err := r.New("nope", nil); err == nil {
		t.Error("expected error for unregistered kind")
	}
}
