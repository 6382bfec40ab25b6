package backtest

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
)

// scripted runs a callback at selected bar indexes.
type scripted struct {
	actions map[int]func(b Broker, bar domain.Bar)
	i       int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) OnBar(b Broker, bar domain.Bar) {
	if f, ok := s.actions[s.i]; ok {
		f(b, bar)
	}
	s.i++
}

func bars(closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return out
}

func newEngine(t *testing.T, strat Strategy, capital, commission float64) *Engine {
	t.Helper()
	e, err := New(Config{Strategy: strat, InitialCapital: capital, CommissionRate: commission})
	if err != nil {
		t.Fatalf("New returned unexpected error: %v", err)
	}
	return e
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"nil strategy", Config{InitialCapital: 1000}},
		{"zero capital", Config{Strategy: &scripted{}, InitialCapital: 0}},
		{"negative capital", Config{Strategy: &scripted{}, InitialCapital: -5}},
		{"negative commission", Config{Strategy: &scripted{}, InitialCapital: 1000, CommissionRate: -0.001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected configuration error, got nil")
			}
		})
	}
}

func TestRunEmptyFeed(t *testing.T) {
	e := newEngine(t, &scripted{}, 100000, DefaultCommissionRate)
	res := e.Run(nil)

	if res.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", res.TotalTrades)
	}
	if res.TotalReturn != 0 {
		t.Errorf("TotalReturn = %v, want 0", res.TotalReturn)
	}
	if len(res.EquityCurve) != 0 {
		t.Errorf("len(EquityCurve) = %d, want 0", len(res.EquityCurve))
	}
	if res.FinalCapital != 100000 {
		t.Errorf("FinalCapital = %v, want 100000", res.FinalCapital)
	}
}

func TestOneEquityPointPerBar(t *testing.T) {
	feed := bars(100, 101, 99, 102, 98)
	e := newEngine(t, &scripted{}, 100000, DefaultCommissionRate)
	res := e.Run(feed)

	if len(res.EquityCurve) != len(feed) {
		t.Fatalf("len(EquityCurve) = %d, want %d", len(res.EquityCurve), len(feed))
	}
	for i, p := range res.EquityCurve {
		if !p.Timestamp.Equal(feed[i].Timestamp) {
			t.Errorf("equity point %d timestamp = %v, want %v", i, p.Timestamp, feed[i].Timestamp)
		}
	}
}

func TestSingleBarBuyScenario(t *testing.T) {
	// 100000 capital, 0.001 commission, one bar at 50000, buy of
	// amount 1. Cash and equity carry float rounding from the
	// commission multiply, so compare within a tolerance.
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 1, domain.OrderTypeMarket) },
	}}
	e := newEngine(t, strat, 100000, 0.001)
	res := e.Run(bars(50000))

	if got, want := e.Capital(), 49950.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("cash after = %v, want %v", got, want)
	}
	if got := e.Position().Amount; got != 1 {
		t.Errorf("position amount = %v, want 1", got)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Side != domain.OrderSideBuy || tr.Price != 50000 || tr.Amount != 1 {
		t.Errorf("trade = %+v, want buy 1 @ 50000", tr)
	}
	if math.Abs(tr.Commission-50) > 1e-9 {
		t.Errorf("commission = %v, want 50", tr.Commission)
	}
	if got, want := res.EquityCurve[0].Equity, 99950.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("equity[0] = %v, want %v", got, want)
	}
}

func TestNoActionFlatEquity(t *testing.T) {
	e := newEngine(t, &scripted{}, 100000, 0.001)
	res := e.Run(bars(100, 110))

	for i, p := range res.EquityCurve {
		if p.Equity != 100000 {
			t.Errorf("equity[%d] = %v, want 100000 (no position held)", i, p.Equity)
		}
	}
	if res.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", res.TotalTrades)
	}
	// Zero-variance return path must yield a defined Sharpe of 0.
	if res.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0", res.SharpeRatio)
	}
}

func TestBuyExceedingCashStaysPending(t *testing.T) {
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 100, domain.OrderTypeMarket) },
	}}
	e := newEngine(t, strat, 1000, 0.001)
	res := e.Run(bars(100, 100, 100))

	if len(res.Trades) != 0 {
		t.Fatalf("len(Trades) = %d, want 0", len(res.Trades))
	}
	if len(res.Orders) != 1 {
		t.Fatalf("len(Orders) = %d, want 1", len(res.Orders))
	}
	if res.Orders[0].Status != domain.OrderStatusPending {
		t.Errorf("order status = %q, want pending", res.Orders[0].Status)
	}
	if e.Capital() != 1000 {
		t.Errorf("cash = %v, want untouched 1000", e.Capital())
	}
}

func TestSellWithoutHoldingStaysPending(t *testing.T) {
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Sell(bar.Close, 2, domain.OrderTypeMarket) },
	}}
	e := newEngine(t, strat, 1000, 0.001)
	res := e.Run(bars(100))

	if len(res.Trades) != 0 {
		t.Fatalf("len(Trades) = %d, want 0", len(res.Trades))
	}
	if res.Orders[0].Status != domain.OrderStatusPending {
		t.Errorf("order status = %q, want pending", res.Orders[0].Status)
	}
}

func TestLimitOrderNeverFills(t *testing.T) {
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Buy(90, 1, domain.OrderTypeLimit) },
	}}
	e := newEngine(t, strat, 100000, 0.001)
	res := e.Run(bars(100, 80, 70))

	if len(res.Trades) != 0 {
		t.Fatalf("limit order filled, want it to stay pending forever")
	}
	if res.Orders[0].Status != domain.OrderStatusPending {
		t.Errorf("order status = %q, want pending", res.Orders[0].Status)
	}
}

func TestFIFOWhenCashBinding(t *testing.T) {
	// Two buys in one bar; cash covers only the first.
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) {
			b.Buy(bar.Close, 8, domain.OrderTypeMarket)
			b.Buy(bar.Close, 8, domain.OrderTypeMarket)
		},
	}}
	e := newEngine(t, strat, 1000, 0)
	res := e.Run(bars(100))

	if len(res.Trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(res.Trades))
	}
	if res.Orders[0].Status != domain.OrderStatusFilled {
		t.Errorf("first order status = %q, want filled", res.Orders[0].Status)
	}
	if res.Orders[1].Status != domain.OrderStatusPending {
		t.Errorf("second order status = %q, want pending", res.Orders[1].Status)
	}
}

func TestCashConservationPerTrade(t *testing.T) {
	const commission = 0.002
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 3, domain.OrderTypeMarket) },
		2: func(b Broker, bar domain.Bar) { b.Sell(bar.Close, 3, domain.OrderTypeMarket) },
	}}
	e := newEngine(t, strat, 10000, commission)
	res := e.Run(bars(100, 105, 110))

	cash := 10000.0
	for _, tr := range res.Trades {
		switch tr.Side {
		case domain.OrderSideBuy:
			cash -= tr.Price * tr.Amount * (1 + commission)
		case domain.OrderSideSell:
			cash += tr.Price * tr.Amount * (1 - commission)
		}
	}
	if got := e.Capital(); got != cash {
		t.Errorf("cash = %v, replayed trades give %v", got, cash)
	}
}

func TestDeterministicReplay(t *testing.T) {
	feed := bars(100, 102, 101, 99, 104, 108, 103, 97, 99, 105)
	run := func() Result {
		strat := &scripted{actions: map[int]func(Broker, domain.Bar){
			1: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 5, domain.OrderTypeMarket) },
			6: func(b Broker, bar domain.Bar) { b.Sell(bar.Close, 5, domain.OrderTypeMarket) },
		}}
		e := newEngine(t, strat, 100000, 0.001)
		return e.Run(feed)
	}

	a, b := run(), run()
	if !reflect.DeepEqual(a.EquityCurve, b.EquityCurve) {
		t.Error("equity curves differ between identical runs")
	}
	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Error("trade logs differ between identical runs")
	}
	if !reflect.DeepEqual(a.Orders, b.Orders) {
		t.Error("order lists differ between identical runs")
	}
}

func TestEntryPriceOverwrittenPerFill(t *testing.T) {
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 1, domain.OrderTypeMarket) },
		1: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 1, domain.OrderTypeMarket) },
	}}
	e := newEngine(t, strat, 100000, 0)
	e.Run(bars(100, 120))

	pos := e.Position()
	if pos.Amount != 2 {
		t.Fatalf("position amount = %v, want 2", pos.Amount)
	}
	if pos.EntryPrice != 120 {
		t.Errorf("entry price = %v, want 120 (latest fill, no averaging-in)", pos.EntryPrice)
	}
}

func TestEquityTracksOpenPosition(t *testing.T) {
	strat := &scripted{actions: map[int]func(Broker, domain.Bar){
		0: func(b Broker, bar domain.Bar) { b.Buy(bar.Close, 10, domain.OrderTypeMarket) },
	}}
	e := newEngine(t, strat, 10000, 0)
	res := e.Run(bars(100, 110, 90))

	want := []float64{10000, 10100, 9900}
	for i, w := range want {
		if got := res.EquityCurve[i].Equity; math.Abs(got-w) > 1e-9 {
			t.Errorf("equity[%d] = %v, want %v", i, got, w)
		}
	}
}
