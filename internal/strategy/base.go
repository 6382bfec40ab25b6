// Package strategy provides backtest.Strategy implementations and a
// registry that builds fresh instances from a stored strategy kind and
// parameter map. Strategies are stateful across bars within one run and
// must never be shared between concurrent runs.
package strategy

import (
	"github.com/quantflow/quantflow/internal/backtest"
	"github.com/quantflow/quantflow/internal/domain"
)

// Base is the no-op template strategy. It emits no orders and exists so
// concrete strategies can embed it and override only OnBar, and so runs
// can be exercised with a strategy that does nothing.
type Base struct {
	name string
}

// NewBase returns a no-op strategy with the given name.
func NewBase(name string) *Base {
	if name == "" {
		name = "base"
	}
	return &Base{name: name}
}

// Name returns the strategy identifier.
func (b *Base) Name() string { return b.name }

// OnBar does nothing.
func (b *Base) OnBar(_ backtest.Broker, _ domain.Bar) {}
