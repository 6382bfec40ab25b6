package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quantflow/quantflow/internal/backtest"
)

// Factory builds a fresh strategy instance from a parameter map. Every
// backtest run gets its own instance; factories must not share state
// between the strategies they return.
type Factory func(params map[string]any) (backtest.Strategy, error)

// Registry manages a named collection of strategy factories. It is safe
// for concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns a Registry pre-populated with the built-in
// strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register("base", func(_ map[string]any) (backtest.Strategy, error) {
		return NewBase("base"), nil
	})
	r.Register("ma_cross", func(params map[string]any) (backtest.Strategy, error) {
		return NewMACross(params)
	})

	return r
}

// Register adds a factory under the given kind. An existing factory
// with the same kind is replaced.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// New builds a fresh strategy instance of the given kind.
func (r *Registry) New(kind string, params map[string]any) (backtest.Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", kind)
	}
	return f(params)
}

// List returns all registered kinds in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
