// Package strategy defines the pluggable signal-generation contract and the
// built-in trading strategies.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"quantopia/internal/domain"
)

// Strategy produces one trading signal per price index. Implementations own
// their private state; GenerateSignal must not mutate prices and must be
// deterministic when called sequentially over the same series.
type Strategy interface {
	Name() string
	Params() map[string]float64
	GenerateSignal(prices []float64, index int, history []domain.HistoryEntry) (domain.Signal, map[string]any)
}

// ParamSpec describes a single tunable strategy parameter for clients that
// render configuration forms.
type ParamSpec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// Info is the displayable description of a registered strategy.
type Info struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Params      map[string]ParamSpec `json:"params"`
}

// Factory builds a fresh strategy instance from a flat parameter map.
// Missing parameters fall back to the registered defaults.
type Factory func(params map[string]float64) Strategy

// ErrUnknownStrategy is returned when a name has no registered factory.
var ErrUnknownStrategy = fmt.Errorf("unknown strategy")

type registration struct {
	factory Factory
	info    Info
}

// Registry maps strategy names to factories. Each task and backtest gets its
// own instance so strategy state is never shared.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry returns a Registry with the built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]registration)}
	r.Register(NewMovingAverageCross(nil).Name(), movingAverageCrossInfo(), func(params map[string]float64) Strategy {
		return NewMovingAverageCross(params)
	})
	r.Register(NewMultiFactor(nil).Name(), multiFactorInfo(), func(params map[string]float64) Strategy {
		return NewMultiFactor(params)
	})
	return r
}

// Register adds or replaces a named strategy factory.
func (r *Registry) Register(name string, info Info, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registration{factory: factory, info: info}
}

// Create instantiates a fresh strategy by name.
func (r *Registry) Create(name string, params map[string]float64) (Strategy, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return reg.factory(params), nil
}

// List returns the registered strategy descriptions sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.entries))
	for _, reg := range r.entries {
		infos = append(infos, reg.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// paramOr reads a parameter from the flat map, falling back to def.
func paramOr(params map[string]float64, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// round3 truncates indicator diagnostics to three decimals for log and API
// readability.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
