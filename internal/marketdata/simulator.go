package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"quantopia/internal/domain"
)

var _ Port = (*SimulatorPort)(nil)

// SimulatorPort serves synthetic quotes from an independent random walk per
// symbol. Used for paper-mode tasks without upstream credentials and in
// tests.
type SimulatorPort struct {
	mu       sync.Mutex
	rng      *rand.Rand
	prices   map[string]float64
	base     float64
	stepSize float64
}

// NewSimulatorPort creates a simulator whose walks start at base and move by
// normally distributed steps of stepSize standard deviation per call.
func NewSimulatorPort(base, stepSize float64, seed int64) *SimulatorPort {
	if base <= 0 {
		base = 100
	}
	if stepSize <= 0 {
		stepSize = 0.5
	}
	return &SimulatorPort{
		rng:      rand.New(rand.NewSource(seed)),
		prices:   make(map[string]float64),
		base:     base,
		stepSize: stepSize,
	}
}

// LastDoneForSession implements Port.
func (p *SimulatorPort) LastDoneForSession(ctx context.Context, symbol, sessionLabel string, _ domain.Mode) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, &PortError{Op: "last_done", Symbol: symbol, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		price = p.base
	}
	price = math.Max(0.01, price+p.rng.NormFloat64()*p.stepSize)
	p.prices[symbol] = price

	return domain.Quote{Price: math.Round(price*1000) / 1000, Session: sessionLabel}, nil
}
