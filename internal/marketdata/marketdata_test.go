package marketdata

import (
	"context"
	"errors"
	"testing"

	"quantopia/internal/domain"
)

func TestSimulatorPortWalk(t *testing.T) {
	port := NewSimulatorPort(100, 0.5, 42)
	ctx := context.Background()

	var last float64
	for i := 0; i < 50; i++ {
		q, err := port.LastDoneForSession(ctx, "AAPL.US", "盘中", domain.ModePaper)
		if err != nil {
			t.Fatalf("LastDoneForSession returned error: %v", err)
		}
		if q.Price <= 0 {
			t.Fatalf("price = %f, want positive", q.Price)
		}
		if q.Session != "盘中" {
			t.Errorf("session = %q, want 盘中", q.Session)
		}
		last = q.Price
	}
	if last == 0 {
		t.Error("walk never produced a price")
	}

	// Independent symbols walk independently from the same base.
	q, err := port.LastDoneForSession(ctx, "700.HK", "盘中", domain.ModePaper)
	if err != nil {
		t.Fatalf("LastDoneForSession returned error: %v", err)
	}
	if q.Price < 90 || q.Price > 110 {
		t.Errorf("fresh symbol price = %f, want near the 100 base", q.Price)
	}
}

func TestSimulatorPortSeedDeterminism(t *testing.T) {
	ctx := context.Background()
	a := NewSimulatorPort(100, 0.5, 7)
	b := NewSimulatorPort(100, 0.5, 7)

	for i := 0; i < 10; i++ {
		qa, _ := a.LastDoneForSession(ctx, "X", "盘中", domain.ModePaper)
		qb, _ := b.LastDoneForSession(ctx, "X", "盘中", domain.ModePaper)
		if qa.Price != qb.Price {
			t.Fatalf("step %d diverged with same seed: %f vs %f", i, qa.Price, qb.Price)
		}
	}
}

func TestSimulatorPortContextCancel(t *testing.T) {
	port := NewSimulatorPort(100, 0.5, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := port.LastDoneForSession(ctx, "AAPL.US", "盘中", domain.ModePaper)
	var portErr *PortError
	if !errors.As(err, &portErr) {
		t.Fatalf("error = %v, want *PortError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error does not unwrap to context.Canceled: %v", err)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"AAPL.US": "AAPL",
		"TSLA.us": "TSLA",
		"AAPL":    "AAPL",
		"700.HK":  "700.HK",
	}
	for in, want := range cases {
		if got := normalizeSymbol(in); got != want {
			t.Errorf("normalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
