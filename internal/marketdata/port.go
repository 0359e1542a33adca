// Package marketdata abstracts the quote source behind a Port so the
// scheduler can run against the Alpaca API or a local simulator.
package marketdata

import (
	"context"
	"fmt"

	"quantopia/internal/domain"
)

// Port is the quote source contract. LastDoneForSession returns the latest
// traded price for the symbol, preferring a quote from the requested session
// and reporting the session the quote actually came from.
type Port interface {
	LastDoneForSession(ctx context.Context, symbol, sessionLabel string, mode domain.Mode) (domain.Quote, error)
}

// PortError wraps a quote source failure. The scheduler treats these as
// per-tick recoverable: logged, then the loop continues.
type PortError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("marketdata %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }
