package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantopia/internal/domain"
	"quantopia/internal/util"
)

var _ Port = (*AlpacaPort)(nil)

// AlpacaPort serves quotes from the Alpaca market-data API. The latest trade
// covers extended hours, so the requested session label is echoed back
// unchanged.
type AlpacaPort struct {
	client *marketdata.Client
}

// NewAlpacaPort creates an AlpacaPort with the given credentials. dataURL
// overrides the default API endpoint when non-empty.
func NewAlpacaPort(apiKey, apiSecret, dataURL string) *AlpacaPort {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaPort{client: marketdata.NewClient(opts)}
}

// LastDoneForSession implements Port. Transient API failures are retried a
// few times with backoff before surfacing a PortError.
func (p *AlpacaPort) LastDoneForSession(ctx context.Context, symbol, sessionLabel string, _ domain.Mode) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, &PortError{Op: "last_done", Symbol: symbol, Err: err}
	}

	var trade *marketdata.Trade
	err := util.Retry(ctx, 3, 200*time.Millisecond, func() error {
		var err error
		trade, err = p.client.GetLatestTrade(normalizeSymbol(symbol), marketdata.GetLatestTradeRequest{})
		return err
	})
	if err != nil {
		return domain.Quote{}, &PortError{Op: "last_done", Symbol: symbol, Err: err}
	}
	if trade == nil || trade.Price <= 0 {
		return domain.Quote{}, &PortError{Op: "last_done", Symbol: symbol, Err: fmt.Errorf("no trade data")}
	}

	return domain.Quote{Price: trade.Price, Session: sessionLabel}, nil
}

// normalizeSymbol strips the venue suffix used elsewhere in the platform;
// Alpaca expects bare US tickers.
func normalizeSymbol(symbol string) string {
	for _, suffix := range []string{".US", ".us"} {
		if len(symbol) > len(suffix) && symbol[len(symbol)-len(suffix):] == suffix {
			return symbol[:len(symbol)-len(suffix)]
		}
	}
	return symbol
}
