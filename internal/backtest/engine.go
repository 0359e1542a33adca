// Package backtest replays a price series through a strategy while
// simulating a single-instrument long-only account.
package backtest

import (
	"fmt"
	"log/slog"
	"math"

	"quantopia/internal/domain"
	"quantopia/internal/metrics"
	"quantopia/internal/strategy"
	"quantopia/internal/util"
)

// Config holds the simulation parameters for one run.
type Config struct {
	InitialCash float64
	// Commission is a fixed per-trade charge.
	Commission float64
	// LotSize is the minimum tradeable quantity; order sizes round down to a
	// multiple of it.
	LotSize float64
	// MaxPositionRatio caps how much of the available cash a single buy may
	// deploy, in (0,1].
	MaxPositionRatio float64
}

// DefaultConfig mirrors the platform defaults.
func DefaultConfig() Config {
	return Config{
		InitialCash:      100000,
		Commission:       5,
		LotSize:          1,
		MaxPositionRatio: 1,
	}
}

// Summary is the headline outcome of a run, flattened together with the
// derived statistics for serialisation.
type Summary struct {
	RunID          string  `json:"run_id"`
	FinalCash      float64 `json:"final_cash"`
	FinalPosition  float64 `json:"final_position"`
	FinalValue     float64 `json:"final_value"`
	InitialCash    float64 `json:"initial_cash"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`

	metrics.BacktestStats
}

// Result carries everything a caller needs from a completed run.
type Result struct {
	RunID         string                `json:"run_id"`
	StrategyName  string                `json:"strategy_name"`
	Summary       Summary               `json:"stats"`
	History       []domain.HistoryEntry `json:"-"`
	HistoryLength int                   `json:"history_length"`
}

// Engine runs backtests. Safe for concurrent use; each run keeps its state on
// the stack.
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an Engine logging through the given logger.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Run iterates the price series once, asking the strategy for a signal at
// every index and executing the resulting orders. The final position is
// valued at the last price without logging an extra liquidation trade.
func (e *Engine) Run(strat strategy.Strategy, prices []float64, cfg Config) (*Result, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("backtest: empty price series")
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("backtest: initial cash must be positive, got %f", cfg.InitialCash)
	}
	if cfg.MaxPositionRatio <= 0 || cfg.MaxPositionRatio > 1 {
		return nil, fmt.Errorf("backtest: max position ratio must be in (0,1], got %f", cfg.MaxPositionRatio)
	}

	runID := util.NewID()
	cash := cfg.InitialCash
	position := 0.0
	history := make([]domain.HistoryEntry, 0, len(prices))

	e.logger.Info("backtest started",
		"run_id", runID,
		"strategy", strat.Name(),
		"points", len(prices),
		"initial_cash", cfg.InitialCash)

	for i, price := range prices {
		signal, info := strat.GenerateSignal(prices, i, history)

		strength := clamp01(signalStrength(info))
		executed := false

		switch signal {
		case domain.SignalBuy:
			var ok bool
			cash, position, ok = e.executeBuy(cash, position, price, strength, cfg)
			executed = ok
			if ok {
				e.logger.Debug("buy executed",
					"run_id", runID, "index", i, "price", price,
					"cash", cash, "position", position, "reason", info["reason"])
			}

		case domain.SignalSell:
			var ok bool
			cash, position, ok = e.executeSell(cash, position, price, strength, cfg)
			executed = ok
			if ok {
				e.logger.Debug("sell executed",
					"run_id", runID, "index", i, "price", price,
					"cash", cash, "position", position, "reason", info["reason"])
			}
		}

		history = append(history, domain.HistoryEntry{
			Index:         i,
			Price:         price,
			Signal:        signal,
			StrategyInfo:  info,
			Cash:          round3(cash),
			Position:      round3(position),
			TradeExecuted: executed,
		})
	}

	finalPrice := prices[len(prices)-1]
	finalValue := cash + position*finalPrice
	totalReturn := finalValue - cfg.InitialCash
	totalReturnPct := totalReturn / cfg.InitialCash * 100

	summary := Summary{
		RunID:          runID,
		FinalCash:      round3(cash),
		FinalPosition:  round3(position),
		FinalValue:     round3(finalValue),
		InitialCash:    cfg.InitialCash,
		TotalReturn:    round3(totalReturn),
		TotalReturnPct: round3(totalReturnPct),
		BacktestStats:  metrics.ComputeBacktestStats(prices, history),
	}

	e.logger.Info("backtest finished",
		"run_id", runID,
		"final_value", summary.FinalValue,
		"total_return_pct", summary.TotalReturnPct,
		"trades", summary.TotalTrades)

	return &Result{
		RunID:         runID,
		StrategyName:  strat.Name(),
		Summary:       summary,
		History:       history,
		HistoryLength: len(history),
	}, nil
}

// executeBuy sizes a buy from the signal strength and available capital,
// shrinking to the maximum affordable lot multiple when cash cannot cover the
// desired quantity plus commission.
func (e *Engine) executeBuy(cash, position, price, strength float64, cfg Config) (float64, float64, bool) {
	if cash <= 0 || price <= 0 {
		return cash, position, false
	}

	maxBuyValue := cash * cfg.MaxPositionRatio
	desired := floorToLot(maxBuyValue/price*strength, cfg.LotSize)
	if desired < cfg.LotSize {
		return cash, position, false
	}

	totalCost := desired*price + cfg.Commission
	if cash < totalCost {
		available := cash - cfg.Commission
		affordable := 0.0
		if available > 0 {
			affordable = floorToLot(available/price, cfg.LotSize)
		}
		desired = math.Min(desired, affordable)
		totalCost = desired*price + cfg.Commission
	}

	if desired < cfg.LotSize || cash < totalCost {
		return cash, position, false
	}
	return cash - totalCost, position + desired, true
}

// executeSell sells strength-proportional part of the position, rounded down
// to a lot multiple and capped at the held quantity.
func (e *Engine) executeSell(cash, position, price, strength float64, cfg Config) (float64, float64, bool) {
	if position <= 0 {
		return cash, position, false
	}

	quantity := floorToLot(position*strength, cfg.LotSize)
	quantity = math.Min(quantity, position)
	if quantity < cfg.LotSize {
		return cash, position, false
	}

	return cash + quantity*price - cfg.Commission, position - quantity, true
}

// signalStrength extracts the strategy-reported strength, defaulting to full
// size when the strategy does not report one.
func signalStrength(info map[string]any) float64 {
	v, ok := info["signal_strength"]
	if !ok {
		return 1
	}
	switch s := v.(type) {
	case float64:
		return s
	case int:
		return float64(s)
	default:
		return 1
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func floorToLot(quantity, lotSize float64) float64 {
	if lotSize <= 0 {
		return 0
	}
	return math.Floor(quantity/lotSize) * lotSize
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
