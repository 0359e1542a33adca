package strategy

import (
	"quantopia/internal/domain"
)

// MovingAverageCross trades simple moving average crossovers: BUY when the
// short MA crosses above the long MA (golden cross), SELL when it crosses
// below (death cross). The previous MA pair lives in explicit fields so a
// crossing is detected against the last call rather than re-derived from the
// diagnostic history.
type MovingAverageCross struct {
	shortWindow int
	longWindow  int

	prevShort float64
	prevLong  float64
	hasPrev   bool
}

// NewMovingAverageCross builds the strategy from a flat parameter map.
// Recognised keys: short_window (default 5), long_window (default 20).
func NewMovingAverageCross(params map[string]float64) *MovingAverageCross {
	return &MovingAverageCross{
		shortWindow: int(paramOr(params, "short_window", 5)),
		longWindow:  int(paramOr(params, "long_window", 20)),
	}
}

func (s *MovingAverageCross) Name() string { return "MA_Strategy" }

func (s *MovingAverageCross) Params() map[string]float64 {
	return map[string]float64{
		"short_window": float64(s.shortWindow),
		"long_window":  float64(s.longWindow),
	}
}

// GenerateSignal implements the Strategy contract.
func (s *MovingAverageCross) GenerateSignal(prices []float64, index int, _ []domain.HistoryEntry) (domain.Signal, map[string]any) {
	if index < s.longWindow-1 {
		return domain.SignalHold, map[string]any{
			"reason":   "insufficient_data",
			"short_ma": nil,
			"long_ma":  nil,
		}
	}

	shortMA, okS := SMA(prices, s.shortWindow, index)
	longMA, okL := SMA(prices, s.longWindow, index)
	if !okS || !okL {
		return domain.SignalHold, map[string]any{
			"reason":   "ma_calculation_failed",
			"short_ma": nil,
			"long_ma":  nil,
		}
	}

	signal := domain.SignalHold
	reason := "no_cross"

	if s.hasPrev {
		if s.prevShort <= s.prevLong && shortMA > longMA {
			signal = domain.SignalBuy
			reason = "golden_cross"
		} else if s.prevShort >= s.prevLong && shortMA < longMA {
			signal = domain.SignalSell
			reason = "death_cross"
		}
	}

	info := map[string]any{
		"reason":        reason,
		"short_ma":      round3(shortMA),
		"long_ma":       round3(longMA),
		"current_price": round3(prices[index]),
	}
	if s.hasPrev {
		info["prev_short_ma"] = round3(s.prevShort)
		info["prev_long_ma"] = round3(s.prevLong)
	} else {
		info["prev_short_ma"] = nil
		info["prev_long_ma"] = nil
	}

	s.prevShort = shortMA
	s.prevLong = longMA
	s.hasPrev = true

	return signal, info
}

func movingAverageCrossInfo() Info {
	return Info{
		Name:        "MA_Strategy",
		Description: "Moving average crossover strategy. Buys on a golden cross (short MA crossing above long MA) and sells on a death cross, trading the full position.",
		Params: map[string]ParamSpec{
			"short_window": {
				Name:        "Short window",
				Description: "Window size of the short moving average in samples",
				Type:        "number",
				Default:     5,
				Min:         2,
				Max:         50,
			},
			"long_window": {
				Name:        "Long window",
				Description: "Window size of the long moving average in samples",
				Type:        "number",
				Default:     20,
				Min:         5,
				Max:         200,
			},
		},
	}
}
