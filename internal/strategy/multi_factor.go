package strategy

import (
	"fmt"
	"math"

	"quantopia/internal/domain"
)

// MultiFactor combines MA crossover, RSI and MACD into a weighted signal
// strength that drives position sizing, with stop-loss and take-profit exits
// taking priority over everything else.
type MultiFactor struct {
	shortMA    int
	longMA     int
	rsiPeriod  int
	macdFast   int
	macdSlow   int
	macdSignal int

	rsiOversold      float64
	rsiOverbought    float64
	stopLossPct      float64
	takeProfitPct    float64
	minPositionRatio float64
	maxPositionRatio float64

	// entryPrice is the recorded cost basis while a position is open; nil
	// when flat.
	entryPrice *float64

	prevShort float64
	prevLong  float64
	hasPrev   bool
}

// NewMultiFactor builds the strategy from a flat parameter map with the same
// defaults the parameter schema advertises.
func NewMultiFactor(params map[string]float64) *MultiFactor {
	return &MultiFactor{
		shortMA:          int(paramOr(params, "short_ma", 5)),
		longMA:           int(paramOr(params, "long_ma", 20)),
		rsiPeriod:        int(paramOr(params, "rsi_period", 14)),
		macdFast:         int(paramOr(params, "macd_fast", 12)),
		macdSlow:         int(paramOr(params, "macd_slow", 26)),
		macdSignal:       int(paramOr(params, "macd_signal", 9)),
		rsiOversold:      paramOr(params, "rsi_oversold", 30),
		rsiOverbought:    paramOr(params, "rsi_overbought", 70),
		stopLossPct:      paramOr(params, "stop_loss_pct", 5),
		takeProfitPct:    paramOr(params, "take_profit_pct", 10),
		minPositionRatio: paramOr(params, "min_position_ratio", 0.3),
		maxPositionRatio: paramOr(params, "max_position_ratio", 0.8),
	}
}

func (s *MultiFactor) Name() string { return "MultiFactor_Strategy" }

func (s *MultiFactor) Params() map[string]float64 {
	return map[string]float64{
		"short_ma":           float64(s.shortMA),
		"long_ma":            float64(s.longMA),
		"rsi_period":         float64(s.rsiPeriod),
		"macd_fast":          float64(s.macdFast),
		"macd_slow":          float64(s.macdSlow),
		"macd_signal":        float64(s.macdSignal),
		"rsi_oversold":       s.rsiOversold,
		"rsi_overbought":     s.rsiOverbought,
		"stop_loss_pct":      s.stopLossPct,
		"take_profit_pct":    s.takeProfitPct,
		"min_position_ratio": s.minPositionRatio,
		"max_position_ratio": s.maxPositionRatio,
	}
}

// GenerateSignal implements the Strategy contract. Rule priority: stop-loss
// and take-profit exits, entry on a confirmed golden cross, full exit on a
// death cross, partial de-risking on extreme RSI, then incremental adds while
// the trend strengthens.
func (s *MultiFactor) GenerateSignal(prices []float64, index int, history []domain.HistoryEntry) (domain.Signal, map[string]any) {
	minRequired := s.longMA
	if v := s.macdSlow + s.macdSignal; v > minRequired {
		minRequired = v
	}
	if s.rsiPeriod > minRequired {
		minRequired = s.rsiPeriod
	}
	if index < minRequired {
		return domain.SignalHold, map[string]any{
			"reason":   "insufficient_data",
			"required": minRequired,
			"current":  index,
		}
	}

	price := prices[index]

	position := 0.0
	if len(history) > 0 {
		position = history[len(history)-1].Position
	}
	if position == 0 {
		s.entryPrice = nil
	}

	shortMA, okS := SMA(prices, s.shortMA, index)
	longMA, okL := SMA(prices, s.longMA, index)
	if !okS || !okL {
		return domain.SignalHold, map[string]any{
			"reason":   "indicator_calculation_failed",
			"short_ma": nil,
			"long_ma":  nil,
		}
	}

	var rsiPtr *float64
	if rsi, ok := RSI(prices, s.rsiPeriod, index); ok {
		rsiPtr = &rsi
	}
	var macd *MACDResult
	if m, ok := MACD(prices, s.macdFast, s.macdSlow, s.macdSignal, index); ok {
		macd = &m
	}

	// Exits fire before any indicator logic.
	if position > 0 && s.entryPrice != nil {
		entry := *s.entryPrice
		changePct := (price - entry) / entry * 100
		exitReason := ""
		if changePct <= -s.stopLossPct {
			exitReason = fmt.Sprintf("stop_loss_%.2f%%", math.Abs(changePct))
		} else if changePct >= s.takeProfitPct {
			exitReason = fmt.Sprintf("take_profit_%.2f%%", changePct)
		}
		if exitReason != "" {
			s.entryPrice = nil
			info := map[string]any{
				"reason":          exitReason,
				"short_ma":        round3(shortMA),
				"long_ma":         round3(longMA),
				"rsi":             roundPtr(rsiPtr),
				"macd":            macdInfo(macd),
				"current_price":   round3(price),
				"entry_price":     round3(entry),
				"position_ratio":  1.0,
				"signal_strength": 1.0,
			}
			s.recordMAs(shortMA, longMA)
			return domain.SignalSell, info
		}
	}

	maSignal := 0
	maReason := "no_cross"
	if s.hasPrev {
		if s.prevShort <= s.prevLong && shortMA > longMA {
			maSignal = 1
			maReason = "golden_cross"
		} else if s.prevShort >= s.prevLong && shortMA < longMA {
			maSignal = -1
			maReason = "death_cross"
		}
	}

	signal := domain.SignalHold
	reason := maReason
	positionRatio := 0.0

	var histogram *float64
	if macd != nil {
		histogram = macd.Histogram
	}

	switch {
	case maSignal == 1 && position == 0:
		rsiOK := rsiPtr == nil || *rsiPtr < s.rsiOverbought
		macdOK := histogram == nil || *histogram > -price*0.001
		if rsiOK && macdOK {
			signal = domain.SignalBuy
			reason = "multi_factor_buy_" + maReason
			strength := s.signalStrength(1, rsiPtr, histogram, price)
			positionRatio = s.minPositionRatio + strength*(s.maxPositionRatio-s.minPositionRatio)
			s.entryPrice = &price
		}

	case maSignal == -1 && position > 0:
		signal = domain.SignalSell
		reason = "multi_factor_sell_" + maReason
		positionRatio = 1.0
		s.entryPrice = nil

	case position > 0 && rsiPtr != nil && *rsiPtr > 80:
		// Severe overbought: shed half the position but keep the entry price
		// since the remainder stays open.
		signal = domain.SignalSell
		reason = "rsi_extreme_overbought"
		positionRatio = 0.5

	case position > 0 && maSignal == 1:
		if strength := s.signalStrength(1, rsiPtr, histogram, price); strength > 0.7 {
			signal = domain.SignalBuy
			reason = "add_position_strengthen"
			positionRatio = 0.2 * strength
		}
	}

	info := map[string]any{
		"reason":          reason,
		"short_ma":        round3(shortMA),
		"long_ma":         round3(longMA),
		"rsi":             roundPtr(rsiPtr),
		"macd":            macdInfo(macd),
		"current_price":   round3(price),
		"ma_signal":       maSignal,
		"position_ratio":  round3(positionRatio),
		"signal_strength": round3(s.signalStrength(maSignal, rsiPtr, histogram, price)),
		"entry_price":     roundPtr(s.entryPrice),
	}

	s.recordMAs(shortMA, longMA)
	return signal, info
}

func (s *MultiFactor) recordMAs(shortMA, longMA float64) {
	s.prevShort = shortMA
	s.prevLong = longMA
	s.hasPrev = true
}

// signalStrength blends the MA direction, RSI position and MACD histogram
// into [0,1] with weights 0.4/0.3/0.3. Missing factors drop out and the
// remaining weights renormalise.
func (s *MultiFactor) signalStrength(maSignal int, rsi, histogram *float64, price float64) float64 {
	strength := 0.0
	weightSum := 0.0

	if maSignal != 0 {
		strength += 0.4
		weightSum += 0.4
	}

	if rsi != nil {
		var rsiStrength float64
		switch maSignal {
		case 1:
			// Buying into oversold territory is the strongest setup.
			rsiStrength = math.Max(0, (s.rsiOversold-*rsi)/s.rsiOversold)
		case -1:
			rsiStrength = math.Max(0, (*rsi-s.rsiOverbought)/(100-s.rsiOverbought))
		default:
			rsiStrength = 0.5
		}
		strength += 0.3 * rsiStrength
		weightSum += 0.3
	}

	if histogram != nil {
		h := *histogram
		macdStrength := 0.3
		if (maSignal == 1 && h > 0) || (maSignal == -1 && h < 0) {
			macdStrength = math.Min(1.0, math.Abs(h)/(price*0.01))
		}
		strength += 0.3 * macdStrength
		weightSum += 0.3
	}

	if weightSum == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, strength/weightSum))
}

func roundPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return round3(*v)
}

func macdInfo(m *MACDResult) any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"macd_line":   round3(m.MACDLine),
		"signal_line": roundPtr(m.SignalLine),
		"histogram":   roundPtr(m.Histogram),
	}
}

func multiFactorInfo() Info {
	return Info{
		Name:        "MultiFactor_Strategy",
		Description: "Multi-factor strategy combining moving average crossovers, RSI and MACD into a weighted signal strength. Sizes positions dynamically between the minimum and maximum ratios, applies stop-loss and take-profit exits, and supports partial adds and reductions.",
		Params: map[string]ParamSpec{
			"short_ma": {
				Name:        "Short MA window",
				Description: "Window size of the short moving average in samples",
				Type:        "number",
				Default:     5,
				Min:         2,
				Max:         50,
			},
			"long_ma": {
				Name:        "Long MA window",
				Description: "Window size of the long moving average in samples",
				Type:        "number",
				Default:     20,
				Min:         5,
				Max:         200,
			},
			"rsi_period": {
				Name:        "RSI period",
				Description: "Lookback period of the relative strength index",
				Type:        "number",
				Default:     14,
				Min:         5,
				Max:         50,
			},
			"macd_fast": {
				Name:        "MACD fast period",
				Description: "Period of the fast EMA",
				Type:        "number",
				Default:     12,
				Min:         5,
				Max:         50,
			},
			"macd_slow": {
				Name:        "MACD slow period",
				Description: "Period of the slow EMA",
				Type:        "number",
				Default:     26,
				Min:         10,
				Max:         100,
			},
			"macd_signal": {
				Name:        "MACD signal period",
				Description: "Period of the signal-line EMA",
				Type:        "number",
				Default:     9,
				Min:         3,
				Max:         20,
			},
			"rsi_oversold": {
				Name:        "RSI oversold threshold",
				Description: "RSI below this value counts as oversold",
				Type:        "number",
				Default:     30,
				Min:         10,
				Max:         40,
			},
			"rsi_overbought": {
				Name:        "RSI overbought threshold",
				Description: "RSI above this value counts as overbought",
				Type:        "number",
				Default:     70,
				Min:         60,
				Max:         90,
			},
			"stop_loss_pct": {
				Name:        "Stop loss percent",
				Description: "Exit the full position when the loss reaches this percentage",
				Type:        "number",
				Default:     5,
				Min:         1,
				Max:         20,
			},
			"take_profit_pct": {
				Name:        "Take profit percent",
				Description: "Exit the full position when the gain reaches this percentage",
				Type:        "number",
				Default:     10,
				Min:         5,
				Max:         50,
			},
			"min_position_ratio": {
				Name:        "Minimum position ratio",
				Description: "Position ratio used when the signal is weakest",
				Type:        "number",
				Default:     0.3,
				Min:         0.1,
				Max:         0.9,
			},
			"max_position_ratio": {
				Name:        "Maximum position ratio",
				Description: "Position ratio used when the signal is strongest",
				Type:        "number",
				Default:     0.8,
				Min:         0.3,
				Max:         1.0,
			},
		},
	}
}
