package strategy

import (
	"errors"
	"math"
	"testing"

	"quantopia/internal/domain"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Create("Nonexistent", nil); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Create unknown strategy error = %v, want ErrUnknownStrategy", err)
	}

	s, err := r.Create("MA_Strategy", map[string]float64{"short_window": 3, "long_window": 10})
	if err != nil {
		t.Fatalf("Create(MA_Strategy) returned error: %v", err)
	}
	if got := s.Params()["short_window"]; got != 3 {
		t.Errorf("short_window = %f, want 3", got)
	}

	names := make(map[string]bool)
	for _, info := range r.List() {
		names[info.Name] = true
		if info.Description == "" {
			t.Errorf("strategy %q has empty description", info.Name)
		}
		if len(info.Params) == 0 {
			t.Errorf("strategy %q has empty params schema", info.Name)
		}
	}
	if !names["MA_Strategy"] || !names["MultiFactor_Strategy"] {
		t.Errorf("List missing built-in strategies, got %v", names)
	}
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}

	got, ok := SMA(prices, 3, 4)
	if !ok || got != 4 {
		t.Errorf("SMA(window=3, end=4) = (%f, %v), want (4, true)", got, ok)
	}
	if _, ok := SMA(prices, 3, 1); ok {
		t.Error("SMA with end < window-1 reported available")
	}
}

func TestRSI(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5}
	got, ok := RSI(rising, 3, 4)
	if !ok || got != 100 {
		t.Errorf("RSI of all-gains series = (%f, %v), want (100, true)", got, ok)
	}

	// Two gains of 1 and one loss of 1 over three changes.
	mixed := []float64{10, 11, 10, 11, 12}
	got, ok = RSI(mixed, 3, 4)
	if !ok {
		t.Fatal("RSI unavailable with sufficient data")
	}
	// avg gain 2/3, avg loss 1/3, rs=2, rsi = 100 - 100/3.
	want := 100 - 100.0/3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("RSI = %f, want %f", got, want)
	}

	if _, ok := RSI(rising, 5, 4); ok {
		t.Error("RSI with end < period reported available")
	}
}

func TestMACDSignalLineAvailability(t *testing.T) {
	prices := []float64{10, 10, 10, 9, 8, 7, 10, 12, 13, 14}

	// At the first index where the slow EMA exists the signal line still
	// lacks its seed window.
	res, ok := MACD(prices, 2, 3, 2, 2)
	if !ok {
		t.Fatal("MACD unavailable at end=slow-1")
	}
	if res.SignalLine != nil || res.Histogram != nil {
		t.Error("signal line reported before enough MACD history")
	}

	res, ok = MACD(prices, 2, 3, 2, 6)
	if !ok {
		t.Fatal("MACD unavailable at end=6")
	}
	if res.SignalLine == nil || res.Histogram == nil {
		t.Fatal("signal line missing with sufficient history")
	}
	if *res.Histogram <= 0 {
		t.Errorf("histogram = %f, want positive after the upturn", *res.Histogram)
	}
}

func TestMovingAverageCrossSignals(t *testing.T) {
	prices := []float64{10, 9, 8, 10, 12, 14, 12, 9, 7}
	s := NewMovingAverageCross(map[string]float64{"short_window": 2, "long_window": 3})

	var buys, sells []int
	for i := range prices {
		sig, info := s.GenerateSignal(prices, i, nil)
		switch sig {
		case domain.SignalBuy:
			buys = append(buys, i)
			if info["reason"] != "golden_cross" {
				t.Errorf("buy at %d reason = %v, want golden_cross", i, info["reason"])
			}
		case domain.SignalSell:
			sells = append(sells, i)
			if info["reason"] != "death_cross" {
				t.Errorf("sell at %d reason = %v, want death_cross", i, info["reason"])
			}
		}
	}

	if len(buys) != 1 || buys[0] != 4 {
		t.Errorf("buy indices = %v, want [4]", buys)
	}
	if len(sells) != 1 || sells[0] != 7 {
		t.Errorf("sell indices = %v, want [7]", sells)
	}
}

func TestMovingAverageCrossInsufficientData(t *testing.T) {
	s := NewMovingAverageCross(map[string]float64{"short_window": 2, "long_window": 3})
	sig, info := s.GenerateSignal([]float64{10, 11}, 1, nil)
	if sig != domain.SignalHold {
		t.Errorf("signal = %v, want hold", sig)
	}
	if info["reason"] != "insufficient_data" {
		t.Errorf("reason = %v, want insufficient_data", info["reason"])
	}
}

func TestMovingAverageCrossFirstEligibleIndexHolds(t *testing.T) {
	prices := []float64{10, 9, 8, 10, 12}
	s := NewMovingAverageCross(map[string]float64{"short_window": 2, "long_window": 3})

	// Index 2 is the first with both MAs but no previous pair to compare.
	sig, info := s.GenerateSignal(prices, 2, nil)
	if sig != domain.SignalHold {
		t.Errorf("first eligible index signal = %v, want hold", sig)
	}
	if info["prev_short_ma"] != nil {
		t.Errorf("prev_short_ma = %v, want nil on first eligible index", info["prev_short_ma"])
	}
}

func multiFactorTestParams() map[string]float64 {
	return map[string]float64{
		"short_ma":       2,
		"long_ma":        3,
		"rsi_period":     2,
		"macd_fast":      2,
		"macd_slow":      3,
		"macd_signal":    2,
		"rsi_overbought": 90,
	}
}

func TestMultiFactorInsufficientData(t *testing.T) {
	s := NewMultiFactor(nil)
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100
	}
	// Defaults require max(long_ma=20, macd_slow+macd_signal=35, rsi=14).
	sig, info := s.GenerateSignal(prices, 19, nil)
	if sig != domain.SignalHold {
		t.Errorf("signal = %v, want hold", sig)
	}
	if info["reason"] != "insufficient_data" {
		t.Errorf("reason = %v, want insufficient_data", info["reason"])
	}
	if info["required"] != 35 {
		t.Errorf("required = %v, want 35", info["required"])
	}
}

func TestMultiFactorBuyThenStopLoss(t *testing.T) {
	s := NewMultiFactor(multiFactorTestParams())
	prices := []float64{10, 10, 10, 9, 8, 7, 10, 9}

	var history []domain.HistoryEntry
	position := 0.0

	run := func(i int) (domain.Signal, map[string]any) {
		t.Helper()
		sig, info := s.GenerateSignal(prices, i, history)
		if sig == domain.SignalBuy {
			position = 100
		} else if sig == domain.SignalSell {
			position = 0
		}
		history = append(history, domain.HistoryEntry{
			Index:        i,
			Price:        prices[i],
			Signal:       sig,
			StrategyInfo: info,
			Position:     position,
		})
		return sig, info
	}

	for i := 0; i < 6; i++ {
		if sig, _ := run(i); sig != domain.SignalHold {
			t.Fatalf("index %d signal = %v, want hold", i, sig)
		}
	}

	// Golden cross off the bottom at index 6 enters a position.
	sig, info := run(6)
	if sig != domain.SignalBuy {
		t.Fatalf("index 6 signal = %v (reason %v), want buy", sig, info["reason"])
	}
	if info["reason"] != "multi_factor_buy_golden_cross" {
		t.Errorf("buy reason = %v, want multi_factor_buy_golden_cross", info["reason"])
	}
	ratio, _ := info["position_ratio"].(float64)
	if ratio < 0.3 || ratio > 0.8 {
		t.Errorf("position_ratio = %f, want within [0.3, 0.8]", ratio)
	}

	// Price drops 10% from the 10.0 entry, past the 5% stop.
	sig, info = run(7)
	if sig != domain.SignalSell {
		t.Fatalf("index 7 signal = %v (reason %v), want sell", sig, info["reason"])
	}
	if info["reason"] != "stop_loss_10.00%" {
		t.Errorf("sell reason = %v, want stop_loss_10.00%%", info["reason"])
	}
	if info["position_ratio"] != 1.0 {
		t.Errorf("stop-loss position_ratio = %v, want 1.0", info["position_ratio"])
	}
}

func TestMultiFactorTakeProfit(t *testing.T) {
	s := NewMultiFactor(multiFactorTestParams())
	prices := []float64{10, 10, 10, 9, 8, 7, 10, 11.5}

	var history []domain.HistoryEntry
	position := 0.0
	for i := range prices {
		sig, info := s.GenerateSignal(prices, i, history)
		if sig == domain.SignalBuy {
			position = 100
		} else if sig == domain.SignalSell {
			position = 0
		}
		if i == 7 {
			if sig != domain.SignalSell {
				t.Fatalf("index 7 signal = %v (reason %v), want sell", sig, info["reason"])
			}
			if info["reason"] != "take_profit_15.00%" {
				t.Errorf("sell reason = %v, want take_profit_15.00%%", info["reason"])
			}
		}
		history = append(history, domain.HistoryEntry{
			Index:        i,
			Price:        prices[i],
			Signal:       sig,
			StrategyInfo: info,
			Position:     position,
		})
	}
}

func TestSignalStrengthBounds(t *testing.T) {
	s := NewMultiFactor(nil)
	rsi := 10.0
	hist := 5.0
	got := s.signalStrength(1, &rsi, &hist, 100)
	if got < 0 || got > 1 {
		t.Errorf("signalStrength = %f, want within [0,1]", got)
	}
	if got := s.signalStrength(0, nil, nil, 100); got != 0 {
		t.Errorf("signalStrength with no factors = %f, want 0", got)
	}
}
