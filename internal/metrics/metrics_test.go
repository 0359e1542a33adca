package metrics

import (
	"math"
	"testing"
	"time"

	"quantopia/internal/domain"
)

func TestComputeBacktestStats(t *testing.T) {
	prices := []float64{100, 110, 105}
	history := []domain.HistoryEntry{
		{Index: 0, Price: 100, Signal: "buy", Cash: 495, Position: 5, TradeExecuted: true},
		{Index: 1, Price: 110, Signal: "sell", Cash: 1040, Position: 0, TradeExecuted: true},
		{Index: 2, Price: 105, Signal: "hold", Cash: 1040, Position: 0},
	}

	stats := ComputeBacktestStats(prices, history)

	if stats.BuyCount != 1 || stats.SellCount != 1 || stats.TotalTrades != 2 {
		t.Errorf("trade counts = %d/%d/%d, want 1/1/2", stats.BuyCount, stats.SellCount, stats.TotalTrades)
	}
	if stats.TotalTradePairs != 1 || stats.WinningTrades != 1 || stats.LosingTrades != 0 {
		t.Errorf("pairs = %d win=%d lose=%d, want 1/1/0", stats.TotalTradePairs, stats.WinningTrades, stats.LosingTrades)
	}
	if stats.WinRate != 100 {
		t.Errorf("WinRate = %f, want 100", stats.WinRate)
	}
	if stats.ProfitLossRatio != 999.999 {
		t.Errorf("ProfitLossRatio = %f, want capped 999.999 with no losers", stats.ProfitLossRatio)
	}
	if stats.MaxPrice != 110 || stats.MinPrice != 100 {
		t.Errorf("price extremes = %f/%f, want 110/100", stats.MaxPrice, stats.MinPrice)
	}
	if stats.PriceChange != 5 || stats.PriceChangePct != 5 {
		t.Errorf("price change = %f (%f%%), want 5 (5%%)", stats.PriceChange, stats.PriceChangePct)
	}
	if stats.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %f, want 0 for a rising equity curve", stats.MaxDrawdown)
	}
	if stats.AvgHoldingPeriod != 3 {
		t.Errorf("AvgHoldingPeriod = %f, want 3", stats.AvgHoldingPeriod)
	}
	if stats.SharpeRatio == 0 {
		t.Error("SharpeRatio = 0, want non-zero for varying returns")
	}
}

func TestBacktestStatsDrawdown(t *testing.T) {
	// Equity rises to 1200 then falls to 900.
	history := []domain.HistoryEntry{
		{Price: 100, Signal: "hold", Cash: 0, Position: 10},
		{Price: 120, Signal: "hold", Cash: 0, Position: 10},
		{Price: 90, Signal: "hold", Cash: 0, Position: 10},
	}
	stats := ComputeBacktestStats([]float64{100, 120, 90}, history)

	if stats.MaxDrawdown != 300 {
		t.Errorf("MaxDrawdown = %f, want 300", stats.MaxDrawdown)
	}
	if stats.MaxDrawdownPct != 25 {
		t.Errorf("MaxDrawdownPct = %f, want 25", stats.MaxDrawdownPct)
	}
}

func TestSharpeDegenerateSeries(t *testing.T) {
	if got := sharpe(nil); got != 0 {
		t.Errorf("sharpe(nil) = %f, want 0", got)
	}
	if got := sharpe([]float64{0.01}); got != 0 {
		t.Errorf("sharpe of one return = %f, want 0", got)
	}
	if got := sharpe([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Errorf("sharpe of constant returns = %f, want 0", got)
	}
}

func TestComputeTradeStatsEmpty(t *testing.T) {
	stats := ComputeTradeStats(nil, 100000)
	if stats.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", stats.TotalTrades)
	}
	if stats.CurrentCash != 100000 || stats.CurrentAssetValue != 100000 {
		t.Errorf("cash/value = %f/%f, want untouched initial cash", stats.CurrentCash, stats.CurrentAssetValue)
	}
}

func TestComputeTradeStatsRoundTrip(t *testing.T) {
	now := time.Now()
	records := []domain.TradeRecord{
		{Timestamp: now, TradeType: domain.SignalBuy, Price: 100},
		{Timestamp: now.Add(time.Minute), TradeType: domain.SignalSell, Price: 110},
	}

	stats := ComputeTradeStats(records, 100000)

	if stats.BuyCount != 1 || stats.SellCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", stats.BuyCount, stats.SellCount)
	}
	// Buy allocates 30000 with 30 commission: 299.7 shares at 100. Selling
	// at 110 returns 32967 minus 32.967 commission.
	wantCash := 100000 - 30000 + 32934.033
	if math.Abs(stats.CurrentCash-round2(wantCash)) > 0.01 {
		t.Errorf("CurrentCash = %f, want %f", stats.CurrentCash, wantCash)
	}
	if stats.CurrentPosition != 0 {
		t.Errorf("CurrentPosition = %f, want 0", stats.CurrentPosition)
	}
	if stats.WinRate != 100 {
		t.Errorf("WinRate = %f, want 100", stats.WinRate)
	}
	if stats.TotalProfit <= 0 {
		t.Errorf("TotalProfit = %f, want positive", stats.TotalProfit)
	}
	// A single completed pair has no return dispersion.
	if stats.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %f, want 0 for one completed trade", stats.SharpeRatio)
	}
}

func TestComputeTradeStatsSellWithoutBuy(t *testing.T) {
	records := []domain.TradeRecord{
		{TradeType: domain.SignalSell, Price: 50},
	}
	stats := ComputeTradeStats(records, 10000)

	if stats.SellCount != 1 {
		t.Errorf("SellCount = %d, want 1", stats.SellCount)
	}
	// No open buy order to pair against: the account is untouched.
	if stats.CurrentCash != 10000 {
		t.Errorf("CurrentCash = %f, want 10000", stats.CurrentCash)
	}
	if stats.WinRate != 0 {
		t.Errorf("WinRate = %f, want 0", stats.WinRate)
	}
}
