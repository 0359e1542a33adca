// Package metrics derives performance statistics from backtest traces and
// live trade records.
package metrics

import (
	"math"

	"quantopia/internal/domain"
)

// annualFactor annualises per-period Sharpe ratios assuming 252 trading days.
var annualFactor = math.Sqrt(252)

// BacktestStats summarises a completed backtest run.
type BacktestStats struct {
	BuyCount    int `json:"buy_count"`
	SellCount   int `json:"sell_count"`
	TotalTrades int `json:"total_trades"`

	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	PriceChange    float64 `json:"price_change"`
	PriceChangePct float64 `json:"price_change_pct"`
	MaxPrice       float64 `json:"max_price"`
	MinPrice       float64 `json:"min_price"`
	InitialPrice   float64 `json:"initial_price"`
	FinalPrice     float64 `json:"final_price"`

	WinRate          float64 `json:"win_rate"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	ProfitLossRatio  float64 `json:"profit_loss_ratio"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	AvgHoldingPeriod float64 `json:"avg_holding_period"`
	TotalTradePairs  int     `json:"total_trade_pairs"`
}

// ComputeBacktestStats derives statistics from the per-index history of a
// backtest run. Trade pairs are formed sequentially: each executed buy opens
// a pair closed by the next executed sell.
func ComputeBacktestStats(prices []float64, history []domain.HistoryEntry) BacktestStats {
	var stats BacktestStats

	for _, h := range history {
		if !h.TradeExecuted {
			continue
		}
		switch h.Signal {
		case domain.SignalBuy:
			stats.BuyCount++
		case domain.SignalSell:
			stats.SellCount++
		}
	}
	stats.TotalTrades = stats.BuyCount + stats.SellCount

	// Portfolio value per index and period returns.
	portfolioValues := make([]float64, 0, len(history))
	for _, h := range history {
		portfolioValues = append(portfolioValues, h.Cash+h.Position*h.Price)
	}
	var returns []float64
	for i := 1; i < len(portfolioValues); i++ {
		if portfolioValues[i-1] > 0 {
			returns = append(returns, (portfolioValues[i]-portfolioValues[i-1])/portfolioValues[i-1])
		}
	}

	if len(portfolioValues) > 0 {
		peak := portfolioValues[0]
		for _, v := range portfolioValues {
			if v > peak {
				peak = v
			}
			drawdown := peak - v
			if drawdown > stats.MaxDrawdown {
				stats.MaxDrawdown = drawdown
			}
			if peak > 0 {
				if pct := drawdown / peak * 100; pct > stats.MaxDrawdownPct {
					stats.MaxDrawdownPct = pct
				}
			}
		}
	}

	if len(prices) > 0 {
		stats.InitialPrice = round3(prices[0])
		stats.FinalPrice = round3(prices[len(prices)-1])
		stats.PriceChange = round3(prices[len(prices)-1] - prices[0])
		if prices[0] > 0 {
			stats.PriceChangePct = round3((prices[len(prices)-1] - prices[0]) / prices[0] * 100)
		}
		maxP, minP := prices[0], prices[0]
		for _, p := range prices {
			if p > maxP {
				maxP = p
			}
			if p < minP {
				minP = p
			}
		}
		stats.MaxPrice = round3(maxP)
		stats.MinPrice = round3(minP)
	}

	// Sequential buy/sell pairing for win-rate and profit factor.
	type pair struct{ profit float64 }
	var pairs []pair
	buyPrice := 0.0
	haveBuy := false
	for _, h := range history {
		if !h.TradeExecuted {
			continue
		}
		switch h.Signal {
		case domain.SignalBuy:
			buyPrice = h.Price
			haveBuy = true
		case domain.SignalSell:
			if haveBuy {
				pairs = append(pairs, pair{profit: h.Price - buyPrice})
				haveBuy = false
			}
		}
	}

	var winSum, lossSum float64
	for _, p := range pairs {
		if p.profit > 0 {
			stats.WinningTrades++
			winSum += p.profit
		} else if p.profit < 0 {
			stats.LosingTrades++
			lossSum += p.profit
		}
	}
	stats.TotalTradePairs = len(pairs)
	if len(pairs) > 0 {
		stats.WinRate = round2(float64(stats.WinningTrades) / float64(len(pairs)) * 100)
		stats.AvgHoldingPeriod = round1(float64(len(prices)) / float64(len(pairs)))
	}

	avgWin := 0.0
	if stats.WinningTrades > 0 {
		avgWin = winSum / float64(stats.WinningTrades)
	}
	switch {
	case stats.LosingTrades > 0:
		avgLoss := math.Abs(lossSum / float64(stats.LosingTrades))
		if avgLoss > 0 {
			stats.ProfitLossRatio = round3(avgWin / avgLoss)
		}
	case avgWin > 0:
		// No losing pairs: report a capped ratio instead of infinity.
		stats.ProfitLossRatio = 999.999
	}

	stats.SharpeRatio = round3(sharpe(returns))

	stats.MaxDrawdown = round3(stats.MaxDrawdown)
	stats.MaxDrawdownPct = round3(stats.MaxDrawdownPct)

	return stats
}

// sharpe annualises the mean/stddev ratio of per-period returns. Fewer than
// two returns, or a flat series, yields 0.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev * annualFactor
}

// TradeStats summarises the simulated performance of a live trade task.
type TradeStats struct {
	TotalTrades     int     `json:"total_trades"`
	BuyCount        int     `json:"buy_count"`
	SellCount       int     `json:"sell_count"`
	WinRate         float64 `json:"win_rate"`
	TotalProfit     float64 `json:"total_profit"`
	TotalReturnRate float64 `json:"total_return_rate"`
	ProfitLossRatio float64 `json:"profit_loss_ratio"`
	SharpeRatio     float64 `json:"sharpe_ratio"`

	InitialCash       float64 `json:"initial_cash"`
	CurrentCash       float64 `json:"current_cash"`
	CurrentPosition   float64 `json:"current_position"`
	CurrentAssetValue float64 `json:"current_asset_value"`
}

// ComputeTradeStats replays a trade-record sequence against a simulated
// account: each buy allocates 30% of remaining cash with a 0.1% proportional
// commission, each sell closes the oldest open buy order (FIFO pairing).
func ComputeTradeStats(records []domain.TradeRecord, initialCash float64) TradeStats {
	stats := TradeStats{
		InitialCash:       initialCash,
		CurrentCash:       initialCash,
		CurrentAssetValue: initialCash,
	}
	if len(records) == 0 {
		return stats
	}

	type buyOrder struct {
		price    float64
		quantity float64
		amount   float64
	}

	cash := initialCash
	position := 0.0
	var buyOrders []buyOrder
	var completed []float64

	for _, r := range records {
		switch {
		case r.TradeType == domain.SignalBuy && r.Price > 0:
			stats.BuyCount++
			buyAmount := cash * 0.3
			commission := buyAmount * 0.001
			quantity := (buyAmount - commission) / r.Price

			cash -= buyAmount
			position += quantity
			buyOrders = append(buyOrders, buyOrder{price: r.Price, quantity: quantity, amount: buyAmount})

		case r.TradeType == domain.SignalSell && r.Price > 0:
			stats.SellCount++
			if len(buyOrders) == 0 {
				continue
			}
			order := buyOrders[0]
			buyOrders = buyOrders[1:]

			sellQuantity := math.Min(order.quantity, position)
			sellAmount := sellQuantity * r.Price
			commission := sellAmount * 0.001
			actual := sellAmount - commission

			cash += actual
			position -= sellQuantity
			completed = append(completed, actual-order.amount)
		}
	}
	stats.TotalTrades = len(records)

	currentPrice := records[len(records)-1].Price
	assetValue := cash
	if currentPrice > 0 {
		assetValue += position * currentPrice
	}
	totalProfit := assetValue - initialCash

	stats.CurrentCash = round2(cash)
	stats.CurrentPosition = round4(position)
	stats.CurrentAssetValue = round2(assetValue)
	stats.TotalProfit = round2(totalProfit)
	if initialCash > 0 {
		stats.TotalReturnRate = round2(totalProfit / initialCash * 100)
	}

	winning := 0
	var winSum, lossSum float64
	losing := 0
	for _, p := range completed {
		if p > 0 {
			winning++
			winSum += p
		} else if p < 0 {
			losing++
			lossSum += p
		}
	}
	if len(completed) > 0 {
		stats.WinRate = round2(float64(winning) / float64(len(completed)) * 100)
	}
	if losing > 0 && winning > 0 {
		avgWin := winSum / float64(winning)
		avgLoss := math.Abs(lossSum / float64(losing))
		if avgLoss > 0 {
			stats.ProfitLossRatio = round2(avgWin / avgLoss)
		}
	}

	if len(completed) > 1 {
		returns := make([]float64, len(completed))
		for i, p := range completed {
			returns[i] = p / initialCash
		}
		stats.SharpeRatio = round4(sharpe(returns))
	}

	return stats
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
