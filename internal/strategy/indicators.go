package strategy

// Technical indicator primitives shared by the built-in strategies. All
// functions operate on a price series and an inclusive end index, and report
// availability through a second return value instead of sentinel prices.

// SMA returns the simple moving average of the window samples ending at end.
func SMA(prices []float64, window, end int) (float64, bool) {
	if window <= 0 || end < window-1 || end >= len(prices) {
		return 0, false
	}
	sum := 0.0
	for i := end - window + 1; i <= end; i++ {
		sum += prices[i]
	}
	return sum / float64(window), true
}

// EMA returns the exponential moving average with the given period at end,
// seeded with the SMA of the first period samples and iterated forward.
func EMA(prices []float64, period, end int) (float64, bool) {
	if period <= 0 || end < period-1 || end >= len(prices) {
		return 0, false
	}
	seed, ok := SMA(prices, period, period-1)
	if !ok {
		return 0, false
	}
	multiplier := 2.0 / float64(period+1)
	ema := seed
	for i := period; i <= end; i++ {
		ema = (prices[i]-ema)*multiplier + ema
	}
	return ema, true
}

// RSI returns the relative strength index over the period price changes
// ending at end. A window with no losses yields 100.
func RSI(prices []float64, period, end int) (float64, bool) {
	if period <= 0 || end < period || end >= len(prices) {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := end - period + 1; i <= end; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACDResult holds the MACD line and, when enough history exists, the signal
// line and histogram. SignalLine and Histogram are nil until the signal-line
// EMA has a full seed window.
type MACDResult struct {
	MACDLine   float64
	SignalLine *float64
	Histogram  *float64
	FastEMA    float64
	SlowEMA    float64
}

// MACD computes the moving average convergence divergence at end using the
// fast/slow EMA periods and a signal-line EMA over the MACD series.
func MACD(prices []float64, fast, slow, signal, end int) (MACDResult, bool) {
	if end < slow-1 {
		return MACDResult{}, false
	}
	fastEMA, okF := EMA(prices, fast, end)
	slowEMA, okS := EMA(prices, slow, end)
	if !okF || !okS {
		return MACDResult{}, false
	}

	res := MACDResult{
		MACDLine: fastEMA - slowEMA,
		FastEMA:  fastEMA,
		SlowEMA:  slowEMA,
	}

	// The signal line is an EMA of the MACD series itself, which only exists
	// from index slow-1 onward.
	macdValues := make([]float64, 0, end-slow+2)
	for i := slow - 1; i <= end; i++ {
		f, okf := EMA(prices, fast, i)
		s, oks := EMA(prices, slow, i)
		if okf && oks {
			macdValues = append(macdValues, f-s)
		}
	}
	if len(macdValues) >= signal {
		seed := 0.0
		for _, v := range macdValues[:signal] {
			seed += v
		}
		seed /= float64(signal)
		multiplier := 2.0 / float64(signal+1)
		line := seed
		for _, v := range macdValues[signal:] {
			line = (v-line)*multiplier + line
		}
		hist := res.MACDLine - line
		res.SignalLine = &line
		res.Histogram = &hist
	}

	return res, true
}
