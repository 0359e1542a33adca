package scheduler

import (
	"context"
	"fmt"
	"time"

	"quantopia/internal/domain"
	"quantopia/internal/metrics"
	"quantopia/internal/util"
)

// CreateTradeTask validates the config, instantiates the strategy, creates
// the task log and starts the simulated-trading loop.
func (s *Scheduler) CreateTradeTask(cfg domain.TaskConfig) (string, error) {
	cfg.Kind = domain.TaskTrade
	if err := validateCommon(&cfg); err != nil {
		return "", err
	}
	if err := cfg.SignalInterval.Validate(); err != nil {
		return "", fmt.Errorf("signal interval: %w", err)
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = s.maxCacheSize
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 100000
	}
	strat, err := s.strategies.Create(cfg.StrategyName, cfg.StrategyParams)
	if err != nil {
		return "", err
	}
	if cfg.TaskID == "" {
		cfg.TaskID = util.NewID()
	}

	t, err := s.newTask(cfg, s.tradeLogs)
	if err != nil {
		return "", err
	}
	t.strat = strat
	stats := metrics.ComputeTradeStats(nil, cfg.InitialCash)
	t.stats = &stats

	if err := t.store.Create(t.header()); err != nil {
		return "", fmt.Errorf("create trade log: %w", err)
	}

	s.register(t, s.runTrade)
	s.logger.Info("trade task created",
		"task_id", cfg.TaskID, "symbol", cfg.Symbol,
		"strategy", cfg.StrategyName, "mode", cfg.Mode)
	return cfg.TaskID, nil
}

// runTrade is the trade-task loop body: sample a price, maybe run the
// strategy, record executed trades.
func (s *Scheduler) runTrade(ctx context.Context, t *task) {
	priceInterval, err := t.cfg.PriceInterval.Duration()
	if err != nil {
		s.finish(t, err)
		return
	}
	signalInterval, err := t.cfg.SignalInterval.Duration()
	if err != nil {
		s.finish(t, err)
		return
	}

	for {
		if ctx.Err() != nil {
			s.finish(t, context.Canceled)
			return
		}
		label, run, alive := s.gate(ctx, t)
		if !alive {
			if ctx.Err() != nil {
				s.finish(t, context.Canceled)
			}
			return
		}
		if !run {
			continue
		}

		if err := s.tradeTick(ctx, t, label, signalInterval); err != nil {
			s.finish(t, err)
			return
		}

		if !sleep(ctx, priceInterval) {
			s.finish(t, context.Canceled)
			return
		}
	}
}

// tradeTick runs one trade-task iteration. Port failures become error
// entries in the log and the loop continues; log-store failures abort.
func (s *Scheduler) tradeTick(ctx context.Context, t *task, label string, signalInterval time.Duration) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return context.Canceled
		}
	}

	now := s.now()
	local := s.sessions.LocalTime(t.cfg.Symbol, now)

	quote, err := s.port.LastDoneForSession(ctx, t.cfg.Symbol, label, t.cfg.Mode)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.logger.Warn("quote fetch failed",
			"task_id", t.cfg.TaskID, "symbol", t.cfg.Symbol, "error", err)
		if aerr := t.store.AppendEntry(t.cfg.TaskID, local, domain.EntryError,
			map[string]any{"message": err.Error()}); aerr != nil {
			return fmt.Errorf("append error entry: %w", aerr)
		}
		return nil
	}

	sessionLabel := quote.Session
	if sessionLabel == "" {
		sessionLabel = label
	}

	t.mu.Lock()
	t.pushPrice(quote.Price, local, t.cfg.MaxCacheSize)
	runSignal := len(t.priceCache) >= 2 &&
		(!t.haveSignal || now.Sub(t.lastSignal) >= signalInterval)
	t.mu.Unlock()

	if err := t.store.AppendEntry(t.cfg.TaskID, local, domain.EntryPriceSample,
		map[string]any{"price": quote.Price, "session": sessionLabel}); err != nil {
		return fmt.Errorf("append price sample: %w", err)
	}
	s.publish(t, EventPriceSample, map[string]any{
		"price":   quote.Price,
		"session": sessionLabel,
	})

	if !runSignal {
		return nil
	}
	return s.signalTick(t, local, sessionLabel, now)
}

// pushPrice appends one sample to the bounded cache, keeping prices and
// timestamps in lock step. Caller holds t.mu.
func (t *task) pushPrice(price float64, ts time.Time, max int) {
	t.priceCache = append(t.priceCache, price)
	t.priceTimes = append(t.priceTimes, ts)
	if len(t.priceTimes) != len(t.priceCache) {
		// Divergence repair after a partial recovery.
		for len(t.priceTimes) < len(t.priceCache) {
			t.priceTimes = append(t.priceTimes, ts)
		}
		t.priceTimes = t.priceTimes[:len(t.priceCache)]
	}
	if max > 0 && len(t.priceCache) > max {
		t.priceCache = t.priceCache[len(t.priceCache)-max:]
		t.priceTimes = t.priceTimes[len(t.priceTimes)-max:]
	}
}

// signalTick runs the strategy over the current cache, logs the signal and
// records an executed trade when the strategy says buy or sell.
func (s *Scheduler) signalTick(t *task, local time.Time, sessionLabel string, now time.Time) error {
	t.mu.Lock()
	prices := make([]float64, len(t.priceCache))
	copy(prices, t.priceCache)
	history := t.history
	strat := t.strat
	t.mu.Unlock()

	index := len(prices) - 1
	sig, info := strat.GenerateSignal(prices, index, history)

	if err := t.store.AppendEntry(t.cfg.TaskID, local, domain.EntryStrategySignal,
		map[string]any{"signal": string(sig), "info": info}); err != nil {
		return fmt.Errorf("append strategy signal: %w", err)
	}

	executed := sig == domain.SignalBuy || sig == domain.SignalSell
	var record domain.TradeRecord
	if executed {
		record = domain.TradeRecord{
			Timestamp:  local,
			TradeType:  sig,
			Price:      prices[index],
			SignalInfo: info,
			Session:    sessionLabel,
		}
		if err := t.store.AppendEntry(t.cfg.TaskID, local, domain.EntryTrade,
			map[string]any{
				"trade_type":  string(record.TradeType),
				"price":       record.Price,
				"signal_info": record.SignalInfo,
				"session":     record.Session,
			}); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
		s.logger.Info("trade executed",
			"task_id", t.cfg.TaskID, "type", sig, "price", record.Price)
	}

	t.mu.Lock()
	t.lastSignal = now
	t.haveSignal = true
	if executed {
		t.tradeRecords = append(t.tradeRecords, record)
		stats := metrics.ComputeTradeStats(t.tradeRecords, t.cfg.InitialCash)
		t.stats = &stats
	}
	position := 0.0
	if t.stats != nil {
		position = t.stats.CurrentPosition
	}
	t.history = append(t.history, domain.HistoryEntry{
		Index:         index,
		Price:         prices[index],
		Signal:        sig,
		StrategyInfo:  info,
		Position:      position,
		TradeExecuted: executed,
	})
	if max := t.cfg.MaxCacheSize; max > 0 && len(t.history) > max {
		t.history = t.history[len(t.history)-max:]
	}
	t.mu.Unlock()

	if executed {
		s.persistHeader(t)
		s.publish(t, EventTrade, map[string]any{
			"trade_type":  string(record.TradeType),
			"price":       record.Price,
			"signal_info": record.SignalInfo,
			"session":     record.Session,
		})
	}
	return nil
}
