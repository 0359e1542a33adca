package scheduler

import (
	"context"
	"fmt"
	"time"

	"quantopia/internal/domain"
	"quantopia/internal/metrics"
	"quantopia/internal/tasklog"
)

// Recover scans both log stores on startup and re-registers every
// non-terminal task. Recovered tasks come back paused so an operator can
// inspect them before resuming; their caches are rebuilt by replaying the
// log body.
func (s *Scheduler) Recover() {
	s.recoverStore(s.fetchLogs, domain.TaskFetch)
	s.recoverStore(s.tradeLogs, domain.TaskTrade)
}

func (s *Scheduler) recoverStore(store *tasklog.Store, kind domain.TaskKind) {
	if store == nil {
		return
	}
	ids, err := store.List()
	if err != nil {
		s.logger.Warn("task log scan failed", "kind", kind, "error", err)
		return
	}
	for _, id := range ids {
		header, err := store.ReadHeader(id)
		if err != nil {
			s.logger.Warn("corrupt task log skipped", "task_id", id, "error", err)
			continue
		}
		if header.Status.IsTerminal() {
			continue
		}
		if err := s.recoverTask(store, kind, header); err != nil {
			s.logger.Warn("task recovery failed", "task_id", id, "error", err)
		}
	}
}

func (s *Scheduler) recoverTask(store *tasklog.Store, kind domain.TaskKind, header *tasklog.Header) error {
	cfg := header.TaskConfig
	cfg.Kind = kind

	t, err := s.newTask(cfg, store)
	if err != nil {
		return err
	}
	if startedAt, perr := time.Parse(time.RFC3339, header.StartTime); perr == nil {
		t.startedAt = startedAt
		if span, finite, derr := cfg.Duration.TimeDelta(); derr == nil && finite {
			t.stopAt = startedAt.Add(span)
		}
	}
	t.paused = true
	t.status = domain.StatusPaused

	var run func(ctx context.Context, t *task)
	switch kind {
	case domain.TaskFetch:
		run = s.runFetch

	case domain.TaskTrade:
		strat, err := s.strategies.Create(cfg.StrategyName, cfg.StrategyParams)
		if err != nil {
			return err
		}
		t.strat = strat

		max := cfg.MaxCacheSize
		if max <= 0 {
			max = s.maxCacheSize
		}
		replay, err := store.ReplayTrade(cfg.TaskID, max)
		if err != nil {
			return err
		}
		t.priceCache = replay.Prices
		t.priceTimes = replay.Timestamps
		t.tradeRecords = replay.Trades
		initialCash := cfg.InitialCash
		if initialCash <= 0 {
			initialCash = 100000
		}
		stats := s.replayStats(replay, header, initialCash)
		t.stats = &stats
		run = s.runTrade

	default:
		return fmt.Errorf("unknown task kind %q", kind)
	}

	s.persistHeader(t)
	s.register(t, run)
	s.logger.Info("task recovered", "task_id", cfg.TaskID, "kind", kind,
		"previous_status", header.Status)
	return nil
}

// replayStats prefers the persisted header metrics and falls back to
// recomputing from the replayed trade records.
func (s *Scheduler) replayStats(replay *tasklog.TradeReplay, header *tasklog.Header, initialCash float64) metrics.TradeStats {
	if header.Metrics != nil {
		return *header.Metrics
	}
	return metrics.ComputeTradeStats(replay.Trades, initialCash)
}
