package scheduler

import (
	"context"
	"fmt"

	"quantopia/internal/domain"
	"quantopia/internal/tasklog"
	"quantopia/internal/util"
)

// CreateFetchTask validates the config, creates the task log and starts the
// fetch loop. Returns the generated task id.
func (s *Scheduler) CreateFetchTask(cfg domain.TaskConfig) (string, error) {
	cfg.Kind = domain.TaskFetch
	if err := validateCommon(&cfg); err != nil {
		return "", err
	}
	if cfg.TaskID == "" {
		cfg.TaskID = util.NewID()
	}

	t, err := s.newTask(cfg, s.fetchLogs)
	if err != nil {
		return "", err
	}
	if err := t.store.Create(t.header()); err != nil {
		return "", fmt.Errorf("create fetch log: %w", err)
	}

	s.register(t, s.runFetch)
	s.logger.Info("fetch task created",
		"task_id", cfg.TaskID, "symbol", cfg.Symbol, "mode", cfg.Mode)
	return cfg.TaskID, nil
}

// newTask builds the runtime state for a fresh task.
func (s *Scheduler) newTask(cfg domain.TaskConfig, store *tasklog.Store) (*task, error) {
	span, finite, err := cfg.Duration.TimeDelta()
	if err != nil {
		return nil, err
	}
	now := s.now()
	t := &task{
		cfg:       cfg,
		status:    domain.StatusRunning,
		startedAt: now,
		hasStop:   finite,
		store:     store,
	}
	if finite {
		t.stopAt = now.Add(span)
	}
	return t, nil
}

// runFetch is the fetch-task loop body: one port query and one appended
// price line per interval, gated by session and pause state.
func (s *Scheduler) runFetch(ctx context.Context, t *task) {
	interval, err := t.cfg.PriceInterval.Duration()
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

		if err := s.fetchTick(ctx, t, label); err != nil {
			s.finish(t, err)
			return
		}

		if !sleep(ctx, interval) {
			s.finish(t, context.Canceled)
			return
		}
	}
}

// fetchTick queries the port once and appends the sample. Port failures are
// logged and skipped; log-store failures abort the task.
func (s *Scheduler) fetchTick(ctx context.Context, t *task, label string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return context.Canceled
		}
	}

	quote, err := s.port.LastDoneForSession(ctx, t.cfg.Symbol, label, t.cfg.Mode)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.logger.Warn("quote fetch failed",
			"task_id", t.cfg.TaskID, "symbol", t.cfg.Symbol, "error", err)
		return nil
	}

	sessionLabel := quote.Session
	if sessionLabel == "" {
		sessionLabel = label
	}
	local := s.sessions.LocalTime(t.cfg.Symbol, s.now())
	if err := t.store.AppendPriceSample(t.cfg.TaskID, local, sessionLabel, quote.Price); err != nil {
		return fmt.Errorf("append price sample: %w", err)
	}
	s.publish(t, EventPriceSample, map[string]any{
		"price":   quote.Price,
		"session": sessionLabel,
	})
	return nil
}
