// Package scheduler runs long-lived fetch and trade tasks as cooperative
// loops with session gating, pause/resume/stop control and crash recovery by
// log replay.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quantopia/internal/domain"
	"quantopia/internal/marketdata"
	"quantopia/internal/metrics"
	"quantopia/internal/session"
	"quantopia/internal/strategy"
	"quantopia/internal/tasklog"
	"quantopia/internal/util"
)

// Client errors surfaced through the control operations.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskTerminal = errors.New("task is in a terminal state")
)

// Options wires a Scheduler's collaborators. Zero fields fall back to
// defaults where noted.
type Options struct {
	Logger     *slog.Logger
	Port       marketdata.Port
	Sessions   *session.Calculator
	Strategies *strategy.Registry
	FetchLogs  *tasklog.Store
	TradeLogs  *tasklog.Store

	// PollInterval is the idle re-check period for paused and out-of-session
	// tasks. Defaults to one second.
	PollInterval time.Duration
	// MaxCacheSize bounds the per-task price cache. Defaults to 100.
	MaxCacheSize int
	// RateLimit throttles port queries when set.
	RateLimit *util.RateLimiter
	// Now supplies the clock, defaulting to time.Now.
	Now func() time.Time
}

// Scheduler owns one cooperative loop per active task.
type Scheduler struct {
	logger     *slog.Logger
	port       marketdata.Port
	sessions   *session.Calculator
	strategies *strategy.Registry
	fetchLogs  *tasklog.Store
	tradeLogs  *tasklog.Store

	pollInterval time.Duration
	maxCacheSize int
	limiter      *util.RateLimiter
	now          func() time.Time

	mu    sync.Mutex
	tasks map[string]*task
	sink  func(Event)
	wg    sync.WaitGroup
}

// New builds a Scheduler from Options.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxCacheSize <= 0 {
		opts.MaxCacheSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		logger:       opts.Logger,
		port:         opts.Port,
		sessions:     opts.Sessions,
		strategies:   opts.Strategies,
		fetchLogs:    opts.FetchLogs,
		tradeLogs:    opts.TradeLogs,
		pollInterval: opts.PollInterval,
		maxCacheSize: opts.MaxCacheSize,
		limiter:      opts.RateLimit,
		now:          opts.Now,
		tasks:        make(map[string]*task),
	}
}

// task is the single authoritative runtime state of one job. Persisted
// header fields are projected through persistHeader on every mutation.
type task struct {
	mu sync.Mutex

	cfg            domain.TaskConfig
	status         domain.TaskStatus
	currentSession string
	startedAt      time.Time
	stopAt         time.Time
	hasStop        bool
	paused         bool

	store  *tasklog.Store
	cancel context.CancelFunc

	// Trade-task state.
	strat        strategy.Strategy
	priceCache   []float64
	priceTimes   []time.Time
	tradeRecords []domain.TradeRecord
	history      []domain.HistoryEntry
	lastSignal   time.Time
	haveSignal   bool
	stats        *metrics.TradeStats
}

func (t *task) header() *tasklog.Header {
	h := &tasklog.Header{
		TaskConfig: t.cfg,
		Status:     t.status,
		StartTime:  t.startedAt.Format(time.RFC3339),
	}
	if t.stats != nil {
		statsCopy := *t.stats
		h.Metrics = &statsCopy
	}
	return h
}

func (t *task) sessionAllowed(label string) bool {
	if len(t.cfg.Sessions) == 0 {
		return true
	}
	for _, s := range t.cfg.Sessions {
		if s == label {
			return true
		}
	}
	return false
}

// persistHeader projects the in-memory state into the log header. Failures
// are logged and swallowed; the in-memory state stays authoritative.
func (s *Scheduler) persistHeader(t *task) {
	t.mu.Lock()
	header := t.header()
	t.mu.Unlock()
	if err := t.store.RewriteHeader(t.cfg.TaskID, header); err != nil {
		s.logger.Warn("header rewrite failed", "task_id", t.cfg.TaskID, "error", err)
	}
}

// setStatus mutates status under the task lock and writes the header through
// when it changed. Returns whether a change happened.
func (s *Scheduler) setStatus(t *task, status domain.TaskStatus) bool {
	t.mu.Lock()
	changed := t.status != status
	t.status = status
	t.mu.Unlock()
	if changed {
		s.persistHeader(t)
		s.publish(t, EventStatus, map[string]any{"status": status})
	}
	return changed
}

// Summary is a list-level view of one task.
type Summary struct {
	TaskID         string            `json:"task_id"`
	Kind           domain.TaskKind   `json:"kind"`
	Symbol         string            `json:"symbol"`
	Mode           domain.Mode       `json:"mode"`
	Status         domain.TaskStatus `json:"status"`
	CurrentSession string            `json:"current_session,omitempty"`
	Sessions       []string          `json:"sessions"`
	StartTime      string            `json:"start_time"`
	StrategyName   string            `json:"strategy_name,omitempty"`
}

// Detail is the full get-level view of one task.
type Detail struct {
	Config         domain.TaskConfig    `json:"config"`
	Status         domain.TaskStatus    `json:"status"`
	CurrentSession string               `json:"current_session,omitempty"`
	StartTime      string               `json:"start_time"`
	Points         []domain.PricePoint  `json:"points,omitempty"`
	Trades         []domain.TradeRecord `json:"trades,omitempty"`
	Metrics        *metrics.TradeStats  `json:"metrics,omitempty"`
}

func (t *task) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		TaskID:         t.cfg.TaskID,
		Kind:           t.cfg.Kind,
		Symbol:         t.cfg.Symbol,
		Mode:           t.cfg.Mode,
		Status:         t.status,
		CurrentSession: t.currentSession,
		Sessions:       t.cfg.Sessions,
		StartTime:      t.startedAt.Format(time.RFC3339),
		StrategyName:   t.cfg.StrategyName,
	}
}

// List returns summaries of all known tasks of the given kind, sorted by
// start time, newest first.
func (s *Scheduler) List(kind domain.TaskKind) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Summary
	for _, t := range s.tasks {
		if t.cfg.Kind != kind {
			continue
		}
		out = append(out, t.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime > out[j].StartTime })
	return out
}

// Get returns the detailed state of one task, including its recent points or
// cached prices and trade records.
func (s *Scheduler) Get(taskID string) (*Detail, error) {
	t, err := s.lookup(taskID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	d := &Detail{
		Config:         t.cfg,
		Status:         t.status,
		CurrentSession: t.currentSession,
		StartTime:      t.startedAt.Format(time.RFC3339),
	}

	switch t.cfg.Kind {
	case domain.TaskFetch:
		if replay, err := t.store.ReplayFetch(t.cfg.TaskID, 200); err == nil {
			d.Points = replay.Points
		}
	case domain.TaskTrade:
		for i, price := range t.priceCache {
			p := domain.PricePoint{Price: price, Session: t.currentSession}
			if i < len(t.priceTimes) {
				p.Timestamp = t.priceTimes[i]
			}
			d.Points = append(d.Points, p)
		}
		d.Trades = append(d.Trades, t.tradeRecords...)
		if t.stats != nil {
			statsCopy := *t.stats
			d.Metrics = &statsCopy
		} else {
			stats := metrics.ComputeTradeStats(t.tradeRecords, t.cfg.InitialCash)
			d.Metrics = &stats
		}
	}
	return d, nil
}

func (s *Scheduler) lookup(taskID string) (*task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t, nil
}

// Pause sets the pause flag. Pausing an already-paused task is a no-op;
// pausing a terminal task is a client error.
func (s *Scheduler) Pause(taskID string) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, t.status)
	}
	t.paused = true
	return nil
}

// Resume clears the pause flag of a paused task.
func (s *Scheduler) Resume(taskID string) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, t.status)
	}
	t.paused = false
	return nil
}

// Stop cancels the task's loop. The loop persists the stopped status on its
// way out; stopping an already-terminal task is a no-op.
func (s *Scheduler) Stop(taskID string) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	cancel := t.cancel
	terminal := t.status.IsTerminal()
	t.mu.Unlock()

	if terminal {
		return nil
	}
	if cancel != nil {
		cancel()
	} else {
		// Recovered task without a live loop.
		s.setStatus(t, domain.StatusStopped)
	}
	return nil
}

// Delete stops the task if needed, removes its log file and forgets it.
func (s *Scheduler) Delete(taskID string) error {
	t, err := s.lookup(taskID)
	if err != nil {
		return err
	}
	if err := s.Stop(taskID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()

	if err := t.store.Delete(taskID); err != nil {
		s.logger.Warn("task log delete failed", "task_id", taskID, "error", err)
	}
	s.logger.Info("task deleted", "task_id", taskID)
	return nil
}

// Shutdown cancels every running loop and waits for them to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, t := range s.tasks {
		t.mu.Lock()
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.Unlock()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// register stores the task and starts its loop goroutine.
func (s *Scheduler) register(t *task, run func(ctx context.Context, t *task)) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	s.mu.Lock()
	s.tasks[t.cfg.TaskID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(ctx, t)
	}()
}

// sleep waits for d or until the context is cancelled, reporting whether the
// context is still alive.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// gate runs the shared per-tick state machine: completion check, pause flag,
// session gating. run reports whether the tick body should execute; alive
// false means the loop must exit, with any terminal status already
// persisted.
func (s *Scheduler) gate(ctx context.Context, t *task) (label string, run, alive bool) {
	now := s.now()

	t.mu.Lock()
	expired := t.hasStop && !now.Before(t.stopAt)
	paused := t.paused
	t.mu.Unlock()

	if expired {
		s.setStatus(t, domain.StatusCompleted)
		s.logger.Info("task completed", "task_id", t.cfg.TaskID)
		return "", false, false
	}

	if paused {
		s.setStatus(t, domain.StatusPaused)
		return "", false, sleep(ctx, s.pollInterval)
	}

	label = s.sessions.Session(t.cfg.Symbol, now)
	t.mu.Lock()
	t.currentSession = label
	allowed := t.sessionAllowed(label)
	t.mu.Unlock()

	if !allowed {
		s.setStatus(t, domain.StatusWaiting)
		return label, false, sleep(ctx, s.pollInterval)
	}

	s.setStatus(t, domain.StatusRunning)
	return label, true, true
}

// finish persists the terminal status after a loop exits.
func (s *Scheduler) finish(t *task, err error) {
	switch {
	case err == nil:
		// Completed; status already persisted by gate.
	case errors.Is(err, context.Canceled):
		s.setStatus(t, domain.StatusStopped)
		s.logger.Info("task stopped", "task_id", t.cfg.TaskID)
	default:
		s.setStatus(t, domain.StatusError(err.Error()))
		s.logger.Error("task failed", "task_id", t.cfg.TaskID, "error", err)
	}
}

// validateCommon rejects malformed configs before any loop starts.
func validateCommon(cfg *domain.TaskConfig) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if cfg.Mode != domain.ModePaper && cfg.Mode != domain.ModeLive {
		return fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	if err := cfg.PriceInterval.Validate(); err != nil {
		return fmt.Errorf("price interval: %w", err)
	}
	if _, _, err := cfg.Duration.TimeDelta(); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return nil
}
