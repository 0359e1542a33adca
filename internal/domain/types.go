// Package domain defines the core value types shared across the quantopia
// platform: trading signals, price points, task configuration, and the
// records written to task logs.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Signal is a trading signal emitted by a strategy for a single tick.
type Signal string

// Signal values.
const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Mode selects between simulated and real market-data access.
type Mode string

// Mode values.
const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// TaskKind distinguishes the two long-running task flavours.
type TaskKind string

// TaskKind values.
const (
	TaskFetch TaskKind = "fetch"
	TaskTrade TaskKind = "trade"
)

// TaskStatus is the scheduler-derived task state. Error states carry their
// message inline ("error: <msg>") so the full string round-trips through
// the log header unchanged.
type TaskStatus string

// TaskStatus values.
const (
	StatusRunning   TaskStatus = "running"
	StatusWaiting   TaskStatus = "waiting"
	StatusPaused    TaskStatus = "paused"
	StatusStopped   TaskStatus = "stopped"
	StatusCompleted TaskStatus = "completed"
)

// StatusError builds the error status for the given message.
func StatusError(msg string) TaskStatus {
	return TaskStatus("error: " + msg)
}

// IsError reports whether s is an error status.
func (s TaskStatus) IsError() bool {
	return strings.HasPrefix(string(s), "error")
}

// IsTerminal reports whether s is a state no loop will leave.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusStopped || s == StatusCompleted || s.IsError()
}

// LogEntryType tags a body line in a trade-task log.
type LogEntryType string

// Log entry types.
const (
	EntryPriceSample    LogEntryType = "price_sample"
	EntryTrade          LogEntryType = "trade"
	EntryError          LogEntryType = "error"
	EntryStrategySignal LogEntryType = "strategy_signal"
)

// PricePoint is a single sampled price with its session label and
// market-local timestamp.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	Price     float64   `json:"price"`
}

// Quote is the market-data port's answer for one symbol/session query.
type Quote struct {
	Price   float64
	Session string
}

// TradeRecord is one executed (simulated) trade. Immutable once appended
// to a task log; consumed both for display and for derived metrics.
type TradeRecord struct {
	Timestamp  time.Time      `json:"-"`
	TradeType  Signal         `json:"trade_type"`
	Price      float64        `json:"price"`
	SignalInfo map[string]any `json:"signal_info"`
	Session    string         `json:"session"`
}

// HistoryEntry is one row of the backtest's per-index portfolio trace.
type HistoryEntry struct {
	Index         int            `json:"index"`
	Price         float64        `json:"price"`
	Signal        Signal         `json:"signal"`
	StrategyInfo  map[string]any `json:"strategy_info"`
	Cash          float64        `json:"cash"`
	Position      float64        `json:"position"`
	TradeExecuted bool           `json:"trade_executed"`
}

// Interval is a polling cadence expressed as value + unit.
type Interval struct {
	Value int    `json:"value" yaml:"value"`
	Unit  string `json:"unit" yaml:"unit"`
}

// Duration returns the interval as a time.Duration. Values below one unit
// are clamped up to one.
func (iv Interval) Duration() (time.Duration, error) {
	v := iv.Value
	if v < 1 {
		v = 1
	}
	switch {
	case strings.HasPrefix(strings.ToLower(iv.Unit), "sec"):
		return time.Duration(v) * time.Second, nil
	case strings.HasPrefix(strings.ToLower(iv.Unit), "min"):
		return time.Duration(v) * time.Minute, nil
	case strings.HasPrefix(strings.ToLower(iv.Unit), "hour"):
		return time.Duration(v) * time.Hour, nil
	}
	return 0, fmt.Errorf("interval unit must be seconds/minutes/hours, got %q", iv.Unit)
}

// Validate rejects non-positive values and unknown units.
func (iv Interval) Validate() error {
	if iv.Value <= 0 {
		return fmt.Errorf("interval value must be positive, got %d", iv.Value)
	}
	_, err := iv.Duration()
	return err
}

// TaskDuration bounds a task's lifetime: permanent, or a finite span.
type TaskDuration struct {
	Mode    string `json:"mode" yaml:"mode"` // "permanent" | "finite"
	Days    int    `json:"days" yaml:"days"`
	Hours   int    `json:"hours" yaml:"hours"`
	Minutes int    `json:"minutes" yaml:"minutes"`
	Seconds int    `json:"seconds" yaml:"seconds"`
}

// TimeDelta returns the finite span and true, or zero and false for a
// permanent duration. A finite duration of zero length is invalid.
func (d TaskDuration) TimeDelta() (time.Duration, bool, error) {
	if d.Mode == "" || d.Mode == "permanent" {
		return 0, false, nil
	}
	if d.Mode != "finite" {
		return 0, false, fmt.Errorf("duration mode must be permanent or finite, got %q", d.Mode)
	}
	total := time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
	if total <= 0 {
		return 0, false, fmt.Errorf("finite duration must be positive")
	}
	return total, true, nil
}

// TaskConfig is the immutable configuration of a scheduler task. Only the
// runtime status (kept alongside, not here) changes after creation.
type TaskConfig struct {
	TaskID         string             `json:"task_id"`
	Kind           TaskKind           `json:"kind"`
	Symbol         string             `json:"symbol"`
	Mode           Mode               `json:"mode"`
	Sessions       []string           `json:"sessions"`
	Duration       TaskDuration       `json:"duration"`
	PriceInterval  Interval           `json:"price_interval"`
	SignalInterval Interval           `json:"signal_interval,omitempty"`
	StrategyName   string             `json:"strategy_name,omitempty"`
	StrategyParams map[string]float64 `json:"strategy_params,omitempty"`
	MaxCacheSize   int                `json:"max_cache_size,omitempty"`
	InitialCash    float64            `json:"initial_cash,omitempty"`
}
