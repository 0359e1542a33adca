package httpapi

import (
	"quantopia/internal/datagen"
	"quantopia/internal/domain"
)

// GenerateRequest is the body of POST /api/data/generate.
type GenerateRequest struct {
	Length          int     `json:"length"`
	BaseMean        float64 `json:"base_mean"`
	Trend           string  `json:"trend"`
	StartPrice      float64 `json:"start_price"`
	EndPrice        float64 `json:"end_price"`
	VolatilityProb  float64 `json:"volatility_prob"`
	VolatilityScale float64 `json:"volatility_scale"`
	Seed            *int64  `json:"seed"`
}

// GenerateResponse returns the id of a newly generated series.
type GenerateResponse struct {
	FileID string `json:"file_id"`
}

// DataListResponse lists generated and fetched series metadata.
type DataListResponse struct {
	Files []map[string]any `json:"files"`
}

// DataResponse is one loaded series: its header metadata plus the raw
// prices.
type DataResponse struct {
	Metadata map[string]any `json:"metadata"`
	Prices   []float64      `json:"prices"`
}

// BacktestRequest is the body of POST /api/backtest/run. Exactly one of
// FileID and Prices must be set.
type BacktestRequest struct {
	FileID         string             `json:"file_id,omitempty"`
	Prices         []float64          `json:"prices,omitempty"`
	StrategyName   string             `json:"strategy_name"`
	StrategyParams map[string]float64 `json:"strategy_params,omitempty"`

	InitialCash      *float64 `json:"initial_cash,omitempty"`
	Commission       *float64 `json:"commission,omitempty"`
	LotSize          *float64 `json:"lot_size,omitempty"`
	MaxPositionRatio *float64 `json:"max_position_ratio,omitempty"`

	// IncludeHistory asks for the full per-index portfolio trace.
	IncludeHistory bool `json:"include_history,omitempty"`
}

// BacktestResponse wraps a completed run, optionally with the trace.
type BacktestResponse struct {
	RunID         string                `json:"run_id"`
	StrategyName  string                `json:"strategy_name"`
	Stats         any                   `json:"stats"`
	HistoryLength int                   `json:"history_length"`
	History       []domain.HistoryEntry `json:"history,omitempty"`
}

// CreateTaskRequest is the shared body of POST /api/fetch/create and
// POST /api/trade/create. Trade-only fields are ignored for fetch tasks.
type CreateTaskRequest struct {
	Symbol         string              `json:"symbol"`
	Mode           domain.Mode         `json:"mode"`
	Sessions       []string            `json:"sessions,omitempty"`
	Duration       domain.TaskDuration `json:"duration"`
	PriceInterval  domain.Interval     `json:"price_interval"`
	SignalInterval domain.Interval     `json:"signal_interval,omitempty"`
	StrategyName   string              `json:"strategy_name,omitempty"`
	StrategyParams map[string]float64  `json:"strategy_params,omitempty"`
	MaxCacheSize   int                 `json:"max_cache_size,omitempty"`
	InitialCash    float64             `json:"initial_cash,omitempty"`
}

func (r CreateTaskRequest) taskConfig() domain.TaskConfig {
	return domain.TaskConfig{
		Symbol:         r.Symbol,
		Mode:           r.Mode,
		Sessions:       r.Sessions,
		Duration:       r.Duration,
		PriceInterval:  r.PriceInterval,
		SignalInterval: r.SignalInterval,
		StrategyName:   r.StrategyName,
		StrategyParams: r.StrategyParams,
		MaxCacheSize:   r.MaxCacheSize,
		InitialCash:    r.InitialCash,
	}
}

// CreateTaskResponse returns the id of a newly started task.
type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (r GenerateRequest) params() datagen.Params {
	p := datagen.Params{
		Length:          r.Length,
		BaseMean:        r.BaseMean,
		Trend:           datagen.Trend(r.Trend),
		StartPrice:      r.StartPrice,
		EndPrice:        r.EndPrice,
		VolatilityProb:  r.VolatilityProb,
		VolatilityScale: r.VolatilityScale,
	}
	if r.Seed != nil {
		p.Seed = *r.Seed
		p.HasSeed = true
	}
	return p
}
