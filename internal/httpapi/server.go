// Package httpapi exposes the platform over HTTP: data generation, backtest
// runs, strategy discovery, fetch/trade task control and a WebSocket feed of
// task state.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"quantopia/internal/backtest"
	"quantopia/internal/datagen"
	"quantopia/internal/domain"
	"quantopia/internal/scheduler"
	"quantopia/internal/strategy"
)

// Server serves the HTTP API.
type Server struct {
	logger     *slog.Logger
	sched      *scheduler.Scheduler
	engine     *backtest.Engine
	gen        *datagen.Generator
	strategies *strategy.Registry

	// backtestCfg supplies run defaults; request fields override per run.
	backtestCfg backtest.Config

	hub *Hub

	// Completed runs, kept in memory for later inspection.
	runsMu sync.Mutex
	runs   map[string]*backtest.Result
}

// NewServer wires the API surface. The hub is started by the caller.
func NewServer(
	logger *slog.Logger,
	sched *scheduler.Scheduler,
	engine *backtest.Engine,
	gen *datagen.Generator,
	strategies *strategy.Registry,
	backtestCfg backtest.Config,
	hub *Hub,
) *Server {
	return &Server{
		logger:      logger,
		sched:       sched,
		engine:      engine,
		gen:         gen,
		strategies:  strategies,
		backtestCfg: backtestCfg,
		hub:         hub,
		runs:        make(map[string]*backtest.Result),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)

	mux.HandleFunc("POST /api/data/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/data/list", s.handleDataList)
	mux.HandleFunc("GET /api/data/{fileID}", s.handleDataGet)
	mux.HandleFunc("DELETE /api/data/{fileID}", s.handleDataDelete)

	mux.HandleFunc("GET /api/strategies/list", s.handleStrategies)

	mux.HandleFunc("POST /api/backtest/create", s.handleBacktest)
	mux.HandleFunc("GET /api/backtest/list", s.handleBacktestList)
	mux.HandleFunc("GET /api/backtest/{runID}", s.handleBacktestGet)
	mux.HandleFunc("DELETE /api/backtest/{runID}", s.handleBacktestDelete)

	for _, kind := range []domain.TaskKind{domain.TaskFetch, domain.TaskTrade} {
		prefix := "/api/" + string(kind)
		mux.HandleFunc("POST "+prefix+"/create", s.handleTaskCreate(kind))
		mux.HandleFunc("GET "+prefix+"/list", s.handleTaskList(kind))
		mux.HandleFunc("GET "+prefix+"/{taskID}", s.handleTaskGet)
		mux.HandleFunc("POST "+prefix+"/{taskID}/pause", s.taskAction(s.sched.Pause))
		mux.HandleFunc("POST "+prefix+"/{taskID}/resume", s.taskAction(s.sched.Resume))
		mux.HandleFunc("POST "+prefix+"/{taskID}/stop", s.taskAction(s.sched.Stop))
		mux.HandleFunc("DELETE "+prefix+"/{taskID}", s.taskAction(s.sched.Delete))
	}

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.handleWebSocket)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeTaskError maps scheduler errors onto HTTP statuses.
func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrTaskTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ----- data endpoints -----

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !readJSON(w, r, &req) {
		return
	}
	fileID, err := s.gen.Generate(req.params())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("series generated", "file_id", fileID)
	writeJSON(w, GenerateResponse{FileID: fileID})
}

func (s *Server) handleDataList(w http.ResponseWriter, r *http.Request) {
	files := s.gen.List()
	if files == nil {
		files = []map[string]any{}
	}
	writeJSON(w, DataListResponse{Files: files})
}

func (s *Server) handleDataGet(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	meta, prices, err := s.gen.Load(fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("data file %s not found", fileID))
		return
	}
	writeJSON(w, DataResponse{Metadata: meta, Prices: prices})
}

func (s *Server) handleDataDelete(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	if err := s.gen.Delete(fileID); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("data file %s not found", fileID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----- strategy and backtest endpoints -----

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"service": "quantopia",
		"status":  "ok",
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"strategies": s.strategies.List()})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !readJSON(w, r, &req) {
		return
	}

	prices := req.Prices
	if req.FileID != "" {
		if len(prices) > 0 {
			writeError(w, http.StatusBadRequest, "file_id and prices are mutually exclusive")
			return
		}
		var err error
		_, prices, err = s.gen.Load(req.FileID)
		if err != nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("data file %s not found", req.FileID))
			return
		}
	}

	strat, err := s.strategies.Create(req.StrategyName, req.StrategyParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.backtestCfg
	if req.InitialCash != nil {
		cfg.InitialCash = *req.InitialCash
	}
	if req.Commission != nil {
		cfg.Commission = *req.Commission
	}
	if req.LotSize != nil {
		cfg.LotSize = *req.LotSize
	}
	if req.MaxPositionRatio != nil {
		cfg.MaxPositionRatio = *req.MaxPositionRatio
	}

	result, err := s.engine.Run(strat, prices, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.runsMu.Lock()
	s.runs[result.RunID] = result
	s.runsMu.Unlock()

	resp := BacktestResponse{
		RunID:         result.RunID,
		StrategyName:  result.StrategyName,
		Stats:         result.Summary,
		HistoryLength: result.HistoryLength,
	}
	if req.IncludeHistory {
		resp.History = result.History
	}
	writeJSON(w, resp)
}

func (s *Server) handleBacktestList(w http.ResponseWriter, r *http.Request) {
	s.runsMu.Lock()
	runs := make([]BacktestResponse, 0, len(s.runs))
	for _, result := range s.runs {
		runs = append(runs, BacktestResponse{
			RunID:         result.RunID,
			StrategyName:  result.StrategyName,
			Stats:         result.Summary,
			HistoryLength: result.HistoryLength,
		})
	}
	s.runsMu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleBacktestGet(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	s.runsMu.Lock()
	result, ok := s.runs[runID]
	s.runsMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("backtest run %s not found", runID))
		return
	}
	writeJSON(w, BacktestResponse{
		RunID:         result.RunID,
		StrategyName:  result.StrategyName,
		Stats:         result.Summary,
		HistoryLength: result.HistoryLength,
		History:       result.History,
	})
}

func (s *Server) handleBacktestDelete(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	s.runsMu.Lock()
	_, ok := s.runs[runID]
	delete(s.runs, runID)
	s.runsMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("backtest run %s not found", runID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----- task endpoints -----

func (s *Server) handleTaskCreate(kind domain.TaskKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTaskRequest
		if !readJSON(w, r, &req) {
			return
		}
		cfg := req.taskConfig()

		var (
			taskID string
			err    error
		)
		switch kind {
		case domain.TaskFetch:
			taskID, err = s.sched.CreateFetchTask(cfg)
		default:
			taskID, err = s.sched.CreateTradeTask(cfg)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, CreateTaskResponse{TaskID: taskID})
	}
}

func (s *Server) handleTaskList(kind domain.TaskKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks := s.sched.List(kind)
		if tasks == nil {
			tasks = []scheduler.Summary{}
		}
		writeJSON(w, map[string]any{"tasks": tasks})
	}
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	detail, err := s.sched.Get(r.PathValue("taskID"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, detail)
}

func (s *Server) taskAction(action func(taskID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := r.PathValue("taskID")
		if err := action(taskID); err != nil {
			writeTaskError(w, err)
			return
		}
		writeJSON(w, map[string]string{"task_id": taskID, "result": "ok"})
	}
}
