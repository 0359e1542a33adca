package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quantopia/internal/backtest"
	"quantopia/internal/datagen"
	"quantopia/internal/domain"
	"quantopia/internal/marketdata"
	"quantopia/internal/scheduler"
	"quantopia/internal/session"
	"quantopia/internal/strategy"
	"quantopia/internal/tasklog"
	"quantopia/internal/util"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	logger := util.NewLogger("error")
	fetchLogs, err := tasklog.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("fetch store: %v", err)
	}
	tradeLogs, err := tasklog.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("trade store: %v", err)
	}
	calc, err := session.NewCalculator()
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	gen, err := datagen.NewGenerator(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("generator: %v", err)
	}

	sched := scheduler.New(scheduler.Options{
		Logger:       logger,
		Port:         marketdata.NewSimulatorPort(100, 0.5, 7),
		Sessions:     calc,
		Strategies:   strategy.NewRegistry(),
		FetchLogs:    fetchLogs,
		TradeLogs:    tradeLogs,
		PollInterval: 2 * time.Millisecond,
	})
	t.Cleanup(sched.Shutdown)

	srv := NewServer(logger, sched, backtest.NewEngine(logger), gen,
		strategy.NewRegistry(), backtest.DefaultConfig(), nil)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestDataGenerateLoadDelete(t *testing.T) {
	h := newTestServer(t)

	seed := int64(99)
	rec := doJSON(t, h, http.MethodPost, "/api/data/generate", GenerateRequest{
		Length: 50, Trend: "up", StartPrice: 90, EndPrice: 110, Seed: &seed,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body)
	}
	gen := decode[GenerateResponse](t, rec)
	if len(gen.FileID) != 8 {
		t.Fatalf("file id = %q, want 8 chars", gen.FileID)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/data/"+gen.FileID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	data := decode[DataResponse](t, rec)
	if len(data.Prices) != 50 {
		t.Errorf("got %d prices, want 50", len(data.Prices))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/data/list", nil)
	list := decode[DataListResponse](t, rec)
	if len(list.Files) != 1 {
		t.Errorf("got %d files, want 1", len(list.Files))
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/data/"+gen.FileID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/data/"+gen.FileID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestStrategiesList(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/strategies/list", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[map[string][]strategy.Info](t, rec)
	names := map[string]bool{}
	for _, info := range resp["strategies"] {
		names[info.Name] = true
	}
	if !names["MA_Strategy"] || !names["MultiFactor_Strategy"] {
		t.Errorf("strategies = %v, want both builtins", names)
	}
}

func TestBacktestRun(t *testing.T) {
	h := newTestServer(t)

	req := BacktestRequest{
		Prices:         []float64{10, 9, 8, 10, 12, 14, 12, 9, 7},
		StrategyName:   "MA_Strategy",
		StrategyParams: map[string]float64{"short_window": 2, "long_window": 3},
	}
	rec := doJSON(t, h, http.MethodPost, "/api/backtest/create", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[BacktestResponse](t, rec)
	if resp.RunID == "" {
		t.Error("run id is empty")
	}
	if resp.HistoryLength != len(req.Prices) {
		t.Errorf("history length = %d, want %d", resp.HistoryLength, len(req.Prices))
	}
	if resp.History != nil {
		t.Error("history returned without include_history")
	}
}

func TestBacktestRunIndex(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/backtest/create", BacktestRequest{
		Prices:         []float64{10, 9, 8, 10, 12, 14, 12, 9, 7},
		StrategyName:   "MA_Strategy",
		StrategyParams: map[string]float64{"short_window": 2, "long_window": 3},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[BacktestResponse](t, rec)

	rec = doJSON(t, h, http.MethodGet, "/api/backtest/list", nil)
	list := decode[map[string][]BacktestResponse](t, rec)
	if len(list["runs"]) != 1 {
		t.Fatalf("got %d runs, want 1", len(list["runs"]))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/backtest/"+created.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	full := decode[BacktestResponse](t, rec)
	if len(full.History) != full.HistoryLength {
		t.Errorf("history has %d entries, header says %d", len(full.History), full.HistoryLength)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/backtest/"+created.RunID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/backtest/"+created.RunID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestRootBanner(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	banner := decode[map[string]string](t, rec)
	if banner["service"] != "quantopia" {
		t.Errorf("service = %q, want quantopia", banner["service"])
	}
}

func TestBacktestRejectsAmbiguousInput(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/backtest/create", BacktestRequest{
		FileID:       "abcd1234",
		Prices:       []float64{1, 2, 3},
		StrategyName: "MA_Strategy",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBacktestUnknownStrategy(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/backtest/create", BacktestRequest{
		Prices:       []float64{1, 2, 3},
		StrategyName: "NoSuchStrategy",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFetchTaskLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/fetch/create", CreateTaskRequest{
		Symbol:        "AAPL",
		Mode:          domain.ModePaper,
		Duration:      domain.TaskDuration{Mode: "permanent"},
		PriceInterval: domain.Interval{Value: 1, Unit: "seconds"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[CreateTaskResponse](t, rec)
	if created.TaskID == "" {
		t.Fatal("task id is empty")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/fetch/list", nil)
	list := decode[map[string][]scheduler.Summary](t, rec)
	if len(list["tasks"]) != 1 {
		t.Fatalf("got %d tasks, want 1", len(list["tasks"]))
	}

	rec = doJSON(t, h, http.MethodPost, "/api/fetch/"+created.TaskID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/fetch/"+created.TaskID+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}

	waitStopped(t, h, created.TaskID)
	rec = doJSON(t, h, http.MethodPost, "/api/fetch/"+created.TaskID+"/resume", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("resume after stop status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/fetch/"+created.TaskID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/fetch/"+created.TaskID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestTaskNotFound(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/trade/nope0000/pause", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func waitStopped(t *testing.T, h http.Handler, taskID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, h, http.MethodGet, "/api/fetch/"+taskID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}
		d := decode[scheduler.Detail](t, rec)
		if d.Status == "stopped" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never reached stopped")
}
