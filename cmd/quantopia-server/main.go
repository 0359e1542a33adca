package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantopia/internal/backtest"
	"quantopia/internal/config"
	"quantopia/internal/datagen"
	"quantopia/internal/httpapi"
	"quantopia/internal/marketdata"
	"quantopia/internal/scheduler"
	"quantopia/internal/session"
	"quantopia/internal/strategy"
	"quantopia/internal/tasklog"
	"quantopia/internal/util"
)

func main() {
	// Ignore error so the server still starts when .env is missing.
	_ = godotenv.Load()

	cfgPath := os.Getenv("QUANTOPIA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	fetchLogs, err := tasklog.NewStore(filepath.Join(cfg.Storage.DataDir, "fetch"))
	if err != nil {
		log.Fatalf("fetch log store: %v", err)
	}
	tradeLogs, err := tasklog.NewStore(filepath.Join(cfg.Storage.LogDir, "trade"))
	if err != nil {
		log.Fatalf("trade log store: %v", err)
	}
	gen, err := datagen.NewGenerator(
		filepath.Join(cfg.Storage.DataDir, "generate"),
		filepath.Join(cfg.Storage.DataDir, "fetch"),
	)
	if err != nil {
		log.Fatalf("data generator: %v", err)
	}
	calc, err := session.NewCalculator()
	if err != nil {
		log.Fatalf("session calculator: %v", err)
	}

	var port marketdata.Port
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		port = marketdata.NewAlpacaPort(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
		logger.Info("market data source", "port", "alpaca")
	} else {
		port = marketdata.NewSimulatorPort(100, 0.5, time.Now().UnixNano())
		logger.Warn("no Alpaca credentials, using simulated quotes")
	}

	strategies := strategy.NewRegistry()
	sched := scheduler.New(scheduler.Options{
		Logger:       logger,
		Port:         port,
		Sessions:     calc,
		Strategies:   strategies,
		FetchLogs:    fetchLogs,
		TradeLogs:    tradeLogs,
		PollInterval: time.Duration(cfg.Scheduler.PollIntervalSec) * time.Second,
		MaxCacheSize: cfg.Scheduler.MaxCacheSize,
		RateLimit:    util.NewRateLimiter(cfg.Scheduler.RateLimitPerMin),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := httpapi.NewHub(logger, sched)
	sched.SetEventSink(hub.PublishEvent)
	go hub.Run(ctx, time.Second)

	sched.Recover()

	backtestCfg := backtest.Config{
		InitialCash:      cfg.Backtest.InitialCash,
		Commission:       cfg.Backtest.Commission,
		LotSize:          float64(cfg.Backtest.LotSize),
		MaxPositionRatio: 1,
	}
	srv := httpapi.NewServer(logger, sched, backtest.NewEngine(logger), gen,
		strategies, backtestCfg, hub)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("quantopia server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	sched.Shutdown()
}
