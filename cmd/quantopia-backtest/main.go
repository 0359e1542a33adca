package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"quantopia/internal/backtest"
	"quantopia/internal/config"
	"quantopia/internal/datagen"
	"quantopia/internal/strategy"
	"quantopia/internal/util"
)

func main() {
	dataID := flag.String("data", "", "id of a generated or fetched price series")
	genLength := flag.Int("generate", 0, "generate a fresh series of this length instead of loading one")
	genTrend := flag.String("trend", "stable", "trend for -generate: up, stable or down")
	genSeed := flag.Int64("seed", 0, "seed for -generate (0 means random)")
	stratName := flag.String("strategy", "MA_Strategy", "strategy name")
	paramsJSON := flag.String("params", "", "strategy params as JSON, e.g. '{\"short_window\":5}'")
	cash := flag.Float64("cash", 0, "initial cash (0 uses the config default)")
	commission := flag.Float64("commission", -1, "fixed per-trade commission (-1 uses the config default)")
	lotSize := flag.Float64("lot", 0, "minimum lot size (0 uses the config default)")
	ratio := flag.Float64("ratio", 0, "max position ratio in (0,1] (0 uses the default)")
	withHistory := flag.Bool("history", false, "include the per-index portfolio trace in the output")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("QUANTOPIA_CONFIG"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)

	gen, err := datagen.NewGenerator(
		filepath.Join(cfg.Storage.DataDir, "generate"),
		filepath.Join(cfg.Storage.DataDir, "fetch"),
	)
	if err != nil {
		log.Fatalf("data generator: %v", err)
	}

	fileID := *dataID
	if fileID == "" {
		if *genLength <= 0 {
			log.Fatal("either -data or -generate is required")
		}
		params := datagen.Params{
			Length: *genLength,
			Trend:  datagen.Trend(*genTrend),
		}
		if *genSeed != 0 {
			params.Seed = *genSeed
			params.HasSeed = true
		}
		fileID, err = gen.Generate(params)
		if err != nil {
			log.Fatalf("generating series: %v", err)
		}
		logger.Info("series generated", "file_id", fileID, "length", *genLength)
	}

	_, prices, err := gen.Load(fileID)
	if err != nil {
		log.Fatalf("loading series %s: %v", fileID, err)
	}

	var params map[string]float64
	if *paramsJSON != "" {
		if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
			log.Fatalf("parsing -params: %v", err)
		}
	}
	strat, err := strategy.NewRegistry().Create(*stratName, params)
	if err != nil {
		log.Fatalf("creating strategy: %v", err)
	}

	runCfg := backtest.Config{
		InitialCash:      cfg.Backtest.InitialCash,
		Commission:       cfg.Backtest.Commission,
		LotSize:          float64(cfg.Backtest.LotSize),
		MaxPositionRatio: 1,
	}
	if *cash > 0 {
		runCfg.InitialCash = *cash
	}
	if *commission >= 0 {
		runCfg.Commission = *commission
	}
	if *lotSize > 0 {
		runCfg.LotSize = *lotSize
	}
	if *ratio > 0 && *ratio <= 1 {
		runCfg.MaxPositionRatio = *ratio
	}

	result, err := backtest.NewEngine(logger).Run(strat, prices, runCfg)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	out := map[string]any{
		"run_id":         result.RunID,
		"strategy_name":  result.StrategyName,
		"stats":          result.Summary,
		"history_length": result.HistoryLength,
	}
	if *withHistory {
		out["history"] = result.History
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
