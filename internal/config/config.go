// Package config loads platform configuration from YAML and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantopia platform.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Server    Server          `yaml:"server"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Logging   Logging         `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Backtest  BacktestConfig  `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	// LogDir is where per-task append-only log files are written.
	LogDir string `yaml:"log_dir"`
	// DataDir is where generated and uploaded price series live.
	DataDir string `yaml:"data_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig controls live-task behaviour.
type SchedulerConfig struct {
	// MaxCacheSize caps the in-memory price cache per trade task.
	MaxCacheSize int `yaml:"max_cache_size"`
	// PollInterval is the idle re-check period in seconds for paused and
	// out-of-session tasks.
	PollIntervalSec int `yaml:"poll_interval_sec"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// BacktestConfig defines default simulation parameters.
type BacktestConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
	Commission  float64 `yaml:"commission"`
	LotSize     int     `yaml:"lot_size"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with sensible defaults, used when no
// configuration file is supplied.
func Default() *Config {
	return &Config{
		Storage: Storage{
			LogDir:  "task_logs",
			DataDir: "data",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			MaxCacheSize:    100,
			PollIntervalSec: 1,
			RateLimitPerMin: 200,
		},
		Backtest: BacktestConfig{
			InitialCash: 100000,
			Commission:  5,
			LotSize:     1,
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct on top of the defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Storage.LogDir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca SDK env vars take priority over the ALPACA_* aliases.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
