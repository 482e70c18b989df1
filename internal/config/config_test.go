package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Review.PreviousResults != 5 {
		t.Fatalf("previous_results=%d want=5", cfg.Review.PreviousResults)
	}
	if cfg.Review.TechnicalTimeframe != "1d" {
		t.Fatalf("technical_timeframe=%q want=1d", cfg.Review.TechnicalTimeframe)
	}
	if cfg.Binance.Timeout != 15*time.Second {
		t.Fatalf("binance.timeout=%v want=15s", cfg.Binance.Timeout)
	}
	if got := cfg.Cron.Intervals["1h"]; got == "" {
		t.Fatalf("cron.intervals[1h] empty")
	}
	if len(cfg.Cron.Intervals) != 7 {
		t.Fatalf("cron.intervals=%d want=7", len(cfg.Cron.Intervals))
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("review:\n  max_concurrency: 3\nredis:\n  enabled: true\n  lock_ttl: 5m\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Review.MaxConcurrency != 3 {
		t.Fatalf("max_concurrency=%d want=3", cfg.Review.MaxConcurrency)
	}
	if !cfg.Redis.Enabled || cfg.Redis.LockTTL != 5*time.Minute {
		t.Fatalf("redis=%+v want enabled with 5m ttl", cfg.Redis)
	}
	if cfg.Review.PerformanceOrders != 10 {
		t.Fatalf("performance_orders=%d want=10", cfg.Review.PerformanceOrders)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PS_SERVER_HTTP_ADDR", ":9999")
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.HTTPAddr != ":9999" {
		t.Fatalf("http_addr=%q want=:9999", cfg.Server.HTTPAddr)
	}
}
