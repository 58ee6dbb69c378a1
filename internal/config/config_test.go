package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIRADOR_FORECAST_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Forecast.SeasonalPeriod != 12 {
		t.Fatalf("expected default seasonal period 12, got %d", cfg.Forecast.SeasonalPeriod)
	}
	if cfg.Store.Kind != "file" || cfg.Cache.Backend != "memory" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Store, cfg.Cache)
	}
	if cfg.Optimization.SelectionPolicy != "priority" {
		t.Fatalf("unexpected selection policy %q", cfg.Optimization.SelectionPolicy)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  address: ":6000"
store:
  kind: http
  baseURL: http://store.local:8080
forecast:
  seasonalPeriod: 4
  horizon: 8
optimization:
  interval: 10s
  maxConcurrency: 2
  jobTimeout: 1m
  maxFolds: 2
  selectionPolicy: expected-accuracy
cache:
  backend: valkey
  addr: localhost:6379
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MIRADOR_FORECAST_SEASONAL_PERIOD", "7")
	t.Setenv("MIRADOR_FORECAST_CACHE_TLS", "true")
	t.Setenv("MIRADOR_FORECAST_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":6000" || cfg.Store.BaseURL != "http://store.local:8080" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Forecast.SeasonalPeriod != 7 {
		t.Fatalf("env override not applied, got %d", cfg.Forecast.SeasonalPeriod)
	}
	if cfg.Optimization.Interval != 10*time.Second || cfg.Optimization.SelectionPolicy != "expected-accuracy" {
		t.Fatalf("unexpected optimisation config: %+v", cfg.Optimization)
	}
	if !cfg.Cache.TLS || !cfg.Logging.JSON {
		t.Fatalf("expected TLS and JSON logging enabled")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"http store without url": "store:\n  kind: http\n",
		"unknown cache backend":  "cache:\n  backend: memcached\n",
		"valkey without addr":    "cache:\n  backend: valkey\n",
		"zero horizon":           "forecast:\n  horizon: 0\n",
		"bad policy":             "optimization:\n  selectionPolicy: newest\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
