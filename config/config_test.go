package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSONConfigGrouped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
  "app": {"AppPort": "9000", "JWTSecret": "s3cret", "AdminRoles": ["admin"]},
  "cache": {"Driver": "memory", "TTLSeconds": 120, "InvalidationMode": "async"},
  "counter": {"Store": "memory", "ViewsThreshold": 10, "SweepIntervalSec": "60"},
  "log": {"Level": "debug", "Compress": true}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		t.Fatal(err)
	}
	applyDefaults(&c)

	if c.AppPort != "9000" || c.JWTSecret != "s3cret" {
		t.Errorf("app section: %+v", c)
	}
	if c.CacheDriver != "memory" || c.CacheTTLSeconds != 120 || c.InvalidationMode != "async" {
		t.Errorf("cache section: driver=%s ttl=%d mode=%s", c.CacheDriver, c.CacheTTLSeconds, c.InvalidationMode)
	}
	if c.CounterViewsThreshold != 10 || c.CounterDownloadsThreshold != 3 || c.CounterSweepIntervalSec != 60 {
		t.Errorf("counter section: views=%d downloads=%d sweep=%d", c.CounterViewsThreshold, c.CounterDownloadsThreshold, c.CounterSweepIntervalSec)
	}
	if len(c.AdminRoles) != 1 || !c.LogCompress || c.LogLevel != "debug" {
		t.Errorf("roles=%v compress=%v level=%s", c.AdminRoles, c.LogCompress, c.LogLevel)
	}
}

func TestLoadJSONConfigMissingFile(t *testing.T) {
	var c AppConfig
	if err := loadJSONConfig(filepath.Join(t.TempDir(), "nope.json"), &c); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CACHE_DRIVER", "MEMORY")
	t.Setenv("COUNTER_DOWNLOADS_THRESHOLD", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://example.org, https://ar.example.org ,")

	c := AppConfig{}
	applyDefaults(&c)
	applyEnvOverrides(&c)

	if c.CacheDriver != "memory" {
		t.Errorf("driver = %s", c.CacheDriver)
	}
	if c.CounterDownloadsThreshold != 4 {
		t.Errorf("downloads threshold = %d", c.CounterDownloadsThreshold)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://ar.example.org" {
		t.Errorf("origins = %v", c.AllowedOrigins)
	}
}

func TestCounterTTLOutlivesSweepInterval(t *testing.T) {
	cases := []struct {
		name          string
		ttl, interval string
		wantTTL       int
	}{
		{"defaults", "", "", 300},
		{"short ttl", "60", "", 300},
		{"long interval", "300", "600", 660},
		{"already safe", "900", "120", 900},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv("COUNTER_TTL_SECONDS", c.ttl)
			t.Setenv("COUNTER_SWEEP_INTERVAL_SEC", c.interval)
			cfg := AppConfig{}
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			enforceCounterTTL(&cfg)
			if cfg.CounterTTLSeconds != c.wantTTL {
				t.Fatalf("ttl = %d, want %d", cfg.CounterTTLSeconds, c.wantTTL)
			}
			if cfg.CounterTTLSeconds < cfg.CounterSweepIntervalSec+counterTTLMarginSec {
				t.Fatalf("ttl %d does not outlive interval %d", cfg.CounterTTLSeconds, cfg.CounterSweepIntervalSec)
			}
		})
	}
}
