// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.Engine.TopN != 10 {
		t.Errorf("TopN = %d, want 10", cfg.Engine.TopN)
	}
	if cfg.Engine.MLEnabled {
		t.Error("ML enabled by default; cold start must be rule-only")
	}
	if cfg.Detector.GracePeriod != 48*time.Hour {
		t.Errorf("GracePeriod = %v, want 48h", cfg.Detector.GracePeriod)
	}
	sum := 0.0
	for _, w := range cfg.Engine.Weights {
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default weights sum = %v, want 1", sum)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fretsonar.yaml")
	body := `
engine:
  top_n: 25
  ml_enabled: true
  ml_blend: 0.5
  weights:
    value: 0.6
    condition: 0.4
detector:
  grace_period: 72h
`
	if err := os.WriteFile(path, []byte(body), 0o640); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.Engine.TopN != 25 {
		t.Errorf("TopN = %d, want 25 from file", cfg.Engine.TopN)
	}
	if !cfg.Engine.MLEnabled || cfg.Engine.MLBlend != 0.5 {
		t.Errorf("ML settings = %v/%v, want true/0.5", cfg.Engine.MLEnabled, cfg.Engine.MLBlend)
	}
	if cfg.Detector.GracePeriod != 72*time.Hour {
		t.Errorf("GracePeriod = %v, want 72h", cfg.Detector.GracePeriod)
	}
	// Untouched sections keep their defaults.
	if cfg.History.MinSpanDays != 30 {
		t.Errorf("MinSpanDays = %d, want default 30", cfg.History.MinSpanDays)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fretsonar.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  top_n: 25\n"), 0o640); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TOP_N", "5")
	t.Setenv("ML_BLEND", "0.7")
	t.Setenv("WEIGHT_VALUE", "0.9")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}
	if cfg.Engine.TopN != 5 {
		t.Errorf("TopN = %d, want env override 5", cfg.Engine.TopN)
	}
	if cfg.Engine.MLBlend != 0.7 {
		t.Errorf("MLBlend = %v, want 0.7", cfg.Engine.MLBlend)
	}
	if cfg.Engine.Weights["value"] != 0.9 {
		t.Errorf("weights.value = %v, want 0.9", cfg.Engine.Weights["value"])
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"blend above one", func(c *Config) { c.Engine.MLBlend = 1.2 }},
		{"zero top n", func(c *Config) { c.Engine.TopN = 0 }},
		{"unknown dimension", func(c *Config) { c.Engine.Weights["sparkle"] = 0.5 }},
		{"negative weight", func(c *Config) { c.Engine.Weights["value"] = -0.1 }},
		{"empty weights", func(c *Config) { c.Engine.Weights = nil }},
		{"spent over total", func(c *Config) { c.Engine.BudgetSpent = c.Engine.BudgetTotal + 1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"no store dir", func(c *Config) { c.Store.Dir = ""; c.Store.InMemory = false }},
		{"retry max below initial", func(c *Config) {
			c.Ingest.RetryInitialInterval = time.Minute
			c.Ingest.RetryMaxInterval = time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}

func TestLoadCorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fretsonar.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := loadFrom(path); err == nil {
		t.Fatal("loadFrom() accepted malformed YAML")
	}
}
