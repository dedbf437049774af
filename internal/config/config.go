// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package config holds all engine configuration, loaded in layers:
// built-in defaults, then an optional YAML file, then environment
// variables. Config is immutable after Load and safe for concurrent
// reads.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fretsonar/fretsonar/internal/scoring"
)

// Config is the root configuration.
type Config struct {
	Engine    EngineConfig    `koanf:"engine"`
	History   HistoryConfig   `koanf:"history"`
	Detector  DetectorConfig  `koanf:"detector"`
	Training  TrainingConfig  `koanf:"training"`
	Store     StoreConfig     `koanf:"store"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Feed      FeedConfig      `koanf:"feed"`
	Lookup    LookupConfig    `koanf:"lookup"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// EngineConfig tunes the scoring pass.
type EngineConfig struct {
	// Weights maps dimension name to weight. Weights need not sum to 1;
	// the total is a plain weighted sum, matching the dashboard sliders.
	Weights map[string]float64 `koanf:"weights"`

	TopN int `koanf:"top_n" validate:"gte=1,lte=100"`

	// MLEnabled turns the blending layer on once models are trained.
	MLEnabled bool `koanf:"ml_enabled"`

	// MLBlend is the statistical share of the final score.
	MLBlend float64 `koanf:"ml_blend" validate:"gte=0,lte=1"`

	BudgetTotal float64 `koanf:"budget_total" validate:"gte=0"`
	BudgetSpent float64 `koanf:"budget_spent" validate:"gte=0"`

	// LookupConcurrency bounds parallel market-range lookups per pass.
	LookupConcurrency int `koanf:"lookup_concurrency" validate:"gte=1,lte=10"`

	// PassInterval is how often the scorer service reruns a full pass.
	PassInterval time.Duration `koanf:"pass_interval" validate:"gte=1m"`
}

// HistoryConfig tunes price-history learning.
type HistoryConfig struct {
	// MinSpanDays is the minimum first-to-last snapshot span before a
	// learned rate is computed for a key.
	MinSpanDays int `koanf:"min_span_days" validate:"gte=1"`

	// LearnInterval is how often snapshots are recorded and rates
	// recomputed. The store is idempotent per calendar day, so running
	// more often than daily is harmless.
	LearnInterval time.Duration `koanf:"learn_interval" validate:"gte=1m"`
}

// DetectorConfig tunes sold detection.
type DetectorConfig struct {
	// GracePeriod is how long a listing must stay absent from crawls
	// before it is confirmed sold.
	GracePeriod time.Duration `koanf:"grace_period" validate:"gte=1m"`
}

// TrainingConfig tunes the model trainer service.
type TrainingConfig struct {
	Interval       time.Duration `koanf:"interval" validate:"gte=1m"`
	TrainOnStartup bool          `koanf:"train_on_startup"`
}

// StoreConfig locates the badger database.
type StoreConfig struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// KnowledgeConfig locates the curated knowledge files.
type KnowledgeConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// FeedConfig locates the JSON feed directory.
type FeedConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// LookupConfig tunes the resilient market lookup client.
type LookupConfig struct {
	MinInterval             time.Duration `koanf:"min_interval" validate:"gte=0"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gte=1"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout" validate:"gte=1s"`
}

// IngestConfig tunes the snapshot bus and router.
type IngestConfig struct {
	Buffer               int64         `koanf:"buffer" validate:"gte=1"`
	RetryMaxRetries      int           `koanf:"retry_max_retries" validate:"gte=0"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval" validate:"gte=0"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval" validate:"gte=0"`
}

// ServerConfig configures the metrics/health listener.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Weights: map[string]float64{
				scoring.DimValue:      0.25,
				scoring.DimAppreciate: 0.20,
				scoring.DimFit:        0.20,
				scoring.DimCondition:  0.20,
				scoring.DimIconic:     0.15,
			},
			TopN:              10,
			MLEnabled:         false,
			MLBlend:           0.3,
			BudgetTotal:       20000,
			BudgetSpent:       0,
			LookupConcurrency: 3,
			PassInterval:      1 * time.Hour,
		},
		History: HistoryConfig{
			MinSpanDays:   30,
			LearnInterval: 24 * time.Hour,
		},
		Detector: DetectorConfig{
			GracePeriod: 48 * time.Hour,
		},
		Training: TrainingConfig{
			Interval:       24 * time.Hour,
			TrainOnStartup: false,
		},
		Store: StoreConfig{
			Dir:      "/data/fretsonar",
			InMemory: false,
		},
		Knowledge: KnowledgeConfig{Dir: "/data/knowledge"},
		Feed:      FeedConfig{Dir: "/data/feeds"},
		Lookup: LookupConfig{
			MinInterval:             500 * time.Millisecond,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		Ingest: IngestConfig{
			Buffer:               64,
			RetryMaxRetries:      3,
			RetryInitialInterval: 100 * time.Millisecond,
			RetryMaxInterval:     5 * time.Second,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks structural constraints via validator tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if len(c.Engine.Weights) == 0 {
		return fmt.Errorf("config: engine.weights must name at least one dimension")
	}
	known := make(map[string]struct{}, len(scoring.DimensionOrder))
	for _, name := range scoring.DimensionOrder {
		known[name] = struct{}{}
	}
	for name, w := range c.Engine.Weights {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("config: engine.weights: unknown dimension %q", name)
		}
		if w < 0 {
			return fmt.Errorf("config: engine.weights: negative weight for %q", name)
		}
	}

	if c.Engine.BudgetSpent > c.Engine.BudgetTotal {
		return fmt.Errorf("config: engine.budget_spent (%v) exceeds budget_total (%v)",
			c.Engine.BudgetSpent, c.Engine.BudgetTotal)
	}

	if !c.Store.InMemory && c.Store.Dir == "" {
		return fmt.Errorf("config: store.dir is required unless store.in_memory is set")
	}

	if c.Ingest.RetryMaxInterval < c.Ingest.RetryInitialInterval {
		return fmt.Errorf("config: ingest.retry_max_interval below retry_initial_interval")
	}

	return nil
}
