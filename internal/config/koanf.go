// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"fretsonar.yaml",
	"fretsonar.yml",
	"/etc/fretsonar/config.yaml",
	"/etc/fretsonar/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "FRETSONAR_CONFIG"

// Load builds the configuration from defaults, an optional YAML file
// and environment variables, in increasing precedence, then validates.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// loadFrom is Load with an explicit file path, for tests.
func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings translates flat environment variable names into koanf
// paths. Unmapped variables are ignored so unrelated environment noise
// never leaks into the config.
var envMappings = map[string]string{
	"top_n":              "engine.top_n",
	"ml_enabled":         "engine.ml_enabled",
	"ml_blend":           "engine.ml_blend",
	"budget_total":       "engine.budget_total",
	"budget_spent":       "engine.budget_spent",
	"lookup_concurrency": "engine.lookup_concurrency",
	"pass_interval":      "engine.pass_interval",

	"weight_value":      "engine.weights.value",
	"weight_appreciate": "engine.weights.appreciate",
	"weight_fit":        "engine.weights.fit",
	"weight_condition":  "engine.weights.condition",
	"weight_iconic":     "engine.weights.iconic",

	"history_min_span_days":  "history.min_span_days",
	"history_learn_interval": "history.learn_interval",

	"sold_grace_period": "detector.grace_period",

	"train_interval":   "training.interval",
	"train_on_startup": "training.train_on_startup",

	"store_dir":       "store.dir",
	"store_in_memory": "store.in_memory",
	"knowledge_dir":   "knowledge.dir",
	"feed_dir":        "feed.dir",

	"lookup_min_interval":      "lookup.min_interval",
	"lookup_breaker_threshold": "lookup.breaker_failure_threshold",
	"lookup_breaker_timeout":   "lookup.breaker_open_timeout",

	"ingest_buffer":         "ingest.buffer",
	"ingest_retry_count":    "ingest.retry_max_retries",
	"ingest_retry_interval": "ingest.retry_initial_interval",
	"ingest_retry_max":      "ingest.retry_max_interval",

	"metrics_enabled": "server.enabled",
	"metrics_addr":    "server.addr",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
