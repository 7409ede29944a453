// Package config provides configuration loading and validation for the
// pattern evolution engine. Values come from defaults, an optional YAML
// file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EngineConfig carries every tunable of the engine. The numeric defaults
// are empirical; treat them as configuration, not fixed law.
type EngineConfig struct {
	// Population parameters
	Capacity      int `yaml:"capacity" validate:"min=1"`       // Population bound C
	MetricWindow  int `yaml:"metric_window" validate:"min=1"`  // Rolling window for metric computation
	HistoryLimit  int `yaml:"history_limit" validate:"min=1"`  // Manager context log bound

	// Matching parameters
	MatchThreshold float64 `yaml:"match_threshold" validate:"gte=0,lte=1"`
	TagWeight      float64 `yaml:"tag_weight" validate:"gte=0,lte=1"`
	VectorWeight   float64 `yaml:"vector_weight" validate:"gte=0,lte=1"`
	ProtectedBonus float64 `yaml:"protected_bonus" validate:"gte=0,lte=1"`
	StableBonus    float64 `yaml:"stable_bonus" validate:"gte=0,lte=1"`

	// Evolution parameters
	BaseMutationRate  float64 `yaml:"base_mutation_rate" validate:"gte=0,lte=1"`
	AdaptabilityFloor float64 `yaml:"adaptability_floor" validate:"gte=0,lte=1"`

	// Lifecycle thresholds, evaluated in priority order
	ProtectedThreshold float64 `yaml:"protected_threshold" validate:"gte=0,lte=1"`
	StableThreshold    float64 `yaml:"stable_threshold" validate:"gte=0,lte=1"`
	UnstableThreshold  float64 `yaml:"unstable_threshold" validate:"gte=0,lte=1"`

	// Performance parameters
	ConcurrencyLevel int `yaml:"concurrency_level" validate:"min=1"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the engine logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Capacity:           100,
		MetricWindow:       50,
		HistoryLimit:       1000,
		MatchThreshold:     0.5,
		TagWeight:          0.5,
		VectorWeight:       0.4,
		ProtectedBonus:     0.2,
		StableBonus:        0.1,
		BaseMutationRate:   0.1,
		AdaptabilityFloor:  0.6,
		ProtectedThreshold: 0.85,
		StableThreshold:    0.7,
		UnstableThreshold:  0.5,
		ConcurrencyLevel:   4,
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides.
func Load(path string) (*EngineConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envPrefix namespaces every environment override.
const envPrefix = "PATTERN_ENGINE_"

func applyEnvOverrides(cfg *EngineConfig) {
	if v, ok := lookupInt(envPrefix + "CAPACITY"); ok {
		cfg.Capacity = v
	}
	if v, ok := lookupInt(envPrefix + "METRIC_WINDOW"); ok {
		cfg.MetricWindow = v
	}
	if v, ok := lookupInt(envPrefix + "HISTORY_LIMIT"); ok {
		cfg.HistoryLimit = v
	}
	if v, ok := lookupFloat(envPrefix + "MATCH_THRESHOLD"); ok {
		cfg.MatchThreshold = v
	}
	if v, ok := lookupFloat(envPrefix + "BASE_MUTATION_RATE"); ok {
		cfg.BaseMutationRate = v
	}
	if v, ok := lookupInt(envPrefix + "CONCURRENCY_LEVEL"); ok {
		cfg.ConcurrencyLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}

func lookupInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
