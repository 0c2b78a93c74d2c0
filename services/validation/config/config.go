// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the vigil service configuration.
//
// The regression drop threshold and the baseline auto-creation sample
// minimum historically appeared both as defaults and as per-call-site
// constants; they are authoritative here and nowhere else. Components
// read them through Runtime so a config reload takes effect without a
// restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrValidation indicates an out-of-range or malformed configuration.
	ErrValidation = errors.New("invalid configuration")
)

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" validate:"required"`
}

// StorageConfig selects the baseline persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend" validate:"oneof=memory badger"`

	// Path is the Badger data directory. Required for the badger backend.
	Path string `yaml:"path"`
}

// HistoryConfig bounds the in-memory histories.
type HistoryConfig struct {
	// ObservationCapacity is the per-subject observation bound.
	ObservationCapacity int `yaml:"observation_capacity" validate:"gt=0"`

	// AlertCapacity bounds the alert log.
	AlertCapacity int `yaml:"alert_capacity" validate:"gt=0"`

	// DecisionCapacity bounds the decision history.
	DecisionCapacity int `yaml:"decision_capacity" validate:"gt=0"`

	// RunCapacity bounds the retained workflow runs.
	RunCapacity int `yaml:"run_capacity" validate:"gt=0"`
}

// ThresholdConfig holds the tunable statistical knobs.
type ThresholdConfig struct {
	// RegressionDropPct is the drop percentage above which a regression
	// is detected. Default 5.0.
	RegressionDropPct float64 `yaml:"regression_drop_pct" validate:"gte=0,lte=100"`

	// BaselineMinSamples is the history size required before a baseline
	// is auto-established during a workflow run. Default 10.
	BaselineMinSamples int `yaml:"baseline_min_samples" validate:"gt=0"`

	// SignificanceAlpha is the default A/B significance level. Default 0.05.
	SignificanceAlpha float64 `yaml:"significance_alpha" validate:"gt=0,lt=1"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables JSON file logging when non-empty.
	Dir string `yaml:"dir"`
}

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Storage    StorageConfig   `yaml:"storage"`
	History    HistoryConfig   `yaml:"history"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is supplied.
//
// Outputs:
//   - *Config: Defaults for a single-process deployment. Never nil.
func DefaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Backend: "memory"},
		History: HistoryConfig{
			ObservationCapacity: 1000,
			AlertCapacity:       1000,
			DecisionCapacity:    10000,
			RunCapacity:         1000,
		},
		Thresholds: ThresholdConfig{
			RegressionDropPct:  5.0,
			BaselineMinSamples: 10,
			SignificanceAlpha:  0.05,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults and validates it.
//
// Inputs:
//   - path: Config file path. Empty returns DefaultConfig().
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Read, parse, or ErrValidation failures.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints.
//
// Outputs:
//   - error: ErrValidation-wrapped detail, or nil.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if c.Storage.Backend == "badger" && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required for the badger backend", ErrValidation)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Runtime
// -----------------------------------------------------------------------------

// Runtime exposes the tunable thresholds to running components.
//
// Description:
//
//	Runtime is the single authoritative source for the regression drop
//	threshold, the baseline auto-creation minimum, and the default A/B
//	alpha. Update swaps all values atomically so a reload never exposes
//	a mixed view.
//
// Thread Safety: Safe for concurrent use.
type Runtime struct {
	mu         sync.RWMutex
	dropPct    float64
	minSamples int
	alpha      float64
}

// NewRuntime builds a Runtime from a validated configuration.
//
// Outputs:
//   - *Runtime: The runtime view. Never nil.
func NewRuntime(cfg *Config) *Runtime {
	r := &Runtime{}
	r.Update(cfg)
	return r
}

// Update replaces the tunable values from a validated configuration.
func (r *Runtime) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropPct = cfg.Thresholds.RegressionDropPct
	r.minSamples = cfg.Thresholds.BaselineMinSamples
	r.alpha = cfg.Thresholds.SignificanceAlpha
}

// RegressionDropPct returns the detection threshold in percent.
func (r *Runtime) RegressionDropPct() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropPct
}

// BaselineMinSamples returns the auto-creation history minimum.
func (r *Runtime) BaselineMinSamples() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minSamples
}

// SignificanceAlpha returns the default A/B significance level.
func (r *Runtime) SignificanceAlpha() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alpha
}
