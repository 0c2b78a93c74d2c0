// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when the Prometheus configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed is returned when metric registration fails.
	ErrRegistrationFailed = errors.New("metric registration failed")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type PrometheusConfig struct {
	// Namespace is the metrics namespace (e.g., "vigil"). Required.
	Namespace string

	// Subsystem is the metrics subsystem (e.g., "validation"). Required.
	Subsystem string

	// Registry is the Prometheus registry to use.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// DefaultPrometheusConfig returns a configuration with sensible defaults.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "vigil",
		Subsystem: "validation",
	}
}

// Validate checks that the configuration is valid.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exports pipeline counters as Prometheus metrics.
//
// Description:
//
//	Counts observations, regressions by severity, alerts by level,
//	decisions by outcome, and workflow runs by terminal state. Metrics
//	are registered on creation and deregistered on Close().
//
// Thread Safety: Safe for concurrent use.
type PrometheusSink struct {
	config   *PrometheusConfig
	registry prometheus.Registerer

	observationsTotal *prometheus.CounterVec
	regressionsTotal  *prometheus.CounterVec
	alertsTotal       *prometheus.CounterVec
	decisionsTotal    *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec

	mu     sync.RWMutex
	closed bool

	collectors []prometheus.Collector
}

// NewPrometheusSink creates a new Prometheus telemetry sink.
//
// Inputs:
//   - config: Prometheus configuration. Must not be nil.
//
// Outputs:
//   - *PrometheusSink: The created sink. Never nil on success.
//   - error: ErrInvalidConfig or ErrRegistrationFailed.
//
// Thread Safety: The returned sink is safe for concurrent use.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	sink := &PrometheusSink{
		config:   config,
		registry: registry,
	}

	sink.observationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "observations_total",
			Help:      "Total quality observations recorded",
		},
		[]string{"subject_id"},
	)

	sink.regressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "regressions_detected_total",
			Help:      "Total regressions detected by severity",
		},
		[]string{"severity"},
	)

	sink.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "alerts_raised_total",
			Help:      "Total alerts raised by level",
		},
		[]string{"level"},
	)

	sink.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "decisions_total",
			Help:      "Total validation decisions by outcome",
		},
		[]string{"outcome"},
	)

	sink.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "workflow_runs_total",
			Help:      "Total workflow runs by terminal state",
		},
		[]string{"state"},
	)

	sink.collectors = []prometheus.Collector{
		sink.observationsTotal,
		sink.regressionsTotal,
		sink.alertsTotal,
		sink.decisionsTotal,
		sink.runsTotal,
	}

	for _, c := range sink.collectors {
		if err := registry.Register(c); err != nil {
			var alreadyErr prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyErr) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
		}
	}

	return sink, nil
}

// ObservationRecorded counts a recorded observation.
func (s *PrometheusSink) ObservationRecorded(_ context.Context, subjectID string) {
	if s.isClosed() {
		return
	}
	if subjectID == "" {
		subjectID = "unknown"
	}
	s.observationsTotal.WithLabelValues(subjectID).Inc()
}

// RegressionDetected counts a detected regression by severity.
func (s *PrometheusSink) RegressionDetected(_ context.Context, severity string) {
	if s.isClosed() {
		return
	}
	if severity == "" {
		severity = "unknown"
	}
	s.regressionsTotal.WithLabelValues(severity).Inc()
}

// AlertRaised counts a raised alert by level.
func (s *PrometheusSink) AlertRaised(_ context.Context, level string) {
	if s.isClosed() {
		return
	}
	if level == "" {
		level = "unknown"
	}
	s.alertsTotal.WithLabelValues(level).Inc()
}

// DecisionMade counts a validation decision by outcome.
func (s *PrometheusSink) DecisionMade(_ context.Context, outcome string) {
	if s.isClosed() {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	s.decisionsTotal.WithLabelValues(outcome).Inc()
}

// RunCompleted counts a finished workflow run by terminal state.
func (s *PrometheusSink) RunCompleted(_ context.Context, state string) {
	if s.isClosed() {
		return
	}
	if state == "" {
		state = "unknown"
	}
	s.runsTotal.WithLabelValues(state).Inc()
}

// Close unregisters all metrics and releases resources.
//
// Thread Safety: Safe for concurrent use. Idempotent.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if registry, ok := s.registry.(*prometheus.Registry); ok {
		for _, c := range s.collectors {
			registry.Unregister(c)
		}
	}
	return nil
}

func (s *PrometheusSink) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

var _ Sink = (*PrometheusSink)(nil)
