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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	cfg := DefaultPrometheusConfig()
	cfg.Registry = registry

	sink, err := NewPrometheusSink(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, registry
}

// counterValue gathers the registry and returns the counter value for a
// metric with a single label pair.
func counterValue(t *testing.T, registry *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewPrometheusSink(t *testing.T) {
	t.Run("nil config rejected", func(t *testing.T) {
		_, err := NewPrometheusSink(nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing namespace rejected", func(t *testing.T) {
		_, err := NewPrometheusSink(&PrometheusConfig{Subsystem: "validation"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("duplicate registration tolerated", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		cfg := DefaultPrometheusConfig()
		cfg.Registry = registry

		first, err := NewPrometheusSink(cfg)
		require.NoError(t, err)
		defer first.Close()

		second, err := NewPrometheusSink(cfg)
		require.NoError(t, err)
		defer second.Close()
	})
}

func TestPrometheusSink_Counters(t *testing.T) {
	sink, registry := newTestSink(t)
	ctx := context.Background()

	sink.ObservationRecorded(ctx, "subject-1")
	sink.ObservationRecorded(ctx, "subject-1")
	sink.RegressionDetected(ctx, "critical")
	sink.AlertRaised(ctx, "warning")
	sink.DecisionMade(ctx, "reject")
	sink.RunCompleted(ctx, "COMPLETED")

	assert.Equal(t, 2.0, counterValue(t, registry, "vigil_validation_observations_total", "subject-1"))
	assert.Equal(t, 1.0, counterValue(t, registry, "vigil_validation_regressions_detected_total", "critical"))
	assert.Equal(t, 1.0, counterValue(t, registry, "vigil_validation_alerts_raised_total", "warning"))
	assert.Equal(t, 1.0, counterValue(t, registry, "vigil_validation_decisions_total", "reject"))
	assert.Equal(t, 1.0, counterValue(t, registry, "vigil_validation_workflow_runs_total", "COMPLETED"))
}

func TestPrometheusSink_EmptyLabelsDefaulted(t *testing.T) {
	sink, registry := newTestSink(t)

	sink.RegressionDetected(context.Background(), "")
	assert.Equal(t, 1.0, counterValue(t, registry, "vigil_validation_regressions_detected_total", "unknown"))
}

func TestPrometheusSink_Close(t *testing.T) {
	sink, registry := newTestSink(t)
	ctx := context.Background()

	sink.DecisionMade(ctx, "approve")
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	// Recording after close is a silent no-op.
	sink.DecisionMade(ctx, "approve")
	assert.Equal(t, 0.0, counterValue(t, registry, "vigil_validation_decisions_total", "approve"))
}
