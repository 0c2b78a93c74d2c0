// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression compares current quality values against active
// baselines and raises alerts when a drop crosses the threshold.
package regression

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/vigil/services/validation/baseline"
	"github.com/AleutianAI/vigil/services/validation/config"
)

var tracer = otel.Tracer("vigil.regression")

// -----------------------------------------------------------------------------
// Severity
// -----------------------------------------------------------------------------

// Severity classifies the magnitude of a regression.
//
// The order is total and strictly increasing with the drop percentage.
type Severity int

const (
	// SeverityNone indicates no meaningful drop (< 5%).
	SeverityNone Severity = iota

	// SeverityMinor indicates a drop in [5%, 10%).
	SeverityMinor

	// SeverityModerate indicates a drop in [10%, 20%).
	SeverityModerate

	// SeveritySevere indicates a drop in [20%, 30%).
	SeveritySevere

	// SeverityCritical indicates a drop >= 30%.
	SeverityCritical
)

// String returns the string representation.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeveritySevere:
		return "severe"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so results serialize
// with readable severity names.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*s = SeverityNone
	case "minor":
		*s = SeverityMinor
	case "moderate":
		*s = SeverityModerate
	case "severe":
		*s = SeveritySevere
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// SeverityFor classifies a drop percentage. Boundaries are half-open:
// exactly 5.0 is minor, exactly 10.0 is moderate, and so on.
func SeverityFor(dropPct float64) Severity {
	switch {
	case dropPct < 5:
		return SeverityNone
	case dropPct < 10:
		return SeverityMinor
	case dropPct < 20:
		return SeverityModerate
	case dropPct < 30:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// alertLevelFor maps regression severity to alert urgency.
func alertLevelFor(s Severity) AlertLevel {
	switch s {
	case SeverityCritical:
		return AlertCritical
	case SeveritySevere, SeverityModerate:
		return AlertWarning
	default:
		return AlertInfo
	}
}

// -----------------------------------------------------------------------------
// Result
// -----------------------------------------------------------------------------

// Result holds the outcome of a regression check.
type Result struct {
	// Detected is true when the drop exceeded the threshold.
	Detected bool `json:"detected"`

	// Score is the regression score in [0, 100]: min(dropPct*10, 100)
	// when detected, 0 otherwise.
	Score float64 `json:"score"`

	// Severity classifies the drop magnitude.
	Severity Severity `json:"severity"`

	// Drop is baseline mean minus current value. Negative for improvements.
	Drop float64 `json:"drop"`

	// DropPct is the drop as a percentage of the baseline mean.
	// Defined as 0 when the baseline mean is 0.
	DropPct float64 `json:"drop_pct"`

	// BaselineValue is the baseline mean compared against.
	BaselineValue float64 `json:"baseline_value"`

	// CurrentValue is the observed value.
	CurrentValue float64 `json:"current_value"`

	// ZScore is the standardized position of the current value, nil when
	// the baseline has no spread.
	ZScore *float64 `json:"z_score,omitempty"`

	// Alert is the raised alert, nil when nothing was detected.
	Alert *Alert `json:"alert,omitempty"`

	// Details carries free-form diagnostic context.
	Details map[string]string `json:"details,omitempty"`
}

// -----------------------------------------------------------------------------
// Detector
// -----------------------------------------------------------------------------

// Detector compares current values against active baselines.
//
// Description:
//
//	Detector reads its drop threshold from the shared Runtime on every
//	check, so a config reload takes effect immediately. Detected
//	regressions append an alert to the log before the result is returned,
//	so a later pipeline failure cannot lose the alert.
//
// Thread Safety: Safe for concurrent use.
type Detector struct {
	baselines *baseline.Manager
	alerts    *AlertLog
	runtime   *config.Runtime
	logger    *slog.Logger
}

// NewDetector creates a regression detector.
//
// Inputs:
//   - baselines: Baseline lookups. Must not be nil.
//   - alerts: Alert sink. Must not be nil.
//   - runtime: Threshold source. Must not be nil.
//   - logger: Logger. If nil, uses slog.Default().
//
// Outputs:
//   - *Detector: The new detector. Never nil.
func NewDetector(baselines *baseline.Manager, alerts *AlertLog, runtime *config.Runtime, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		baselines: baselines,
		alerts:    alerts,
		runtime:   runtime,
		logger:    logger,
	}
}

// Alerts returns the detector's alert log.
func (d *Detector) Alerts() *AlertLog {
	return d.alerts
}

// Detect checks a current value against the active baseline for the key.
//
// Description:
//
//	Computes drop, drop percentage, z-score, severity, and regression
//	score. An improvement (current above baseline) never detects and
//	never alerts. Arithmetic edge cases degrade to defined values rather
//	than erroring: dropPct is 0 when the baseline mean is 0, and the
//	z-score is nil when the baseline has zero spread.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - subjectID: The monitored subject.
//   - configHash: The configuration signature.
//   - current: The observed value.
//
// Outputs:
//   - *Result: The check outcome. Never nil on success.
//   - error: baseline.ErrNoBaseline when no active baseline exists.
//
// Thread Safety: Safe for concurrent use.
func (d *Detector) Detect(ctx context.Context, subjectID, configHash string, current float64) (*Result, error) {
	ctx, span := tracer.Start(ctx, "regression.Detector.Detect",
		trace.WithAttributes(
			attribute.String("subject_id", subjectID),
			attribute.Float64("current_value", current),
		),
	)
	defer span.End()

	b, err := d.baselines.Active(ctx, subjectID, configHash)
	if err != nil {
		span.SetStatus(codes.Error, "no active baseline")
		return nil, err
	}

	result := d.Evaluate(b, current)
	if result.Detected {
		alert := d.raiseAlert(b, result)
		result.Alert = &alert

		d.logger.Warn("regression detected",
			slog.String("subject_id", subjectID),
			slog.String("severity", result.Severity.String()),
			slog.Float64("drop_pct", result.DropPct),
			slog.Float64("baseline", result.BaselineValue),
			slog.Float64("current", result.CurrentValue),
		)
	}

	span.SetAttributes(
		attribute.Bool("detected", result.Detected),
		attribute.String("severity", result.Severity.String()),
		attribute.Float64("drop_pct", result.DropPct),
	)
	return result, nil
}

// Evaluate computes the regression result for an explicit baseline.
//
// Description:
//
//	Pure computation: no lookups, no alerting, no logging. Detect wraps
//	this with baseline resolution and alert emission.
//
// Thread Safety: Safe for concurrent use.
func (d *Detector) Evaluate(b *baseline.Baseline, current float64) *Result {
	drop := b.Mean - current

	var dropPct float64
	if b.Mean != 0 {
		dropPct = drop / b.Mean * 100
	}

	var zScore *float64
	if b.StdDev > 0 {
		z := (current - b.Mean) / b.StdDev
		zScore = &z
	}

	threshold := d.runtime.RegressionDropPct()
	detected := dropPct > threshold

	var score float64
	if detected {
		score = math.Min(dropPct*10, 100)
	}

	return &Result{
		Detected:      detected,
		Score:         score,
		Severity:      SeverityFor(dropPct),
		Drop:          drop,
		DropPct:       dropPct,
		BaselineValue: b.Mean,
		CurrentValue:  current,
		ZScore:        zScore,
		Details: map[string]string{
			"baseline_id":   b.ID,
			"threshold_pct": fmt.Sprintf("%.2f", threshold),
		},
	}
}

// raiseAlert appends an alert for a detected regression.
func (d *Detector) raiseAlert(b *baseline.Baseline, r *Result) Alert {
	alert := Alert{
		ID:       uuid.NewString(),
		Level:    alertLevelFor(r.Severity),
		Severity: r.Severity,
		Message: fmt.Sprintf("%s regression for %s: quality dropped %.2f%% (baseline %.4f, current %.4f)",
			r.Severity, b.SubjectID, r.DropPct, r.BaselineValue, r.CurrentValue),
		DropPct:       r.DropPct,
		BaselineValue: r.BaselineValue,
		CurrentValue:  r.CurrentValue,
		Timestamp:     time.Now(),
	}
	d.alerts.Append(alert)
	return alert
}
