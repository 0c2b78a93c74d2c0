// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports pipeline counters to monitoring backends.
package telemetry

import "context"

// Sink receives pipeline events for export.
//
// Implementations must tolerate concurrent callers and must never block
// the pipeline on backend availability.
type Sink interface {
	// ObservationRecorded counts a recorded quality observation.
	ObservationRecorded(ctx context.Context, subjectID string)

	// RegressionDetected counts a detected regression by severity.
	RegressionDetected(ctx context.Context, severity string)

	// AlertRaised counts a raised alert by level.
	AlertRaised(ctx context.Context, level string)

	// DecisionMade counts a validation decision by outcome.
	DecisionMade(ctx context.Context, outcome string)

	// RunCompleted counts a finished workflow run by terminal state.
	RunCompleted(ctx context.Context, state string)
}

// NoopSink discards all events. Useful for tests and as a default.
type NoopSink struct{}

// ObservationRecorded discards the event.
func (NoopSink) ObservationRecorded(context.Context, string) {}

// RegressionDetected discards the event.
func (NoopSink) RegressionDetected(context.Context, string) {}

// AlertRaised discards the event.
func (NoopSink) AlertRaised(context.Context, string) {}

// DecisionMade discards the event.
func (NoopSink) DecisionMade(context.Context, string) {}

// RunCompleted discards the event.
func (NoopSink) RunCompleted(context.Context, string) {}

var _ Sink = NoopSink{}
