// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import "fmt"

// State is the lifecycle position of a validation run.
//
// Runs only move forward: PENDING through the pipeline stages to a
// terminal COMPLETED or FAILED. A terminal run is never resumed; a
// retry is a new run with a new request id.
type State int

const (
	// StatePending is the initial state before any stage runs.
	StatePending State = iota

	// StateAnalyzing indicates the collector produced an observation.
	StateAnalyzing

	// StateBaselineChecked indicates baseline resolution finished.
	StateBaselineChecked

	// StateRegressionChecked indicates the regression check finished.
	StateRegressionChecked

	// StateDecisionMade indicates the decision engine produced a verdict.
	StateDecisionMade

	// StateCompleted is the successful terminal state.
	StateCompleted

	// StateFailed is the failure terminal state.
	StateFailed
)

// String returns the string representation.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateAnalyzing:
		return "ANALYZING"
	case StateBaselineChecked:
		return "BASELINE_CHECKED"
	case StateRegressionChecked:
		return "REGRESSION_CHECKED"
	case StateDecisionMade:
		return "DECISION_MADE"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler so runs serialize with
// readable state names.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PENDING":
		*s = StatePending
	case "ANALYZING":
		*s = StateAnalyzing
	case "BASELINE_CHECKED":
		*s = StateBaselineChecked
	case "REGRESSION_CHECKED":
		*s = StateRegressionChecked
	case "DECISION_MADE":
		*s = StateDecisionMade
	case "COMPLETED":
		*s = StateCompleted
	case "FAILED":
		*s = StateFailed
	default:
		return fmt.Errorf("unknown workflow state %q", text)
	}
	return nil
}
