// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regression

import (
	"fmt"
	"sync"
	"time"
)

// DefaultAlertCapacity bounds the alert log when none is configured.
const DefaultAlertCapacity = 1000

// -----------------------------------------------------------------------------
// Alert Types
// -----------------------------------------------------------------------------

// AlertLevel is the urgency of an alert.
type AlertLevel int

const (
	// AlertInfo is informational.
	AlertInfo AlertLevel = iota

	// AlertWarning needs attention.
	AlertWarning

	// AlertCritical needs immediate action.
	AlertCritical
)

// String returns the string representation.
func (l AlertLevel) String() string {
	switch l {
	case AlertInfo:
		return "info"
	case AlertWarning:
		return "warning"
	case AlertCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseAlertLevel converts a string to an AlertLevel.
//
// Outputs:
//   - AlertLevel: The parsed level.
//   - bool: False if the string is not a known level.
func ParseAlertLevel(s string) (AlertLevel, bool) {
	switch s {
	case "info":
		return AlertInfo, true
	case "warning":
		return AlertWarning, true
	case "critical":
		return AlertCritical, true
	default:
		return AlertInfo, false
	}
}

// MarshalText implements encoding.TextMarshaler so alerts serialize
// with readable level names.
func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *AlertLevel) UnmarshalText(text []byte) error {
	level, ok := ParseAlertLevel(string(text))
	if !ok {
		return fmt.Errorf("unknown alert level %q", text)
	}
	*l = level
	return nil
}

// Alert describes a detected regression worth surfacing.
type Alert struct {
	// ID uniquely identifies the alert.
	ID string `json:"id"`

	// Level is the alert urgency.
	Level AlertLevel `json:"level"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Severity is the regression severity that raised the alert.
	Severity Severity `json:"severity"`

	// DropPct is the percentage drop below baseline.
	DropPct float64 `json:"drop_pct"`

	// BaselineValue is the baseline mean.
	BaselineValue float64 `json:"baseline_value"`

	// CurrentValue is the observed value.
	CurrentValue float64 `json:"current_value"`

	// Timestamp is when the alert was raised.
	Timestamp time.Time `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Alert Log
// -----------------------------------------------------------------------------

// AlertFilter narrows an alert query.
type AlertFilter struct {
	// Level restricts results to one level when non-nil.
	Level *AlertLevel

	// Limit caps the number of results. <= 0 means no limit.
	Limit int
}

// AlertLog is a capped, append-only history of raised alerts.
//
// Description:
//
//	Alerts are persisted the moment they are computed, before any later
//	pipeline step can fail. When the cap is exceeded the oldest alert is
//	dropped.
//
// Thread Safety: Safe for concurrent use.
type AlertLog struct {
	mu       sync.RWMutex
	capacity int
	alerts   []Alert
}

// NewAlertLog creates an alert log.
//
// Inputs:
//   - capacity: Maximum retained alerts. <= 0 falls back to DefaultAlertCapacity.
//
// Outputs:
//   - *AlertLog: The new log. Never nil.
func NewAlertLog(capacity int) *AlertLog {
	if capacity <= 0 {
		capacity = DefaultAlertCapacity
	}
	return &AlertLog{capacity: capacity}
}

// Append records an alert, evicting the oldest past capacity.
//
// Thread Safety: Safe for concurrent use.
func (l *AlertLog) Append(a Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.alerts) >= l.capacity {
		l.alerts = l.alerts[1:]
	}
	l.alerts = append(l.alerts, a)
}

// Query returns matching alerts, newest first.
//
// Thread Safety: Safe for concurrent use.
func (l *AlertLog) Query(filter AlertFilter) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matches := make([]Alert, 0, len(l.alerts))
	for i := len(l.alerts) - 1; i >= 0; i-- {
		a := l.alerts[i]
		if filter.Level != nil && a.Level != *filter.Level {
			continue
		}
		matches = append(matches, a)
		if filter.Limit > 0 && len(matches) >= filter.Limit {
			break
		}
	}
	return matches
}

// Len returns the number of retained alerts.
func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}
