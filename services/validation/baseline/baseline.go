// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package baseline computes and stores reference statistical snapshots
// for (subject, configuration) keys.
//
// A baseline summarizes expected-normal quality for a subject under a
// specific configuration: mean, sample standard deviation, min, max, and
// the sample size it was built from. Baselines are immutable snapshots;
// a new baseline supersedes the previous one for "active" lookups but
// superseded baselines are retained for audit and never deleted.
package baseline

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoData indicates the subject has no recorded observations.
	ErrNoData = errors.New("no observations recorded for subject")

	// ErrNoBaseline indicates no active baseline exists for the key.
	ErrNoBaseline = errors.New("no active baseline for subject and configuration")

	// ErrInvalidRequest indicates a malformed establish request.
	ErrInvalidRequest = errors.New("invalid baseline request")
)

// -----------------------------------------------------------------------------
// Baseline Types
// -----------------------------------------------------------------------------

// Type identifies how a baseline is maintained.
type Type int

const (
	// TypeRolling is rebuilt periodically from recent history.
	TypeRolling Type = iota

	// TypeFixed is pinned until explicitly replaced.
	TypeFixed

	// TypeAdaptive adjusts with observed drift.
	TypeAdaptive
)

// String returns the string representation.
func (t Type) String() string {
	switch t {
	case TypeRolling:
		return "rolling"
	case TypeFixed:
		return "fixed"
	case TypeAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// ParseType converts a string to a Type. Unknown strings map to TypeRolling.
func ParseType(s string) Type {
	switch s {
	case "fixed":
		return TypeFixed
	case "adaptive":
		return TypeAdaptive
	default:
		return TypeRolling
	}
}

// MarshalText implements encoding.TextMarshaler so baselines serialize
// with readable type names.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rolling":
		*t = TypeRolling
	case "fixed":
		*t = TypeFixed
	case "adaptive":
		*t = TypeAdaptive
	default:
		return fmt.Errorf("unknown baseline type %q", text)
	}
	return nil
}

// Status is the lifecycle state of a baseline.
type Status int

const (
	// StatusActive is the baseline used for lookups.
	StatusActive Status = iota

	// StatusInactive is a superseded baseline retained for audit.
	StatusInactive

	// StatusArchived is an old baseline excluded from normal listings.
	StatusArchived
)

// String returns the string representation.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// ParseStatus converts a string to a Status.
//
// Outputs:
//   - Status: The parsed status.
//   - bool: False if the string is not a known status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "active":
		return StatusActive, true
	case "inactive":
		return StatusInactive, true
	case "archived":
		return StatusArchived, true
	default:
		return StatusActive, false
	}
}

// MarshalText implements encoding.TextMarshaler so baselines serialize
// with readable status names.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	status, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown baseline status %q", text)
	}
	*s = status
	return nil
}

// -----------------------------------------------------------------------------
// Baseline
// -----------------------------------------------------------------------------

// Baseline is an immutable statistical snapshot for a (subject, config) key.
type Baseline struct {
	// ID uniquely identifies this snapshot.
	ID string `json:"id"`

	// SubjectID is the monitored subject.
	SubjectID string `json:"subject_id"`

	// ConfigHash is the configuration signature.
	ConfigHash string `json:"config_hash"`

	// Type is how the baseline is maintained.
	Type Type `json:"type"`

	// SampleSize is the number of observations the snapshot was built from.
	// Always >= 1 for an active baseline.
	SampleSize int `json:"sample_size"`

	// Mean is the arithmetic mean of the sampled values.
	Mean float64 `json:"mean"`

	// StdDev is the sample standard deviation (n-1 denominator).
	// 0 when the baseline was built from a single observation.
	StdDev float64 `json:"std_dev"`

	// Min is the smallest sampled value.
	Min float64 `json:"min"`

	// Max is the largest sampled value.
	Max float64 `json:"max"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// CreatedAt is when the snapshot was taken. Among active baselines for
	// a key, the most recently created one wins lookups.
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the (subject, config) lookup key for this baseline.
func (b *Baseline) Key() string {
	return Key(b.SubjectID, b.ConfigHash)
}

// Key builds the composite lookup key for a subject and configuration.
func Key(subjectID, configHash string) string {
	return subjectID + "\x00" + configHash
}
