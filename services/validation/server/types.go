// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/AleutianAI/vigil/services/validation/abtest"
	"github.com/AleutianAI/vigil/services/validation/baseline"
	"github.com/AleutianAI/vigil/services/validation/regression"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// RecordObservationRequest records one quality observation.
type RecordObservationRequest struct {
	SubjectID  string             `json:"subject_id" binding:"required"`
	ConfigHash string             `json:"config_hash"`
	Value      float64            `json:"value"`
	SubScores  map[string]float64 `json:"sub_scores,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// RecordObservationResponse confirms a recorded observation.
type RecordObservationResponse struct {
	SubjectID string `json:"subject_id"`
	Count     int    `json:"count"`
}

// EstablishBaselineRequest builds a baseline from recent history.
type EstablishBaselineRequest struct {
	SubjectID  string `json:"subject_id" binding:"required"`
	ConfigHash string `json:"config_hash"`

	// Type selects the maintenance mode: rolling, fixed, or adaptive.
	// Empty defaults to rolling.
	Type string `json:"type" binding:"omitempty,oneof=rolling fixed adaptive"`

	SampleSize int `json:"sample_size" binding:"required,gt=0"`
}

// EstablishBaselineResponse returns the established baseline.
type EstablishBaselineResponse struct {
	Baseline *baseline.Baseline `json:"baseline"`

	// Partial is true when fewer observations were available than
	// requested.
	Partial bool `json:"partial"`

	// Available is the observation count actually used.
	Available int `json:"available"`
}

// ListBaselinesResponse lists baselines newest-first.
type ListBaselinesResponse struct {
	Baselines []*baseline.Baseline `json:"baselines"`
}

// DetectRegressionRequest checks a value against the active baseline.
type DetectRegressionRequest struct {
	SubjectID  string  `json:"subject_id" binding:"required"`
	ConfigHash string  `json:"config_hash"`
	Current    float64 `json:"current"`
}

// ListAlertsResponse lists alerts newest-first.
type ListAlertsResponse struct {
	Alerts []regression.Alert `json:"alerts"`
}

// CreateABTestRequest sets up an A/B test.
type CreateABTestRequest struct {
	Name             string  `json:"name" binding:"required"`
	ControlID        string  `json:"control_id" binding:"required"`
	TreatmentID      string  `json:"treatment_id" binding:"required"`
	Metric           string  `json:"metric" binding:"required"`
	TargetSampleSize int     `json:"target_sample_size" binding:"required,gt=0"`
	Alpha            float64 `json:"alpha"`
}

// CreateABTestResponse returns the created test.
type CreateABTestResponse struct {
	Test *abtest.Test `json:"test"`
}

// AddABObservationRequest appends an observation to a test group.
type AddABObservationRequest struct {
	Group abtest.Group `json:"group" binding:"required"`
	Value float64      `json:"value"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
