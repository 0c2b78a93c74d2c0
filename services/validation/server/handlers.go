// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the validation pipeline over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vigil/pkg/validation"
	"github.com/AleutianAI/vigil/services/validation/abtest"
	"github.com/AleutianAI/vigil/services/validation/baseline"
	"github.com/AleutianAI/vigil/services/validation/decision"
	"github.com/AleutianAI/vigil/services/validation/metrics"
	"github.com/AleutianAI/vigil/services/validation/regression"
	"github.com/AleutianAI/vigil/services/validation/telemetry"
	"github.com/AleutianAI/vigil/services/validation/workflow"
)

// Handlers serves the validation API.
//
// Thread Safety: Safe for concurrent use; all state lives in the
// underlying components.
type Handlers struct {
	observations *metrics.Store
	baselines    *baseline.Manager
	detector     *regression.Detector
	abtests      *abtest.Engine
	decisions    *decision.Engine
	runs         *workflow.Engine
	sink         telemetry.Sink
	logger       *slog.Logger
}

// HandlersDeps wires the API's collaborators.
type HandlersDeps struct {
	Observations *metrics.Store
	Baselines    *baseline.Manager
	Detector     *regression.Detector
	ABTests      *abtest.Engine
	Decisions    *decision.Engine
	Runs         *workflow.Engine

	// Sink receives API-level counters. If nil, uses telemetry.NoopSink.
	Sink telemetry.Sink

	// Logger for request logs. If nil, uses slog.Default().
	Logger *slog.Logger
}

// NewHandlers creates the API handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	if deps.Sink == nil {
		deps.Sink = telemetry.NoopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{
		observations: deps.Observations,
		baselines:    deps.Baselines,
		detector:     deps.Detector,
		abtests:      deps.ABTests,
		decisions:    deps.Decisions,
		runs:         deps.Runs,
		sink:         deps.Sink,
		logger:       deps.Logger,
	}
}

// statusFor maps a business error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, baseline.ErrNoBaseline),
		errors.Is(err, abtest.ErrTestNotFound),
		errors.Is(err, workflow.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, baseline.ErrNoData),
		errors.Is(err, abtest.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, baseline.ErrInvalidRequest),
		errors.Is(err, abtest.ErrUnknownGroup),
		errors.Is(err, abtest.ErrInvalidTest),
		errors.Is(err, decision.ErrInvalidRequest),
		errors.Is(err, workflow.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleRecordObservation handles POST /v1/observations.
func (h *Handlers) HandleRecordObservation(c *gin.Context) {
	var req RecordObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	subjectID, err := validation.SanitizeSubjectID(req.SubjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	h.observations.Record(metrics.Observation{
		SubjectID:  subjectID,
		ConfigHash: req.ConfigHash,
		Value:      req.Value,
		SubScores:  req.SubScores,
		Metadata:   req.Metadata,
	})
	h.sink.ObservationRecorded(c.Request.Context(), subjectID)

	c.JSON(http.StatusCreated, RecordObservationResponse{
		SubjectID: subjectID,
		Count:     h.observations.Count(subjectID),
	})
}

// HandleEstablishBaseline handles POST /v1/baselines.
func (h *Handlers) HandleEstablishBaseline(c *gin.Context) {
	var req EstablishBaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	subjectID, err := validation.SanitizeSubjectID(req.SubjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.baselines.Establish(c.Request.Context(), baseline.EstablishRequest{
		SubjectID:  subjectID,
		ConfigHash: req.ConfigHash,
		Type:       baseline.ParseType(req.Type),
		SampleSize: req.SampleSize,
	})
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, EstablishBaselineResponse{
		Baseline:  result.Baseline,
		Partial:   result.Partial,
		Available: result.Available,
	})
}

// HandleListBaselines handles GET /v1/baselines.
func (h *Handlers) HandleListBaselines(c *gin.Context) {
	filter := baseline.Filter{
		SubjectID: c.Query("subject_id"),
		Limit:     queryInt(c, "limit"),
	}
	if s := c.Query("status"); s != "" {
		status, ok := baseline.ParseStatus(s)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown status: " + s})
			return
		}
		filter.Status = &status
	}

	baselines, err := h.baselines.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ListBaselinesResponse{Baselines: baselines})
}

// HandleDetectRegression handles POST /v1/regressions/detect.
func (h *Handlers) HandleDetectRegression(c *gin.Context) {
	var req DetectRegressionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.detector.Detect(c.Request.Context(), req.SubjectID, req.ConfigHash, req.Current)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	if result.Detected {
		h.sink.RegressionDetected(c.Request.Context(), result.Severity.String())
		if result.Alert != nil {
			h.sink.AlertRaised(c.Request.Context(), result.Alert.Level.String())
		}
	}
	c.JSON(http.StatusOK, result)
}

// HandleListAlerts handles GET /v1/alerts.
func (h *Handlers) HandleListAlerts(c *gin.Context) {
	filter := regression.AlertFilter{Limit: queryInt(c, "limit")}
	if s := c.Query("level"); s != "" {
		level, ok := regression.ParseAlertLevel(s)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown alert level: " + s})
			return
		}
		filter.Level = &level
	}

	c.JSON(http.StatusOK, ListAlertsResponse{Alerts: h.detector.Alerts().Query(filter)})
}

// HandleCreateABTest handles POST /v1/abtests.
func (h *Handlers) HandleCreateABTest(c *gin.Context) {
	var req CreateABTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	test, err := h.abtests.SetupTest(req.Name, req.ControlID, req.TreatmentID,
		req.Metric, req.TargetSampleSize, req.Alpha)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, CreateABTestResponse{Test: test})
}

// HandleAddABObservation handles POST /v1/abtests/:id/observations.
func (h *Handlers) HandleAddABObservation(c *gin.Context) {
	var req AddABObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := h.abtests.AddObservation(c.Param("id"), req.Group, req.Value); err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleABSignificance handles POST /v1/abtests/:id/significance.
func (h *Handlers) HandleABSignificance(c *gin.Context) {
	result, err := h.abtests.CalculateSignificance(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleValidateChange handles POST /v1/decisions/validate.
func (h *Handlers) HandleValidateChange(c *gin.Context) {
	var req decision.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	d, err := h.decisions.ValidateChange(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	h.sink.DecisionMade(c.Request.Context(), string(d.Outcome))
	c.JSON(http.StatusOK, d)
}

// HandleListDecisions handles GET /v1/decisions.
func (h *Handlers) HandleListDecisions(c *gin.Context) {
	decisions, err := h.decisions.History(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// HandleRunValidation handles POST /v1/validations.
func (h *Handlers) HandleRunValidation(c *gin.Context) {
	var req workflow.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	// Subject IDs become storage key prefixes; reject anything unsafe
	// before the run starts.
	if req.SubjectID != "" {
		subjectID, err := validation.SanitizeSubjectID(req.SubjectID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		req.SubjectID = subjectID
	}

	run, err := h.runs.Execute(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// HandleGetValidation handles GET /v1/validations/:id.
func (h *Handlers) HandleGetValidation(c *gin.Context) {
	run, err := h.runs.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "vigil"})
}

// queryInt parses an optional integer query parameter, 0 when absent
// or malformed.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
