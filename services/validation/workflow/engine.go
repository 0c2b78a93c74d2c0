// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow runs the end-to-end validation pipeline: collect an
// observation, resolve a baseline, check for regression, decide, and
// branch on the outcome.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/vigil/services/validation/baseline"
	"github.com/AleutianAI/vigil/services/validation/config"
	"github.com/AleutianAI/vigil/services/validation/decision"
	"github.com/AleutianAI/vigil/services/validation/metrics"
	"github.com/AleutianAI/vigil/services/validation/regression"
	"github.com/AleutianAI/vigil/services/validation/telemetry"
)

var (
	tracer = otel.Tracer("vigil.workflow")
	meter  = otel.Meter("vigil.workflow")
)

// DefaultRunCapacity bounds the retained terminal runs.
const DefaultRunCapacity = 500

var (
	// ErrInvalidRequest indicates a run request missing required fields.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrRunNotFound indicates no retained run matches the request id.
	ErrRunNotFound = errors.New("run not found")
)

// -----------------------------------------------------------------------------
// Request / Run
// -----------------------------------------------------------------------------

// Request starts a validation run.
type Request struct {
	// RequestID identifies the run. Generated when empty.
	RequestID string `json:"request_id"`

	// SubjectID is the monitored subject. Required.
	SubjectID string `json:"subject_id"`

	// ConfigHash is the configuration signature. Required.
	ConfigHash string `json:"config_hash"`

	// Value is the measured quality value, consumed by ValueCollector.
	Value float64 `json:"value"`

	// Metadata is attached to the recorded observation.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Run is the record of one pipeline execution.
//
// Once a run reaches a terminal state it is immutable.
type Run struct {
	// RequestID identifies the run.
	RequestID string `json:"request_id"`

	// SubjectID and ConfigHash echo the request.
	SubjectID  string `json:"subject_id"`
	ConfigHash string `json:"config_hash"`

	// State is the run's lifecycle position.
	State State `json:"state"`

	// CurrentValue is the collected quality value.
	CurrentValue float64 `json:"current_value"`

	// Baseline is the baseline the run compared against, nil when the
	// run completed early without one.
	Baseline *baseline.Baseline `json:"baseline,omitempty"`

	// Regression is the regression check result, nil before that stage.
	Regression *regression.Result `json:"regression,omitempty"`

	// Decision is the verdict, nil when the run made no decision.
	Decision *decision.Decision `json:"decision,omitempty"`

	// RollbackRequired is set when a rejected change needs rolling back.
	RollbackRequired bool `json:"rollback_required"`

	// Errors lists stage and hook failures in occurrence order.
	Errors []string `json:"errors,omitempty"`

	// Trail lists the states the run passed through.
	Trail []State `json:"trail"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// clone returns a copy safe to hand to callers.
func (r *Run) clone() *Run {
	out := *r
	out.Errors = append([]string(nil), r.Errors...)
	out.Trail = append([]State(nil), r.Trail...)
	return &out
}

// Hooks are optional callbacks invoked after the decision branch.
//
// A hook error is appended to the run's error list but never changes
// the terminal state.
type Hooks struct {
	OnApproved func(ctx context.Context, run *Run) error
	OnRejected func(ctx context.Context, run *Run) error
	OnReview   func(ctx context.Context, run *Run) error
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Deps wires the pipeline's collaborators.
type Deps struct {
	// Observations stores collected values. Required.
	Observations *metrics.Store

	// Baselines resolves and establishes baselines. Required.
	Baselines *baseline.Manager

	// Detector performs the regression check. Required.
	Detector *regression.Detector

	// Decisions applies the decision policy. Required.
	Decisions *decision.Engine

	// Collector produces the current value. Required.
	Collector Collector

	// Runtime supplies the minimum-sample threshold. Required.
	Runtime *config.Runtime

	// Sink receives pipeline counters. If nil, uses telemetry.NoopSink.
	Sink telemetry.Sink

	// Hooks are the optional branch callbacks.
	Hooks Hooks

	// Logger for run logs. If nil, uses slog.Default().
	Logger *slog.Logger

	// RunCapacity bounds retained terminal runs. <= 0 uses the default.
	RunCapacity int
}

// Engine executes validation runs.
//
// Description:
//
//	Each run walks the stage sequence in order. A stage failure appends
//	the error and forces FAILED with no automatic retry. Cancellation
//	between stages fails the run with the context error; artifacts
//	already committed by earlier stages (observations, baselines,
//	alerts, decisions) remain intact. Only terminal runs are retained.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	observations *metrics.Store
	baselines    *baseline.Manager
	detector     *regression.Detector
	decisions    *decision.Engine
	collector    Collector
	runtime      *config.Runtime
	sink         telemetry.Sink
	hooks        Hooks
	logger       *slog.Logger

	metricsOnce  sync.Once
	stageLatency metric.Float64Histogram
	runsTotal    metric.Int64Counter

	mu       sync.RWMutex
	runs     map[string]*Run
	order    []string
	capacity int
}

// NewEngine creates a workflow engine.
//
// Outputs:
//   - *Engine: The configured engine. Never nil on success.
//   - error: Non-nil when a required dependency is missing.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Observations == nil || deps.Baselines == nil || deps.Detector == nil ||
		deps.Decisions == nil || deps.Collector == nil || deps.Runtime == nil {
		return nil, errors.New("workflow: missing required dependency")
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.NoopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RunCapacity <= 0 {
		deps.RunCapacity = DefaultRunCapacity
	}

	return &Engine{
		observations: deps.Observations,
		baselines:    deps.Baselines,
		detector:     deps.Detector,
		decisions:    deps.Decisions,
		collector:    deps.Collector,
		runtime:      deps.Runtime,
		sink:         deps.Sink,
		hooks:        deps.Hooks,
		logger:       deps.Logger,
		runs:         make(map[string]*Run),
		capacity:     deps.RunCapacity,
	}, nil
}

// initMetrics lazily initializes meter instruments.
// Metric failures degrade observability but never block runs.
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var err error
		e.stageLatency, err = meter.Float64Histogram("validation_stage_duration_seconds",
			metric.WithDescription("Time spent in each validation stage"),
			metric.WithUnit("s"),
		)
		if err != nil {
			e.logger.Error("failed to initialize stage latency metric", slog.String("error", err.Error()))
		}

		e.runsTotal, err = meter.Int64Counter("validation_runs_total",
			metric.WithDescription("Completed validation runs by terminal state"),
		)
		if err != nil {
			e.logger.Error("failed to initialize run counter metric", slog.String("error", err.Error()))
		}
	})
}

// Execute runs the full pipeline for a request.
//
// Description:
//
//	Stage order: analyze, check_baseline, detect_regression,
//	make_decision, branch. A subject with no baseline and too little
//	history completes early with no decision rather than failing, so
//	new subjects can accumulate observations through the same entry
//	point.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - req: The run request. SubjectID and ConfigHash are required.
//
// Outputs:
//   - *Run: The terminal run record. Never nil on success.
//   - error: ErrInvalidRequest only; stage failures are reported on the
//     run itself.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Execute(ctx context.Context, req Request) (*Run, error) {
	if req.SubjectID == "" || req.ConfigHash == "" {
		return nil, fmt.Errorf("%w: subject_id and config_hash are required", ErrInvalidRequest)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	e.initMetrics()

	ctx, span := tracer.Start(ctx, "workflow.Engine.Execute",
		trace.WithAttributes(
			attribute.String("request_id", req.RequestID),
			attribute.String("subject_id", req.SubjectID),
		),
	)
	defer span.End()

	run := &Run{
		RequestID:  req.RequestID,
		SubjectID:  req.SubjectID,
		ConfigHash: req.ConfigHash,
		State:      StatePending,
		Trail:      []State{StatePending},
		StartedAt:  time.Now(),
	}

	type stage struct {
		name string
		next State
		fn   func(context.Context, Request, *Run) (bool, error)
	}
	stages := []stage{
		{"analyze", StateAnalyzing, e.analyze},
		{"check_baseline", StateBaselineChecked, e.checkBaseline},
		{"detect_regression", StateRegressionChecked, e.detectRegression},
		{"make_decision", StateDecisionMade, e.makeDecision},
		{"branch", StateCompleted, e.branch},
	}

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			e.fail(ctx, span, run, fmt.Errorf("cancelled before %s: %w", st.name, err))
			return run.clone(), nil
		}

		start := time.Now()
		done, err := e.runStage(ctx, st.name, req, run, st.fn)
		if e.stageLatency != nil {
			e.stageLatency.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("stage", st.name)))
		}

		if err != nil {
			e.fail(ctx, span, run, fmt.Errorf("%s: %w", st.name, err))
			return run.clone(), nil
		}
		// The terminal transition belongs to complete, not to a stage.
		if st.next != StateCompleted {
			e.advance(run, st.next)
		}

		if done {
			break
		}
	}

	e.complete(ctx, span, run, StateCompleted)
	return run.clone(), nil
}

// runStage executes one stage inside its own span.
func (e *Engine) runStage(ctx context.Context, name string, req Request, run *Run,
	fn func(context.Context, Request, *Run) (bool, error)) (bool, error) {

	ctx, span := tracer.Start(ctx, "workflow.stage."+name)
	defer span.End()

	done, err := fn(ctx, req, run)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return done, err
}

// analyze collects the current value and records it as an observation.
func (e *Engine) analyze(ctx context.Context, req Request, run *Run) (bool, error) {
	value, err := e.collector.Collect(ctx, req)
	if err != nil {
		return false, fmt.Errorf("collect: %w", err)
	}
	run.CurrentValue = value

	e.observations.Record(metrics.Observation{
		SubjectID:  req.SubjectID,
		ConfigHash: req.ConfigHash,
		Value:      value,
		Metadata:   req.Metadata,
	})
	e.sink.ObservationRecorded(ctx, req.SubjectID)
	return false, nil
}

// checkBaseline resolves the active baseline, establishing one from
// history when enough observations have accumulated.
func (e *Engine) checkBaseline(ctx context.Context, req Request, run *Run) (bool, error) {
	b, err := e.baselines.Active(ctx, req.SubjectID, req.ConfigHash)
	if err == nil {
		run.Baseline = b
		return false, nil
	}
	if !errors.Is(err, baseline.ErrNoBaseline) {
		return false, err
	}

	minSamples := e.runtime.BaselineMinSamples()
	if e.observations.Count(req.SubjectID) < minSamples {
		// Too thin to judge: finish without a decision and let history grow.
		e.logger.Info("insufficient history for baseline, completing without decision",
			slog.String("subject_id", req.SubjectID),
			slog.Int("have", e.observations.Count(req.SubjectID)),
			slog.Int("need", minSamples),
		)
		return true, nil
	}

	result, err := e.baselines.Establish(ctx, baseline.EstablishRequest{
		SubjectID:  req.SubjectID,
		ConfigHash: req.ConfigHash,
		SampleSize: minSamples,
	})
	if err != nil {
		return false, fmt.Errorf("establish baseline: %w", err)
	}
	run.Baseline = result.Baseline
	return false, nil
}

// detectRegression checks the collected value against the baseline.
func (e *Engine) detectRegression(ctx context.Context, req Request, run *Run) (bool, error) {
	result, err := e.detector.Detect(ctx, req.SubjectID, req.ConfigHash, run.CurrentValue)
	if err != nil {
		return false, err
	}
	run.Regression = result

	if result.Detected {
		e.sink.RegressionDetected(ctx, result.Severity.String())
		if result.Alert != nil {
			e.sink.AlertRaised(ctx, result.Alert.Level.String())
		}
	}
	return false, nil
}

// makeDecision applies the decision policy on magnitude alone.
//
// Workflow runs compare a single value against the baseline mean, so
// no p-value or effect size is supplied.
func (e *Engine) makeDecision(ctx context.Context, req Request, run *Run) (bool, error) {
	d, err := e.decisions.ValidateChange(ctx, decision.Request{
		Name:      "validation-run-" + run.RequestID,
		SubjectID: req.SubjectID,
		Baseline:  run.Baseline.Mean,
		New:       run.CurrentValue,
	})
	if err != nil {
		return false, err
	}
	run.Decision = d
	e.sink.DecisionMade(ctx, string(d.Outcome))
	return false, nil
}

// branch dispatches on the decision outcome.
func (e *Engine) branch(ctx context.Context, _ Request, run *Run) (bool, error) {
	var hook func(context.Context, *Run) error
	switch run.Decision.Outcome {
	case decision.OutcomeApprove:
		hook = e.hooks.OnApproved
	case decision.OutcomeReject:
		run.RollbackRequired = true
		hook = e.hooks.OnRejected
	default:
		hook = e.hooks.OnReview
	}

	if hook != nil {
		if err := hook(ctx, run); err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("hook: %v", err))
			e.logger.Warn("branch hook failed",
				slog.String("request_id", run.RequestID),
				slog.String("outcome", string(run.Decision.Outcome)),
				slog.String("error", err.Error()),
			)
		}
	}
	return false, nil
}

// advance moves the run forward one state. Terminal states are set by
// complete and fail, not here.
func (e *Engine) advance(run *Run, next State) {
	if run.State.Terminal() || next <= run.State {
		return
	}
	run.State = next
	run.Trail = append(run.Trail, next)
}

// fail forces the run to FAILED with the stage error.
func (e *Engine) fail(ctx context.Context, span trace.Span, run *Run, err error) {
	run.Errors = append(run.Errors, err.Error())
	span.SetStatus(codes.Error, err.Error())

	e.logger.Error("validation run failed",
		slog.String("request_id", run.RequestID),
		slog.String("subject_id", run.SubjectID),
		slog.String("error", err.Error()),
	)
	e.complete(ctx, span, run, StateFailed)
}

// complete finalizes the run in a terminal state and registers it.
func (e *Engine) complete(ctx context.Context, span trace.Span, run *Run, terminal State) {
	if run.State.Terminal() {
		return
	}
	run.State = terminal
	run.Trail = append(run.Trail, terminal)
	run.CompletedAt = time.Now()

	span.SetAttributes(attribute.String("terminal_state", terminal.String()))
	e.sink.RunCompleted(ctx, terminal.String())
	if e.runsTotal != nil {
		e.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", terminal.String())))
	}

	e.register(run)
}

// register retains a terminal run, evicting the oldest past the cap.
func (e *Engine) register(run *Run) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.order) >= e.capacity {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.runs, oldest)
	}
	e.runs[run.RequestID] = run
	e.order = append(e.order, run.RequestID)
}

// Get returns the retained run for a request id.
//
// Outputs:
//   - *Run: A copy of the run. Never nil on success.
//   - error: ErrRunNotFound when the id is unknown or evicted.
func (e *Engine) Get(requestID string) (*Run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	run, ok := e.runs[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, requestID)
	}
	return run.clone(), nil
}

// Recent returns up to limit retained runs, newest first.
func (e *Engine) Recent(limit int) []*Run {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.order)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*Run, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.runs[e.order[i]].clone())
	}
	return out
}
