// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decision turns measured quality changes into deterministic
// approve / reject / manual-review outcomes.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("vigil.decision")

// SignificanceAlpha is the p-value cutoff for treating a supplied
// p-value as statistically significant.
const SignificanceAlpha = 0.05

// ErrInvalidRequest indicates a validation request missing required fields.
var ErrInvalidRequest = errors.New("invalid validation request")

// -----------------------------------------------------------------------------
// Outcome
// -----------------------------------------------------------------------------

// Outcome is the verdict of a change validation.
type Outcome string

const (
	// OutcomeApprove clears the change for rollout.
	OutcomeApprove Outcome = "approve"

	// OutcomeReject blocks the change.
	OutcomeReject Outcome = "reject"

	// OutcomeManualReview routes the change to a human.
	OutcomeManualReview Outcome = "manual_review"
)

// -----------------------------------------------------------------------------
// Request / Decision
// -----------------------------------------------------------------------------

// Request describes a proposed change to validate.
type Request struct {
	// Name labels the change being validated.
	Name string `json:"name"`

	// SubjectID is the monitored subject the change applies to.
	SubjectID string `json:"subject_id"`

	// Baseline is the pre-change quality value.
	Baseline float64 `json:"baseline"`

	// New is the post-change quality value.
	New float64 `json:"new"`

	// PValue is the two-sided p-value for the change, when a significance
	// test was run. Nil means no test.
	PValue *float64 `json:"p_value,omitempty"`

	// EffectSize is Cohen's d for the change, when computed.
	EffectSize *float64 `json:"effect_size,omitempty"`
}

// Decision is the recorded outcome of a validation.
type Decision struct {
	// ID uniquely identifies the decision.
	ID string `json:"id"`

	// Name echoes the request label.
	Name string `json:"name"`

	// SubjectID echoes the request subject.
	SubjectID string `json:"subject_id"`

	// Outcome is the verdict.
	Outcome Outcome `json:"outcome"`

	// Confidence is the policy confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// BaselineValue and NewValue echo the compared values.
	BaselineValue float64 `json:"baseline_value"`
	NewValue      float64 `json:"new_value"`

	// Change is new minus baseline.
	Change float64 `json:"change"`

	// ChangePct is the change as a percentage of the baseline.
	// Defined as 0 when the baseline is 0.
	ChangePct float64 `json:"change_pct"`

	// Significant is true when a supplied p-value fell below the alpha.
	Significant bool `json:"significant"`

	// Recommendation is a human-readable next step.
	Recommendation string `json:"recommendation"`

	// Reasoning lists the policy steps that produced the outcome, in order.
	Reasoning []string `json:"reasoning"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine applies the deterministic decision policy to quality changes.
//
// Description:
//
//	The policy is a first-match rule chain over the percentage change,
//	refined by statistical significance when a p-value is supplied and
//	nudged by effect size when one is supplied. The same inputs always
//	produce the same outcome. Every decision is appended to the history
//	store before it is returned.
//
// Thread Safety: Safe for concurrent use when the store is.
type Engine struct {
	history Store
	logger  *slog.Logger
}

// NewEngine creates a decision engine.
//
// Inputs:
//   - history: Decision sink. Must not be nil.
//   - logger: Logger. If nil, uses slog.Default().
//
// Outputs:
//   - *Engine: The new engine. Never nil.
func NewEngine(history Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{history: history, logger: logger}
}

// ValidateChange evaluates a proposed change and records the decision.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - req: The change to validate. SubjectID is required.
//
// Outputs:
//   - *Decision: The recorded decision. Never nil on success.
//   - error: ErrInvalidRequest, or a store failure.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) ValidateChange(ctx context.Context, req Request) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "decision.Engine.ValidateChange",
		trace.WithAttributes(attribute.String("subject_id", req.SubjectID)),
	)
	defer span.End()

	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", ErrInvalidRequest)
	}

	change := req.New - req.Baseline
	var changePct float64
	if req.Baseline != 0 {
		changePct = change / req.Baseline * 100
	}

	significant := req.PValue != nil && *req.PValue < SignificanceAlpha

	outcome, confidence, reasoning := applyPolicy(changePct, significant, req.PValue)
	confidence, reasoning = adjustForEffectSize(confidence, reasoning, req.EffectSize)

	d := &Decision{
		ID:             uuid.NewString(),
		Name:           req.Name,
		SubjectID:      req.SubjectID,
		Outcome:        outcome,
		Confidence:     confidence,
		BaselineValue:  req.Baseline,
		NewValue:       req.New,
		Change:         change,
		ChangePct:      changePct,
		Significant:    significant,
		Recommendation: recommendationFor(outcome, changePct),
		Reasoning:      reasoning,
		Timestamp:      time.Now(),
	}

	if err := e.history.Append(ctx, *d); err != nil {
		return nil, fmt.Errorf("record decision: %w", err)
	}

	e.logger.Info("decision made",
		slog.String("subject_id", req.SubjectID),
		slog.String("outcome", string(outcome)),
		slog.Float64("confidence", confidence),
		slog.Float64("change_pct", changePct),
	)
	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Float64("confidence", confidence),
	)
	return d, nil
}

// History returns up to limit recent decisions, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]Decision, error) {
	return e.history.Recent(ctx, limit)
}

// applyPolicy runs the first-match rule chain.
//
// Boundary values sit between rules on purpose: a change of exactly
// -2.0% or -5.0% matches no improvement, noise, or degradation rule and
// falls through to manual review at low confidence.
func applyPolicy(changePct float64, significant bool, pValue *float64) (Outcome, float64, []string) {
	reasoning := []string{fmt.Sprintf("quality changed %+.2f%%", changePct)}
	if pValue != nil {
		reasoning = append(reasoning, fmt.Sprintf("p-value %.4f, significant=%t at alpha %.2f", *pValue, significant, SignificanceAlpha))
	} else {
		reasoning = append(reasoning, "no significance test supplied")
	}

	switch {
	case changePct > 0 && significant:
		reasoning = append(reasoning, "statistically significant improvement")
		return OutcomeApprove, 0.95, reasoning

	case changePct > 0:
		reasoning = append(reasoning, "improvement without significance evidence")
		return OutcomeApprove, 0.85, reasoning

	case math.Abs(changePct) < 2.0:
		reasoning = append(reasoning, "change within the +/-2% noise band")
		return OutcomeApprove, 0.90, reasoning

	case changePct > -5.0 && changePct < -2.0:
		if significant {
			reasoning = append(reasoning, "statistically significant moderate degradation")
			return OutcomeReject, 0.85, reasoning
		}
		reasoning = append(reasoning, "moderate degradation without significance evidence")
		return OutcomeManualReview, 0.70, reasoning

	case changePct < -5.0:
		reasoning = append(reasoning, "large degradation beyond 5%")
		return OutcomeReject, 0.95, reasoning

	default:
		reasoning = append(reasoning, "change on a policy boundary, deferring to review")
		return OutcomeManualReview, 0.60, reasoning
	}
}

// adjustForEffectSize nudges confidence by the practical effect magnitude.
func adjustForEffectSize(confidence float64, reasoning []string, effectSize *float64) (float64, []string) {
	if effectSize == nil {
		return confidence, reasoning
	}

	d := math.Abs(*effectSize)
	switch {
	case d > 0.8:
		confidence = math.Min(confidence+0.05, 1.0)
		reasoning = append(reasoning, fmt.Sprintf("large effect size (|d|=%.2f) raises confidence", d))
	case d < 0.2:
		confidence = math.Max(confidence-0.05, 0.0)
		reasoning = append(reasoning, fmt.Sprintf("negligible effect size (|d|=%.2f) lowers confidence", d))
	}
	return confidence, reasoning
}

// recommendationFor renders the next-step text for an outcome.
func recommendationFor(outcome Outcome, changePct float64) string {
	switch outcome {
	case OutcomeApprove:
		return fmt.Sprintf("Proceed with rollout: quality change of %+.2f%% is acceptable.", changePct)
	case OutcomeReject:
		return fmt.Sprintf("Roll back: quality dropped %.2f%%, which exceeds policy tolerance.", -changePct)
	default:
		return fmt.Sprintf("Hold for manual review: a %+.2f%% change needs human judgement.", changePct)
	}
}
