// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package abtest manages two-group experiments and computes their
// statistical significance.
//
// Significance uses Student's independent two-sample t-test with the
// equal-variance (pooled) assumption, plus Cohen's d for effect size and
// t-based confidence intervals on the mean difference. Zero-variance
// groups are handled with defined degradations rather than errors.
package abtest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAlpha is the significance level used when none is supplied.
const DefaultAlpha = 0.05

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrTestNotFound indicates an unknown test id.
	ErrTestNotFound = errors.New("a/b test not found")

	// ErrInsufficientData indicates a group has fewer than 2 observations.
	ErrInsufficientData = errors.New("insufficient observations for significance test")

	// ErrUnknownGroup indicates a group other than control or treatment.
	ErrUnknownGroup = errors.New("unknown test group")

	// ErrInvalidTest indicates a malformed test definition.
	ErrInvalidTest = errors.New("invalid a/b test definition")
)

// -----------------------------------------------------------------------------
// Test Types
// -----------------------------------------------------------------------------

// Group names one side of a test.
type Group string

const (
	// GroupControl is the reference variant.
	GroupControl Group = "control"

	// GroupTreatment is the candidate variant.
	GroupTreatment Group = "treatment"
)

// Test is a two-group experiment definition with its observations.
type Test struct {
	// ID uniquely identifies the test.
	ID string `json:"id"`

	// Name is the human-readable test name.
	Name string `json:"name"`

	// ControlID identifies the control variant.
	ControlID string `json:"control_id"`

	// TreatmentID identifies the treatment variant.
	TreatmentID string `json:"treatment_id"`

	// Metric is the quality metric under test.
	Metric string `json:"metric"`

	// TargetSampleSize is the intended per-group sample count.
	TargetSampleSize int `json:"target_sample_size"`

	// Alpha is the significance level.
	Alpha float64 `json:"alpha"`

	// CreatedAt is when the test was set up.
	CreatedAt time.Time `json:"created_at"`

	control   []float64
	treatment []float64
}

// ControlSize returns the number of control observations.
func (t *Test) ControlSize() int { return len(t.control) }

// TreatmentSize returns the number of treatment observations.
func (t *Test) TreatmentSize() int { return len(t.treatment) }

// Winner identifies the better-performing group, if any.
type Winner int

const (
	// WinnerNone means no significant difference.
	WinnerNone Winner = iota

	// WinnerControl means control is significantly better.
	WinnerControl

	// WinnerTreatment means treatment is significantly better.
	WinnerTreatment
)

// String returns the string representation.
func (w Winner) String() string {
	switch w {
	case WinnerControl:
		return "control"
	case WinnerTreatment:
		return "treatment"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler so results serialize
// with readable winner names.
func (w Winner) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Winner) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*w = WinnerNone
	case "control":
		*w = WinnerControl
	case "treatment":
		*w = WinnerTreatment
	default:
		return fmt.Errorf("unknown winner %q", text)
	}
	return nil
}

// Interval is a closed confidence interval.
type Interval struct {
	// Lower is the lower bound.
	Lower float64 `json:"lower"`

	// Upper is the upper bound.
	Upper float64 `json:"upper"`
}

// Result holds the significance calculation for a test.
type Result struct {
	// TestID is the analyzed test.
	TestID string `json:"test_id"`

	// ControlMean is the control group sample mean.
	ControlMean float64 `json:"control_mean"`

	// ControlStdDev is the control group sample standard deviation.
	ControlStdDev float64 `json:"control_std_dev"`

	// ControlSize is the control group sample count.
	ControlSize int `json:"control_size"`

	// TreatmentMean is the treatment group sample mean.
	TreatmentMean float64 `json:"treatment_mean"`

	// TreatmentStdDev is the treatment group sample standard deviation.
	TreatmentStdDev float64 `json:"treatment_std_dev"`

	// TreatmentSize is the treatment group sample count.
	TreatmentSize int `json:"treatment_size"`

	// TStatistic is the Student's t-statistic (treatment - control).
	TStatistic float64 `json:"t_statistic"`

	// PValue is the two-sided p-value.
	PValue float64 `json:"p_value"`

	// DegreesOfFreedom is n1 + n2 - 2.
	DegreesOfFreedom int `json:"degrees_of_freedom"`

	// Significant is true when PValue < Alpha.
	Significant bool `json:"significant"`

	// CohensD is the effect size. 0 when the pooled deviation is 0.
	CohensD float64 `json:"cohens_d"`

	// CI95 is the 95% confidence interval on the mean difference.
	CI95 Interval `json:"ci_95"`

	// CI99 is the 99% confidence interval on the mean difference.
	CI99 Interval `json:"ci_99"`

	// Winner is the significantly better group, if any.
	Winner Winner `json:"winner"`

	// ImprovementPct is the treatment improvement over control in percent.
	// 0 when the control mean is 0.
	ImprovementPct float64 `json:"improvement_pct"`
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine owns the set of running A/B tests.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	tests  map[string]*Test
	logger *slog.Logger
}

// NewEngine creates an A/B test engine.
//
// Inputs:
//   - logger: Logger. If nil, uses slog.Default().
//
// Outputs:
//   - *Engine: The new engine. Never nil.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tests:  make(map[string]*Test),
		logger: logger,
	}
}

// SetupTest creates a new test with empty observation groups.
//
// Inputs:
//   - name: Human-readable test name. Required.
//   - controlID, treatmentID: The compared variants. Required.
//   - metric: The quality metric under test.
//   - targetSampleSize: Intended per-group sample count. Must be > 0.
//   - alpha: Significance level in (0, 1). <= 0 uses DefaultAlpha.
//
// Outputs:
//   - *Test: The created test.
//   - error: ErrInvalidTest on malformed input.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) SetupTest(name, controlID, treatmentID, metric string, targetSampleSize int, alpha float64) (*Test, error) {
	if name == "" || controlID == "" || treatmentID == "" {
		return nil, fmt.Errorf("%w: name, control id, and treatment id are required", ErrInvalidTest)
	}
	if targetSampleSize <= 0 {
		return nil, fmt.Errorf("%w: target sample size must be positive, got %d", ErrInvalidTest, targetSampleSize)
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if alpha >= 1 {
		return nil, fmt.Errorf("%w: alpha must be below 1, got %v", ErrInvalidTest, alpha)
	}

	test := &Test{
		ID:               uuid.NewString(),
		Name:             name,
		ControlID:        controlID,
		TreatmentID:      treatmentID,
		Metric:           metric,
		TargetSampleSize: targetSampleSize,
		Alpha:            alpha,
		CreatedAt:        time.Now(),
	}

	e.mu.Lock()
	e.tests[test.ID] = test
	e.mu.Unlock()

	e.logger.Info("a/b test created",
		slog.String("test_id", test.ID),
		slog.String("name", name),
		slog.String("control", controlID),
		slog.String("treatment", treatmentID),
	)
	return test, nil
}

// AddObservation appends a value to one group of a test.
//
// Outputs:
//   - error: ErrTestNotFound or ErrUnknownGroup.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) AddObservation(testID string, group Group, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	test, ok := e.tests[testID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}

	switch group {
	case GroupControl:
		test.control = append(test.control, value)
	case GroupTreatment:
		test.treatment = append(test.treatment, value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return nil
}

// Get returns a test by id.
//
// Outputs:
//   - *Test: A copy of the test definition.
//   - error: ErrTestNotFound.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Get(testID string) (*Test, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	test, ok := e.tests[testID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	c := *test
	c.control = append([]float64(nil), test.control...)
	c.treatment = append([]float64(nil), test.treatment...)
	return &c, nil
}

// CalculateSignificance runs the full statistical analysis for a test.
//
// Description:
//
//	Requires at least 2 observations per group. Divide-by-zero guards:
//	a zero standard error yields t=0 and p=1; a zero pooled deviation
//	yields Cohen's d of 0; a zero control mean yields improvement 0.
//
// Outputs:
//   - *Result: The analysis. Never nil on success.
//   - error: ErrTestNotFound or ErrInsufficientData.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) CalculateSignificance(testID string) (*Result, error) {
	e.mu.RLock()
	test, ok := e.tests[testID]
	var control, treatment []float64
	var alpha float64
	if ok {
		control = append([]float64(nil), test.control...)
		treatment = append([]float64(nil), test.treatment...)
		alpha = test.Alpha
	}
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	if len(control) < 2 || len(treatment) < 2 {
		return nil, fmt.Errorf("%w: control=%d treatment=%d (need 2 each)",
			ErrInsufficientData, len(control), len(treatment))
	}

	n1, n2 := len(control), len(treatment)
	mean1, mean2 := mean(control), mean(treatment)
	var1 := sampleVariance(control, mean1)
	var2 := sampleVariance(treatment, mean2)

	df := n1 + n2 - 2
	pooled := pooledStdDev(var1, var2, n1, n2)
	meanDiff := mean2 - mean1

	// Student's t with the pooled estimate; se of the mean difference is
	// kept on the per-group variances for the confidence intervals.
	var tStat float64
	pValue := 1.0
	sePooled := pooled * math.Sqrt(1/float64(n1)+1/float64(n2))
	if sePooled > 0 {
		tStat = meanDiff / sePooled
		pValue = tTwoSidedPValue(tStat, float64(df))
	}

	var cohensD float64
	if pooled > 0 {
		cohensD = meanDiff / pooled
	}

	se := math.Sqrt(var1/float64(n1) + var2/float64(n2))
	ci95 := Interval{Lower: meanDiff, Upper: meanDiff}
	ci99 := Interval{Lower: meanDiff, Upper: meanDiff}
	if se > 0 {
		m95 := tCriticalValue(df, 0.95) * se
		m99 := tCriticalValue(df, 0.99) * se
		ci95 = Interval{Lower: meanDiff - m95, Upper: meanDiff + m95}
		ci99 = Interval{Lower: meanDiff - m99, Upper: meanDiff + m99}
	}

	significant := pValue < alpha

	winner := WinnerNone
	if significant && mean2 > mean1 {
		winner = WinnerTreatment
	} else if significant && mean1 > mean2 {
		winner = WinnerControl
	}

	var improvementPct float64
	if mean1 != 0 {
		improvementPct = meanDiff / mean1 * 100
	}

	result := &Result{
		TestID:           testID,
		ControlMean:      mean1,
		ControlStdDev:    math.Sqrt(var1),
		ControlSize:      n1,
		TreatmentMean:    mean2,
		TreatmentStdDev:  math.Sqrt(var2),
		TreatmentSize:    n2,
		TStatistic:       tStat,
		PValue:           pValue,
		DegreesOfFreedom: df,
		Significant:      significant,
		CohensD:          cohensD,
		CI95:             ci95,
		CI99:             ci99,
		Winner:           winner,
		ImprovementPct:   improvementPct,
	}

	e.logger.Info("a/b significance calculated",
		slog.String("test_id", testID),
		slog.Float64("p_value", pValue),
		slog.Bool("significant", significant),
		slog.String("winner", winner.String()),
	)
	return result, nil
}
