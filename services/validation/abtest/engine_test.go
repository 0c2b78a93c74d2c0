// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package abtest

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func setupTest(t *testing.T, e *Engine) *Test {
	t.Helper()
	test, err := e.SetupTest("checkout-v2", "model-a", "model-b", "quality", 100, 0.05)
	if err != nil {
		t.Fatalf("setup test: %v", err)
	}
	return test
}

func addAll(t *testing.T, e *Engine, testID string, group Group, values []float64) {
	t.Helper()
	for _, v := range values {
		if err := e.AddObservation(testID, group, v); err != nil {
			t.Fatalf("add observation: %v", err)
		}
	}
}

func TestEngine_SetupTest(t *testing.T) {
	e := NewEngine(nil)

	t.Run("defaults alpha", func(t *testing.T) {
		test, err := e.SetupTest("t", "c", "x", "m", 10, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if test.Alpha != DefaultAlpha {
			t.Errorf("expected default alpha %v, got %v", DefaultAlpha, test.Alpha)
		}
		if test.ID == "" {
			t.Error("expected generated id")
		}
	})

	t.Run("rejects missing ids", func(t *testing.T) {
		if _, err := e.SetupTest("", "c", "x", "m", 10, 0.05); !errors.Is(err, ErrInvalidTest) {
			t.Errorf("expected ErrInvalidTest, got %v", err)
		}
	})

	t.Run("rejects non-positive sample size", func(t *testing.T) {
		if _, err := e.SetupTest("t", "c", "x", "m", 0, 0.05); !errors.Is(err, ErrInvalidTest) {
			t.Errorf("expected ErrInvalidTest, got %v", err)
		}
	})
}

func TestEngine_AddObservation(t *testing.T) {
	e := NewEngine(nil)
	test := setupTest(t, e)

	t.Run("unknown test", func(t *testing.T) {
		err := e.AddObservation("missing", GroupControl, 1)
		if !errors.Is(err, ErrTestNotFound) {
			t.Errorf("expected ErrTestNotFound, got %v", err)
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		err := e.AddObservation(test.ID, Group("shadow"), 1)
		if !errors.Is(err, ErrUnknownGroup) {
			t.Errorf("expected ErrUnknownGroup, got %v", err)
		}
	})

	t.Run("appends to the named group", func(t *testing.T) {
		addAll(t, e, test.ID, GroupControl, []float64{1, 2})
		addAll(t, e, test.ID, GroupTreatment, []float64{3})

		got, err := e.Get(test.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ControlSize() != 2 || got.TreatmentSize() != 1 {
			t.Errorf("expected sizes 2/1, got %d/%d", got.ControlSize(), got.TreatmentSize())
		}
	})
}

func TestEngine_CalculateSignificance(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		e := NewEngine(nil)
		test := setupTest(t, e)
		addAll(t, e, test.ID, GroupControl, []float64{1, 2})
		addAll(t, e, test.ID, GroupTreatment, []float64{3})

		_, err := e.CalculateSignificance(test.ID)
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData, got %v", err)
		}
	})

	t.Run("unknown test", func(t *testing.T) {
		e := NewEngine(nil)
		_, err := e.CalculateSignificance("missing")
		if !errors.Is(err, ErrTestNotFound) {
			t.Errorf("expected ErrTestNotFound, got %v", err)
		}
	})

	t.Run("clear treatment win", func(t *testing.T) {
		e := NewEngine(nil)
		test := setupTest(t, e)
		control := make([]float64, 40)
		treatment := make([]float64, 40)
		for i := range control {
			control[i] = 70 + float64(i%5)
			treatment[i] = 90 + float64(i%5)
		}
		addAll(t, e, test.ID, GroupControl, control)
		addAll(t, e, test.ID, GroupTreatment, treatment)

		result, err := e.CalculateSignificance(test.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !result.Significant {
			t.Errorf("expected significance, p=%v", result.PValue)
		}
		if result.Winner != WinnerTreatment {
			t.Errorf("expected treatment winner, got %s", result.Winner)
		}
		if result.TStatistic <= 0 {
			t.Errorf("expected positive t-statistic, got %v", result.TStatistic)
		}
		if result.DegreesOfFreedom != 78 {
			t.Errorf("expected df 78, got %d", result.DegreesOfFreedom)
		}
		if result.CohensD <= 0.8 {
			t.Errorf("expected large effect size, got %v", result.CohensD)
		}
		// Treatment mean 92 vs control mean 72: ~27.8% improvement.
		if math.Abs(result.ImprovementPct-(20.0/72.0*100)) > 1e-9 {
			t.Errorf("unexpected improvement pct %v", result.ImprovementPct)
		}
		if result.CI95.Lower >= result.CI95.Upper {
			t.Errorf("degenerate 95%% CI: %+v", result.CI95)
		}
		if result.CI99.Lower >= result.CI95.Lower || result.CI99.Upper <= result.CI95.Upper {
			t.Errorf("99%% CI should contain the 95%% CI: %+v vs %+v", result.CI99, result.CI95)
		}
	})

	t.Run("control win when treatment drops", func(t *testing.T) {
		e := NewEngine(nil)
		test := setupTest(t, e)
		control := make([]float64, 40)
		treatment := make([]float64, 40)
		for i := range control {
			control[i] = 90 + float64(i%3)
			treatment[i] = 60 + float64(i%3)
		}
		addAll(t, e, test.ID, GroupControl, control)
		addAll(t, e, test.ID, GroupTreatment, treatment)

		result, err := e.CalculateSignificance(test.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Winner != WinnerControl {
			t.Errorf("expected control winner, got %s", result.Winner)
		}
		if result.ImprovementPct >= 0 {
			t.Errorf("expected negative improvement, got %v", result.ImprovementPct)
		}
	})

	t.Run("zero variance groups never raise", func(t *testing.T) {
		e := NewEngine(nil)
		test := setupTest(t, e)
		addAll(t, e, test.ID, GroupControl, []float64{10, 10, 10, 10})
		addAll(t, e, test.ID, GroupTreatment, []float64{20, 20, 20, 20})

		result, err := e.CalculateSignificance(test.ID)
		if err != nil {
			t.Fatalf("zero-variance groups must compute, got error: %v", err)
		}
		if result.CohensD != 0 {
			t.Errorf("expected Cohen's d 0 via pooled-std guard, got %v", result.CohensD)
		}
		if result.TStatistic != 0 || result.PValue != 1 {
			t.Errorf("expected degraded t=0 p=1, got t=%v p=%v", result.TStatistic, result.PValue)
		}
		if result.Significant {
			t.Error("degraded test must not be significant")
		}
		// CI degrades to the point estimate of the difference.
		if result.CI95.Lower != 10 || result.CI95.Upper != 10 {
			t.Errorf("expected point CI [10,10], got %+v", result.CI95)
		}
	})

	t.Run("zero control mean degrades improvement", func(t *testing.T) {
		e := NewEngine(nil)
		test := setupTest(t, e)
		addAll(t, e, test.ID, GroupControl, []float64{0, 0, 0})
		addAll(t, e, test.ID, GroupTreatment, []float64{1, 2, 3})

		result, err := e.CalculateSignificance(test.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ImprovementPct != 0 {
			t.Errorf("expected improvement 0 for zero control mean, got %v", result.ImprovementPct)
		}
	})

	t.Run("no winner without significance", func(t *testing.T) {
		e := NewEngine(nil)
		test := setupTest(t, e)
		addAll(t, e, test.ID, GroupControl, []float64{10, 12, 11, 13, 9})
		addAll(t, e, test.ID, GroupTreatment, []float64{11, 10, 12, 12, 10})

		result, err := e.CalculateSignificance(test.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Significant {
			t.Errorf("expected no significance for near-identical groups, p=%v", result.PValue)
		}
		if result.Winner != WinnerNone {
			t.Errorf("expected no winner, got %s", result.Winner)
		}
	})
}

func TestStats(t *testing.T) {
	t.Run("sample variance uses n-1", func(t *testing.T) {
		samples := []float64{90, 95, 100, 105, 110}
		m := mean(samples)
		if m != 100 {
			t.Fatalf("expected mean 100, got %v", m)
		}
		if v := sampleVariance(samples, m); math.Abs(v-62.5) > 1e-9 {
			t.Errorf("expected sample variance 62.5, got %v", v)
		}
	})

	t.Run("single sample variance is zero", func(t *testing.T) {
		if v := sampleVariance([]float64{42}, 42); v != 0 {
			t.Errorf("expected 0, got %v", v)
		}
	})

	t.Run("pooled stddev of equal variances", func(t *testing.T) {
		got := pooledStdDev(4, 4, 10, 10)
		if math.Abs(got-2) > 1e-9 {
			t.Errorf("expected pooled stddev 2, got %v", got)
		}
	})

	t.Run("p-value shrinks with larger t", func(t *testing.T) {
		p1 := tTwoSidedPValue(1, 40)
		p2 := tTwoSidedPValue(3, 40)
		if p2 >= p1 {
			t.Errorf("expected p(3) < p(1), got %v vs %v", p2, p1)
		}
		if p := tTwoSidedPValue(0, 40); p != 1 {
			t.Errorf("expected p=1 at t=0, got %v", p)
		}
	})

	t.Run("critical values widen with confidence", func(t *testing.T) {
		if tCriticalValue(10, 0.99) <= tCriticalValue(10, 0.95) {
			t.Error("99% critical value must exceed 95%")
		}
		if tCriticalValue(40, 0.95) != 1.96 {
			t.Errorf("expected normal approximation 1.96 for large df, got %v", tCriticalValue(40, 0.95))
		}
	})
}

func TestWinnerTextEncoding(t *testing.T) {
	tests := []struct {
		winner Winner
		text   string
	}{
		{WinnerNone, "none"},
		{WinnerControl, "control"},
		{WinnerTreatment, "treatment"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := json.Marshal(tt.winner)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != `"`+tt.text+`"` {
				t.Errorf("expected %q, got %s", tt.text, got)
			}

			var back Winner
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.winner {
				t.Errorf("round trip changed %v to %v", tt.winner, back)
			}
		})
	}

	t.Run("unknown rejected", func(t *testing.T) {
		var winner Winner
		if err := json.Unmarshal([]byte(`"draw"`), &winner); err == nil {
			t.Error("expected error for unknown winner")
		}
	})
}
