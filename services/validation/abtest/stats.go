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

import "math"

// -----------------------------------------------------------------------------
// Descriptive Statistics
// -----------------------------------------------------------------------------

// mean calculates the arithmetic mean.
func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// sampleVariance calculates the unbiased (n-1) variance.
func sampleVariance(samples []float64, mean float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		diff := s - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(samples)-1)
}

// pooledStdDev calculates the pooled standard deviation for two groups
// under the equal-variance assumption.
func pooledStdDev(var1, var2 float64, n1, n2 int) float64 {
	df := float64(n1 + n2 - 2)
	if df <= 0 {
		return 0
	}
	pooledVar := (float64(n1-1)*var1 + float64(n2-1)*var2) / df
	return math.Sqrt(pooledVar)
}

// -----------------------------------------------------------------------------
// t-Distribution Helpers
// -----------------------------------------------------------------------------

// normalCDF approximates the standard normal CDF.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt(2)))
}

// tTwoSidedPValue approximates the two-tailed p-value for a t-statistic.
//
// For df >= 30 the normal approximation is used directly; smaller df get
// a variance-matching adjustment before the normal lookup.
func tTwoSidedPValue(t, df float64) float64 {
	if df <= 0 {
		return 1
	}

	t = math.Abs(t)
	if df >= 30 {
		return clamp01(2 * (1 - normalCDF(t)))
	}

	adjustedT := t * math.Sqrt(df/(df-2+0.001))
	return clamp01(2 * (1 - normalCDF(adjustedT)))
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// tCriticalValue returns the two-tailed t critical value for a confidence
// level at the given degrees of freedom.
func tCriticalValue(df int, level float64) float64 {
	if df >= 30 {
		switch {
		case level >= 0.99:
			return 2.576
		case level >= 0.95:
			return 1.96
		case level >= 0.90:
			return 1.645
		default:
			return 1.96
		}
	}

	// Table lookup for small df.
	t95 := []float64{12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
		2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
		2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042}
	t99 := []float64{63.657, 9.925, 5.841, 4.604, 4.032, 3.707, 3.499, 3.355, 3.250, 3.169,
		3.106, 3.055, 3.012, 2.977, 2.947, 2.921, 2.898, 2.878, 2.861, 2.845,
		2.831, 2.819, 2.807, 2.797, 2.787, 2.779, 2.771, 2.763, 2.756, 2.750}

	if df < 1 {
		df = 1
	}

	switch {
	case level >= 0.99:
		return t99[df-1]
	case level >= 0.95:
		return t95[df-1]
	default:
		return t95[df-1] * 0.85 // Approximate for 90%
	}
}
