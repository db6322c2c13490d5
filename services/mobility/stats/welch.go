// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats compares mobility indicators across epidemiological
// thresholds.
//
// The comparator splits the merged daily table into days at or above a
// threshold of one column and days below it, then runs Welch's two-sample
// t-test on another column. Comparisons are independent: one that fails
// (too few days in a group, no variance) reports its error in its own
// result and the rest still run.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInsufficientSample indicates a group with fewer than two samples.
	ErrInsufficientSample = errors.New("insufficient samples for statistical analysis")

	// ErrZeroVariance indicates both groups have zero variance, so the
	// t statistic is undefined.
	ErrZeroVariance = errors.New("sample sets have zero variance")

	// ErrInvalidAlpha indicates a significance level outside (0, 1).
	ErrInvalidAlpha = errors.New("significance level must be in (0, 1)")
)

// MinSamples is the smallest group size a t-test accepts.
const MinSamples = 2

// InsufficientSampleError names the group that was too small.
type InsufficientSampleError struct {
	Group string
	Size  int
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("%s group has %d samples, need at least %d: %v",
		e.Group, e.Size, MinSamples, ErrInsufficientSample)
}

// Is reports whether target is ErrInsufficientSample.
func (e *InsufficientSampleError) Is(target error) bool {
	return target == ErrInsufficientSample
}

// -----------------------------------------------------------------------------
// Welch's t-test
// -----------------------------------------------------------------------------

// TTestResult holds the results of a t-test.
type TTestResult struct {
	// TStatistic is the computed t-statistic (mean1 - mean2) / se.
	TStatistic float64 `json:"t_statistic"`

	// PValue is the two-tailed p-value.
	PValue float64 `json:"p_value"`

	// DegreesOfFreedom is the Welch-Satterthwaite df.
	DegreesOfFreedom float64 `json:"degrees_of_freedom"`

	// Significant is true if PValue < significance level.
	Significant bool `json:"significant"`

	// SignificanceLevel is the alpha used (e.g., 0.05).
	SignificanceLevel float64 `json:"significance_level"`
}

// WelchTTest performs Welch's t-test for two sample sets.
//
// Description:
//
//	Welch's t-test does not assume equal population variances. The
//	two-sided p-value comes from the Student t distribution with
//	Welch-Satterthwaite degrees of freedom.
//
// Inputs:
//   - samples1: First sample set. Must have at least 2 samples.
//   - samples2: Second sample set. Must have at least 2 samples.
//   - alpha: Significance level (e.g., 0.05 for 95% confidence).
//
// Outputs:
//   - *TTestResult: Test results with t-statistic, p-value, and significance.
//   - error: *InsufficientSampleError, ErrZeroVariance, or ErrInvalidAlpha.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func WelchTTest(samples1, samples2 []float64, alpha float64) (*TTestResult, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, ErrInvalidAlpha
	}
	if len(samples1) < MinSamples {
		return nil, &InsufficientSampleError{Group: "first", Size: len(samples1)}
	}
	if len(samples2) < MinSamples {
		return nil, &InsufficientSampleError{Group: "second", Size: len(samples2)}
	}

	mean1, var1 := stat.MeanVariance(samples1, nil)
	mean2, var2 := stat.MeanVariance(samples2, nil)

	n1 := float64(len(samples1))
	n2 := float64(len(samples2))

	// Standard error
	se := math.Sqrt(var1/n1 + var2/n2)
	if se == 0 {
		return nil, ErrZeroVariance
	}

	tStat := (mean1 - mean2) / se

	// Degrees of freedom (Welch-Satterthwaite equation)
	num := math.Pow(var1/n1+var2/n2, 2)
	denom := math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1)
	df := num / denom

	pValue := 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(tStat))
	if pValue > 1 {
		pValue = 1
	}

	return &TTestResult{
		TStatistic:        tStat,
		PValue:            pValue,
		DegreesOfFreedom:  df,
		Significant:       pValue < alpha,
		SignificanceLevel: alpha,
	}, nil
}

// EffectSize calculates Cohen's d effect size.
//
// Uses the pooled standard deviation for the denominator. Positive means
// samples1 has the larger mean.
func EffectSize(samples1, samples2 []float64) (float64, error) {
	if len(samples1) < MinSamples || len(samples2) < MinSamples {
		return 0, ErrInsufficientSample
	}

	mean1, var1 := stat.MeanVariance(samples1, nil)
	mean2, var2 := stat.MeanVariance(samples2, nil)

	n1 := float64(len(samples1))
	n2 := float64(len(samples2))

	pooledVar := ((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2)
	pooledStdDev := math.Sqrt(pooledVar)
	if pooledStdDev == 0 {
		return 0, ErrZeroVariance
	}

	return (mean1 - mean2) / pooledStdDev, nil
}
