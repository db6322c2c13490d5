// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianMobility/services/mobility/aggregate"
)

var tracer = otel.Tracer("mobility.stats")

// DefaultAlpha is the significance level used when none is configured.
const DefaultAlpha = 0.05

// Comparison describes one threshold test on the merged table.
type Comparison struct {
	// Name labels the result, e.g. "cases_vs_passengers".
	Name string `json:"name" yaml:"name" validate:"required"`

	// Partition is the column split at Threshold.
	Partition string `json:"partition" yaml:"partition" validate:"required"`

	// Threshold separates days with Partition >= Threshold from the rest.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Metric is the column whose means are compared.
	Metric string `json:"metric" yaml:"metric" validate:"required"`
}

// DefaultComparisons returns the four case/death threshold tests.
func DefaultComparisons() []Comparison {
	return []Comparison{
		{Name: "cases_vs_passenger_count", Partition: "MN_CASE_COUNT", Threshold: 100, Metric: "passenger_count"},
		{Name: "cases_vs_trip_distance", Partition: "MN_CASE_COUNT", Threshold: 100, Metric: "trip_distance"},
		{Name: "deaths_vs_passenger_count", Partition: "MN_DEATH_COUNT", Threshold: 10, Metric: "passenger_count"},
		{Name: "deaths_vs_trip_distance", Partition: "MN_DEATH_COUNT", Threshold: 10, Metric: "trip_distance"},
	}
}

// GroupSummary describes one side of a partition.
type GroupSummary struct {
	Size int     `json:"size"`
	Mean float64 `json:"mean"`
}

// ComparisonResult is the outcome of one Comparison.
//
// Exactly one of Test and Err is set.
type ComparisonResult struct {
	Comparison Comparison   `json:"comparison"`
	Above      GroupSummary `json:"above"`
	Below      GroupSummary `json:"below"`
	Test       *TTestResult `json:"test,omitempty"`

	// EffectSize is Cohen's d of above vs below; 0 when undefined.
	EffectSize float64 `json:"effect_size"`

	// AdjustedPValue is the Bonferroni-adjusted p-value when Corrected is
	// set, and equal to Test.PValue otherwise.
	AdjustedPValue float64 `json:"adjusted_p_value"`

	// Corrected marks results whose significance was decided on the
	// adjusted p-value.
	Corrected bool `json:"corrected"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Significant reports whether the comparison succeeded and was significant.
func (r *ComparisonResult) Significant() bool {
	return r.Err == nil && r.Test != nil && r.Test.Significant
}

// Comparator runs threshold comparisons against a merged table.
type Comparator struct {
	// Alpha is the significance level. Must be in (0, 1). Default: 0.05
	Alpha float64

	// Bonferroni multiplies each p-value by the number of successful tests
	// before comparing it with Alpha. Off by default.
	Bonferroni bool
}

// NewComparator returns a Comparator with the default alpha and no
// multiple-comparison correction.
func NewComparator() *Comparator {
	return &Comparator{Alpha: DefaultAlpha}
}

// Partition splits the metric column of table by the partition column.
//
// Rows with partition >= threshold go to above, the rest to below, each
// in row order.
func Partition(table *aggregate.MergedTable, c Comparison) (above, below []float64, err error) {
	part, err := table.Column(c.Partition)
	if err != nil {
		return nil, nil, err
	}
	metric, err := table.Column(c.Metric)
	if err != nil {
		return nil, nil, err
	}
	for i, p := range part {
		if p >= c.Threshold {
			above = append(above, metric[i])
		} else {
			below = append(below, metric[i])
		}
	}
	return above, below, nil
}

// Compare runs a single comparison.
func (c *Comparator) Compare(table *aggregate.MergedTable, comp Comparison) ComparisonResult {
	res := ComparisonResult{Comparison: comp}

	above, below, err := Partition(table, comp)
	if err != nil {
		return res.fail(err)
	}
	res.Above = summarize(above)
	res.Below = summarize(below)

	switch {
	case len(above) < MinSamples:
		return res.fail(&InsufficientSampleError{Group: "above", Size: len(above)})
	case len(below) < MinSamples:
		return res.fail(&InsufficientSampleError{Group: "below", Size: len(below)})
	}

	test, err := WelchTTest(above, below, c.Alpha)
	if err != nil {
		return res.fail(err)
	}
	res.Test = test
	res.AdjustedPValue = test.PValue
	if d, err := EffectSize(above, below); err == nil {
		res.EffectSize = d
	}
	return res
}

// Run executes every comparison against table.
//
// Description:
//
//	Each comparison is independent; a failure is recorded in that
//	comparison's result and the others still run. When Bonferroni is set,
//	the successful results are adjusted together and marked Corrected.
//
// Inputs:
//
//	ctx - Context for tracing.
//	table - The merged daily table.
//	comps - Comparisons in output order.
//
// Outputs:
//
//	[]ComparisonResult - One per comparison, same order.
//	error - ErrInvalidAlpha if the comparator is misconfigured.
func (c *Comparator) Run(ctx context.Context, table *aggregate.MergedTable, comps []Comparison) ([]ComparisonResult, error) {
	if !(c.Alpha > 0 && c.Alpha < 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlpha, c.Alpha)
	}

	_, span := tracer.Start(ctx, "stats.Run",
		trace.WithAttributes(
			attribute.Int("comparisons", len(comps)),
			attribute.Int("rows", len(table.Rows)),
			attribute.Bool("bonferroni", c.Bonferroni),
		),
	)
	defer span.End()

	results := make([]ComparisonResult, len(comps))
	tested := 0
	for i, comp := range comps {
		results[i] = c.Compare(table, comp)
		if results[i].Err != nil {
			slog.Warn("comparison failed",
				slog.String("comparison", comp.Name),
				slog.String("error", results[i].Error),
			)
			continue
		}
		tested++
	}

	if c.Bonferroni && tested > 0 {
		for i := range results {
			r := &results[i]
			if r.Test == nil {
				continue
			}
			r.AdjustedPValue = math.Min(1, r.Test.PValue*float64(tested))
			r.Test.Significant = r.AdjustedPValue < c.Alpha
			r.Corrected = true
		}
	}

	span.SetAttributes(attribute.Int("tested", tested))
	return results, nil
}

func (r ComparisonResult) fail(err error) ComparisonResult {
	r.Err = err
	r.Error = err.Error()
	return r
}

func summarize(xs []float64) GroupSummary {
	if len(xs) == 0 {
		return GroupSummary{}
	}
	return GroupSummary{Size: len(xs), Mean: stat.Mean(xs, nil)}
}
