// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the mobility analysis over a list of periods.
//
// Every configured period gets its own PeriodContext holding the period's
// inputs, intermediate statistics, graph, and metrics. Periods share only
// the read-only zone table, so they are analyzed concurrently. A failure in
// one period is recorded in its context and does not stop the others.
//
// After the graph branch, the normalized trips of all periods feed the
// aggregation branch: per-day sums, the inner join with the epidemiological
// series, the threshold comparisons, and the correlation matrix.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianMobility/services/mobility/aggregate"
	"github.com/AleutianAI/AleutianMobility/services/mobility/graph"
	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	"github.com/AleutianAI/AleutianMobility/services/mobility/stats"
	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

var tracer = otel.Tracer("mobility.pipeline")

var (
	// ErrNoPeriods is returned when Run is given no periods.
	ErrNoPeriods = errors.New("no periods to analyze")

	// ErrUnknownPeriod is returned when a period name is not configured.
	ErrUnknownPeriod = errors.New("unknown period")

	// ErrNilZoneTable is returned when the inputs lack a zone table.
	ErrNilZoneTable = errors.New("zone table is required")
)

// Config holds every analysis parameter of a run.
type Config struct {
	Build   graph.BuildOptions
	Analyze graph.AnalyzeOptions

	// AggregateColumns are the trip columns summed per day.
	AggregateColumns []string

	// EpiColumns names the epidemiological columns.
	EpiColumns records.EpiColumns

	Comparisons []stats.Comparison
	Alpha       float64
	Bonferroni  bool

	// PeriodConcurrency caps how many periods are analyzed at once.
	// Default: number of periods.
	PeriodConcurrency int
}

// DefaultConfig returns the parameters of the 2020 study.
func DefaultConfig() Config {
	return Config{
		Build:            *graph.DefaultBuildOptions(),
		Analyze:          *graph.DefaultAnalyzeOptions(),
		AggregateColumns: append([]string(nil), records.DefaultAggregateColumns...),
		EpiColumns:       records.DefaultEpiColumns(),
		Comparisons:      stats.DefaultComparisons(),
		Alpha:            stats.DefaultAlpha,
	}
}

// PeriodInput is the normalized data of one analysis period.
type PeriodInput struct {
	Name  string
	Trips []records.TripRecord

	// Normalize is carried through from the loader for reporting.
	Normalize records.NormalizeStats
}

// Inputs is everything a run reads.
type Inputs struct {
	Zones   *zones.Table
	Periods []PeriodInput
	Epi     []records.EpiRecord
}

// Period returns the named period's input.
func (in Inputs) Period(name string) (PeriodInput, error) {
	for _, p := range in.Periods {
		if p.Name == name {
			return p, nil
		}
	}
	return PeriodInput{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, name)
}

// PeriodContext is the state and outcome of one period's graph branch.
type PeriodContext struct {
	Name      string                 `json:"name"`
	Trips     int                    `json:"trips"`
	Normalize records.NormalizeStats `json:"normalize"`
	Resolve   zones.ResolveStats     `json:"resolve"`
	Build     graph.BuildStats       `json:"build"`
	Report    *graph.Report          `json:"report,omitempty"`
	Elapsed   time.Duration          `json:"elapsed"`

	// Graph is the period's mobility graph, nil on failure.
	Graph *graph.Graph `json:"-"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

func (pc *PeriodContext) fail(err error) {
	pc.Err = err
	pc.Error = err.Error()
}

// Result is the outcome of a full run.
type Result struct {
	RunID       uuid.UUID                `json:"run_id"`
	StartedAt   time.Time                `json:"started_at"`
	Duration    time.Duration            `json:"duration"`
	Periods     []*PeriodContext         `json:"periods"`
	Daily       *aggregate.DailyTable    `json:"-"`
	Merged      *aggregate.MergedTable   `json:"merged"`
	Comparisons []stats.ComparisonResult `json:"comparisons"`

	// Correlations is nil when the merged table has too few rows;
	// CorrelationError then says why.
	Correlations     *stats.CorrelationMatrix `json:"correlations,omitempty"`
	CorrelationError string                   `json:"correlation_error,omitempty"`
}

// Period returns the context of the named period.
func (r *Result) Period(name string) (*PeriodContext, bool) {
	for _, p := range r.Periods {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Pipeline runs analyses with a fixed configuration.
//
// Thread Safety: Safe for concurrent use; Run keeps no state on the Pipeline.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// AnalyzePeriod runs the graph branch for one period.
//
// Description:
//
//	Resolves the period's trips against the zone table, builds the graph
//	over the zone universe, and computes its report. Errors are stored in
//	the returned context rather than returned.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	table - The shared zone table.
//	in - The period's normalized trips.
//
// Outputs:
//
//	*PeriodContext - Never nil.
func (p *Pipeline) AnalyzePeriod(ctx context.Context, table *zones.Table, in PeriodInput) *PeriodContext {
	start := time.Now()
	pc := &PeriodContext{Name: in.Name, Trips: len(in.Trips), Normalize: in.Normalize}
	defer func() { pc.Elapsed = time.Since(start) }()

	ctx, span := tracer.Start(ctx, "pipeline.AnalyzePeriod",
		trace.WithAttributes(
			attribute.String("period", in.Name),
			attribute.Int("trip_count", len(in.Trips)),
		),
	)
	defer span.End()

	resolved, resolveStats := table.ResolveTrips(in.Trips)
	pc.Resolve = resolveStats
	if resolveStats.UnresolvedEndpoints > 0 {
		p.logger.Info("unresolved zone ids",
			slog.String("period", in.Name),
			slog.Int("endpoints", resolveStats.UnresolvedEndpoints),
			slog.Int("distinct_ids", len(resolveStats.UnresolvedByID)),
		)
	}

	buildOpts := p.cfg.Build
	g, buildStats, err := graph.Build(ctx, table.Universe(), resolved, &buildOpts)
	pc.Build = buildStats
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		pc.fail(fmt.Errorf("build graph: %w", err))
		return pc
	}
	pc.Graph = g

	analyzeOpts := p.cfg.Analyze
	report, err := graph.Analyze(ctx, g, &analyzeOpts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		pc.fail(fmt.Errorf("analyze graph: %w", err))
		return pc
	}
	pc.Report = report
	return pc
}

// Run analyzes every period and then the aggregate branch.
//
// Description:
//
//	Periods run concurrently up to PeriodConcurrency. A period that fails
//	keeps its error in its PeriodContext. The aggregate branch then sums
//	all periods' trips per day, joins them with the epidemiological
//	series, and runs the comparisons and correlations.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	in - Zone table, periods, and epidemiological rows.
//
// Outputs:
//
//	*Result - The full run outcome.
//	error - Non-nil for invalid inputs, cancellation, or a failed merge.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Result, error) {
	if in.Zones == nil {
		return nil, ErrNilZoneTable
	}
	if len(in.Periods) == 0 {
		return nil, ErrNoPeriods
	}

	res := &Result{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Periods:   make([]*PeriodContext, len(in.Periods)),
	}
	logger := p.logger.With(slog.String("run_id", res.RunID.String()))

	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("run_id", res.RunID.String()),
			attribute.Int("period_count", len(in.Periods)),
		),
	)
	defer span.End()

	limit := p.cfg.PeriodConcurrency
	if limit <= 0 {
		limit = len(in.Periods)
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, period := range in.Periods {
		eg.Go(func() error {
			pc := p.AnalyzePeriod(egCtx, in.Zones, period)
			res.Periods[i] = pc
			if pc.Err != nil {
				logger.Warn("period failed", slog.String("period", pc.Name), slog.String("error", pc.Error))
				return nil
			}
			logger.Info("period analyzed",
				slog.String("period", pc.Name),
				slog.Int("nodes", pc.Report.Nodes),
				slog.Int("edges", pc.Report.Edges),
				slog.Float64("density", pc.Report.Density),
				slog.Int("discarded", pc.Normalize.Discarded()),
				slog.Duration("elapsed", pc.Elapsed),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	batches := make([][]records.TripRecord, len(in.Periods))
	for i, period := range in.Periods {
		batches[i] = period.Trips
	}
	daily, err := aggregate.Daily(p.cfg.AggregateColumns, batches...)
	if err != nil {
		return nil, fmt.Errorf("daily aggregate: %w", err)
	}
	res.Daily = daily

	merged, err := aggregate.Merge(ctx, daily, in.Epi, p.cfg.EpiColumns)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("merge: %w", err)
	}
	res.Merged = merged

	comparator := &stats.Comparator{Alpha: p.cfg.Alpha, Bonferroni: p.cfg.Bonferroni}
	comparisons, err := comparator.Run(ctx, merged, p.cfg.Comparisons)
	if err != nil {
		return nil, fmt.Errorf("comparisons: %w", err)
	}
	res.Comparisons = comparisons

	if corr, err := stats.Correlate(merged); err != nil {
		res.CorrelationError = err.Error()
		logger.Warn("correlation matrix unavailable", slog.String("error", err.Error()))
	} else {
		res.Correlations = corr
	}

	res.Duration = time.Since(res.StartedAt)
	logger.Info("run complete",
		slog.Int("periods", len(res.Periods)),
		slog.Int("merged_rows", len(merged.Rows)),
		slog.Duration("elapsed", res.Duration),
	)
	return res, nil
}
