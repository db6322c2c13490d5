// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Density
// =============================================================================

// Density returns the fraction of possible ordered pairs that have an edge.
//
// Self-loops are excluded from the numerator so the result stays in [0, 1];
// they still count toward node degree. Returns 0 when the graph has at most
// one node.
func Density(g *Graph) float64 {
	n := g.NodeCount()
	if n <= 1 {
		return 0
	}
	return float64(g.EdgeCount()-g.SelfLoopCount()) / (float64(n) * float64(n-1))
}

// =============================================================================
// Degree Histogram
// =============================================================================

// DegreeMode selects which degree the histogram counts.
type DegreeMode string

const (
	// DegreeOut counts outgoing edges: how many distinct destinations a
	// zone's pickups reach.
	DegreeOut DegreeMode = "out"

	// DegreeIn counts incoming edges.
	DegreeIn DegreeMode = "in"

	// DegreeTotal counts in + out, with a self-loop contributing two.
	DegreeTotal DegreeMode = "total"
)

// ParseDegreeMode converts a config string into a DegreeMode.
// The empty string selects DegreeOut.
func ParseDegreeMode(s string) (DegreeMode, error) {
	switch DegreeMode(s) {
	case "", DegreeOut:
		return DegreeOut, nil
	case DegreeIn, DegreeTotal:
		return DegreeMode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDegreeMode, s)
	}
}

func (g *Graph) degree(i int, mode DegreeMode) int {
	switch mode {
	case DegreeIn:
		return g.inDegree[i]
	case DegreeTotal:
		return len(g.out[i]) + g.inDegree[i]
	default:
		return len(g.out[i])
	}
}

// DegreeHistogram returns counts[d] = number of nodes with degree d.
//
// The array is dense from 0 to the maximum degree: every degree in range
// has a slot even when its count is 0. Its counts sum to the node count.
// An empty graph yields an empty slice.
func DegreeHistogram(g *Graph, mode DegreeMode) []int {
	n := g.NodeCount()
	if n == 0 {
		return []int{}
	}
	degrees := make([]int, n)
	maxDeg := 0
	for i := 0; i < n; i++ {
		d := g.degree(i, mode)
		degrees[i] = d
		if d > maxDeg {
			maxDeg = d
		}
	}
	counts := make([]int, maxDeg+1)
	for _, d := range degrees {
		counts[d]++
	}
	return counts
}

// =============================================================================
// Ranking
// =============================================================================

// RankedZone is a node with its centrality score and 1-indexed rank.
type RankedZone struct {
	Zone  string  `json:"zone"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// TopN returns the n highest-scoring nodes in descending score order.
//
// Ties keep node insertion order (the sort is stable over node order).
// scores must be indexed in node order, as returned by Betweenness.
func TopN(g *Graph, scores []float64, n int) []RankedZone {
	if n > len(scores) {
		n = len(scores)
	}
	if n <= 0 {
		return []RankedZone{}
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]RankedZone, n)
	for r := 0; r < n; r++ {
		i := order[r]
		out[r] = RankedZone{Zone: g.nodes[i], Score: scores[i], Rank: r + 1}
	}
	return out
}

// =============================================================================
// Report
// =============================================================================

// DefaultTopN is the number of zones reported by Analyze.
const DefaultTopN = 5

// AnalyzeOptions configures Analyze.
type AnalyzeOptions struct {
	// DegreeMode selects the histogram degree. Default: out.
	DegreeMode DegreeMode

	// TopN is the ranking length. Must be > 0. Default: 5
	TopN int

	// Workers is passed to Betweenness.
	Workers int
}

// Validate checks options and applies defaults for invalid values.
func (o *AnalyzeOptions) Validate() {
	if _, err := ParseDegreeMode(string(o.DegreeMode)); err != nil || o.DegreeMode == "" {
		o.DegreeMode = DegreeOut
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
}

// DefaultAnalyzeOptions returns out-degree, top 5, all cores.
func DefaultAnalyzeOptions() *AnalyzeOptions {
	return &AnalyzeOptions{DegreeMode: DegreeOut, TopN: DefaultTopN}
}

// Report holds the structural metrics of one mobility graph.
type Report struct {
	Nodes           int                `json:"nodes"`
	Edges           int                `json:"edges"`
	SelfLoops       int                `json:"self_loops"`
	Density         float64            `json:"density"`
	DegreeMode      DegreeMode         `json:"degree_mode"`
	DegreeHistogram []int              `json:"degree_histogram"`
	Top             []RankedZone       `json:"top"`
	Centrality      map[string]float64 `json:"centrality,omitempty"`

	// Degenerate is set for a graph with no nodes; every metric is then
	// zero or empty.
	Degenerate bool `json:"degenerate"`
}

// Analyze computes density, the degree histogram, and the centrality
// ranking of g.
//
// Description:
//
//	A graph with no nodes is not an error: the report is flagged
//	Degenerate and ErrEmptyGraph is logged as a warning.
//
// Inputs:
//
//	ctx - Context for cancellation, forwarded to Betweenness.
//	g - The graph. Must not be nil.
//	opts - Options. If nil, defaults are used.
//
// Outputs:
//
//	*Report - The metrics.
//	error - ctx.Err() if cancelled during centrality.
//
// Thread Safety: Safe for concurrent use.
func Analyze(ctx context.Context, g *Graph, opts *AnalyzeOptions) (*Report, error) {
	if opts == nil {
		opts = DefaultAnalyzeOptions()
	} else {
		opts.Validate()
	}

	ctx, span := tracer.Start(ctx, "graph.Analyze",
		trace.WithAttributes(
			attribute.Int("node_count", g.NodeCount()),
			attribute.String("degree_mode", string(opts.DegreeMode)),
		),
	)
	defer span.End()

	report := &Report{
		Nodes:           g.NodeCount(),
		Edges:           g.EdgeCount(),
		SelfLoops:       g.SelfLoopCount(),
		DegreeMode:      opts.DegreeMode,
		DegreeHistogram: []int{},
		Top:             []RankedZone{},
	}

	if g.NodeCount() == 0 {
		span.AddEvent("empty_graph")
		slog.Warn("mobility graph is degenerate", slog.String("error", ErrEmptyGraph.Error()))
		report.Degenerate = true
		return report, nil
	}

	report.Density = Density(g)
	report.DegreeHistogram = DegreeHistogram(g, opts.DegreeMode)

	scores, err := Betweenness(ctx, g, &BetweennessOptions{Workers: opts.Workers})
	if err != nil {
		return nil, fmt.Errorf("betweenness: %w", err)
	}
	report.Top = TopN(g, scores, opts.TopN)
	report.Centrality = make(map[string]float64, len(scores))
	for i, s := range scores {
		report.Centrality[g.nodes[i]] = s
	}

	span.SetAttributes(
		attribute.Float64("density", report.Density),
		attribute.Int("max_degree", len(report.DegreeHistogram)-1),
	)
	return report, nil
}
