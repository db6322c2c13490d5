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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

// =============================================================================
// Graph
// =============================================================================

// Edge is a directed pair of zone names.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// pair is an edge in node-index space, used as the deduplication key.
type pair struct {
	from, to int
}

// Graph is a directed simple graph over zone names.
//
// Nodes keep the order they were added in. Out-adjacency lists keep the
// order edges were first seen in. Self-loops are stored as ordinary edges.
type Graph struct {
	nodes     []string
	index     map[string]int
	out       [][]int
	inDegree  []int
	edges     map[pair]struct{}
	selfLoops int
}

// newGraph creates a graph with one node per distinct name in universe.
func newGraph(universe []string) *Graph {
	g := &Graph{
		nodes: make([]string, 0, len(universe)),
		index: make(map[string]int, len(universe)),
		edges: make(map[pair]struct{}),
	}
	for _, name := range universe {
		if _, ok := g.index[name]; ok {
			continue
		}
		g.index[name] = len(g.nodes)
		g.nodes = append(g.nodes, name)
	}
	g.out = make([][]int, len(g.nodes))
	g.inDegree = make([]int, len(g.nodes))
	return g
}

// addEdge inserts from->to and reports whether it was new.
func (g *Graph) addEdge(from, to int) bool {
	key := pair{from, to}
	if _, ok := g.edges[key]; ok {
		return false
	}
	g.edges[key] = struct{}{}
	g.out[from] = append(g.out[from], to)
	g.inDegree[to]++
	if from == to {
		g.selfLoops++
	}
	return true
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct directed edges, self-loops included.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// SelfLoopCount returns the number of edges whose endpoints coincide.
func (g *Graph) SelfLoopCount() int {
	return g.selfLoops
}

// Nodes returns a copy of the node names in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// HasEdge reports whether the directed edge from->to exists.
func (g *Graph) HasEdge(from, to string) bool {
	i, ok := g.index[from]
	if !ok {
		return false
	}
	j, ok := g.index[to]
	if !ok {
		return false
	}
	_, exists := g.edges[pair{i, j}]
	return exists
}

// OutDegree returns the out-degree of the named node.
func (g *Graph) OutDegree(name string) (int, error) {
	i, ok := g.index[name]
	if !ok {
		return 0, ErrNodeNotFound
	}
	return len(g.out[i]), nil
}

// InDegree returns the in-degree of the named node.
func (g *Graph) InDegree(name string) (int, error) {
	i, ok := g.index[name]
	if !ok {
		return 0, ErrNodeNotFound
	}
	return g.inDegree[i], nil
}

// Edges returns every edge, grouped by origin in node order and then in
// first-seen order. The result is identical for identical builds.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for i, targets := range g.out {
		for _, j := range targets {
			out = append(out, Edge{From: g.nodes[i], To: g.nodes[j]})
		}
	}
	return out
}

// Snapshot is a serializable view of a graph.
type Snapshot struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Snapshot returns the node list and edge list of g.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{Nodes: g.Nodes(), Edges: g.Edges()}
}

// =============================================================================
// Builder
// =============================================================================

// DefaultMinDistance is the trip distance a trip must exceed to become an edge.
const DefaultMinDistance = 10.0

// BuildOptions configures Build.
type BuildOptions struct {
	// MinDistance is the exclusive lower bound on trip distance.
	// Must be >= 0. Default: 10
	MinDistance float64
}

// Validate applies defaults for invalid values.
func (o *BuildOptions) Validate() {
	if o.MinDistance < 0 {
		o.MinDistance = DefaultMinDistance
	}
}

// DefaultBuildOptions returns the options used by the study.
func DefaultBuildOptions() *BuildOptions {
	return &BuildOptions{MinDistance: DefaultMinDistance}
}

// BuildStats reports what Build did with its input trips.
type BuildStats struct {
	// TripsConsidered is the number of trips offered.
	TripsConsidered int `json:"trips_considered"`

	// BelowThreshold counts trips with distance <= MinDistance.
	BelowThreshold int `json:"below_threshold"`

	// UnresolvedTrips counts long-enough trips dropped because an endpoint
	// was unresolved or not a node.
	UnresolvedTrips int `json:"unresolved_trips"`

	// EdgeTrips counts trips that produced or repeated an edge.
	EdgeTrips int `json:"edge_trips"`

	// DuplicatePairs counts trips whose pair already had an edge.
	DuplicatePairs int `json:"duplicate_pairs"`
}

// ctxCheckInterval is how many trips Build processes between context checks.
const ctxCheckInterval = 4096

// Build constructs the mobility graph for one period.
//
// Description:
//
//	Adds one node per distinct name in universe, in order, whether or not
//	any trip touches it. Then, for each trip with distance strictly greater
//	than MinDistance and both endpoints resolved to nodes, adds the
//	directed edge origin->destination once. Repeated pairs are counted in
//	the stats and otherwise ignored.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked every few thousand trips.
//	universe - Zone names in table order. Duplicates are ignored.
//	trips - Resolved trips of one period.
//	opts - Build options. If nil, defaults are used.
//
// Outputs:
//
//	*Graph - The read-only graph. Nil on error.
//	BuildStats - Input accounting.
//	error - Non-nil only if ctx is cancelled.
//
// Thread Safety: Safe for concurrent use; the inputs are only read.
//
// Complexity: O(|universe| + |trips|).
func Build(ctx context.Context, universe []string, trips []zones.ResolvedTrip, opts *BuildOptions) (*Graph, BuildStats, error) {
	if opts == nil {
		opts = DefaultBuildOptions()
	} else {
		opts.Validate()
	}

	ctx, span := tracer.Start(ctx, "graph.Build",
		trace.WithAttributes(
			attribute.Int("universe_size", len(universe)),
			attribute.Int("trip_count", len(trips)),
			attribute.Float64("min_distance", opts.MinDistance),
		),
	)
	defer span.End()

	start := time.Now()
	g := newGraph(universe)
	stats := BuildStats{TripsConsidered: len(trips)}

	for i := range trips {
		if i%ctxCheckInterval == 0 && ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			recordBuildMetrics(ctx, time.Since(start), 0, 0, false)
			return nil, stats, ctx.Err()
		}

		t := &trips[i]
		if !(t.Distance > opts.MinDistance) {
			stats.BelowThreshold++
			continue
		}
		if !t.Origin.Resolved || !t.Destination.Resolved {
			stats.UnresolvedTrips++
			continue
		}
		from, okFrom := g.index[t.Origin.Name]
		to, okTo := g.index[t.Destination.Name]
		if !okFrom || !okTo {
			stats.UnresolvedTrips++
			continue
		}

		stats.EdgeTrips++
		if !g.addEdge(from, to) {
			stats.DuplicatePairs++
		}
	}

	recordBuildMetrics(ctx, time.Since(start), g.NodeCount(), g.EdgeCount(), true)

	span.SetAttributes(
		attribute.Int("node_count", g.NodeCount()),
		attribute.Int("edge_count", g.EdgeCount()),
		attribute.Int("below_threshold", stats.BelowThreshold),
		attribute.Int("unresolved_trips", stats.UnresolvedTrips),
	)

	slog.Debug("mobility graph built",
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.EdgeCount()),
		slog.Int("self_loops", g.SelfLoopCount()),
		slog.Int("duplicate_pairs", stats.DuplicatePairs),
		slog.Duration("elapsed", time.Since(start)),
	)

	return g, stats, nil
}
