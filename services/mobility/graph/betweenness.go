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
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Betweenness Centrality (Brandes)
// =============================================================================

// BetweennessOptions configures Betweenness.
type BetweennessOptions struct {
	// Workers is the number of goroutines sharing the source nodes.
	// Must be > 0. Default: GOMAXPROCS. Capped at the node count.
	Workers int

	// Unnormalized disables the 1/((n-1)(n-2)) rescaling.
	Unnormalized bool
}

// Validate checks options and applies defaults for invalid values.
func (o *BetweennessOptions) Validate() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}

// DefaultBetweennessOptions returns normalized scores on all cores.
func DefaultBetweennessOptions() *BetweennessOptions {
	return &BetweennessOptions{Workers: runtime.GOMAXPROCS(0)}
}

// brandesState is the per-worker scratch space reused across sources.
type brandesState struct {
	stack []int
	queue []int
	pred  [][]int
	sigma []float64
	dist  []int
	delta []float64
	score []float64
}

func newBrandesState(n int) *brandesState {
	return &brandesState{
		stack: make([]int, 0, n),
		queue: make([]int, 0, n),
		pred:  make([][]int, n),
		sigma: make([]float64, n),
		dist:  make([]int, n),
		delta: make([]float64, n),
		score: make([]float64, n),
	}
}

// accumulate adds the dependencies of source s to st.score.
func (st *brandesState) accumulate(g *Graph, s int) {
	for i := range st.dist {
		st.pred[i] = st.pred[i][:0]
		st.sigma[i] = 0
		st.dist[i] = -1
		st.delta[i] = 0
	}
	st.stack = st.stack[:0]
	st.queue = append(st.queue[:0], s)
	st.sigma[s] = 1
	st.dist[s] = 0

	for head := 0; head < len(st.queue); head++ {
		v := st.queue[head]
		st.stack = append(st.stack, v)
		for _, w := range g.out[v] {
			if st.dist[w] < 0 {
				st.dist[w] = st.dist[v] + 1
				st.queue = append(st.queue, w)
			}
			if st.dist[w] == st.dist[v]+1 {
				st.sigma[w] += st.sigma[v]
				st.pred[w] = append(st.pred[w], v)
			}
		}
	}

	for i := len(st.stack) - 1; i >= 0; i-- {
		w := st.stack[i]
		coeff := (1 + st.delta[w]) / st.sigma[w]
		for _, v := range st.pred[w] {
			st.delta[v] += st.sigma[v] * coeff
		}
		if w != s {
			st.score[w] += st.delta[w]
		}
	}
}

// Betweenness computes betweenness centrality for every node.
//
// Description:
//
//	Runs Brandes' algorithm with breadth-first search (edges are
//	unweighted). Credit for a pair is split evenly across its shortest
//	paths. Sources are partitioned statically across workers: worker w
//	takes sources w, w+W, w+2W and so on into its own accumulator, and the
//	accumulators are summed in worker order afterwards. For a fixed worker
//	count the result is bit-for-bit reproducible.
//
//	Scores are multiplied by 1/((n-1)(n-2)) when n > 2 unless
//	Unnormalized is set. With n <= 2 every score is 0.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before every source.
//	g - The graph. Must not be nil.
//	opts - Options. If nil, defaults are used.
//
// Outputs:
//
//	[]float64 - Score per node, indexed in node order.
//	error - ctx.Err() if cancelled.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(V × E) time, O(W × (V + E)) memory.
func Betweenness(ctx context.Context, g *Graph, opts *BetweennessOptions) ([]float64, error) {
	if opts == nil {
		opts = DefaultBetweennessOptions()
	} else {
		opts.Validate()
	}

	n := g.NodeCount()
	workers := opts.Workers
	if workers > n {
		workers = n
	}

	ctx, span := tracer.Start(ctx, "graph.Betweenness",
		trace.WithAttributes(
			attribute.Int("node_count", n),
			attribute.Int("edge_count", g.EdgeCount()),
			attribute.Int("workers", workers),
		),
	)
	defer span.End()

	scores := make([]float64, n)
	if n <= 2 {
		span.AddEvent("trivial_graph")
		return scores, nil
	}

	start := time.Now()
	partials := make([]*brandesState, workers)
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		st := newBrandesState(n)
		partials[w] = st
		eg.Go(func() error {
			for s := w; s < n; s += workers {
				if err := egCtx.Err(); err != nil {
					return err
				}
				st.accumulate(g, s)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		recordBetweennessMetrics(ctx, time.Since(start), workers, false)
		return nil, err
	}

	for _, st := range partials {
		for i, v := range st.score {
			scores[i] += v
		}
	}

	if !opts.Unnormalized {
		scale := 1.0 / (float64(n-1) * float64(n-2))
		for i := range scores {
			scores[i] *= scale
		}
	}

	recordBetweennessMetrics(ctx, time.Since(start), workers, true)
	slog.Debug("betweenness completed",
		slog.Int("node_count", n),
		slog.Int("workers", workers),
		slog.Duration("elapsed", time.Since(start)),
	)

	return scores, nil
}
