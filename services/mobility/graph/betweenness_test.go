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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

// diamond is A->B->D and A->C->D: B and C split the A..D pair.
func diamond(t *testing.T) *Graph {
	return buildGraph(t, []string{"A", "B", "C", "D"},
		trip("A", "B", 20), trip("A", "C", 20), trip("B", "D", 20), trip("C", "D", 20))
}

func TestBetweenness_Path(t *testing.T) {
	g := buildGraph(t, []string{"A", "B", "C"}, trip("A", "B", 20), trip("B", "C", 20))

	scores, err := Betweenness(context.Background(), g, nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, scores[0], 1e-12)
	assert.InDelta(t, 0.5, scores[1], 1e-12, "one of (n-1)(n-2)=2 ordered pairs passes through B")
	assert.InDelta(t, 0.0, scores[2], 1e-12)
}

func TestBetweenness_SplitsEqualPaths(t *testing.T) {
	g := diamond(t)

	raw, err := Betweenness(context.Background(), g, &BetweennessOptions{Workers: 1, Unnormalized: true})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 0.5, 0}, raw)

	norm, err := Betweenness(context.Background(), g, &BetweennessOptions{Workers: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5/6, norm[1], 1e-12)
	assert.InDelta(t, 0.5/6, norm[2], 1e-12)
}

func TestBetweenness_IgnoresSelfLoops(t *testing.T) {
	g := buildGraph(t, []string{"A", "B", "C"},
		trip("A", "B", 20), trip("B", "C", 20), trip("B", "B", 20), trip("A", "A", 20))

	scores, err := Betweenness(context.Background(), g, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scores[1], 1e-12)
}

func TestBetweenness_SmallGraphsAreZero(t *testing.T) {
	for _, universe := range [][]string{nil, {"A"}, {"A", "B"}} {
		g := buildGraph(t, universe, trip("A", "B", 20), trip("B", "A", 20))
		scores, err := Betweenness(context.Background(), g, nil)
		require.NoError(t, err)
		assert.Len(t, scores, len(universe))
		for _, s := range scores {
			assert.Zero(t, s)
		}
	}
}

// ring builds a directed cycle with chords so centrality is non-trivial.
func ring(t *testing.T, n int) *Graph {
	universe := make([]string, n)
	for i := range universe {
		universe[i] = fmt.Sprintf("Z%02d", i)
	}
	var trips []zones.ResolvedTrip
	for i := 0; i < n; i++ {
		trips = append(trips, trip(universe[i], universe[(i+1)%n], 20))
		if i%3 == 0 {
			trips = append(trips, trip(universe[i], universe[(i+5)%n], 20))
		}
	}
	return buildGraph(t, universe, trips...)
}

func TestBetweenness_WorkerCountDoesNotChangeScores(t *testing.T) {
	g := ring(t, 24)

	serial, err := Betweenness(context.Background(), g, &BetweennessOptions{Workers: 1})
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 8, 100} {
		parallel, err := Betweenness(context.Background(), g, &BetweennessOptions{Workers: workers})
		require.NoError(t, err)
		require.Len(t, parallel, len(serial))
		for i := range serial {
			assert.InDelta(t, serial[i], parallel[i], 1e-12, "workers=%d node=%d", workers, i)
		}

		again, err := Betweenness(context.Background(), g, &BetweennessOptions{Workers: workers})
		require.NoError(t, err)
		assert.Equal(t, parallel, again, "same worker count is reproducible")
	}
}

func TestBetweenness_Bounds(t *testing.T) {
	scores, err := Betweenness(context.Background(), ring(t, 17), nil)
	require.NoError(t, err)
	for i, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0, "node %d", i)
		assert.LessOrEqual(t, s, 1.0, "node %d", i)
	}
}

func TestBetweenness_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Betweenness(ctx, ring(t, 10), &BetweennessOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Ranking & Report Tests
// =============================================================================

func TestTopN_StableTieBreak(t *testing.T) {
	g := diamond(t)
	scores, err := Betweenness(context.Background(), g, nil)
	require.NoError(t, err)

	top := TopN(g, scores, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "B", top[0].Zone, "B precedes C on a tie")
	assert.Equal(t, "C", top[1].Zone)
	assert.Equal(t, "A", top[2].Zone, "zero scores keep node order")
	assert.Equal(t, []int{1, 2, 3}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

	assert.Len(t, TopN(g, scores, 10), 4)
	assert.Empty(t, TopN(g, scores, 0))
}

func TestAnalyze(t *testing.T) {
	g := buildGraph(t, []string{"A", "B", "C", "D"},
		trip("A", "B", 12), trip("A", "B", 12), trip("A", "C", 15))

	report, err := Analyze(context.Background(), g, &AnalyzeOptions{TopN: 2, Workers: 2})
	require.NoError(t, err)

	assert.False(t, report.Degenerate)
	assert.Equal(t, 4, report.Nodes)
	assert.Equal(t, 2, report.Edges)
	assert.InDelta(t, 2.0/12.0, report.Density, 1e-12)
	assert.Equal(t, DegreeOut, report.DegreeMode)
	assert.Equal(t, []int{3, 0, 1}, report.DegreeHistogram)
	require.Len(t, report.Top, 2)
	assert.Equal(t, "A", report.Top[0].Zone, "all zero, insertion order wins")
	assert.Len(t, report.Centrality, 4)
}

func TestAnalyze_EmptyGraphIsDegenerate(t *testing.T) {
	report, err := Analyze(context.Background(), buildGraph(t, nil), nil)
	require.NoError(t, err)

	assert.True(t, report.Degenerate)
	assert.Zero(t, report.Density)
	assert.Empty(t, report.DegreeHistogram)
	assert.Empty(t, report.Top)
}
