// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func testTable(t *testing.T) *zones.Table {
	t.Helper()
	table, err := zones.NewTable([]zones.Zone{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B"},
		{ID: 3, Name: "C"},
		{ID: 4, Name: "D"},
	})
	require.NoError(t, err)
	return table
}

func day(d int) time.Time {
	return time.Date(2020, 3, d, 9, 30, 0, 0, time.UTC)
}

func trip(d, from, to int, distance, passengers float64) records.TripRecord {
	return records.TripRecord{
		PickupAt:       day(d),
		DropoffAt:      day(d).Add(20 * time.Minute),
		OriginID:       from,
		DestinationID:  to,
		TripDistance:   distance,
		PassengerCount: passengers,
	}
}

func testInputs(t *testing.T) Inputs {
	return Inputs{
		Zones: testTable(t),
		Periods: []PeriodInput{
			{Name: "pre", Trips: []records.TripRecord{
				trip(22, 1, 2, 12, 1),
				trip(22, 1, 3, 15, 2),
				trip(23, 2, 3, 3, 1),
			}},
			{Name: "post", Trips: []records.TripRecord{
				trip(25, 1, 2, 11, 1),
				trip(25, 99, 2, 20, 3),
			}},
		},
		Epi: []records.EpiRecord{
			{Date: time.Date(2020, 3, 22, 0, 0, 0, 0, time.UTC), Cases: 50, Deaths: 1},
			{Date: time.Date(2020, 3, 25, 0, 0, 0, 0, time.UTC), Cases: 200, Deaths: 4},
			{Date: time.Date(2020, 3, 26, 0, 0, 0, 0, time.UTC), Cases: 250, Deaths: 6},
		},
	}
}

// -----------------------------------------------------------------------------
// AnalyzePeriod Tests
// -----------------------------------------------------------------------------

func TestAnalyzePeriod(t *testing.T) {
	p := New(DefaultConfig(), nil)
	in := testInputs(t)

	pc := p.AnalyzePeriod(context.Background(), in.Zones, in.Periods[0])
	require.NoError(t, pc.Err)
	require.NotNil(t, pc.Report)

	assert.Equal(t, "pre", pc.Name)
	assert.Equal(t, 3, pc.Trips)
	assert.Equal(t, 4, pc.Report.Nodes)
	assert.Equal(t, 2, pc.Report.Edges)
	assert.InDelta(t, 2.0/12.0, pc.Report.Density, 1e-12)
	assert.Equal(t, []int{3, 0, 1}, pc.Report.DegreeHistogram)
	assert.Equal(t, 1, pc.Build.BelowThreshold)
	assert.True(t, pc.Graph.HasEdge("A", "B"))
}

func TestAnalyzePeriod_UnresolvedEndpoint(t *testing.T) {
	p := New(DefaultConfig(), nil)
	in := testInputs(t)

	pc := p.AnalyzePeriod(context.Background(), in.Zones, in.Periods[1])
	require.NoError(t, pc.Err)

	assert.Equal(t, 1, pc.Resolve.UnresolvedEndpoints)
	assert.Equal(t, 1, pc.Resolve.UnresolvedByID[99])
	assert.Equal(t, 1, pc.Report.Edges, "trip from an unknown zone adds no edge")
	assert.Equal(t, 4, pc.Report.Nodes, "node set is the zone universe")
}

// -----------------------------------------------------------------------------
// Run Tests
// -----------------------------------------------------------------------------

func TestRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeriodConcurrency = 1
	res, err := New(cfg, nil).Run(context.Background(), testInputs(t))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, res.RunID)
	require.Len(t, res.Periods, 2)
	assert.Equal(t, "pre", res.Periods[0].Name, "periods keep input order")
	assert.Equal(t, "post", res.Periods[1].Name)

	require.Len(t, res.Daily.Rows, 3)

	require.Len(t, res.Merged.Rows, 2, "inner join keeps 3/22 and 3/25")
	assert.Equal(t, 22, res.Merged.Rows[0].Date.Day())
	assert.Equal(t, 25, res.Merged.Rows[1].Date.Day())

	passengers, err := res.Merged.Column(records.ColPassengerCount)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, passengers)

	require.Len(t, res.Comparisons, 4)
	for _, c := range res.Comparisons {
		assert.Error(t, c.Err, "two merged days cannot fill both groups")
	}

	require.NotNil(t, res.Correlations)
	assert.Empty(t, res.CorrelationError)

	post, ok := res.Period("post")
	require.True(t, ok)
	assert.Equal(t, 2, post.Trips)
	_, ok = res.Period("missing")
	assert.False(t, ok)
}

func TestRun_PeriodsAreIndependent(t *testing.T) {
	in := testInputs(t)
	sequential, err := New(DefaultConfig(), nil).Run(context.Background(), in)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PeriodConcurrency = 1
	limited, err := New(cfg, nil).Run(context.Background(), in)
	require.NoError(t, err)

	for i := range sequential.Periods {
		assert.Equal(t, sequential.Periods[i].Report, limited.Periods[i].Report)
	}
	assert.NotEqual(t, sequential.RunID, limited.RunID)
}

func TestRun_InvalidInputs(t *testing.T) {
	p := New(DefaultConfig(), nil)

	_, err := p.Run(context.Background(), Inputs{})
	assert.ErrorIs(t, err, ErrNilZoneTable)

	_, err = p.Run(context.Background(), Inputs{Zones: testTable(t)})
	assert.ErrorIs(t, err, ErrNoPeriods)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig(), nil).Run(ctx, testInputs(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DuplicateEpiDate(t *testing.T) {
	in := testInputs(t)
	in.Epi = append(in.Epi, in.Epi[0])

	_, err := New(DefaultConfig(), nil).Run(context.Background(), in)
	assert.Error(t, err)
}

func TestInputs_Period(t *testing.T) {
	in := testInputs(t)

	p, err := in.Period("post")
	require.NoError(t, err)
	assert.Len(t, p.Trips, 2)

	_, err = in.Period("nope")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}
