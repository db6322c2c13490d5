// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2020, m, d, 0, 0, 0, 0, time.UTC)
}

func tripAt(m time.Month, d, hour int, passengers, distance float64) records.TripRecord {
	return records.TripRecord{
		PickupAt:       day(m, d).Add(time.Duration(hour) * time.Hour),
		PassengerCount: passengers,
		TripDistance:   distance,
	}
}

var sumColumns = []string{records.ColPassengerCount, records.ColTripDistance}

func TestDaily_SumsPerDate(t *testing.T) {
	march := []records.TripRecord{
		tripAt(time.March, 23, 9, 1, 2.5),
		tripAt(time.March, 22, 23, 2, 10),
		tripAt(time.March, 22, 0, 1, 1.5),
	}
	april := []records.TripRecord{
		tripAt(time.April, 1, 12, 3, 4),
	}

	table, err := Daily(sumColumns, march, april)
	require.NoError(t, err)

	assert.Equal(t, sumColumns, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []time.Time{day(time.March, 22), day(time.March, 23), day(time.April, 1)}, table.Dates())
	assert.Equal(t, []float64{3, 11.5}, table.Rows[0].Values)
	assert.Equal(t, []float64{1, 2.5}, table.Rows[1].Values)
	assert.Equal(t, []float64{3, 4}, table.Rows[2].Values)
}

func TestDaily_UnknownColumn(t *testing.T) {
	_, err := Daily([]string{"VendorID"})
	assert.ErrorIs(t, err, records.ErrUnknownColumn)
}

func TestMerge_InnerJoin(t *testing.T) {
	daily, err := Daily(sumColumns, []records.TripRecord{
		tripAt(time.March, 22, 1, 1, 1),
		tripAt(time.March, 23, 1, 2, 2),
		tripAt(time.March, 25, 1, 3, 3),
	})
	require.NoError(t, err)

	epi := []records.EpiRecord{
		{Date: day(time.March, 25), Cases: 300, Hospitalized: 30, Deaths: 3},
		{Date: day(time.March, 22), Cases: 100, Hospitalized: 10, Deaths: 1},
		{Date: day(time.March, 24), Cases: 200, Hospitalized: 20, Deaths: 2},
	}

	merged, err := Merge(context.Background(), daily, epi, records.DefaultEpiColumns())
	require.NoError(t, err)

	assert.Equal(t, []string{
		records.ColPassengerCount, records.ColTripDistance,
		"MN_CASE_COUNT", "MN_HOSPITALIZED_COUNT", "MN_DEATH_COUNT",
	}, merged.Columns)
	assert.Equal(t, []time.Time{day(time.March, 22), day(time.March, 25)}, merged.Dates())
	assert.Equal(t, []float64{1, 1, 100, 10, 1}, merged.Rows[0].Values)
	assert.Equal(t, []float64{3, 3, 300, 30, 3}, merged.Rows[1].Values)

	for _, d := range merged.Dates() {
		assert.Contains(t, daily.Dates(), d, "merged dates are a subset of aggregate dates")
	}
}

func TestMerge_DuplicateEpiDate(t *testing.T) {
	daily, err := Daily(sumColumns)
	require.NoError(t, err)

	_, err = Merge(context.Background(), daily, []records.EpiRecord{
		{Date: day(time.April, 1)},
		{Date: day(time.April, 1)},
	}, records.DefaultEpiColumns())
	assert.ErrorIs(t, err, ErrDuplicateDate)
}

func TestMerge_NoOverlap(t *testing.T) {
	daily, err := Daily(sumColumns, []records.TripRecord{tripAt(time.May, 1, 1, 1, 1)})
	require.NoError(t, err)

	merged, err := Merge(context.Background(), daily, []records.EpiRecord{{Date: day(time.May, 2)}}, records.DefaultEpiColumns())
	require.NoError(t, err)
	assert.Empty(t, merged.Rows)
}

func TestMergedTable_Column(t *testing.T) {
	m := &MergedTable{
		Columns: []string{"a", "b"},
		Rows: []MergedRow{
			{Date: day(time.May, 1), Values: []float64{1, 2}},
			{Date: day(time.May, 2), Values: []float64{3, 4}},
		},
	}

	b, err := m.Column("b")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, b)

	_, err = m.Column("c")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestWriteCSV(t *testing.T) {
	m := &MergedTable{
		Columns: []string{"passenger_count", "MN_CASE_COUNT"},
		Rows: []MergedRow{
			{Date: day(time.March, 22), Values: []float64{12, 150}},
			{Date: day(time.March, 25), Values: []float64{0.5, 1e6}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, m))

	want := "pickupDate,passenger_count,MN_CASE_COUNT\n" +
		"2020-03-22,12,150\n" +
		"2020-03-25,0.5,1000000\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_HeaderOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &MergedTable{Columns: []string{"x"}}))
	assert.Equal(t, "pickupDate,x\n", buf.String())
}
