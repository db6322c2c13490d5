// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package zones

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable([]Zone{
		{ID: 1, Borough: "EWR", Name: "Newark Airport", ServiceZone: "EWR"},
		{ID: 56, Borough: "Queens", Name: "Corona", ServiceZone: "Boro Zone"},
		{ID: 57, Borough: "Queens", Name: "Corona", ServiceZone: "Boro Zone"},
		{ID: 132, Borough: "Queens", Name: "JFK Airport", ServiceZone: "Airports"},
		{ID: 264, Borough: "Unknown", Name: " ", ServiceZone: "N/A"},
	})
	require.NoError(t, err)
	return tbl
}

func TestNewTable_Universe(t *testing.T) {
	tbl := testTable(t)

	assert.Equal(t, []string{"Newark Airport", "Corona", "JFK Airport"}, tbl.Universe())
	assert.Equal(t, 5, tbl.Len())

	u := tbl.Universe()
	u[0] = "mutated"
	assert.Equal(t, "Newark Airport", tbl.Universe()[0], "Universe returns a copy")
}

func TestNewTable_DuplicateID(t *testing.T) {
	_, err := NewTable([]Zone{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}})
	assert.ErrorIs(t, err, ErrDuplicateZoneID)
}

func TestTable_Resolve(t *testing.T) {
	tbl := testTable(t)

	tests := []struct {
		name string
		id   int
		want ZoneRef
	}{
		{"known id", 132, ZoneRef{Name: "JFK Airport", Resolved: true}},
		{"shared name", 57, ZoneRef{Name: "Corona", Resolved: true}},
		{"blank name", 264, Unresolved},
		{"missing id", 999, Unresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tbl.Resolve(tt.id))
		})
	}
}

func TestTable_ResolveTrips(t *testing.T) {
	tbl := testTable(t)
	trips := []records.TripRecord{
		{OriginID: 1, DestinationID: 132, TripDistance: 20},
		{OriginID: 999, DestinationID: 56, TripDistance: 11},
		{OriginID: 999, DestinationID: 998, TripDistance: 15},
	}

	got, stats := tbl.ResolveTrips(trips)

	require.Len(t, got, 3)
	assert.Equal(t, ZoneRef{Name: "Newark Airport", Resolved: true}, got[0].Origin)
	assert.Equal(t, 20.0, got[0].Distance)
	assert.False(t, got[1].Origin.Resolved)
	assert.True(t, got[1].Destination.Resolved)

	assert.Equal(t, 3, stats.Trips)
	assert.Equal(t, 3, stats.UnresolvedEndpoints)
	assert.Equal(t, map[int]int{999: 2, 998: 1}, stats.UnresolvedByID)
}

func TestTable_ResolveTrip_Errors(t *testing.T) {
	tbl := testTable(t)
	_, errs := tbl.ResolveTrip(&records.TripRecord{OriginID: 7, DestinationID: 1})

	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrUnresolvedZone))

	var uze *UnresolvedZoneError
	require.True(t, errors.As(errs[0], &uze))
	assert.Equal(t, 7, uze.ID)
	assert.Equal(t, RoleOrigin, uze.Role)
}
