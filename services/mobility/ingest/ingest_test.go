// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

var march = records.Window{
	Start: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC),
}

// tripLine renders one trip row in header order.
func tripLine(pickup string, pu, do int, distance string) string {
	return strings.Join([]string{
		"1", pickup, pickup, "1", distance, "1", "N",
		strconv.Itoa(pu), strconv.Itoa(do), "1", "10", "0.5", "0.5", "2", "0", "0.3", "13.3", "2.5",
	}, ",")
}

func tripFile(lines ...string) string {
	return strings.Join(append([]string{strings.Join(records.TripColumns, ",")}, lines...), "\n") + "\n"
}

// -----------------------------------------------------------------------------
// Trips
// -----------------------------------------------------------------------------

func TestReadTrips(t *testing.T) {
	data := tripFile(
		tripLine("2020-03-22 08:00:00", 1, 2, "12.5"),
		tripLine("2020-02-29 23:59:59", 1, 2, "3"),
		tripLine("2020-03-23 10:00:00", 2, 3, ""),
		tripLine("2020-03-25 10:00:00", 3, 1, "1.2"),
	)

	n := records.NewNormalizer(march, records.EpiColumns{})
	trips, err := ReadTrips(context.Background(), strings.NewReader(data), n)
	require.NoError(t, err)

	require.Len(t, trips, 2)
	assert.Equal(t, 1, trips[0].OriginID)
	assert.Equal(t, 2, trips[0].DestinationID)
	assert.Equal(t, 12.5, trips[0].TripDistance)
	assert.Equal(t, 3, trips[1].OriginID)

	stats := n.Stats()
	assert.Equal(t, 4, stats.Seen)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 1, stats.OutsideWindow)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 1, stats.MissingByColumn[records.ColTripDistance])
}

func TestReadTrips_ColumnOrderAndShortRows(t *testing.T) {
	cols := append([]string(nil), records.TripColumns...)
	for i, j := 0, len(cols)-1; i < j; i, j = i+1, j-1 {
		cols[i], cols[j] = cols[j], cols[i]
	}
	row := make([]string, len(cols))
	for i, c := range cols {
		switch c {
		case records.ColPickup, records.ColDropoff:
			row[i] = "2020-03-22 08:00:00"
		case records.ColStoreAndFwdFlag:
			row[i] = "N"
		default:
			row[i] = "4"
		}
	}
	data := strings.Join(cols, ",") + "\n" + strings.Join(row, ",") + "\n1,2\n"

	n := records.NewNormalizer(march, records.EpiColumns{})
	trips, err := ReadTrips(context.Background(), strings.NewReader(data), n)
	require.NoError(t, err)

	require.Len(t, trips, 1, "columns are found by name")
	assert.Equal(t, 4.0, trips[0].TripDistance)
	assert.Equal(t, 1, n.Stats().Missing, "short row counts as missing")
}

func TestReadTrips_HeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "empty file", data: "", wantErr: ErrEmptyFile},
		{name: "missing column", data: "VendorID,tpep_pickup_datetime\n", wantErr: ErrMissingColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := records.NewNormalizer(march, records.EpiColumns{})
			_, err := ReadTrips(context.Background(), strings.NewReader(tt.data), n)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadTrips_ByteOrderMark(t *testing.T) {
	data := "\ufeff" + tripFile(tripLine("2020-03-22 08:00:00", 1, 2, "12"))
	n := records.NewNormalizer(march, records.EpiColumns{})
	trips, err := ReadTrips(context.Background(), strings.NewReader(data), n)
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestReadTrips_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := records.NewNormalizer(march, records.EpiColumns{})
	_, err := ReadTrips(ctx, strings.NewReader(tripFile(tripLine("2020-03-22 08:00:00", 1, 2, "12"))), n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.csv")
	require.NoError(t, os.WriteFile(path, []byte(tripFile(
		tripLine("2020-03-22 08:00:00", 1, 2, "12"),
		tripLine("2020-04-02 08:00:00", 1, 2, "12"),
	)), 0o644))

	trips, stats, err := LoadTrips(context.Background(), path, march)
	require.NoError(t, err)
	assert.Len(t, trips, 1)
	assert.Equal(t, 1, stats.OutsideWindow)

	_, _, err = LoadTrips(context.Background(), filepath.Join(t.TempDir(), "none.csv"), march)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// -----------------------------------------------------------------------------
// Epi
// -----------------------------------------------------------------------------

func TestReadEpi(t *testing.T) {
	data := `date_of_interest,CASE_COUNT,MN_CASE_COUNT,MN_HOSPITALIZED_COUNT,MN_DEATH_COUNT
03/22/2020,100,150,40,5
03/23/2020,110,,41,6
04/01/2020,120,170,42,7
`
	cols := records.DefaultEpiColumns()
	n := records.NewNormalizer(march, cols)
	rows, err := ReadEpi(context.Background(), strings.NewReader(data), n, cols)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2020, 3, 22, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, 150.0, rows[0].Cases)
	assert.Equal(t, 40.0, rows[0].Hospitalized)
	assert.Equal(t, 5.0, rows[0].Deaths)

	stats := n.Stats()
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 1, stats.OutsideWindow, "window end is exclusive")
}

func TestLoadEpi(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epi.csv")
	require.NoError(t, os.WriteFile(path, []byte("date_of_interest,MN_CASE_COUNT\n03/22/2020,1\n"), 0o644))

	_, _, err := LoadEpi(context.Background(), path, march, records.DefaultEpiColumns())
	assert.ErrorIs(t, err, ErrMissingColumn)
}

// -----------------------------------------------------------------------------
// Zones
// -----------------------------------------------------------------------------

func TestReadZones(t *testing.T) {
	data := `"LocationID","Borough","Zone","service_zone"
1,"EWR","Newark Airport","EWR"
2,"Queens","Jamaica Bay","Boro Zone"
264,"Unknown","NV","N/A"
265,"Unknown","",""
`
	rows, err := ReadZones(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, zones.Zone{ID: 1, Borough: "EWR", Name: "Newark Airport", ServiceZone: "EWR"}, rows[0])
	assert.Equal(t, "", rows[3].Name)
}

func TestReadZones_BadID(t *testing.T) {
	_, err := ReadZones(context.Background(), strings.NewReader("LocationID,Zone\nabc,Somewhere\n"))
	assert.ErrorIs(t, err, ErrBadZoneRow)
}

func TestLoadZones(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "zones.csv")
	require.NoError(t, os.WriteFile(path, []byte("LocationID,Zone\n1,A\n2,B\n3,\n"), 0o644))
	table, err := LoadZones(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"A", "B"}, table.Universe())

	dup := filepath.Join(dir, "dup.csv")
	require.NoError(t, os.WriteFile(dup, []byte("LocationID,Zone\n1,A\n1,B\n"), 0o644))
	_, err = LoadZones(context.Background(), dup)
	assert.ErrorIs(t, err, zones.ErrDuplicateZoneID)
}
