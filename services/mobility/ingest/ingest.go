// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest reads the comma-separated source files.
//
// Files are read row by row. Columns are located by header name, so column
// order in the file does not matter and extra columns are ignored. Trip and
// epidemiological rows go straight through a records.Normalizer; only kept
// records are held in memory.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

var (
	// ErrMissingColumn is returned when a required column is absent from
	// the header.
	ErrMissingColumn = errors.New("missing required column")

	// ErrEmptyFile is returned when a file has no header line.
	ErrEmptyFile = errors.New("file has no header")

	// ErrBadZoneRow is returned for a zone row whose id is not an integer.
	ErrBadZoneRow = errors.New("invalid zone row")
)

// Zone lookup column names.
const (
	ColLocationID  = "LocationID"
	ColBorough     = "Borough"
	ColZone        = "Zone"
	ColServiceZone = "service_zone"
)

// ctxCheckInterval is how many rows are read between context checks.
const ctxCheckInterval = 4096

// header maps column names to their position in a row.
type header map[string]int

// readHeader reads the first line and checks that every required column
// is present. A leading byte order mark is dropped.
func readHeader(cr *csv.Reader, required []string) (header, error) {
	names, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(names))
	for i, name := range names {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		h[strings.TrimSpace(name)] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}
	return h, nil
}

// raw maps a row onto column names. Short rows leave the trailing
// columns blank, which the normalizer treats as missing.
func (h header) raw(row []string) records.RawRecord {
	out := make(records.RawRecord, len(h))
	for name, i := range h {
		if i < len(row) {
			out[name] = row[i]
		}
	}
	return out
}

// forEachRow streams r and calls fn for every data row.
func forEachRow(ctx context.Context, r io.Reader, required []string, fn func(records.RawRecord) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h, err := readHeader(cr, required)
	if err != nil {
		return err
	}
	for line := 2; ; line++ {
		if (line-2)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(h.raw(row)); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// =============================================================================
// Trips
// =============================================================================

// ReadTrips streams trip rows from r through n.
//
// Description:
//
//	Every data row is offered to the normalizer; discarded rows are only
//	counted in n.Stats(). The header must name every trip column.
//
// Inputs:
//
//	ctx - Context for cancellation, checked periodically.
//	r - The comma-separated trip file.
//	n - Normalizer carrying the window; its stats accumulate.
//
// Outputs:
//
//	[]records.TripRecord - Kept trips in file order.
//	error - ErrEmptyFile, ErrMissingColumn, a CSV syntax error, or ctx.Err().
func ReadTrips(ctx context.Context, r io.Reader, n *records.Normalizer) ([]records.TripRecord, error) {
	var out []records.TripRecord
	err := forEachRow(ctx, r, records.TripColumns, func(raw records.RawRecord) error {
		if t, err := n.Trip(raw); err == nil {
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTrips reads one trip file from disk.
func LoadTrips(ctx context.Context, path string, w records.Window) ([]records.TripRecord, records.NormalizeStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, records.NormalizeStats{}, fmt.Errorf("open trips: %w", err)
	}
	defer f.Close()

	n := records.NewNormalizer(w, records.EpiColumns{})
	trips, err := ReadTrips(ctx, f, n)
	if err != nil {
		return nil, n.Stats(), fmt.Errorf("%s: %w", path, err)
	}
	stats := n.Stats()
	slog.Info("trips loaded",
		slog.String("path", path),
		slog.Int("kept", stats.Kept),
		slog.Int("missing", stats.Missing),
		slog.Int("outside_window", stats.OutsideWindow),
	)
	return trips, stats, nil
}

// =============================================================================
// Epidemiological Series
// =============================================================================

// ReadEpi streams epidemiological rows from r through n. The header must
// name the date and count columns n was configured with.
func ReadEpi(ctx context.Context, r io.Reader, n *records.Normalizer, cols records.EpiColumns) ([]records.EpiRecord, error) {
	required := append([]string{cols.Date}, cols.Names()...)
	var out []records.EpiRecord
	err := forEachRow(ctx, r, required, func(raw records.RawRecord) error {
		if e, err := n.Epi(raw); err == nil {
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadEpi reads the epidemiological file from disk.
func LoadEpi(ctx context.Context, path string, w records.Window, cols records.EpiColumns) ([]records.EpiRecord, records.NormalizeStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, records.NormalizeStats{}, fmt.Errorf("open epi: %w", err)
	}
	defer f.Close()

	n := records.NewNormalizer(w, cols)
	rows, err := ReadEpi(ctx, f, n, cols)
	if err != nil {
		return nil, n.Stats(), fmt.Errorf("%s: %w", path, err)
	}
	stats := n.Stats()
	slog.Info("epi series loaded",
		slog.String("path", path),
		slog.Int("kept", stats.Kept),
		slog.Int("discarded", stats.Discarded()),
	)
	return rows, stats, nil
}

// =============================================================================
// Zones
// =============================================================================

// ReadZones reads the zone lookup table from r.
//
// Only LocationID and Zone are required; Borough and service_zone are
// read when present. Row order is preserved.
func ReadZones(ctx context.Context, r io.Reader) ([]zones.Zone, error) {
	var out []zones.Zone
	err := forEachRow(ctx, r, []string{ColLocationID, ColZone}, func(raw records.RawRecord) error {
		idText, _ := raw.Get(ColLocationID)
		id, err := strconv.Atoi(idText)
		if err != nil {
			return fmt.Errorf("%w: location id %q", ErrBadZoneRow, idText)
		}
		name, _ := raw.Get(ColZone)
		borough, _ := raw.Get(ColBorough)
		service, _ := raw.Get(ColServiceZone)
		out = append(out, zones.Zone{ID: id, Borough: borough, Name: name, ServiceZone: service})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadZones reads the zone lookup file and indexes it.
func LoadZones(ctx context.Context, path string) (*zones.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zones: %w", err)
	}
	defer f.Close()

	rows, err := ReadZones(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table, err := zones.NewTable(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("zone table loaded",
		slog.String("path", path),
		slog.Int("zones", table.Len()),
		slog.Int("universe", len(table.Universe())),
	)
	return table, nil
}
