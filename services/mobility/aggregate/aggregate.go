// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate sums trips per day and joins them with the daily
// epidemiological series.
//
// Both tables are keyed by calendar date (UTC midnight). The merge is an
// inner join: only dates present on both sides survive. Output rows are in
// ascending date order, so identical inputs always produce identical
// tables and identical CSV bytes.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
)

var tracer = otel.Tracer("mobility.aggregate")

var (
	// ErrDuplicateDate is returned when the epidemiological series lists a
	// date more than once.
	ErrDuplicateDate = errors.New("duplicate date in daily series")

	// ErrUnknownColumn is returned when a merged column name does not exist.
	ErrUnknownColumn = errors.New("unknown column")
)

// DateColumn is the header of the date column in the merged table.
const DateColumn = "pickupDate"

// DateLayout is the date format used in the merged table.
const DateLayout = time.DateOnly

// =============================================================================
// Daily Aggregate
// =============================================================================

// DailyRow is the per-column sum of all trips picked up on Date.
type DailyRow struct {
	Date   time.Time `json:"date"`
	Values []float64 `json:"values"`
}

// DailyTable is one row per distinct pickup date, ascending.
type DailyTable struct {
	Columns []string   `json:"columns"`
	Rows    []DailyRow `json:"rows"`
}

// Daily sums the given numeric columns per pickup date.
//
// Description:
//
//	Concatenates every batch (one per period), truncates each pickup to its
//	calendar day, and sums columns per day. Summation follows batch order
//	and then trip order, so the result is reproducible.
//
// Inputs:
//
//	columns - Numeric trip columns to sum, in output order.
//	batches - Normalized trips, typically one slice per period.
//
// Outputs:
//
//	*DailyTable - Rows sorted by date.
//	error - records.ErrUnknownColumn for a non-numeric column name.
func Daily(columns []string, batches ...[]records.TripRecord) (*DailyTable, error) {
	if err := records.ValidateColumns(columns); err != nil {
		return nil, err
	}

	byDate := make(map[time.Time][]float64)
	for _, batch := range batches {
		for i := range batch {
			t := &batch[i]
			day := t.PickupDate()
			sums, ok := byDate[day]
			if !ok {
				sums = make([]float64, len(columns))
				byDate[day] = sums
			}
			for c, col := range columns {
				v, _ := t.Value(col)
				sums[c] += v
			}
		}
	}

	table := &DailyTable{
		Columns: append([]string(nil), columns...),
		Rows:    make([]DailyRow, 0, len(byDate)),
	}
	for day, sums := range byDate {
		table.Rows = append(table.Rows, DailyRow{Date: day, Values: sums})
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		return table.Rows[i].Date.Before(table.Rows[j].Date)
	})
	return table, nil
}

// Dates returns the row dates in order.
func (d *DailyTable) Dates() []time.Time {
	out := make([]time.Time, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Date
	}
	return out
}

// =============================================================================
// Merge
// =============================================================================

// MergedRow is one date present in both the daily aggregate and the
// epidemiological series. Values holds the aggregate columns followed by
// the epidemiological columns.
type MergedRow struct {
	Date   time.Time `json:"date"`
	Values []float64 `json:"values"`
}

// MergedTable is the inner join of a DailyTable and an epi series.
type MergedTable struct {
	// Columns names every value column; the date column is implicit.
	Columns []string    `json:"columns"`
	Rows    []MergedRow `json:"rows"`
}

// Merge inner-joins daily with epi on date.
//
// Description:
//
//	Keeps only dates present in both inputs, in ascending order. The
//	output columns are daily.Columns followed by cols.Names().
//
// Inputs:
//
//	ctx - Context for tracing.
//	daily - Per-day trip sums.
//	epi - Normalized epidemiological rows, any order.
//	cols - Names for the epidemiological columns.
//
// Outputs:
//
//	*MergedTable - The joined table.
//	error - ErrDuplicateDate if epi repeats a date.
func Merge(ctx context.Context, daily *DailyTable, epi []records.EpiRecord, cols records.EpiColumns) (*MergedTable, error) {
	_, span := tracer.Start(ctx, "aggregate.Merge",
		trace.WithAttributes(
			attribute.Int("daily_rows", len(daily.Rows)),
			attribute.Int("epi_rows", len(epi)),
		),
	)
	defer span.End()

	epiByDate := make(map[time.Time]records.EpiRecord, len(epi))
	for _, e := range epi {
		day := records.TruncateDay(e.Date)
		if _, dup := epiByDate[day]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDate, day.Format(DateLayout))
		}
		epiByDate[day] = e
	}

	columns := make([]string, 0, len(daily.Columns)+3)
	columns = append(columns, daily.Columns...)
	columns = append(columns, cols.Names()...)

	merged := &MergedTable{Columns: columns, Rows: make([]MergedRow, 0, len(daily.Rows))}
	for _, row := range daily.Rows {
		e, ok := epiByDate[row.Date]
		if !ok {
			continue
		}
		values := make([]float64, 0, len(columns))
		values = append(values, row.Values...)
		values = append(values, e.Values()...)
		merged.Rows = append(merged.Rows, MergedRow{Date: row.Date, Values: values})
	}

	span.SetAttributes(attribute.Int("merged_rows", len(merged.Rows)))
	return merged, nil
}

// ColumnIndex returns the position of name in Columns.
func (m *MergedTable) ColumnIndex(name string) (int, error) {
	for i, c := range m.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

// Column returns every row's value for the named column, in row order.
func (m *MergedTable) Column(name string) ([]float64, error) {
	idx, err := m.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(m.Rows))
	for i, r := range m.Rows {
		out[i] = r.Values[idx]
	}
	return out, nil
}

// Dates returns the row dates in order.
func (m *MergedTable) Dates() []time.Time {
	out := make([]time.Time, len(m.Rows))
	for i, r := range m.Rows {
		out[i] = r.Date
	}
	return out
}
