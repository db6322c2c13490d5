// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"errors"
	"math"
	"strconv"
	"time"
)

// timeLayouts are tried in order when parsing timestamps.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006-01-02",
}

// ParseTime parses a zone-less timestamp as UTC wall time.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// fieldParser collects the first failure while reading a raw row, so each
// field read stays a single line.
type fieldParser struct {
	raw RawRecord
	err error
}

func (p *fieldParser) text(column string) string {
	if p.err != nil {
		return ""
	}
	v, ok := p.raw.Get(column)
	if !ok {
		p.err = &MissingFieldError{Column: column}
	}
	return v
}

func (p *fieldParser) float(column string) float64 {
	v := p.text(column)
	if p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = errors.New("not a finite number")
	}
	if err != nil {
		p.err = &MissingFieldError{Column: column, Value: v, Err: err}
		return 0
	}
	return f
}

// integer accepts "132" and "132.0"; ids are sometimes written as floats
// when the source had nulls elsewhere in the column.
func (p *fieldParser) integer(column string) int {
	v := p.text(column)
	if p.err != nil {
		return 0
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(v, 64)
	if err == nil && f != math.Trunc(f) {
		err = errors.New("not an integer")
	}
	if err != nil {
		p.err = &MissingFieldError{Column: column, Value: v, Err: err}
		return 0
	}
	return int(f)
}

func (p *fieldParser) time(column string) time.Time {
	v := p.text(column)
	if p.err != nil {
		return time.Time{}
	}
	t, err := ParseTime(v)
	if err != nil {
		p.err = &MissingFieldError{Column: column, Value: v, Err: err}
	}
	return t
}

// ParseTrip converts a raw row into a TripRecord.
//
// Description:
//
//	Every column in TripColumns is required. The first absent, blank, or
//	unparseable column stops parsing.
//
// Outputs:
//
//	TripRecord - The typed record. Zero value on error.
//	error - *MissingFieldError naming the first bad column.
func ParseTrip(raw RawRecord) (TripRecord, error) {
	p := &fieldParser{raw: raw}
	t := TripRecord{
		VendorID:             p.integer(ColVendorID),
		PickupAt:             p.time(ColPickup),
		DropoffAt:            p.time(ColDropoff),
		PassengerCount:       p.float(ColPassengerCount),
		TripDistance:         p.float(ColTripDistance),
		RatecodeID:           p.integer(ColRatecodeID),
		StoreAndFwdFlag:      p.text(ColStoreAndFwdFlag),
		OriginID:             p.integer(ColPULocationID),
		DestinationID:        p.integer(ColDOLocationID),
		PaymentType:          p.integer(ColPaymentType),
		FareAmount:           p.float(ColFareAmount),
		Extra:                p.float(ColExtra),
		MTATax:               p.float(ColMTATax),
		TipAmount:            p.float(ColTipAmount),
		TollsAmount:          p.float(ColTollsAmount),
		ImprovementSurcharge: p.float(ColImprovementSurcharge),
		TotalAmount:          p.float(ColTotalAmount),
		CongestionSurcharge:  p.float(ColCongestionSurcharge),
	}
	if p.err != nil {
		return TripRecord{}, p.err
	}
	return t, nil
}

// ParseEpi converts a raw row of the daily series into an EpiRecord.
// Only the date and the three configured count columns are required.
func ParseEpi(raw RawRecord, cols EpiColumns) (EpiRecord, error) {
	p := &fieldParser{raw: raw}
	e := EpiRecord{
		Date:         TruncateDay(p.time(cols.Date)),
		Cases:        p.float(cols.Cases),
		Hospitalized: p.float(cols.Hospitalized),
		Deaths:       p.float(cols.Deaths),
	}
	if p.err != nil {
		return EpiRecord{}, p.err
	}
	return e, nil
}

// =============================================================================
// Normalizer
// =============================================================================

// NormalizeStats counts what happened to each row offered to a Normalizer.
type NormalizeStats struct {
	// Seen is the number of rows offered.
	Seen int `json:"seen"`

	// Kept is the number of rows returned as typed records.
	Kept int `json:"kept"`

	// Missing counts rows discarded for a missing or unparseable field.
	Missing int `json:"missing"`

	// OutsideWindow counts complete rows discarded by the window filter.
	OutsideWindow int `json:"outside_window"`

	// MissingByColumn breaks Missing down by the first offending column.
	MissingByColumn map[string]int `json:"missing_by_column,omitempty"`
}

// Discarded returns the total number of rows dropped.
func (s NormalizeStats) Discarded() int {
	return s.Missing + s.OutsideWindow
}

// Merge adds other's counts into s.
func (s *NormalizeStats) Merge(other NormalizeStats) {
	s.Seen += other.Seen
	s.Kept += other.Kept
	s.Missing += other.Missing
	s.OutsideWindow += other.OutsideWindow
	for col, n := range other.MissingByColumn {
		s.countMissing(col, n)
	}
}

func (s *NormalizeStats) countMissing(column string, n int) {
	if s.MissingByColumn == nil {
		s.MissingByColumn = make(map[string]int)
	}
	s.MissingByColumn[column] += n
}

// record classifies err and updates the counters.
func (s *NormalizeStats) record(err error) {
	s.Seen++
	var mfe *MissingFieldError
	switch {
	case err == nil:
		s.Kept++
	case errors.As(err, &mfe):
		s.Missing++
		s.countMissing(mfe.Column, 1)
	case errors.Is(err, ErrOutsideWindow):
		s.OutsideWindow++
	}
}

// Normalizer filters rows one at a time against a window.
//
// It is the streaming form used by the CSV loader so a month of trips is
// never held as raw text and typed records at the same time.
//
// Thread Safety: Not safe for concurrent use.
type Normalizer struct {
	window Window
	epi    EpiColumns
	stats  NormalizeStats
}

// NewNormalizer creates a Normalizer for the given window. The epi column
// names are only used by Epi.
func NewNormalizer(w Window, epi EpiColumns) *Normalizer {
	return &Normalizer{window: w, epi: epi}
}

// Trip parses raw and applies the window filter on pickup time.
// The error is nil for kept rows and classifies the discard otherwise.
func (n *Normalizer) Trip(raw RawRecord) (TripRecord, error) {
	t, err := ParseTrip(raw)
	if err == nil && !n.window.Contains(t.PickupAt) {
		err = ErrOutsideWindow
	}
	n.stats.record(err)
	if err != nil {
		return TripRecord{}, err
	}
	return t, nil
}

// Epi parses raw and applies the window filter on the row's date.
func (n *Normalizer) Epi(raw RawRecord) (EpiRecord, error) {
	e, err := ParseEpi(raw, n.epi)
	if err == nil && !n.window.Contains(e.Date) {
		err = ErrOutsideWindow
	}
	n.stats.record(err)
	if err != nil {
		return EpiRecord{}, err
	}
	return e, nil
}

// Stats returns a copy of the counters accumulated so far.
func (n *Normalizer) Stats() NormalizeStats {
	out := n.stats
	if n.stats.MissingByColumn != nil {
		out.MissingByColumn = make(map[string]int, len(n.stats.MissingByColumn))
		for k, v := range n.stats.MissingByColumn {
			out.MissingByColumn[k] = v
		}
	}
	return out
}

// NormalizeTrips returns the complete rows of raws whose pickup lies in w.
//
// Description:
//
//	Pure and idempotent: the input is not modified and normalizing the
//	output again (after rendering back to raw form) yields the same set.
//	Discards are never returned as errors; they are counted in the stats.
//
// Inputs:
//
//	raws - Source rows in file order.
//	w - Half-open analysis window.
//
// Outputs:
//
//	[]TripRecord - Kept records in input order.
//	NormalizeStats - Discard counts.
func NormalizeTrips(raws []RawRecord, w Window) ([]TripRecord, NormalizeStats) {
	n := NewNormalizer(w, EpiColumns{})
	out := make([]TripRecord, 0, len(raws))
	for _, raw := range raws {
		if t, err := n.Trip(raw); err == nil {
			out = append(out, t)
		}
	}
	return out, n.Stats()
}

// NormalizeEpi returns the complete rows of raws whose date lies in w.
func NormalizeEpi(raws []RawRecord, w Window, cols EpiColumns) ([]EpiRecord, NormalizeStats) {
	n := NewNormalizer(w, cols)
	out := make([]EpiRecord, 0, len(raws))
	for _, raw := range raws {
		if e, err := n.Epi(raw); err == nil {
			out = append(out, e)
		}
	}
	return out, n.Stats()
}
