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
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Column Names
// =============================================================================

// Trip column names as they appear in the yellow-taxi trip files.
const (
	ColVendorID             = "VendorID"
	ColPickup               = "tpep_pickup_datetime"
	ColDropoff              = "tpep_dropoff_datetime"
	ColPassengerCount       = "passenger_count"
	ColTripDistance         = "trip_distance"
	ColRatecodeID           = "RatecodeID"
	ColStoreAndFwdFlag      = "store_and_fwd_flag"
	ColPULocationID         = "PULocationID"
	ColDOLocationID         = "DOLocationID"
	ColPaymentType          = "payment_type"
	ColFareAmount           = "fare_amount"
	ColExtra                = "extra"
	ColMTATax               = "mta_tax"
	ColTipAmount            = "tip_amount"
	ColTollsAmount          = "tolls_amount"
	ColImprovementSurcharge = "improvement_surcharge"
	ColTotalAmount          = "total_amount"
	ColCongestionSurcharge  = "congestion_surcharge"
)

// TripColumns lists every column a trip row must carry, in file order.
var TripColumns = []string{
	ColVendorID, ColPickup, ColDropoff, ColPassengerCount, ColTripDistance,
	ColRatecodeID, ColStoreAndFwdFlag, ColPULocationID, ColDOLocationID,
	ColPaymentType, ColFareAmount, ColExtra, ColMTATax, ColTipAmount,
	ColTollsAmount, ColImprovementSurcharge, ColTotalAmount, ColCongestionSurcharge,
}

// DefaultAggregateColumns are the numeric trip columns summed per day.
//
// Identifier columns and the near-constant mta_tax and
// improvement_surcharge are left out.
var DefaultAggregateColumns = []string{
	ColPassengerCount, ColTripDistance, ColFareAmount, ColExtra,
	ColTipAmount, ColTollsAmount, ColTotalAmount, ColCongestionSurcharge,
}

// =============================================================================
// Raw Rows
// =============================================================================

// RawRecord is one source row as a column-name to text mapping.
type RawRecord map[string]string

// Get returns the trimmed value of column and whether it is present.
// A column that is absent or blank is missing.
func (r RawRecord) Get(column string) (string, bool) {
	v, ok := r[column]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// =============================================================================
// Window
// =============================================================================

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Validate returns ErrInvalidWindow unless End is after Start.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidWindow,
			w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
	}
	return nil
}

// String formats the window with date precision.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// =============================================================================
// Typed Records
// =============================================================================

// TripRecord is one completed taxi ride with every field present.
//
// Records are produced once by the normalizer and never mutated afterwards.
type TripRecord struct {
	VendorID             int       `json:"vendor_id"`
	PickupAt             time.Time `json:"pickup_at"`
	DropoffAt            time.Time `json:"dropoff_at"`
	PassengerCount       float64   `json:"passenger_count"`
	TripDistance         float64   `json:"trip_distance"`
	RatecodeID           int       `json:"ratecode_id"`
	StoreAndFwdFlag      string    `json:"store_and_fwd_flag"`
	OriginID             int       `json:"origin_id"`
	DestinationID        int       `json:"destination_id"`
	PaymentType          int       `json:"payment_type"`
	FareAmount           float64   `json:"fare_amount"`
	Extra                float64   `json:"extra"`
	MTATax               float64   `json:"mta_tax"`
	TipAmount            float64   `json:"tip_amount"`
	TollsAmount          float64   `json:"tolls_amount"`
	ImprovementSurcharge float64   `json:"improvement_surcharge"`
	TotalAmount          float64   `json:"total_amount"`
	CongestionSurcharge  float64   `json:"congestion_surcharge"`
}

// PickupDate returns the pickup time truncated to its calendar day.
func (t *TripRecord) PickupDate() time.Time {
	return TruncateDay(t.PickupAt)
}

var numericAccessors = map[string]func(*TripRecord) float64{
	ColPassengerCount:       func(t *TripRecord) float64 { return t.PassengerCount },
	ColTripDistance:         func(t *TripRecord) float64 { return t.TripDistance },
	ColFareAmount:           func(t *TripRecord) float64 { return t.FareAmount },
	ColExtra:                func(t *TripRecord) float64 { return t.Extra },
	ColMTATax:               func(t *TripRecord) float64 { return t.MTATax },
	ColTipAmount:            func(t *TripRecord) float64 { return t.TipAmount },
	ColTollsAmount:          func(t *TripRecord) float64 { return t.TollsAmount },
	ColImprovementSurcharge: func(t *TripRecord) float64 { return t.ImprovementSurcharge },
	ColTotalAmount:          func(t *TripRecord) float64 { return t.TotalAmount },
	ColCongestionSurcharge:  func(t *TripRecord) float64 { return t.CongestionSurcharge },
}

// Value returns the numeric field named by column.
func (t *TripRecord) Value(column string) (float64, bool) {
	fn, ok := numericAccessors[column]
	if !ok {
		return 0, false
	}
	return fn(t), true
}

// NumericColumns returns the names accepted by TripRecord.Value, sorted.
func NumericColumns() []string {
	out := make([]string, 0, len(numericAccessors))
	for name := range numericAccessors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidateColumns returns ErrUnknownColumn for the first name that is not
// a numeric trip column.
func ValidateColumns(columns []string) error {
	for _, c := range columns {
		if _, ok := numericAccessors[c]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}
	return nil
}

// EpiColumns names the columns read from the daily epidemiological series.
type EpiColumns struct {
	Date         string `json:"date" yaml:"date" validate:"required"`
	Cases        string `json:"cases" yaml:"cases" validate:"required"`
	Hospitalized string `json:"hospitalized" yaml:"hospitalized" validate:"required"`
	Deaths       string `json:"deaths" yaml:"deaths" validate:"required"`
}

// DefaultEpiColumns returns the Manhattan columns of the NYC data-by-day file.
func DefaultEpiColumns() EpiColumns {
	return EpiColumns{
		Date:         "date_of_interest",
		Cases:        "MN_CASE_COUNT",
		Hospitalized: "MN_HOSPITALIZED_COUNT",
		Deaths:       "MN_DEATH_COUNT",
	}
}

// Names returns the count column names in output order.
func (c EpiColumns) Names() []string {
	return []string{c.Cases, c.Hospitalized, c.Deaths}
}

// EpiRecord is one day of the epidemiological series.
type EpiRecord struct {
	Date         time.Time `json:"date"`
	Cases        float64   `json:"cases"`
	Hospitalized float64   `json:"hospitalized"`
	Deaths       float64   `json:"deaths"`
}

// Values returns the counts in the order of EpiColumns.Names.
func (e EpiRecord) Values() []float64 {
	return []float64{e.Cases, e.Hospitalized, e.Deaths}
}

// TruncateDay returns midnight UTC of t's calendar day.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
