// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records cleans and filters raw taxi-trip and epidemiological rows.
//
// Raw rows arrive as column-name to text mappings (one CSV row each). The
// normalizer turns them into typed records and keeps only those that are
// complete and fall inside an analysis window.
//
// # Discard Policy
//
// A row with any missing or unparseable required field is discarded, never
// raised. Every discard is classified and counted in NormalizeStats so the
// caller can log how much data a period lost:
//
//   - MissingFieldError: the row lacks a required column or it fails to parse
//   - ErrOutsideWindow: the row is complete but its timestamp is out of range
//
// # Windows
//
// Windows are half-open: [Start, End). All timestamps are zone-less in the
// source files and are interpreted as UTC wall time.
//
// # Thread Safety
//
// The package-level functions are pure. A Normalizer accumulates statistics
// and must not be shared between goroutines.
package records

import (
	"errors"
	"fmt"
)

// Sentinel errors for record normalization.
var (
	// ErrMissingField is the classification for rows lacking a required
	// column. Match it with errors.Is against a *MissingFieldError.
	ErrMissingField = errors.New("missing required field")

	// ErrOutsideWindow is returned for complete rows whose timestamp is
	// not inside the analysis window.
	ErrOutsideWindow = errors.New("record outside analysis window")

	// ErrInvalidWindow is returned when a window's end is not after its start.
	ErrInvalidWindow = errors.New("window end must be after start")

	// ErrUnknownColumn is returned when a numeric column name has no
	// accessor on TripRecord.
	ErrUnknownColumn = errors.New("unknown numeric column")
)

// MissingFieldError describes a required column that was absent, empty,
// or could not be parsed.
type MissingFieldError struct {
	// Column is the name of the offending column.
	Column string

	// Value is the raw text, empty when the column was absent.
	Value string

	// Err is the parse error, nil when the column was absent or empty.
	Err error
}

// Error implements error.
func (e *MissingFieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %q: cannot parse %q: %v", e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("field %q: %v", e.Column, ErrMissingField)
}

// Unwrap returns the underlying parse error.
func (e *MissingFieldError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMissingField.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
