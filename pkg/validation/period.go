// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers that leave
// the process.
//
// Period names appear in URL path segments, span attributes, metric labels,
// and log fields, so they are restricted to a small safe alphabet.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPeriodName is wrapped by every period name failure.
var ErrInvalidPeriodName = errors.New("invalid period name")

// periodPattern matches valid period names.
// Allows: lowercase letters, digits, underscores, hyphens
// Max length: 32 characters
var periodPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,31}$`)

// ValidatePeriodName validates a period name.
//
// Valid names:
//   - 1-32 characters
//   - Lowercase letters a-z and digits 0-9
//   - Underscores and hyphens after the first character (2020-03, pre_lockdown)
//
// Example:
//
//	if err := validation.ValidatePeriodName(name); err != nil {
//	    return fmt.Errorf("period: %w", err)
//	}
func ValidatePeriodName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidPeriodName)
	}
	if !periodPattern.MatchString(name) {
		return fmt.Errorf("%w: %q (must be 1-32 lowercase alphanumeric chars, underscores, or hyphens)", ErrInvalidPeriodName, name)
	}
	return nil
}

// ValidatePeriodNames validates multiple period names.
// Returns an error listing all invalid names if any fail validation.
func ValidatePeriodNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidatePeriodName(n); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", n))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriodName, strings.Join(invalid, ", "))
	}
	return nil
}

// SanitizePeriodName trims and lowercases a user-typed period name and
// validates the result.
//
//	name, err := validation.SanitizePeriodName(" March ")
//	// name == "march"
func SanitizePeriodName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidatePeriodName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
