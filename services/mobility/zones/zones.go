// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package zones maps taxi location ids to zone names.
//
// The lookup table is loaded once and shared read-only by every analysis
// period. Resolution never fails: an id without an entry resolves to an
// explicit unresolved ZoneRef and is counted, so callers can decide what to
// drop.
//
// # Zone Universe
//
// The node set of every mobility graph is the zone universe: the distinct,
// non-empty zone names of the table in first-appearance order. Some ids
// share a name (the NYC table lists "Corona" twice), so the universe can be
// smaller than the table.
//
// # Thread Safety
//
// A Table is immutable after NewTable and safe for concurrent use.
package zones

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
)

var (
	// ErrUnresolvedZone classifies location ids with no usable table entry.
	ErrUnresolvedZone = errors.New("unresolved zone id")

	// ErrDuplicateZoneID is returned when the table lists an id twice.
	ErrDuplicateZoneID = errors.New("duplicate zone id")
)

// Endpoint roles reported by UnresolvedZoneError.
const (
	RoleOrigin      = "origin"
	RoleDestination = "destination"
)

// UnresolvedZoneError names an id that has no entry in the lookup table.
type UnresolvedZoneError struct {
	ID   int
	Role string
}

func (e *UnresolvedZoneError) Error() string {
	return fmt.Sprintf("%s zone id %d: %v", e.Role, e.ID, ErrUnresolvedZone)
}

// Is reports whether target is ErrUnresolvedZone.
func (e *UnresolvedZoneError) Is(target error) bool {
	return target == ErrUnresolvedZone
}

// Zone is one row of the taxi zone lookup table.
type Zone struct {
	ID          int    `json:"id"`
	Borough     string `json:"borough"`
	Name        string `json:"name"`
	ServiceZone string `json:"service_zone"`
}

// ZoneRef is the result of resolving an id: a name or an explicit absence.
type ZoneRef struct {
	Name     string `json:"name,omitempty"`
	Resolved bool   `json:"resolved"`
}

// Unresolved is the ZoneRef for ids without a table entry.
var Unresolved = ZoneRef{}

// Table is an immutable id to zone lookup.
type Table struct {
	byID     map[int]Zone
	universe []string
}

// NewTable indexes zones by id.
//
// Description:
//
//	Builds the id index and the zone universe. Rows with a blank name are
//	kept in the index but resolve as unresolved and do not join the
//	universe.
//
// Inputs:
//
//	zones - Table rows in file order.
//
// Outputs:
//
//	*Table - The lookup table.
//	error - ErrDuplicateZoneID if an id repeats.
func NewTable(zones []Zone) (*Table, error) {
	t := &Table{byID: make(map[int]Zone, len(zones))}
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		if _, dup := t.byID[z.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateZoneID, z.ID)
		}
		z.Name = strings.TrimSpace(z.Name)
		t.byID[z.ID] = z
		if z.Name == "" {
			continue
		}
		if _, ok := seen[z.Name]; !ok {
			seen[z.Name] = struct{}{}
			t.universe = append(t.universe, z.Name)
		}
	}
	return t, nil
}

// Resolve returns the zone name for id, or Unresolved.
func (t *Table) Resolve(id int) ZoneRef {
	z, ok := t.byID[id]
	if !ok || z.Name == "" {
		return Unresolved
	}
	return ZoneRef{Name: z.Name, Resolved: true}
}

// Lookup returns the full table row for id.
func (t *Table) Lookup(id int) (Zone, bool) {
	z, ok := t.byID[id]
	return z, ok
}

// Universe returns a copy of the distinct zone names in table order.
func (t *Table) Universe() []string {
	out := make([]string, len(t.universe))
	copy(out, t.universe)
	return out
}

// Len returns the number of table rows.
func (t *Table) Len() int {
	return len(t.byID)
}

// ResolvedTrip is a trip whose endpoints have been resolved to zone names.
type ResolvedTrip struct {
	Origin      ZoneRef
	Destination ZoneRef
	Distance    float64
}

// ResolveStats counts resolution outcomes for a batch of trips.
type ResolveStats struct {
	// Trips is the number of trips resolved.
	Trips int `json:"trips"`

	// UnresolvedEndpoints counts endpoints without a name. A trip with both
	// endpoints unresolved contributes two.
	UnresolvedEndpoints int `json:"unresolved_endpoints"`

	// UnresolvedByID counts unresolved endpoints per location id.
	UnresolvedByID map[int]int `json:"unresolved_by_id,omitempty"`
}

func (s *ResolveStats) miss(id int) {
	s.UnresolvedEndpoints++
	if s.UnresolvedByID == nil {
		s.UnresolvedByID = make(map[int]int)
	}
	s.UnresolvedByID[id]++
}

// ResolveTrip resolves both endpoints of trip. The returned errors list one
// *UnresolvedZoneError per unresolved endpoint and is nil otherwise.
func (t *Table) ResolveTrip(trip *records.TripRecord) (ResolvedTrip, []error) {
	rt := ResolvedTrip{
		Origin:      t.Resolve(trip.OriginID),
		Destination: t.Resolve(trip.DestinationID),
		Distance:    trip.TripDistance,
	}
	var errs []error
	if !rt.Origin.Resolved {
		errs = append(errs, &UnresolvedZoneError{ID: trip.OriginID, Role: RoleOrigin})
	}
	if !rt.Destination.Resolved {
		errs = append(errs, &UnresolvedZoneError{ID: trip.DestinationID, Role: RoleDestination})
	}
	return rt, errs
}

// ResolveTrips resolves every trip in order. Unresolved endpoints are kept
// as explicit ZoneRef values and counted; nothing is dropped here.
func (t *Table) ResolveTrips(trips []records.TripRecord) ([]ResolvedTrip, ResolveStats) {
	out := make([]ResolvedTrip, len(trips))
	stats := ResolveStats{Trips: len(trips)}
	for i := range trips {
		rt, errs := t.ResolveTrip(&trips[i])
		out[i] = rt
		for _, err := range errs {
			var uze *UnresolvedZoneError
			if errors.As(err, &uze) {
				stats.miss(uze.ID)
			}
		}
	}
	return out, stats
}
