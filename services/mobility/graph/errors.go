// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and analyzes directed mobility graphs.
//
// A mobility graph has one node per zone in the zone universe and one
// directed edge per distinct (origin, destination) pair observed in a
// period's trips. Edges carry presence only; repeated pairs collapse.
//
// # Ownership Model
//
// Build returns a Graph that is never modified afterwards. The node order is
// the universe order passed to Build and is the tie-break order for every
// ranking in this package.
//
// # Thread Safety
//
// A built Graph is read-only and safe for concurrent use. All metric
// functions are pure with respect to the graph.
//
// # Lifecycle
//
//  1. Resolve trips with the zones package
//  2. Build with Build(ctx, universe, trips, opts)
//  3. Analyze with Analyze(ctx, g, opts), or call the metrics directly
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrEmptyGraph marks a graph with zero nodes. Metrics on such a graph
	// are zero or empty; Analyze logs it and flags the report as degenerate
	// instead of failing.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrNodeNotFound is returned when a zone name is not a node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidDegreeMode is returned for an unknown degree mode name.
	ErrInvalidDegreeMode = errors.New("invalid degree mode")
)
