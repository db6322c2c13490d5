// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the results of a mobility run over HTTP.
//
// The API is read-only. A dashboard fetches period reports, graph
// snapshots, the merged daily table, comparisons, and correlations as
// JSON. Results are published into a ResultStore after a run completes;
// until then data endpoints answer 503.
package api

import (
	"sync"
	"time"

	"github.com/AleutianAI/AleutianMobility/services/mobility/graph"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	"github.com/AleutianAI/AleutianMobility/services/mobility/zones"
)

// ServiceVersion is the API version reported by /health.
const ServiceVersion = "0.1.0"

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeNotReady     = "NOT_READY"
	CodeRateLimited  = "RATE_LIMITED"
	CodeBadRequest   = "BAD_REQUEST"
	CodePeriodFailed = "PERIOD_FAILED"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Ready   bool   `json:"ready"`
	RunID   string `json:"run_id,omitempty"`

	// PublishedAt is when the current result was published.
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// PeriodSummary is one entry of GET /periods.
type PeriodSummary struct {
	Name      string                 `json:"name"`
	Trips     int                    `json:"trips"`
	Nodes     int                    `json:"nodes"`
	Edges     int                    `json:"edges"`
	Density   float64                `json:"density"`
	Normalize records.NormalizeStats `json:"normalize"`
	Resolve   zones.ResolveStats     `json:"resolve"`
	Error     string                 `json:"error,omitempty"`
}

// PeriodsResponse is returned by GET /periods.
type PeriodsResponse struct {
	RunID   string          `json:"run_id"`
	Periods []PeriodSummary `json:"periods"`
}

// GraphResponse is returned by GET /periods/:name/graph.
type GraphResponse struct {
	Period string       `json:"period"`
	Nodes  []string     `json:"nodes"`
	Edges  []graph.Edge `json:"edges"`
}

// MergedResponse is returned by GET /merged as JSON.
type MergedResponse struct {
	Columns []string      `json:"columns"`
	Rows    []MergedEntry `json:"rows"`
}

// MergedEntry is one merged day with its date rendered as YYYY-MM-DD.
type MergedEntry struct {
	Date   string    `json:"date"`
	Values []float64 `json:"values"`
}

// ResultStore holds the most recent run result.
//
// Thread Safety: Safe for concurrent use.
type ResultStore struct {
	mu          sync.RWMutex
	result      *pipeline.Result
	publishedAt time.Time
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Publish replaces the current result.
func (s *ResultStore) Publish(r *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
	s.publishedAt = time.Now()
}

// Current returns the current result, or nil before the first Publish.
func (s *ResultStore) Current() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// PublishedAt returns when the current result was published, zero before
// the first Publish.
func (s *ResultStore) PublishedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publishedAt
}
