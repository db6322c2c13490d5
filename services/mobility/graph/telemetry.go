// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("mobility.graph")
	meter  = otel.Meter("mobility.graph")
)

// Metrics for graph building and analysis.
var (
	buildLatency       metric.Float64Histogram
	buildTotal         metric.Int64Counter
	nodesCreated       metric.Int64Histogram
	edgesCreated       metric.Int64Histogram
	betweennessLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"mobility_graph_build_duration_seconds",
			metric.WithDescription("Duration of mobility graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"mobility_graph_build_total",
			metric.WithDescription("Total number of mobility graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"mobility_graph_nodes",
			metric.WithDescription("Number of nodes per built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"mobility_graph_edges",
			metric.WithDescription("Number of edges per built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		betweennessLatency, err = meter.Float64Histogram(
			"mobility_graph_betweenness_duration_seconds",
			metric.WithDescription("Duration of betweenness centrality runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, edgeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		nodesCreated.Record(ctx, int64(nodeCount))
		edgesCreated.Record(ctx, int64(edgeCount))
	}
}

// recordBetweennessMetrics records the duration of one centrality run.
func recordBetweennessMetrics(ctx context.Context, duration time.Duration, workers int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	betweennessLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.Int("workers", workers),
			attribute.Bool("success", success),
		),
	)
}
