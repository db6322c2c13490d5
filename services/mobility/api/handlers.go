// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianMobility/pkg/validation"
	"github.com/AleutianAI/AleutianMobility/services/mobility/aggregate"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
)

// Handlers contains the HTTP handlers for the mobility API.
type Handlers struct {
	store *ResultStore
}

// NewHandlers creates handlers reading from store.
func NewHandlers(store *ResultStore) *Handlers {
	return &Handlers{store: store}
}

// current returns the published result or writes 503 and returns nil.
func (h *Handlers) current(c *gin.Context) *pipeline.Result {
	res := h.store.Current()
	if res == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "no analysis result available yet",
			Code:  CodeNotReady,
		})
	}
	return res
}

// period returns the named period context or writes 400/404 and returns nil.
func (h *Handlers) period(c *gin.Context) *pipeline.PeriodContext {
	name := c.Param("name")
	if err := validation.ValidatePeriodName(name); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  CodeBadRequest,
		})
		return nil
	}
	res := h.current(c)
	if res == nil {
		return nil
	}
	pc, ok := res.Period(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "period not found",
			Code:    CodeNotFound,
			Details: name,
		})
		return nil
	}
	return pc
}

// HandleHealth handles GET /v1/mobility/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", Version: ServiceVersion}
	if res := h.store.Current(); res != nil {
		resp.Ready = true
		resp.RunID = res.RunID.String()
		at := h.store.PublishedAt()
		resp.PublishedAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListPeriods handles GET /v1/mobility/periods.
//
// Response:
//
//	200 OK: PeriodsResponse
//	503 Service Unavailable: no run published
func (h *Handlers) HandleListPeriods(c *gin.Context) {
	res := h.current(c)
	if res == nil {
		return
	}
	resp := PeriodsResponse{RunID: res.RunID.String(), Periods: make([]PeriodSummary, 0, len(res.Periods))}
	for _, pc := range res.Periods {
		s := PeriodSummary{
			Name:      pc.Name,
			Trips:     pc.Trips,
			Normalize: pc.Normalize,
			Resolve:   pc.Resolve,
			Error:     pc.Error,
		}
		if pc.Report != nil {
			s.Nodes = pc.Report.Nodes
			s.Edges = pc.Report.Edges
			s.Density = pc.Report.Density
		}
		resp.Periods = append(resp.Periods, s)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGetPeriod handles GET /v1/mobility/periods/:name.
//
// Response:
//
//	200 OK: pipeline.PeriodContext
//	404 Not Found: unknown period
//	503 Service Unavailable: no run published
func (h *Handlers) HandleGetPeriod(c *gin.Context) {
	pc := h.period(c)
	if pc == nil {
		return
	}
	c.JSON(http.StatusOK, pc)
}

// HandleGetGraph handles GET /v1/mobility/periods/:name/graph.
//
// Response:
//
//	200 OK: GraphResponse
//	404 Not Found: unknown period
//	409 Conflict: the period failed and has no graph
func (h *Handlers) HandleGetGraph(c *gin.Context) {
	pc := h.period(c)
	if pc == nil {
		return
	}
	if pc.Graph == nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "period has no graph",
			Code:    CodePeriodFailed,
			Details: pc.Error,
		})
		return
	}
	snap := pc.Graph.Snapshot()
	c.JSON(http.StatusOK, GraphResponse{Period: pc.Name, Nodes: snap.Nodes, Edges: snap.Edges})
}

// HandleGetMerged handles GET /v1/mobility/merged.
//
// Query Parameters:
//
//	format - "json" (default) or "csv"
//
// Response:
//
//	200 OK: MergedResponse or text/csv
//	400 Bad Request: unknown format
func (h *Handlers) HandleGetMerged(c *gin.Context) {
	res := h.current(c)
	if res == nil {
		return
	}
	switch c.DefaultQuery("format", "json") {
	case "json":
		resp := MergedResponse{Columns: res.Merged.Columns, Rows: make([]MergedEntry, len(res.Merged.Rows))}
		for i, row := range res.Merged.Rows {
			resp.Rows[i] = MergedEntry{Date: row.Date.Format(aggregate.DateLayout), Values: row.Values}
		}
		c.JSON(http.StatusOK, resp)
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := aggregate.WriteCSV(c.Writer, res.Merged); err != nil {
			slog.Error("write merged csv", slog.String("error", err.Error()))
		}
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unsupported format",
			Code:    CodeBadRequest,
			Details: c.Query("format"),
		})
	}
}

// HandleGetComparisons handles GET /v1/mobility/comparisons.
func (h *Handlers) HandleGetComparisons(c *gin.Context) {
	res := h.current(c)
	if res == nil {
		return
	}
	c.JSON(http.StatusOK, res.Comparisons)
}

// HandleGetCorrelations handles GET /v1/mobility/correlations.
//
// Response:
//
//	200 OK: stats.CorrelationMatrix
//	409 Conflict: too few merged rows for a matrix
func (h *Handlers) HandleGetCorrelations(c *gin.Context) {
	res := h.current(c)
	if res == nil {
		return
	}
	if res.Correlations == nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "correlation matrix unavailable",
			Code:    CodeNotReady,
			Details: res.CorrelationError,
		})
		return
	}
	c.JSON(http.StatusOK, res.Correlations)
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
