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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all mobility routes with the router.
//
// Description:
//
//	Registers all /v1/mobility/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	GET /v1/mobility/health - Health check
//	GET /v1/mobility/periods - List analyzed periods
//	GET /v1/mobility/periods/:name - Period report and stats
//	GET /v1/mobility/periods/:name/graph - Period graph nodes and edges
//	GET /v1/mobility/merged - Merged daily table (JSON or CSV)
//	GET /v1/mobility/comparisons - Threshold comparison results
//	GET /v1/mobility/correlations - Pearson correlation matrix
//
// Example:
//
//	handlers := api.NewHandlers(store)
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	mobility := rg.Group("/mobility")
	{
		mobility.GET("/health", handlers.HandleHealth)

		mobility.GET("/periods", handlers.HandleListPeriods)
		mobility.GET("/periods/:name", handlers.HandleGetPeriod)
		mobility.GET("/periods/:name/graph", handlers.HandleGetGraph)

		mobility.GET("/merged", handlers.HandleGetMerged)
		mobility.GET("/comparisons", handlers.HandleGetComparisons)
		mobility.GET("/correlations", handlers.HandleGetCorrelations)
	}
}
