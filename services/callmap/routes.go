// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callmap

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the callmap endpoints with the router group.
//
// Endpoints:
//
//	POST /v1/callmap/analyze - Analyze a Python project
//	GET  /v1/callmap/runs - List retained run IDs
//	GET  /v1/callmap/runs/:id - Fetch a retained run
//	GET  /v1/callmap/health - Liveness check
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	cm := rg.Group("/callmap")
	cm.POST("/analyze", h.HandleAnalyze)
	cm.GET("/runs", h.HandleListRuns)
	cm.GET("/runs/:id", h.HandleGetRun)
	cm.GET("/health", h.HandleHealth)
}
