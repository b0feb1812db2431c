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
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/callmap/services/callmap/analysis"
	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// Handlers holds the HTTP handlers for the callmap API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers backed by svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// AnalyzeRequest is the body of POST /v1/callmap/analyze.
type AnalyzeRequest struct {
	ProjectRoot string `json:"project_root" binding:"required"`
}

// AnalyzeResponse wraps the graph snapshot with run metadata.
type AnalyzeResponse struct {
	graph.Snapshot
	FilesAnalyzed int      `json:"files_analyzed"`
	FileErrors    []string `json:"file_errors,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

func analyzeResponse(res *analysis.Result) AnalyzeResponse {
	out := AnalyzeResponse{
		Snapshot:      res.Graph.ToSnapshot(res.RunID, res.ProjectRoot),
		FilesAnalyzed: res.FilesAnalyzed,
		DurationMS:    res.Duration.Milliseconds(),
	}
	for _, fe := range res.FileErrors {
		out.FileErrors = append(out.FileErrors, fe.Error())
	}
	return out
}

// HandleAnalyze runs a whole-project analysis.
//
// POST /v1/callmap/analyze
//
// Returns 200 with the graph snapshot, 400 for a bad request body or a
// project root that is not a directory, 500 for analysis failures.
// Per-file parse failures are not errors; they are listed in file_errors.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := os.Stat(req.ProjectRoot)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "project_root is not a readable directory",
		})
		return
	}

	res, err := h.svc.Analyze(c.Request.Context(), req.ProjectRoot)
	if err != nil {
		slog.Error("Analysis failed",
			slog.String("project_root", req.ProjectRoot),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analyzeResponse(res))
}

// HandleGetRun returns a retained run by ID.
//
// GET /v1/callmap/runs/:id
func (h *Handlers) HandleGetRun(c *gin.Context) {
	res, ok := h.svc.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, analyzeResponse(res))
}

// HandleListRuns lists retained run IDs.
//
// GET /v1/callmap/runs
func (h *Handlers) HandleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.svc.RunIDs()})
}

// HandleHealth reports liveness.
//
// GET /v1/callmap/health
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
