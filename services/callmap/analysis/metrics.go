// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

var (
	filesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callmap_files_analyzed_total",
		Help: "Python files processed by project analysis, by outcome.",
	}, []string{"outcome"})

	edgesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callmap_edges_resolved_total",
		Help: "Call graph edges produced, by call type.",
	}, []string{"call_type"})
)

// recordEdgeMetrics bumps the per-call-type edge counters for a finished
// graph.
func recordEdgeMetrics(g *graph.CallGraph) {
	counts := make(map[graph.CallType]int)
	for _, e := range g.Edges() {
		counts[e.CallType]++
	}
	for ct, n := range counts {
		edgesResolved.WithLabelValues(string(ct)).Add(float64(n))
	}
}
