// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "aleutian.callmap"

var (
	parsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callmap_parses_total",
		Help: "Python files parsed, by outcome.",
	}, []string{"outcome"})

	parseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callmap_parse_duration_seconds",
		Help:    "Wall time spent parsing a single file.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)

// startParseSpan opens an OTel span for a single file parse.
func startParseSpan(ctx context.Context, filePath string, sizeBytes int) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ast.parse",
		oteltrace.WithAttributes(
			attribute.String("file", filePath),
			attribute.String("language", "python"),
			attribute.Int("size_bytes", sizeBytes),
		),
	)
}

// annotateParseSpan records result attributes once parsing succeeded.
func annotateParseSpan(span oteltrace.Span, src *Source) {
	span.SetAttributes(
		attribute.String("content_hash", src.Hash),
		attribute.Int("line_count", len(src.Lines)),
		attribute.Bool("has_syntax_error", src.HasSyntaxError()),
	)
}

// recordParseMetrics updates the Prometheus parse counters.
func recordParseMetrics(elapsed time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	parsesTotal.WithLabelValues(outcome).Inc()
	parseDuration.Observe(elapsed.Seconds())
}
