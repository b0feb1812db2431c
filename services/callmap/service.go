// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callmap exposes the Python call graph resolver as a service:
// analysis orchestration, result retention, and the HTTP surface.
package callmap

import (
	"context"
	"sync"

	"github.com/AleutianAI/callmap/services/callmap/analysis"
)

// DefaultMaxRetainedRuns bounds how many finished analyses the service
// keeps addressable by run ID.
const DefaultMaxRetainedRuns = 16

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAnalyzer substitutes the project analyzer.
func WithAnalyzer(a *analysis.ProjectAnalyzer) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithMaxRetainedRuns bounds the run cache.
func WithMaxRetainedRuns(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxRuns = n
		}
	}
}

// Service runs project analyses and retains recent results.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	analyzer *analysis.ProjectAnalyzer

	mu      sync.RWMutex
	runs    map[string]*analysis.Result
	order   []string
	maxRuns int
}

// NewService creates a service with the given options.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		analyzer: analysis.NewProjectAnalyzer(),
		runs:     make(map[string]*analysis.Result),
		maxRuns:  DefaultMaxRetainedRuns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs a whole-project analysis and retains the result.
func (s *Service) Analyze(ctx context.Context, projectRoot string) (*analysis.Result, error) {
	res, err := s.analyzer.AnalyzeProject(ctx, projectRoot)
	if err != nil {
		return nil, err
	}
	s.retain(res)
	return res, nil
}

// Run returns a retained result by run ID.
func (s *Service) Run(runID string) (*analysis.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.runs[runID]
	return res, ok
}

// RunIDs lists retained run IDs, oldest first.
func (s *Service) RunIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Service) retain(res *analysis.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[res.RunID] = res
	s.order = append(s.order, res.RunID)
	for len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
}
