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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/callmap/services/callmap/ast"
	"github.com/AleutianAI/callmap/services/callmap/graph"
)

const tracerName = "aleutian.callmap"

// FileError records a file that contributed nothing to the graph.
type FileError struct {
	File string
	Err  error
}

func (f FileError) Error() string {
	return fmt.Sprintf("%s: %v", f.File, f.Err)
}

// Result is the outcome of a project analysis run. Partial results are
// normal: files that failed to parse appear in FileErrors and nowhere in
// the graph.
type Result struct {
	RunID         string
	ProjectRoot   string
	Graph         *graph.CallGraph
	FileErrors    []FileError
	FilesAnalyzed int
	Duration      time.Duration
}

// AnalyzerOption configures a ProjectAnalyzer.
type AnalyzerOption func(*ProjectAnalyzer)

// WithConcurrency bounds the number of files extracted in parallel.
func WithConcurrency(n int) AnalyzerOption {
	return func(a *ProjectAnalyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithConfig overrides the config instead of loading
// callmap.config.yaml from the project root.
func WithConfig(cfg graph.Config) AnalyzerOption {
	return func(a *ProjectAnalyzer) {
		a.cfg = &cfg
	}
}

// WithParser substitutes the Python parser.
func WithParser(p *ast.PythonParser) AnalyzerOption {
	return func(a *ProjectAnalyzer) {
		if p != nil {
			a.parser = p
		}
	}
}

// ProjectAnalyzer drives whole-project analysis.
//
// Description:
//
//	Files are parsed and phase-one extracted in parallel against shared
//	concurrency-safe registries. A hard barrier separates phase one from
//	phase two (per-file resolution needs every file's exports), and a
//	second barrier precedes finalization, where queued observer
//	dispatches fan out and pending callbacks resolve. Because dispatch
//	fan-out is deferred behind the barrier, file processing order never
//	changes the final graph.
//
// Thread Safety: Safe for concurrent use; each run builds its own state.
type ProjectAnalyzer struct {
	parser      *ast.PythonParser
	cfg         *graph.Config
	concurrency int
}

// NewProjectAnalyzer creates an analyzer with the given options.
func NewProjectAnalyzer(opts ...AnalyzerOption) *ProjectAnalyzer {
	a := &ProjectAnalyzer{
		parser:      ast.NewPythonParser(),
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeProject discovers and analyzes every Python file under
// projectRoot.
//
// Inputs:
//
//	ctx - Cancels the run between files.
//	projectRoot - Directory to walk. callmap.config.yaml is honored
//	  unless WithConfig was given.
//
// Outputs:
//
//	*Result - The merged graph plus per-file errors. Non-nil unless err is.
//	error - Non-nil for setup failures (unreadable root, bad config) or
//	  context cancellation; per-file failures land in Result.FileErrors.
func (a *ProjectAnalyzer) AnalyzeProject(ctx context.Context, projectRoot string) (*Result, error) {
	cfg := a.cfg
	if cfg == nil {
		loaded, err := graph.LoadConfig(projectRoot)
		if err != nil {
			return nil, err
		}
		cfg = &loaded
	}

	files, err := discoverPythonFiles(projectRoot, *cfg)
	if err != nil {
		return nil, fmt.Errorf("discovering python files: %w", err)
	}
	return a.analyzeFiles(ctx, projectRoot, files, *cfg)
}

// AnalyzeFiles analyzes an explicit list of project-relative files.
func (a *ProjectAnalyzer) AnalyzeFiles(ctx context.Context, projectRoot string, files []string) (*Result, error) {
	cfg := graph.Config{}
	if a.cfg != nil {
		cfg = *a.cfg
	}
	return a.analyzeFiles(ctx, projectRoot, files, cfg)
}

func (a *ProjectAnalyzer) analyzeFiles(ctx context.Context, projectRoot string, files []string, cfg graph.Config) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.project")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("project_root", projectRoot),
		attribute.Int("file_count", len(files)),
	)

	slog.Info("Starting project analysis",
		slog.String("run_id", runID),
		slog.String("project_root", projectRoot),
		slog.Int("files", len(files)))

	parser := a.parser
	if cfg.MaxFileSizeBytes > 0 {
		parser = ast.NewPythonParser(ast.WithMaxFileSize(cfg.MaxFileSizeBytes))
	}

	shared := NewSharedState()
	extractors := make([]*Extractor, len(files))

	var errMu sync.Mutex
	var fileErrors []FileError
	recordFileError := func(file string, err error) {
		errMu.Lock()
		fileErrors = append(fileErrors, FileError{File: file, Err: err})
		errMu.Unlock()
		filesAnalyzed.WithLabelValues("error").Inc()
		slog.Warn("File skipped",
			slog.String("run_id", runID),
			slog.String("file", file),
			slog.String("error", err.Error()))
	}

	// Phase one: parse and extract every file in parallel.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(rel)))
			if err != nil {
				recordFileError(rel, err)
				return nil
			}
			src, err := parser.Parse(gctx, content, rel)
			if err != nil {
				// Cancellation fails the run; per-file problems do not.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				recordFileError(rel, err)
				return nil
			}
			if src.HasSyntaxError() {
				src.Close()
				recordFileError(rel, fmt.Errorf("syntax errors in parse tree"))
				return nil
			}

			ex := NewExtractor(src, cfg, shared)
			ex.PhaseOne()
			src.Close()
			extractors[i] = ex
			filesAnalyzed.WithLabelValues("ok").Inc()
			return gctx.Err()
		})
	}
	// Hard barrier: no resolution until every file's symbols are in.
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction canceled: %w", err)
	}

	// Phase two: per-file call resolution against the full symbol table.
	g2, g2ctx := errgroup.WithContext(ctx)
	g2.SetLimit(a.concurrency)
	for _, ex := range extractors {
		if ex == nil {
			continue
		}
		g2.Go(func() error {
			ex.PhaseTwo()
			return g2ctx.Err()
		})
	}
	if err := g2.Wait(); err != nil {
		return nil, fmt.Errorf("resolution canceled: %w", err)
	}

	// Merge and finalize behind the second barrier.
	merged := graph.NewCallGraph()
	var pending []PendingDispatch
	var registrations []pendingRegistration
	analyzed := 0
	for _, ex := range extractors {
		if ex == nil {
			continue
		}
		merged.Merge(ex.Graph())
		pending = append(pending, ex.Dispatches()...)
		registrations = append(registrations, ex.Registrations()...)
		analyzed++
	}

	finalizeObserverImplementations(shared, registrations)
	dispatchEdges := finalizeObserverDispatches(merged, shared, pending)
	callbackEdges := finalizeCallbacks(merged, shared)
	recordEdgeMetrics(merged)

	result := &Result{
		RunID:         runID,
		ProjectRoot:   projectRoot,
		Graph:         merged,
		FileErrors:    fileErrors,
		FilesAnalyzed: analyzed,
		Duration:      time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("functions", merged.NodeCount()),
		attribute.Int("edges", merged.EdgeCount()),
		attribute.Int("file_errors", len(fileErrors)),
	)
	slog.Info("Project analysis complete",
		slog.String("run_id", runID),
		slog.Int("files", analyzed),
		slog.Int("file_errors", len(fileErrors)),
		slog.Int("functions", merged.NodeCount()),
		slog.Int("edges", merged.EdgeCount()),
		slog.Int("dispatch_edges", dispatchEdges),
		slog.Int("callback_edges", callbackEdges),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// finalizeObserverImplementations completes usage-based observer
// discovery once every file has been extracted: deferred registration
// calls flow their argument types into the receiver class's observer
// collections, then every collection's element types (and their base
// classes) register as implementations of the collection's interface.
func finalizeObserverImplementations(shared *SharedState, registrations []pendingRegistration) {
	for _, reg := range registrations {
		fields := shared.Observers.CollectionFieldsOf(reg.receiverClass)
		if len(fields) == 0 {
			continue
		}
		info, ok := shared.Classes.Get(reg.receiverClass)
		if !ok {
			continue
		}
		for field := range fields {
			for _, id := range reg.argTypes {
				shared.TypeFlow.RecordCollectionAdd(info.File, reg.receiverClass+"."+field, id)
			}
		}
	}

	for key, iface := range shared.Observers.Collections() {
		class, _, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		info, found := shared.Classes.Get(class)
		if !found {
			continue
		}
		for _, id := range shared.TypeFlow.GetCollectionTypeIDs(info.File, key) {
			shared.Observers.RegisterImplementation(iface, id.Name)
			if typeInfo, ok := shared.TypeFlow.GetTypeInfo(id); ok {
				for _, base := range typeInfo.BaseClasses {
					shared.Observers.RegisterImplementation(iface, base)
				}
			}
		}
	}
}

// finalizeObserverDispatches drains the global dispatch queue: one
// ObserverDispatch edge per registered implementation that defines the
// dispatched method. Zero implementations means zero edges, not an error.
// Confidence is scored here, once the registry is frozen, so it cannot
// vary with file processing order.
func finalizeObserverDispatches(merged *graph.CallGraph, shared *SharedState, pending []PendingDispatch) int {
	edges := 0
	for _, pd := range pending {
		impls := shared.Observers.Implementations(pd.InterfaceName)
		if len(impls) == 0 && pd.InterfaceName != GenericObserverInterface {
			impls = shared.Observers.Implementations(GenericObserverInterface)
		}
		confidence := DispatchConfidence(pd.CollectionField,
			shared.Observers.KnownInterface(pd.InterfaceName))
		for _, impl := range impls {
			callee, ok := shared.Classes.ResolveMethod(impl, pd.MethodName)
			if !ok {
				continue
			}
			merged.AddEdge(graph.Edge{
				Caller:     pd.Caller,
				Callee:     callee,
				CallType:   graph.CallObserverDispatch,
				Confidence: confidence,
			})
			edges++
		}
	}
	return edges
}

// finalizeCallbacks resolves queued callback registrations into Callback
// edges.
func finalizeCallbacks(merged *graph.CallGraph, shared *SharedState) int {
	resolved := shared.Callbacks.Resolve(shared.Cross.FindExport)
	for _, cb := range resolved {
		merged.AddEdge(graph.Edge{
			Caller:     cb.Pending.Registrar,
			Callee:     cb.Target,
			CallType:   graph.CallCallback,
			Confidence: cb.Confidence,
		})
	}
	return len(resolved)
}

// discoverPythonFiles walks projectRoot for .py files, honoring the
// exclude list and skipping hidden and cache directories.
func discoverPythonFiles(projectRoot string, cfg graph.Config) ([]string, error) {
	var files []string
	err := filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == projectRoot {
				return nil
			}
			if strings.HasPrefix(name, ".") || name == "__pycache__" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".py") {
			return nil
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if cfg.Excluded(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
