// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command callmap resolves whole-program call graphs for Python projects.
//
// The analyzer parses every Python file, runs two-pass extraction with
// cross-module symbol resolution, and emits a typed call graph with
// Direct, Callback, and ObserverDispatch edges.
//
// Usage:
//
//	# Analyze a project and print the graph as JSON
//	callmap analyze /path/to/project
//
//	# Render Graphviz dot instead
//	callmap analyze /path/to/project --format dot -o graph.dot
//
//	# Run the HTTP API
//	callmap serve --port 8080
//
//	# Push the graph into Neo4j
//	callmap export /path/to/project --uri neo4j://localhost:7687 --user neo4j
//
// Example requests against the server:
//
//	curl http://localhost:8080/v1/callmap/health
//	curl -X POST http://localhost:8080/v1/callmap/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"project_root": "/path/to/project"}'
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "callmap",
	Short: "Python call graph resolver",
	Long: "callmap builds whole-program call graphs for Python projects,\n" +
		"including observer-pattern dispatch and callback registration edges.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(analyzeCmd, serveCmd, exportCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
