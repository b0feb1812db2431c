// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callmap/services/callmap/analysis"
	"github.com/AleutianAI/callmap/services/callmap/graph"
)

var (
	exportURI      string
	exportUser     string
	exportPassword string
	exportDatabase string
	exportBatch    int
)

var exportCmd = &cobra.Command{
	Use:   "export <project-root>",
	Short: "Analyze a project and push the call graph into Neo4j",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportURI, "uri", "neo4j://localhost:7687", "Neo4j bolt URI")
	exportCmd.Flags().StringVar(&exportUser, "user", "neo4j", "Neo4j user")
	exportCmd.Flags().StringVar(&exportPassword, "password", "", "Neo4j password (or NEO4J_PASSWORD)")
	exportCmd.Flags().StringVar(&exportDatabase, "database", "", "Neo4j database (default: neo4j)")
	exportCmd.Flags().IntVar(&exportBatch, "batch-size", 0, "UNWIND batch size")
}

func runExport(cmd *cobra.Command, args []string) error {
	projectRoot := args[0]
	password := exportPassword
	if password == "" {
		password = os.Getenv("NEO4J_PASSWORD")
	}

	res, err := analysis.NewProjectAnalyzer().AnalyzeProject(cmd.Context(), projectRoot)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", projectRoot, err)
	}
	slog.Info("Analysis complete",
		slog.String("run_id", res.RunID),
		slog.Int("functions", res.Graph.NodeCount()),
		slog.Int("edges", res.Graph.EdgeCount()))

	var opts []graph.Neo4jExporterOption
	if exportDatabase != "" {
		opts = append(opts, graph.WithDatabase(exportDatabase))
	}
	if exportBatch > 0 {
		opts = append(opts, graph.WithBatchSize(exportBatch))
	}
	exporter, err := graph.NewNeo4jExporter(exportURI, exportUser, password, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := exporter.Close(cmd.Context()); cerr != nil {
			slog.Warn("Closing neo4j driver", slog.String("error", cerr.Error()))
		}
	}()

	if err := exporter.Export(cmd.Context(), res.Graph); err != nil {
		return fmt.Errorf("exporting to %s: %w", exportURI, err)
	}
	return nil
}
