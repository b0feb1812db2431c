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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callmap/services/callmap/analysis"
)

var (
	analyzeFormat      string
	analyzeOutput      string
	analyzeConcurrency int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <project-root>",
	Short: "Analyze a Python project and emit its call graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "Output format: json or dot")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write output to a file instead of stdout")
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 0, "Max files analyzed in parallel (default: CPU count)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	projectRoot := args[0]

	var opts []analysis.AnalyzerOption
	if analyzeConcurrency > 0 {
		opts = append(opts, analysis.WithConcurrency(analyzeConcurrency))
	}

	res, err := analysis.NewProjectAnalyzer(opts...).
		AnalyzeProject(cmd.Context(), projectRoot)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", projectRoot, err)
	}

	for _, fe := range res.FileErrors {
		slog.Warn("File skipped", slog.String("file", fe.File), slog.String("error", fe.Err.Error()))
	}

	var out []byte
	switch analyzeFormat {
	case "json":
		out, err = json.MarshalIndent(res.Graph.ToSnapshot(res.RunID, res.ProjectRoot), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		out = append(out, '\n')
	case "dot":
		out = []byte(res.Graph.ToDOT())
	default:
		return fmt.Errorf("unknown format %q (want json or dot)", analyzeFormat)
	}

	if analyzeOutput != "" {
		if err := os.WriteFile(analyzeOutput, out, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", analyzeOutput, err)
		}
		slog.Info("Wrote call graph",
			slog.String("path", analyzeOutput),
			slog.Int("functions", res.Graph.NodeCount()),
			slog.Int("edges", res.Graph.EdgeCount()))
		return nil
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
