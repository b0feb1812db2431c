// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jExporter writes a CallGraph into a Neo4j database.
//
// Description:
//
//	Functions become (:Function {key, file, name, line, is_entry_point,
//	is_test, complexity, size}) nodes keyed by "file:name:line"; edges
//	become [:CALLS {type, confidence}] relationships. Writes use batched
//	UNWIND statements inside a single write transaction per batch.
//
// Thread Safety: Safe for concurrent use; the underlying driver manages
// its own connection pool.
type Neo4jExporter struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
}

// Neo4jExporterOption configures a Neo4jExporter.
type Neo4jExporterOption func(*Neo4jExporter)

// WithDatabase selects a non-default Neo4j database.
func WithDatabase(name string) Neo4jExporterOption {
	return func(e *Neo4jExporter) {
		if name != "" {
			e.database = name
		}
	}
}

// WithBatchSize overrides the UNWIND batch size.
func WithBatchSize(n int) Neo4jExporterOption {
	return func(e *Neo4jExporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewNeo4jExporter connects to Neo4j with basic auth.
//
// Inputs:
//
//	uri - Bolt URI, e.g. "neo4j://localhost:7687".
//	user, password - Credentials for basic auth.
//	opts - Optional configuration (WithDatabase, WithBatchSize).
//
// Outputs:
//
//	*Neo4jExporter - Connected exporter. Caller must Close it.
//	error - Non-nil if the driver cannot be constructed.
func NewNeo4jExporter(uri, user, password string, opts ...Neo4jExporterOption) (*Neo4jExporter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	e := &Neo4jExporter{
		driver:    driver,
		database:  "neo4j",
		batchSize: 500,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the driver's connection pool.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// Export writes all nodes and edges of g.
//
// Existing nodes with the same key are updated (MERGE), so re-exporting a
// project is idempotent. Edges merge on (caller, callee, type).
func (e *Neo4jExporter) Export(ctx context.Context, g *CallGraph) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connectivity check failed: %w", err)
	}

	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	functions := g.Functions()
	for start := 0; start < len(functions); start += e.batchSize {
		end := min(start+e.batchSize, len(functions))
		if err := e.writeFunctionBatch(ctx, session, functions[start:end]); err != nil {
			return fmt.Errorf("writing function batch [%d:%d]: %w", start, end, err)
		}
	}

	edges := g.Edges()
	for start := 0; start < len(edges); start += e.batchSize {
		end := min(start+e.batchSize, len(edges))
		if err := e.writeEdgeBatch(ctx, session, edges[start:end]); err != nil {
			return fmt.Errorf("writing edge batch [%d:%d]: %w", start, end, err)
		}
	}

	slog.Info("Exported call graph to neo4j",
		slog.Int("functions", len(functions)),
		slog.Int("edges", len(edges)))
	return nil
}

func (e *Neo4jExporter) writeFunctionBatch(ctx context.Context, session neo4j.SessionWithContext, batch []FunctionNode) error {
	rows := make([]map[string]any, 0, len(batch))
	for _, n := range batch {
		rows = append(rows, map[string]any{
			"key":            nodeKey(n.ID),
			"file":           n.ID.File,
			"name":           n.ID.Name,
			"line":           n.ID.Line,
			"is_entry_point": n.IsEntryPoint,
			"is_test":        n.IsTest,
			"complexity":     n.Complexity,
			"size":           n.Size,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const stmt = `
UNWIND $rows AS row
MERGE (f:Function {key: row.key})
SET f.file = row.file,
    f.name = row.name,
    f.line = row.line,
    f.is_entry_point = row.is_entry_point,
    f.is_test = row.is_test,
    f.complexity = row.complexity,
    f.size = row.size`
		_, err := tx.Run(ctx, stmt, map[string]any{"rows": rows})
		return nil, err
	})
	return err
}

func (e *Neo4jExporter) writeEdgeBatch(ctx context.Context, session neo4j.SessionWithContext, batch []Edge) error {
	rows := make([]map[string]any, 0, len(batch))
	for _, edge := range batch {
		rows = append(rows, map[string]any{
			"caller":     nodeKey(edge.Caller),
			"callee":     nodeKey(edge.Callee),
			"type":       string(edge.CallType),
			"confidence": edge.Confidence,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const stmt = `
UNWIND $rows AS row
MATCH (caller:Function {key: row.caller})
MATCH (callee:Function {key: row.callee})
MERGE (caller)-[c:CALLS {type: row.type}]->(callee)
SET c.confidence = row.confidence`
		_, err := tx.Run(ctx, stmt, map[string]any{"rows": rows})
		return nil, err
	})
	return err
}

func nodeKey(id FunctionID) string {
	return fmt.Sprintf("%s:%s:%d", id.File, id.Name, id.Line)
}
