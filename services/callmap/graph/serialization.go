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
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshot is the serializable form of a CallGraph plus run metadata.
type Snapshot struct {
	SchemaVersion int            `json:"schema_version"`
	RunID         string         `json:"run_id,omitempty"`
	ProjectRoot   string         `json:"project_root,omitempty"`
	Functions     []FunctionNode `json:"functions"`
	Edges         []Edge         `json:"edges"`
}

// SnapshotSchemaVersion bumps when the JSON layout changes incompatibly.
const SnapshotSchemaVersion = 1

// ToSnapshot captures the graph in deterministic order for serialization.
func (g *CallGraph) ToSnapshot(runID, projectRoot string) Snapshot {
	return Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		RunID:         runID,
		ProjectRoot:   projectRoot,
		Functions:     g.Functions(),
		Edges:         g.Edges(),
	}
}

// MarshalJSON serializes the graph with sorted nodes and edges.
func (g *CallGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToSnapshot("", ""))
}

// FromSnapshot rebuilds a CallGraph from its serialized form.
func FromSnapshot(s Snapshot) (*CallGraph, error) {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("unsupported snapshot schema version %d (want %d)",
			s.SchemaVersion, SnapshotSchemaVersion)
	}
	g := NewCallGraph()
	for _, n := range s.Functions {
		g.AddFunction(n)
	}
	for _, e := range s.Edges {
		g.AddEdge(e)
	}
	return g, nil
}

// ToDOT renders the graph in Graphviz dot format.
//
// Entry points render as doubled octagons, tests as dashed boxes. Edge
// style encodes the call type: solid for Direct, dashed for Callback,
// dotted for ObserverDispatch.
func (g *CallGraph) ToDOT() string {
	var b strings.Builder
	b.WriteString("digraph callmap {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")

	for _, n := range g.Functions() {
		attrs := []string{fmt.Sprintf("label=%q", dotLabel(n.ID))}
		switch {
		case n.IsEntryPoint:
			attrs = append(attrs, "shape=doubleoctagon")
		case n.IsTest:
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(&b, "  %q [%s];\n", dotNodeID(n.ID), strings.Join(attrs, ", "))
	}

	for _, e := range g.Edges() {
		style := "solid"
		switch e.CallType {
		case CallCallback:
			style = "dashed"
		case CallObserverDispatch:
			style = "dotted"
		}
		fmt.Fprintf(&b, "  %q -> %q [style=%s, label=%q];\n",
			dotNodeID(e.Caller), dotNodeID(e.Callee), style, string(e.CallType))
	}

	b.WriteString("}\n")
	return b.String()
}

func dotNodeID(id FunctionID) string {
	return fmt.Sprintf("%s:%s:%d", id.File, id.Name, id.Line)
}

func dotLabel(id FunctionID) string {
	return fmt.Sprintf("%s\n%s:%d", id.Name, id.File, id.Line)
}
