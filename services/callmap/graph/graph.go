// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph defines the call graph model produced by the callmap
// analyzers: function identities, nodes, typed call edges, and the
// merge/serialization operations the project driver uses to combine
// per-file results into a whole-program graph.
package graph

import (
	"sort"
)

// ModuleMainName is the pseudo-function that owns statements executed under
// a module's `if __name__ == "__main__":` guard.
const ModuleMainName = "__module_main__"

// FunctionID uniquely identifies a function within a project.
//
// Description:
//
//	Identity is the triple (file, qualified name, line). The qualified name
//	uses dotted Python notation within the file: "Class.method" for methods,
//	"outer.inner" for nested functions. Line is the 1-based line of
//	the `def` keyword, or 0 when the definition site could not be located
//	(synthesized references).
//
// Thread Safety: FunctionID is an immutable value type.
type FunctionID struct {
	File string `json:"file"`
	Name string `json:"name"`
	Line int    `json:"line"`
}

// ShortName returns the final dotted segment of the qualified name.
func (id FunctionID) ShortName() string {
	for i := len(id.Name) - 1; i >= 0; i-- {
		if id.Name[i] == '.' {
			return id.Name[i+1:]
		}
	}
	return id.Name
}

// SameNameFile reports whether two IDs refer to the same name in the same
// file, ignoring the line component. Used when a synthesized reference
// (line 0) must match a real definition.
func (id FunctionID) SameNameFile(other FunctionID) bool {
	return id.File == other.File && id.Name == other.Name
}

// FunctionNode is a function vertex with its classification flags.
type FunctionNode struct {
	ID           FunctionID `json:"id"`
	IsEntryPoint bool       `json:"is_entry_point"`
	IsTest       bool       `json:"is_test"`
	Complexity   int        `json:"complexity"`
	Size         int        `json:"size"`
}

// CallType classifies how control flows from caller to callee.
type CallType string

const (
	// CallDirect is an ordinary syntactic call.
	CallDirect CallType = "Direct"
	// CallCallback is an invocation through a stored function reference
	// (signal connection, partial application, handler assignment).
	CallCallback CallType = "Callback"
	// CallObserverDispatch is a synthesized edge from a dispatch loop over
	// an observer collection to an implementation's method.
	CallObserverDispatch CallType = "ObserverDispatch"
)

// Edge is a typed call from Caller to Callee.
//
// Multi-edges are intentional: the same caller/callee pair may carry one
// edge per distinct call type. Exact duplicates (same pair and type) are
// collapsed, keeping the highest confidence seen.
type Edge struct {
	Caller     FunctionID `json:"caller"`
	Callee     FunctionID `json:"callee"`
	CallType   CallType   `json:"call_type"`
	Confidence float64    `json:"confidence"`
}

type edgeKey struct {
	caller   FunctionID
	callee   FunctionID
	callType CallType
}

// CallGraph is the whole-program call graph.
//
// Description:
//
//	Nodes are keyed by FunctionID; edges are a deduplicated set keyed by
//	(caller, callee, call type). Adding an edge auto-registers placeholder
//	nodes for endpoints that have not been seen yet, so resolution order
//	between files does not matter.
//
// Thread Safety: NOT safe for concurrent use. The project driver merges
// per-file graphs under its own lock.
type CallGraph struct {
	nodes map[FunctionID]*FunctionNode
	edges map[edgeKey]*Edge
}

// NewCallGraph returns an empty graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{
		nodes: make(map[FunctionID]*FunctionNode),
		edges: make(map[edgeKey]*Edge),
	}
}

// AddFunction upserts a node. Classification flags merge monotonically: a
// node once marked entry point or test stays marked, and the larger
// complexity/size wins. This keeps AddFunction idempotent across passes.
func (g *CallGraph) AddFunction(node FunctionNode) {
	existing, ok := g.nodes[node.ID]
	if !ok {
		n := node
		g.nodes[node.ID] = &n
		return
	}
	existing.IsEntryPoint = existing.IsEntryPoint || node.IsEntryPoint
	existing.IsTest = existing.IsTest || node.IsTest
	if node.Complexity > existing.Complexity {
		existing.Complexity = node.Complexity
	}
	if node.Size > existing.Size {
		existing.Size = node.Size
	}
}

// AddEdge records a typed call. Endpoints missing from the node set are
// registered as placeholder nodes with zero flags.
func (g *CallGraph) AddEdge(e Edge) {
	if _, ok := g.nodes[e.Caller]; !ok {
		g.nodes[e.Caller] = &FunctionNode{ID: e.Caller}
	}
	if _, ok := g.nodes[e.Callee]; !ok {
		g.nodes[e.Callee] = &FunctionNode{ID: e.Callee}
	}
	key := edgeKey{caller: e.Caller, callee: e.Callee, callType: e.CallType}
	if existing, ok := g.edges[key]; ok {
		if e.Confidence > existing.Confidence {
			existing.Confidence = e.Confidence
		}
		return
	}
	ec := e
	g.edges[key] = &ec
}

// MarkEntryPoint flags an existing node, creating it if absent.
func (g *CallGraph) MarkEntryPoint(id FunctionID) {
	if n, ok := g.nodes[id]; ok {
		n.IsEntryPoint = true
		return
	}
	g.nodes[id] = &FunctionNode{ID: id, IsEntryPoint: true}
}

// GetFunction returns the node for id, if present.
func (g *CallGraph) GetFunction(id FunctionID) (FunctionNode, bool) {
	if n, ok := g.nodes[id]; ok {
		return *n, true
	}
	return FunctionNode{}, false
}

// FindFunctionByName returns the first node in file whose qualified name
// matches, ignoring line numbers. Used to reconcile synthesized references
// against real definitions.
func (g *CallGraph) FindFunctionByName(file, name string) (FunctionNode, bool) {
	for id, n := range g.nodes {
		if id.File == file && id.Name == name {
			return *n, true
		}
	}
	return FunctionNode{}, false
}

// Functions returns all nodes sorted by (file, line, name) for
// deterministic output.
func (g *CallGraph) Functions() []FunctionNode {
	out := make([]FunctionNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID, out[j].ID
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Name < b.Name
	})
	return out
}

// Edges returns all edges sorted by caller, callee, then call type.
func (g *CallGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Caller != b.Caller {
			return lessID(a.Caller, b.Caller)
		}
		if a.Callee != b.Callee {
			return lessID(a.Callee, b.Callee)
		}
		return a.CallType < b.CallType
	})
	return out
}

func lessID(a, b FunctionID) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Line < b.Line
}

// EdgesFrom returns the edges whose caller is id.
func (g *CallGraph) EdgesFrom(id FunctionID) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Caller == id {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Callee != out[j].Callee {
			return lessID(out[i].Callee, out[j].Callee)
		}
		return out[i].CallType < out[j].CallType
	})
	return out
}

// EdgesTo returns the edges whose callee is id.
func (g *CallGraph) EdgesTo(id FunctionID) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Callee == id {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Caller != out[j].Caller {
			return lessID(out[i].Caller, out[j].Caller)
		}
		return out[i].CallType < out[j].CallType
	})
	return out
}

// HasEdge reports whether an edge with the exact triple exists.
func (g *CallGraph) HasEdge(caller, callee FunctionID, ct CallType) bool {
	_, ok := g.edges[edgeKey{caller: caller, callee: callee, callType: ct}]
	return ok
}

// NodeCount returns the number of function nodes.
func (g *CallGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct edges.
func (g *CallGraph) EdgeCount() int { return len(g.edges) }

// Merge folds other into g. Node flags merge monotonically and duplicate
// edges collapse, so merging the same graph twice is a no-op.
func (g *CallGraph) Merge(other *CallGraph) {
	if other == nil {
		return
	}
	for _, n := range other.nodes {
		g.AddFunction(*n)
	}
	for _, e := range other.edges {
		g.AddEdge(*e)
	}
}
