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
	"strings"
	"testing"
)

func testID(file, name string, line int) FunctionID {
	return FunctionID{File: file, Name: name, Line: line}
}

func TestAddFunction_MergesFlagsMonotonically(t *testing.T) {
	g := NewCallGraph()
	id := testID("app.py", "main", 10)

	g.AddFunction(FunctionNode{ID: id, Complexity: 3, Size: 20})
	g.AddFunction(FunctionNode{ID: id, IsEntryPoint: true, Complexity: 1, Size: 25})

	node, ok := g.GetFunction(id)
	if !ok {
		t.Fatal("expected node to exist")
	}
	if !node.IsEntryPoint {
		t.Error("entry point flag should stick after merge")
	}
	if node.Complexity != 3 {
		t.Errorf("complexity = %d, want 3 (max wins)", node.Complexity)
	}
	if node.Size != 25 {
		t.Errorf("size = %d, want 25 (max wins)", node.Size)
	}
}

func TestAddEdge_RegistersPlaceholderNodes(t *testing.T) {
	g := NewCallGraph()
	caller := testID("a.py", "f", 1)
	callee := testID("b.py", "g", 5)

	g.AddEdge(Edge{Caller: caller, Callee: callee, CallType: CallDirect, Confidence: 1.0})

	if g.NodeCount() != 2 {
		t.Fatalf("node count = %d, want 2", g.NodeCount())
	}
	if !g.HasEdge(caller, callee, CallDirect) {
		t.Error("expected direct edge")
	}
}

func TestAddEdge_DedupAndMultiEdge(t *testing.T) {
	g := NewCallGraph()
	caller := testID("a.py", "f", 1)
	callee := testID("a.py", "g", 9)

	t.Run("exact duplicates collapse keeping max confidence", func(t *testing.T) {
		g.AddEdge(Edge{Caller: caller, Callee: callee, CallType: CallDirect, Confidence: 0.8})
		g.AddEdge(Edge{Caller: caller, Callee: callee, CallType: CallDirect, Confidence: 0.9})

		edges := g.EdgesFrom(caller)
		if len(edges) != 1 {
			t.Fatalf("edge count = %d, want 1", len(edges))
		}
		if edges[0].Confidence != 0.9 {
			t.Errorf("confidence = %v, want 0.9", edges[0].Confidence)
		}
	})

	t.Run("distinct call types coexist", func(t *testing.T) {
		g.AddEdge(Edge{Caller: caller, Callee: callee, CallType: CallCallback, Confidence: 0.7})

		if len(g.EdgesFrom(caller)) != 2 {
			t.Fatalf("edge count = %d, want 2", len(g.EdgesFrom(caller)))
		}
		if !g.HasEdge(caller, callee, CallDirect) || !g.HasEdge(caller, callee, CallCallback) {
			t.Error("expected both Direct and Callback edges between the same pair")
		}
	})
}

func TestMerge_IsIdempotent(t *testing.T) {
	a := NewCallGraph()
	a.AddFunction(FunctionNode{ID: testID("a.py", "f", 1), IsEntryPoint: true})

	b := NewCallGraph()
	b.AddEdge(Edge{
		Caller:   testID("a.py", "f", 1),
		Callee:   testID("b.py", "g", 2),
		CallType: CallDirect, Confidence: 1.0,
	})

	a.Merge(b)
	a.Merge(b)

	if a.NodeCount() != 2 {
		t.Errorf("node count = %d, want 2", a.NodeCount())
	}
	if a.EdgeCount() != 1 {
		t.Errorf("edge count = %d, want 1", a.EdgeCount())
	}
	node, _ := a.GetFunction(testID("a.py", "f", 1))
	if !node.IsEntryPoint {
		t.Error("entry point flag lost during merge")
	}
}

func TestFunctionID_Helpers(t *testing.T) {
	id := testID("pkg/mod.py", "mod.Widget.render", 42)

	if got := id.ShortName(); got != "render" {
		t.Errorf("ShortName = %q, want %q", got, "render")
	}
	if !id.SameNameFile(testID("pkg/mod.py", "mod.Widget.render", 0)) {
		t.Error("SameNameFile should ignore line numbers")
	}
	if id.SameNameFile(testID("other.py", "mod.Widget.render", 42)) {
		t.Error("SameNameFile should compare files")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	g := NewCallGraph()
	g.AddFunction(FunctionNode{ID: testID("a.py", "f", 1), IsEntryPoint: true, Complexity: 2, Size: 10})
	g.AddEdge(Edge{
		Caller:   testID("a.py", "f", 1),
		Callee:   testID("b.py", "g", 3),
		CallType: CallObserverDispatch, Confidence: 0.85,
	})

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if restored.NodeCount() != g.NodeCount() || restored.EdgeCount() != g.EdgeCount() {
		t.Errorf("round trip changed counts: nodes %d->%d edges %d->%d",
			g.NodeCount(), restored.NodeCount(), g.EdgeCount(), restored.EdgeCount())
	}
	node, ok := restored.GetFunction(testID("a.py", "f", 1))
	if !ok || !node.IsEntryPoint {
		t.Error("entry point flag lost in round trip")
	}
}

func TestToDOT_EncodesCallTypes(t *testing.T) {
	g := NewCallGraph()
	caller := testID("a.py", "f", 1)
	g.AddEdge(Edge{Caller: caller, Callee: testID("a.py", "g", 2), CallType: CallDirect, Confidence: 1.0})
	g.AddEdge(Edge{Caller: caller, Callee: testID("a.py", "h", 3), CallType: CallObserverDispatch, Confidence: 0.85})

	dot := g.ToDOT()
	if !strings.Contains(dot, "style=solid") {
		t.Error("direct edges should render solid")
	}
	if !strings.Contains(dot, "style=dotted") {
		t.Error("observer dispatch edges should render dotted")
	}
	if !strings.Contains(dot, "digraph callmap") {
		t.Error("missing digraph header")
	}
}

func TestConfig_Excluded(t *testing.T) {
	cfg := Config{ExcludePaths: []string{"vendor/", ".venv/"}}

	cases := []struct {
		path string
		want bool
	}{
		{"vendor/lib/util.py", true},
		{".venv/site-packages/x.py", true},
		{"src/app.py", false},
		{"vendored.py", false},
	}
	for _, tc := range cases {
		if got := cfg.Excluded(tc.path); got != tc.want {
			t.Errorf("Excluded(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
