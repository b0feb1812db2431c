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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestProjectAnalyzer_CrossModuleOrderIndependence(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib.py": "def process():\n    pass\n",
		"app.py": "from lib import process\n\n\ndef main():\n    process()\n",
	})

	caller := graph.FunctionID{File: "app.py", Name: "main", Line: 4}
	callee := graph.FunctionID{File: "lib.py", Name: "process", Line: 1}

	orders := [][]string{
		{"lib.py", "app.py"},
		{"app.py", "lib.py"},
	}
	for _, order := range orders {
		res, err := NewProjectAnalyzer(WithConcurrency(1)).
			AnalyzeFiles(context.Background(), root, order)
		require.NoError(t, err)
		require.Empty(t, res.FileErrors)
		require.Equal(t, 2, res.FilesAnalyzed)
		require.True(t, res.Graph.HasEdge(caller, callee, graph.CallDirect),
			"order %v: missing cross-module edge; edges: %+v", order, res.Graph.Edges())
	}
}

func TestProjectAnalyzer_ObserverDispatchOrderIndependence(t *testing.T) {
	// The implementation lives in a different file than the subject and is
	// registered by call site, not inheritance. Fan-out happens after the
	// extraction barrier, so either processing order must produce the same
	// dispatch edge.
	root := writeProject(t, map[string]string{
		"subject.py": `class EventBus:
    def __init__(self):
        self.listeners = []

    def add_listener(self, listener):
        self.listeners.append(listener)

    def emit(self):
        for listener in self.listeners:
            listener.handle()
`,
		"plugin.py": `from subject import EventBus


class LogPlugin:
    def handle(self):
        pass


def setup():
    bus = EventBus()
    bus.add_listener(LogPlugin())
`,
	})

	caller := graph.FunctionID{File: "subject.py", Name: "EventBus.emit", Line: 8}
	callee := graph.FunctionID{File: "plugin.py", Name: "LogPlugin.handle", Line: 5}

	orders := [][]string{
		{"subject.py", "plugin.py"},
		{"plugin.py", "subject.py"},
	}
	for _, order := range orders {
		res, err := NewProjectAnalyzer(WithConcurrency(1)).
			AnalyzeFiles(context.Background(), root, order)
		require.NoError(t, err)
		require.True(t, res.Graph.HasEdge(caller, callee, graph.CallObserverDispatch),
			"order %v: missing dispatch edge; edges: %+v", order, res.Graph.Edges())

		for _, e := range res.Graph.EdgesTo(callee) {
			if e.CallType == graph.CallObserverDispatch {
				require.Equal(t, 0.95, e.Confidence,
					"known field name plus registered interface")
			}
		}
	}
}

func TestProjectAnalyzer_ModuleScopeImportedCall(t *testing.T) {
	// Importing a function and calling it at module scope, outside any
	// main guard, is import-time execution: the calling module's
	// pseudo-function owns the edge.
	root := writeProject(t, map[string]string{
		"lib.py": "def configure():\n    pass\n",
		"app.py": "from lib import configure\n\nconfigure()\n",
	})

	res, err := NewProjectAnalyzer().
		AnalyzeFiles(context.Background(), root, []string{"lib.py", "app.py"})
	require.NoError(t, err)

	caller := graph.FunctionID{File: "app.py", Name: graph.ModuleMainName, Line: 3}
	callee := graph.FunctionID{File: "lib.py", Name: "configure", Line: 1}
	require.True(t, res.Graph.HasEdge(caller, callee, graph.CallDirect),
		"missing module-scope edge; edges: %+v", res.Graph.Edges())

	node, ok := res.Graph.GetFunction(caller)
	require.True(t, ok)
	require.True(t, node.IsEntryPoint)
}

func TestProjectAnalyzer_DispatchConfidenceOrderIndependence(t *testing.T) {
	// The dispatched interface is registered by a different file than the
	// dispatch loop, and the collection field name carries no observer
	// hint, so the interface bonus only applies if scoring waits for the
	// complete registry. Both processing orders must agree.
	root := writeProject(t, map[string]string{
		"hub.py": `class Hub:
    def __init__(self):
        self.items = []

    def register(self, item):
        self.items.append(item)

    def fire(self):
        for item in self.items:
            item.handle()
`,
		"items.py": `from abc import ABC

from hub import Hub


class Item(ABC):
    def handle(self):
        pass


class FileItem(Item):
    def handle(self):
        pass


def wire():
    hub = Hub()
    hub.register(FileItem())
`,
	})

	caller := graph.FunctionID{File: "hub.py", Name: "Hub.fire", Line: 8}
	callee := graph.FunctionID{File: "items.py", Name: "FileItem.handle", Line: 12}

	orders := [][]string{
		{"hub.py", "items.py"},
		{"items.py", "hub.py"},
	}
	for _, order := range orders {
		res, err := NewProjectAnalyzer(WithConcurrency(1)).
			AnalyzeFiles(context.Background(), root, order)
		require.NoError(t, err)
		require.True(t, res.Graph.HasEdge(caller, callee, graph.CallObserverDispatch),
			"order %v: missing dispatch edge; edges: %+v", order, res.Graph.Edges())

		for _, e := range res.Graph.EdgesTo(callee) {
			if e.CallType == graph.CallObserverDispatch {
				require.Equal(t, 0.9, e.Confidence,
					"order %v: interface bonus without a field-name bonus", order)
			}
		}
	}
}

func TestProjectAnalyzer_SyntaxErrorYieldsPartialResult(t *testing.T) {
	root := writeProject(t, map[string]string{
		"bad.py":  "def broken(:\n    pass\n",
		"good.py": "def ok():\n    pass\n",
	})

	res, err := NewProjectAnalyzer().
		AnalyzeFiles(context.Background(), root, []string{"bad.py", "good.py"})
	require.NoError(t, err, "per-file failures must not fail the run")
	require.Len(t, res.FileErrors, 1)
	require.Equal(t, "bad.py", res.FileErrors[0].File)
	require.Equal(t, 1, res.FilesAnalyzed)

	_, ok := res.Graph.GetFunction(graph.FunctionID{File: "good.py", Name: "ok", Line: 1})
	require.True(t, ok)
	for _, fn := range res.Graph.Functions() {
		require.NotEqual(t, "bad.py", fn.ID.File,
			"failed files must contribute no nodes")
	}
}

func TestProjectAnalyzer_MissingFileIsRecorded(t *testing.T) {
	root := t.TempDir()
	res, err := NewProjectAnalyzer().
		AnalyzeFiles(context.Background(), root, []string{"nope.py"})
	require.NoError(t, err)
	require.Len(t, res.FileErrors, 1)
	require.Equal(t, 0, res.FilesAnalyzed)
	require.Equal(t, 0, res.Graph.NodeCount())
}

func TestProjectAnalyzer_ModuleMainNode(t *testing.T) {
	root := writeProject(t, map[string]string{
		"tool.py": `def main():
    pass


if __name__ == "__main__":
    main()
`,
	})
	res, err := NewProjectAnalyzer().
		AnalyzeFiles(context.Background(), root, []string{"tool.py"})
	require.NoError(t, err)

	var found bool
	for _, fn := range res.Graph.Functions() {
		if fn.ID.Name == graph.ModuleMainName {
			found = true
			require.True(t, fn.IsEntryPoint)
			require.Equal(t, "tool.py", fn.ID.File)
		}
	}
	require.True(t, found, "expected a %s node", graph.ModuleMainName)
}

func TestProjectAnalyzer_SameNameDifferentFiles(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.py": "def helper():\n    pass\n",
		"b.py": "def helper():\n    pass\n",
	})
	res, err := NewProjectAnalyzer().
		AnalyzeFiles(context.Background(), root, []string{"a.py", "b.py"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Graph.NodeCount(),
		"identical names in different files are distinct functions")
}

func TestProjectAnalyzer_DiscoveryHonorsExcludes(t *testing.T) {
	root := writeProject(t, map[string]string{
		"app.py":            "def main():\n    pass\n",
		"skip/ignored.py":   "def hidden():\n    pass\n",
		"notes/readme.txt":  "not python",
		".venv/lib/site.py": "def vendored():\n    pass\n",
	})

	res, err := NewProjectAnalyzer(WithConfig(graph.Config{
		ExcludePaths: []string{"skip/"},
	})).AnalyzeProject(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesAnalyzed)

	_, ok := res.Graph.GetFunction(graph.FunctionID{File: "app.py", Name: "main", Line: 1})
	require.True(t, ok)
	require.NotEmpty(t, res.RunID)
}

func TestProjectAnalyzer_Canceled(t *testing.T) {
	root := writeProject(t, map[string]string{
		"app.py": "def main():\n    pass\n",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProjectAnalyzer().AnalyzeFiles(ctx, root, []string{"app.py"})
	require.Error(t, err)
}
