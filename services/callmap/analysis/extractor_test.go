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
	"testing"

	"github.com/AleutianAI/callmap/services/callmap/ast"
	"github.com/AleutianAI/callmap/services/callmap/graph"
)

func parseSnippet(t *testing.T, filePath, source string) *ast.Source {
	t.Helper()
	src, err := ast.NewPythonParser().Parse(context.Background(), []byte(source), filePath)
	if err != nil {
		t.Fatalf("Parse(%s): %v", filePath, err)
	}
	t.Cleanup(src.Close)
	return src
}

// runExtraction runs both phases over a single file with fresh shared state.
func runExtraction(t *testing.T, filePath, source string) (*Extractor, *SharedState) {
	t.Helper()
	shared := NewSharedState()
	src := parseSnippet(t, filePath, source)
	ex := NewExtractor(src, graph.Config{}, shared)
	ex.PhaseOne()
	ex.PhaseTwo()
	return ex, shared
}

func id(file, name string, line int) graph.FunctionID {
	return graph.FunctionID{File: file, Name: name, Line: line}
}

func TestExtractor_DirectCallSameFile(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `def helper():
    return 1


def main():
    helper()
`)
	g := ex.Graph()
	if !g.HasEdge(id("app.py", "main", 5), id("app.py", "helper", 1), graph.CallDirect) {
		t.Errorf("missing Direct edge main -> helper; edges: %+v", g.Edges())
	}
}

func TestExtractor_InheritedMethodThroughInstance(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `class Base:
    def greet(self):
        return "hi"


class Child(Base):
    pass


def run():
    c = Child()
    c.greet()
`)
	g := ex.Graph()
	// The method resolves to the defining class, not the subclass.
	if !g.HasEdge(id("app.py", "run", 10), id("app.py", "Base.greet", 2), graph.CallDirect) {
		t.Errorf("missing Direct edge run -> Base.greet; edges: %+v", g.Edges())
	}
}

func TestExtractor_NestedFunctionCall(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `def outer():
    def inner():
        pass
    inner()
`)
	g := ex.Graph()
	if !g.HasEdge(id("app.py", "outer", 1), id("app.py", "outer.inner", 2), graph.CallDirect) {
		t.Errorf("missing Direct edge outer -> outer.inner; edges: %+v", g.Edges())
	}
}

func TestExtractor_MainGuard(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `def main():
    helper()


def helper():
    pass


if __name__ == "__main__":
    main()
`)
	g := ex.Graph()
	mainGuard := id("app.py", graph.ModuleMainName, 9)

	node, ok := g.GetFunction(mainGuard)
	if !ok {
		t.Fatalf("no %s node; functions: %+v", graph.ModuleMainName, g.Functions())
	}
	if !node.IsEntryPoint {
		t.Error("module main pseudo-function must be an entry point")
	}
	if !g.HasEdge(mainGuard, id("app.py", "main", 1), graph.CallDirect) {
		t.Errorf("missing Direct edge %s -> main", graph.ModuleMainName)
	}
	if !g.HasEdge(id("app.py", "main", 1), id("app.py", "helper", 5), graph.CallDirect) {
		t.Error("missing Direct edge main -> helper")
	}
}

func TestExtractor_ModuleScopeCall(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `def setup():
    pass


setup()
`)
	g := ex.Graph()
	moduleMain := id("app.py", graph.ModuleMainName, 5)

	node, ok := g.GetFunction(moduleMain)
	if !ok {
		t.Fatalf("no %s node for a module-scope call; functions: %+v",
			graph.ModuleMainName, g.Functions())
	}
	if !node.IsEntryPoint {
		t.Error("module pseudo-function must be an entry point")
	}
	if !g.HasEdge(moduleMain, id("app.py", "setup", 1), graph.CallDirect) {
		t.Errorf("missing import-time Direct edge %s -> setup; edges: %+v",
			graph.ModuleMainName, g.Edges())
	}
}

func TestExtractor_SelfAttributeMethodCall(t *testing.T) {
	ex, _ := runExtraction(t, "car.py", `class Engine:
    def start(self):
        pass


class Car:
    def __init__(self):
        self.engine = Engine()

    def drive(self):
        self.engine.start()
`)
	g := ex.Graph()
	caller := id("car.py", "Car.drive", 10)
	callee := id("car.py", "Engine.start", 2)
	if !g.HasEdge(caller, callee, graph.CallDirect) {
		t.Fatalf("missing Direct edge drive -> Engine.start; edges: %+v", g.Edges())
	}
	// The attribute's type is on record, so this is not a heuristic match.
	for _, e := range g.EdgesFrom(caller) {
		if e.Callee == callee && e.Confidence != 1.0 {
			t.Errorf("typed attribute call confidence = %v, want 1.0", e.Confidence)
		}
	}
}

func TestExtractor_EventBinding(t *testing.T) {
	ex, _ := runExtraction(t, "ui.py", `class Panel:
    def __init__(self):
        self.button.Bind(EVT_BUTTON, self.on_click)

    def on_click(self, event):
        pass
`)
	g := ex.Graph()
	if !g.HasEdge(id("ui.py", "Panel.__init__", 2), id("ui.py", "Panel.on_click", 5), graph.CallDirect) {
		t.Errorf("missing synthesized Direct edge __init__ -> on_click; edges: %+v", g.Edges())
	}
}

func TestExtractor_ConnectYieldsBindingAndCallbackEdges(t *testing.T) {
	ex, shared := runExtraction(t, "ui.py", `class Dialog:
    def __init__(self):
        self.button.connect(self.on_accept)

    def on_accept(self):
        pass
`)
	merged := ex.Graph()
	if n := finalizeCallbacks(merged, shared); n != 1 {
		t.Fatalf("finalizeCallbacks = %d, want 1", n)
	}

	caller := id("ui.py", "Dialog.__init__", 2)
	callee := id("ui.py", "Dialog.on_accept", 5)
	if !merged.HasEdge(caller, callee, graph.CallDirect) {
		t.Error("missing Direct binding edge for connect")
	}
	if !merged.HasEdge(caller, callee, graph.CallCallback) {
		t.Error("missing Callback edge for connect")
	}
	for _, e := range merged.EdgesFrom(caller) {
		if e.CallType == graph.CallCallback && e.Confidence != 0.9 {
			t.Errorf("Callback confidence = %v, want 0.9", e.Confidence)
		}
	}
}

func TestExtractor_DispatchLoopMining(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `class Subject:
    def __init__(self):
        self.observers = []

    def notify_all(self):
        for obs in self.observers:
            obs.update()
`)
	dispatches := ex.Dispatches()
	if len(dispatches) != 1 {
		t.Fatalf("Dispatches = %+v, want exactly one", dispatches)
	}
	d := dispatches[0]
	if d.InterfaceName != "Observer" {
		t.Errorf("InterfaceName = %q, want Observer", d.InterfaceName)
	}
	if d.MethodName != "update" {
		t.Errorf("MethodName = %q, want update", d.MethodName)
	}
	if d.CollectionField != "observers" {
		t.Errorf("CollectionField = %q, want observers", d.CollectionField)
	}
	if d.Caller != id("app.py", "Subject.notify_all", 5) {
		t.Errorf("Caller = %+v", d.Caller)
	}
	// The loop body's calls on the loop variable must not also surface as
	// Direct edges.
	if ex.Graph().EdgeCount() != 0 {
		t.Errorf("dispatch loop leaked Direct edges: %+v", ex.Graph().Edges())
	}
}

func TestExtractor_ObserverFanOutSingleFile(t *testing.T) {
	ex, shared := runExtraction(t, "app.py", `class Subject:
    def __init__(self):
        self.observers = []

    def attach(self, observer):
        self.observers.append(observer)

    def notify_all(self):
        for obs in self.observers:
            obs.update()


class LogObserver:
    def update(self):
        pass


def setup():
    subject = Subject()
    subject.attach(LogObserver())
`)
	merged := ex.Graph()
	finalizeObserverImplementations(shared, ex.Registrations())
	if n := finalizeObserverDispatches(merged, shared, ex.Dispatches()); n != 1 {
		t.Fatalf("finalizeObserverDispatches = %d, want 1", n)
	}

	caller := id("app.py", "Subject.notify_all", 8)
	callee := id("app.py", "LogObserver.update", 14)
	if !merged.HasEdge(caller, callee, graph.CallObserverDispatch) {
		t.Fatalf("missing ObserverDispatch edge; edges: %+v", merged.Edges())
	}
	for _, e := range merged.EdgesFrom(caller) {
		if e.CallType == graph.CallObserverDispatch && e.Confidence != 0.95 {
			t.Errorf("dispatch confidence = %v, want 0.95", e.Confidence)
		}
	}
}

func TestExtractor_DispatchWithoutImplementations(t *testing.T) {
	ex, shared := runExtraction(t, "app.py", `class Subject:
    def __init__(self):
        self.observers = []

    def notify_all(self):
        for obs in self.observers:
            obs.update()
`)
	merged := ex.Graph()
	finalizeObserverImplementations(shared, ex.Registrations())
	if n := finalizeObserverDispatches(merged, shared, ex.Dispatches()); n != 0 {
		t.Errorf("finalizeObserverDispatches = %d, want 0 with no implementations", n)
	}
}

func TestExtractor_TrailingNameHeuristic(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `class Worker:
    def process(self):
        pass


def run(data):
    data.process()
`)
	g := ex.Graph()
	caller := id("app.py", "run", 6)
	callee := id("app.py", "Worker.process", 2)
	if !g.HasEdge(caller, callee, graph.CallDirect) {
		t.Fatalf("missing heuristic edge; edges: %+v", g.Edges())
	}
	for _, e := range g.EdgesFrom(caller) {
		if e.Callee == callee && e.Confidence != 0.5 {
			t.Errorf("heuristic confidence = %v, want 0.5", e.Confidence)
		}
	}
}

func TestExtractor_FrameworkEntryDecorator(t *testing.T) {
	ex, _ := runExtraction(t, "web.py", `@app.route("/health")
def health():
    return "ok"
`)
	node, ok := ex.Graph().GetFunction(id("web.py", "health", 2))
	if !ok {
		t.Fatalf("health not registered; functions: %+v", ex.Graph().Functions())
	}
	if !node.IsEntryPoint {
		t.Error("route-decorated function must be an entry point")
	}
}

func TestExtractor_ComplexityAndSize(t *testing.T) {
	ex, _ := runExtraction(t, "app.py", `def complex_fn(x):
    if x > 0:
        return 1
    for i in range(3):
        while x > 0:
            x -= 1
    return 0
`)
	node, ok := ex.Graph().GetFunction(id("app.py", "complex_fn", 1))
	if !ok {
		t.Fatal("complex_fn not registered")
	}
	if node.Complexity != 4 {
		t.Errorf("Complexity = %d, want 4 (base + if + for + while)", node.Complexity)
	}
	if node.Size != 7 {
		t.Errorf("Size = %d, want 7", node.Size)
	}
}

func TestExtractor_TestDetection(t *testing.T) {
	t.Run("test file prefix marks every function", func(t *testing.T) {
		ex, _ := runExtraction(t, "test_app.py", "def build_fixture():\n    pass\n")
		node, _ := ex.Graph().GetFunction(id("test_app.py", "build_fixture", 1))
		if !node.IsTest {
			t.Error("functions in test_ files must be marked as tests")
		}
	})
	t.Run("test_ function in a regular file", func(t *testing.T) {
		ex, _ := runExtraction(t, "app.py", "def test_helper():\n    pass\n\n\ndef helper():\n    pass\n")
		testNode, _ := ex.Graph().GetFunction(id("app.py", "test_helper", 1))
		if !testNode.IsTest {
			t.Error("test_ prefixed function must be marked as a test")
		}
		plain, _ := ex.Graph().GetFunction(id("app.py", "helper", 5))
		if plain.IsTest {
			t.Error("helper must not be marked as a test")
		}
	})
}

func TestExtractor_PartialCallback(t *testing.T) {
	ex, shared := runExtraction(t, "app.py", `import functools


def compute(x):
    pass


def schedule(run_later):
    run_later(functools.partial(compute, 5))
`)
	merged := ex.Graph()
	if n := finalizeCallbacks(merged, shared); n != 1 {
		t.Fatalf("finalizeCallbacks = %d, want 1", n)
	}
	caller := id("app.py", "schedule", 8)
	callee := id("app.py", "compute", 4)
	if !merged.HasEdge(caller, callee, graph.CallCallback) {
		t.Fatalf("missing Callback edge for partial; edges: %+v", merged.Edges())
	}
	for _, e := range merged.EdgesFrom(caller) {
		if e.Callee == callee && e.Confidence != 0.8 {
			t.Errorf("partial confidence = %v, want 0.8", e.Confidence)
		}
	}
}

func TestExtractor_DirectAssignmentCallback(t *testing.T) {
	ex, shared := runExtraction(t, "app.py", `def worker():
    pass


class Button:
    def setup(self):
        self.on_click = worker
`)
	merged := ex.Graph()
	if n := finalizeCallbacks(merged, shared); n != 1 {
		t.Fatalf("finalizeCallbacks = %d, want 1", n)
	}
	caller := id("app.py", "Button.setup", 6)
	callee := id("app.py", "worker", 1)
	if !merged.HasEdge(caller, callee, graph.CallCallback) {
		t.Fatalf("missing Callback edge for handler assignment; edges: %+v", merged.Edges())
	}
	for _, e := range merged.EdgesFrom(caller) {
		if e.Callee == callee && e.Confidence != 0.85 {
			t.Errorf("assignment confidence = %v, want 0.85", e.Confidence)
		}
	}
}

func TestExtractor_ImportedCallAcrossFiles(t *testing.T) {
	shared := NewSharedState()
	libSrc := parseSnippet(t, "lib.py", "def process():\n    pass\n")
	appSrc := parseSnippet(t, "app.py", "from lib import process\n\n\ndef main():\n    process()\n")

	exLib := NewExtractor(libSrc, graph.Config{}, shared)
	exApp := NewExtractor(appSrc, graph.Config{}, shared)

	// Phase one for the importing file runs before the defining file;
	// resolution still succeeds because phase two waits for both.
	exApp.PhaseOne()
	exLib.PhaseOne()
	exApp.PhaseTwo()
	exLib.PhaseTwo()

	if !exApp.Graph().HasEdge(id("app.py", "main", 4), id("lib.py", "process", 1), graph.CallDirect) {
		t.Errorf("missing cross-file Direct edge; edges: %+v", exApp.Graph().Edges())
	}
}
