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
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/callmap/services/callmap/ast"
	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// SharedState bundles the project-wide registries every per-file
// extractor writes into.
//
// Thread Safety: Each member is individually safe for concurrent use, so
// extractors for different files may run in parallel against one
// SharedState.
type SharedState struct {
	TypeFlow  *TypeFlowTracker
	Classes   *ClassIndex
	Observers *ObserverRegistry
	Callbacks *CallbackTracker
	Cross     *CrossModuleContext
}

// NewSharedState returns fresh registries for a single run.
func NewSharedState() *SharedState {
	return &SharedState{
		TypeFlow:  NewTypeFlowTracker(),
		Classes:   NewClassIndex(),
		Observers: NewObserverRegistry(),
		Callbacks: NewCallbackTracker(),
		Cross:     NewCrossModuleContext(),
	}
}

// unresolvedCall is a call site collected in phase one, resolved in phase
// two once the whole project's symbols are known.
type unresolvedCall struct {
	caller      graph.FunctionID
	callerClass string
	target      string
	line        int
}

// pendingRegistration is a deferred observer registration call
// (`mgr.add_listener(LogListener())`): the element types flow into the
// receiver class's observer collections at finalization, so it works no
// matter which file was processed first.
type pendingRegistration struct {
	receiverClass string
	argTypes      []TypeID
}

// Extractor runs the two-pass extraction over one parsed file.
//
// Description:
//
//	Phase one walks the tree in a fixed sub-pass order: imports,
//	definition registration (with framework entry-point and test
//	detection), statement analysis (type flow, call collection, event
//	bindings, callback registrations, main guard), usage-based observer
//	discovery, observer implementation registration, and dispatch-loop
//	mining. Phase two resolves the collected calls through the resolution
//	chain. Dispatch loops are NOT resolved here; they queue globally and
//	fan out after every file finished.
//
// Thread Safety: An Extractor is single-use and confined to one
// goroutine. Shared registries it writes to are concurrency-safe.
type Extractor struct {
	src    *ast.Source
	module string
	cfg    graph.Config
	shared *SharedState

	graph          *graph.CallGraph
	scope          *ScopeStack
	imports        *ImportContext
	localFunctions map[string]graph.FunctionID
	localClasses   map[string]bool
	unresolved     []unresolvedCall
	dispatches     []PendingDispatch
	registrations  []pendingRegistration

	currentClass    string
	currentFunction graph.FunctionID
	inFunction      bool
	// suppressed is a loop variable whose method calls are being turned
	// into observer dispatches instead of direct edges.
	suppressed string

	fileIsTest bool
}

// NewExtractor builds an extractor for one parsed file.
func NewExtractor(src *ast.Source, cfg graph.Config, shared *SharedState) *Extractor {
	base := path.Base(src.Path)
	return &Extractor{
		src:            src,
		module:         ModulePathForFile(src.Path),
		cfg:            cfg,
		shared:         shared,
		graph:          graph.NewCallGraph(),
		scope:          NewScopeStack(),
		imports:        NewImportContext(),
		localFunctions: make(map[string]graph.FunctionID),
		localClasses:   make(map[string]bool),
		fileIsTest:     strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py"),
	}
}

// Graph returns the per-file call graph accumulated so far.
func (e *Extractor) Graph() *graph.CallGraph { return e.graph }

// Dispatches returns the dispatch loops mined from this file.
func (e *Extractor) Dispatches() []PendingDispatch { return e.dispatches }

// Registrations returns the deferred observer registration calls seen in
// this file.
func (e *Extractor) Registrations() []pendingRegistration { return e.registrations }

// PhaseOne collects definitions, imports, unresolved calls, event
// bindings, callback registrations, and pending dispatch loops.
func (e *Extractor) PhaseOne() {
	root := e.src.Root()

	e.collectImports(root)
	e.registerDefinitions(root, "")
	e.analyzeStatements(root)

	e.shared.Cross.SetFileImports(e.src.Path, e.module, e.imports)
}

// PhaseTwo resolves the calls collected in phase one. It must run after
// every file's PhaseOne so cross-module lookups see the full symbol table.
func (e *Extractor) PhaseTwo() {
	for _, call := range e.unresolved {
		callee, confidence, ok := e.resolveCall(call)
		if !ok {
			continue
		}
		e.graph.AddEdge(graph.Edge{
			Caller:     call.caller,
			Callee:     callee,
			CallType:   graph.CallDirect,
			Confidence: confidence,
		})
	}
}

// ---- imports -------------------------------------------------------------

func (e *Extractor) collectImports(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			e.collectPlainImport(child)
		case "import_from_statement":
			e.collectFromImport(child)
		case "if_statement", "try_statement", "block":
			// Conditional and guarded imports still bind names.
			e.collectImports(child)
		}
	}
}

func (e *Extractor) collectPlainImport(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			module := e.src.Text(child)
			e.imports.AddModuleImport(module, "")
			e.scope.Set(module, ModuleType(module))
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			module := e.src.Text(name)
			e.imports.AddModuleImport(module, e.src.Text(alias))
			e.scope.Set(e.src.Text(alias), ModuleType(module))
		}
	}
}

func (e *Extractor) collectFromImport(node *sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}

	var module string
	switch moduleNode.Type() {
	case "dotted_name":
		module = e.src.Text(moduleNode)
	case "relative_import":
		dots := 0
		target := ""
		for i := 0; i < int(moduleNode.ChildCount()); i++ {
			part := moduleNode.Child(i)
			switch part.Type() {
			case "import_prefix":
				dots = len(e.src.Text(part))
			case "dotted_name":
				target = e.src.Text(part)
			}
		}
		module = ResolveRelativeModule(e.module, dots, target)
	default:
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == moduleNode {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			e.imports.AddWildcardImport(module)
		case "dotted_name":
			symbol := e.src.Text(child)
			e.imports.AddFromImport(module, symbol, "")
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			e.imports.AddFromImport(module, e.src.Text(name), e.src.Text(alias))
		}
	}
}

// ---- definition registration --------------------------------------------

// registerDefinitions walks definitions and publishes them to the graph,
// the class index, and the cross-module export table. prefix is the
// enclosing qualified name ("" at module level).
func (e *Extractor) registerDefinitions(node *sitter.Node, prefix string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			e.registerFunction(child, prefix, nil)
		case "class_definition":
			e.registerClass(child, prefix, nil)
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			decorators := e.decoratorNames(child)
			switch def.Type() {
			case "function_definition":
				e.registerFunction(def, prefix, decorators)
			case "class_definition":
				e.registerClass(def, prefix, decorators)
			}
		case "if_statement", "try_statement", "block", "else_clause", "except_clause", "finally_clause":
			e.registerDefinitions(child, prefix)
		}
	}
}

func (e *Extractor) decoratorNames(decorated *sitter.Node) []string {
	var names []string
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		child := decorated.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		text := strings.TrimPrefix(e.src.Text(child), "@")
		if idx := strings.IndexByte(text, '('); idx >= 0 {
			text = text[:idx]
		}
		names = append(names, strings.TrimSpace(text))
	}
	return names
}

func (e *Extractor) registerFunction(node *sitter.Node, prefix string, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	short := e.src.Text(nameNode)
	qualified := short
	if prefix != "" {
		qualified = prefix + "." + short
	}

	id := graph.FunctionID{File: e.src.Path, Name: qualified, Line: ast.Line(node)}
	e.graph.AddFunction(graph.FunctionNode{
		ID:           id,
		IsEntryPoint: e.isEntryPointDecorator(decorators),
		IsTest:       e.fileIsTest || strings.HasPrefix(short, "test_"),
		Complexity:   countComplexity(node),
		Size:         ast.EndLine(node) - ast.Line(node) + 1,
	})

	// Methods and nested functions export under their dotted name.
	e.localFunctions[qualified] = id
	e.shared.Cross.RegisterExport(e.module, qualified, id)

	// Nested definitions.
	if body := node.ChildByFieldName("body"); body != nil {
		e.registerDefinitions(body, qualified)
	}
}

func (e *Extractor) registerClass(node *sitter.Node, prefix string, _ []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	className := e.src.Text(nameNode)
	qualified := className
	if prefix != "" {
		qualified = prefix + "." + className
	}

	bases := e.classBases(node)
	e.shared.Classes.AddClass(className, e.src.Path, ast.Line(node), bases)
	e.localClasses[className] = true

	body := node.ChildByFieldName("body")
	var methods []string
	if body != nil {
		e.registerDefinitions(body, qualified)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			def := member
			if member.Type() == "decorated_definition" {
				def = member.ChildByFieldName("definition")
			}
			if def == nil || def.Type() != "function_definition" {
				continue
			}
			methodName := e.src.Text(def.ChildByFieldName("name"))
			methods = append(methods, methodName)
			if id, ok := e.localFunctions[qualified+"."+methodName]; ok {
				e.shared.Classes.AddMethod(className, methodName, id)
			}
		}
	}

	// Constructor lookup: calling Widget() targets Widget.__init__ when
	// defined, else the class definition site.
	ctorID := graph.FunctionID{File: e.src.Path, Name: qualified, Line: ast.Line(node)}
	if initID, ok := e.localFunctions[qualified+".__init__"]; ok {
		ctorID = initID
	}
	e.localFunctions[qualified] = ctorID
	e.shared.Cross.RegisterExport(e.module, qualified, ctorID)

	e.shared.TypeFlow.RegisterType(TypeInfo{
		ID:          TypeID{Name: className, Module: e.module},
		Location:    Location{File: e.src.Path, Line: ast.Line(node)},
		BaseClasses: bases,
	})

	e.registerObserverRelations(className, bases, methods)
}

func (e *Extractor) classBases(node *sitter.Node) []string {
	super := node.ChildByFieldName("superclasses")
	if super == nil {
		return nil
	}
	var bases []string
	for i := 0; i < int(super.NamedChildCount()); i++ {
		arg := super.NamedChild(i)
		switch arg.Type() {
		case "identifier", "attribute", "dotted_name":
			text := e.src.Text(arg)
			// Keep the final segment: abc.ABC -> ABC.
			if idx := strings.LastIndexByte(text, '.'); idx >= 0 {
				text = text[idx+1:]
			}
			bases = append(bases, text)
		case "keyword_argument":
			// metaclass=ABCMeta marks an abstract base.
			if e.src.Text(arg.ChildByFieldName("name")) == "metaclass" {
				bases = append(bases, e.src.Text(arg.ChildByFieldName("value")))
			}
		}
	}
	return bases
}

// registerObserverRelations wires a class into the observer registry from
// its inheritance: ABC subclasses become interfaces, subclasses of known
// or conventionally named interfaces become implementations.
func (e *Extractor) registerObserverRelations(className string, bases, methods []string) {
	for _, base := range bases {
		if base == "ABC" || base == "ABCMeta" {
			e.shared.Observers.RegisterInterface(className, methods)
			return
		}
	}
	for _, base := range bases {
		if e.shared.Observers.KnownInterface(base) || IsObserverInterfaceName(base) {
			e.shared.Observers.RegisterInterface(base, methods)
			e.shared.Observers.RegisterImplementation(base, className)
		}
	}
}

func (e *Extractor) isEntryPointDecorator(decorators []string) bool {
	for _, d := range decorators {
		if isFrameworkEntryDecorator(d) {
			return true
		}
		for _, extra := range e.cfg.EntryPointDecorators {
			if d == extra {
				return true
			}
		}
	}
	return false
}

