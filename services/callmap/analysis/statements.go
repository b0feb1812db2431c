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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/callmap/services/callmap/ast"
	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// analyzeStatements is phase-one sub-pass four: walk every statement for
// type flow, call collection, event bindings, callback registrations,
// observer collection declarations, dispatch loops, and the main guard.
func (e *Extractor) analyzeStatements(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			e.analyzeFunction(child, "", "")
		case "class_definition":
			e.analyzeClass(child, "")
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "function_definition":
				e.analyzeFunction(def, "", "")
			case "class_definition":
				e.analyzeClass(def, "")
			}
		case "if_statement":
			if e.isMainGuard(child) {
				e.analyzeMainBlock(child)
			} else {
				e.analyzeStatement(child)
			}
		case "import_statement", "import_from_statement":
			// Already handled by collectImports.
		default:
			e.analyzeStatement(child)
		}
	}
}

func (e *Extractor) analyzeClass(node *sitter.Node, prefix string) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	className := e.src.Text(nameNode)
	qualified := className
	if prefix != "" {
		qualified = prefix + "." + className
	}

	prevClass := e.currentClass
	e.currentClass = className
	defer func() { e.currentClass = prevClass }()

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		def := member
		if member.Type() == "decorated_definition" {
			def = member.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		switch def.Type() {
		case "function_definition":
			e.analyzeFunction(def, qualified, className)
		case "class_definition":
			e.analyzeClass(def, qualified)
		}
	}
}

func (e *Extractor) analyzeFunction(node *sitter.Node, prefix, className string) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	qualified := e.src.Text(nameNode)
	if prefix != "" {
		qualified = prefix + "." + qualified
	}
	id, ok := e.localFunctions[qualified]
	if !ok {
		id = graph.FunctionID{File: e.src.Path, Name: qualified, Line: ast.Line(node)}
	}

	prevFunction, prevIn, prevClass := e.currentFunction, e.inFunction, e.currentClass
	e.currentFunction, e.inFunction, e.currentClass = id, true, className
	defer func() {
		e.currentFunction, e.inFunction, e.currentClass = prevFunction, prevIn, prevClass
	}()

	e.scope.Push()
	defer e.scope.Pop()
	e.bindParameters(node, className)
	e.analyzeBlock(body)
}

func (e *Extractor) bindParameters(fn *sitter.Node, className string) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "identifier":
			name := e.src.Text(param)
			switch {
			case i == 0 && name == "self" && className != "":
				e.scope.Set(name, InstanceOf(className))
			case i == 0 && name == "cls" && className != "":
				e.scope.Set(name, ClassType(className))
			default:
				e.scope.Set(name, UnknownType())
			}
		case "typed_parameter", "typed_default_parameter":
			var name string
			if param.Type() == "typed_parameter" {
				if idNode := param.NamedChild(0); idNode != nil && idNode.Type() == "identifier" {
					name = e.src.Text(idNode)
				}
			} else if nameNode := param.ChildByFieldName("name"); nameNode != nil {
				name = e.src.Text(nameNode)
			}
			if name == "" {
				continue
			}
			e.scope.Set(name, e.annotationType(param.ChildByFieldName("type")))
		case "default_parameter":
			nameNode := param.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			e.scope.Set(e.src.Text(nameNode), e.inferExpr(param.ChildByFieldName("value")))
		}
	}
}

// annotationType maps a parameter annotation to an inferred type when the
// annotation names a builtin or a known class.
func (e *Extractor) annotationType(typeNode *sitter.Node) InferredType {
	if typeNode == nil {
		return UnknownType()
	}
	text := e.src.Text(typeNode)
	if idx := strings.LastIndexByte(text, '.'); idx >= 0 {
		text = text[idx+1:]
	}
	if builtin, ok := builtinConstructors[text]; ok {
		return BuiltinType(builtin)
	}
	if _, ok := e.shared.Classes.Get(text); ok || e.localClasses[text] {
		return InstanceOf(text)
	}
	return UnknownType()
}

func (e *Extractor) analyzeBlock(block *sitter.Node) {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		e.analyzeStatement(block.NamedChild(i))
	}
}

func (e *Extractor) analyzeStatement(stmt *sitter.Node) {
	switch stmt.Type() {
	case "expression_statement":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			expr := stmt.NamedChild(i)
			switch expr.Type() {
			case "assignment", "augmented_assignment":
				e.handleAssignment(expr)
			default:
				e.walkExpr(expr)
			}
		}
	case "if_statement":
		if !e.inFunction && e.isMainGuard(stmt) {
			e.analyzeMainBlock(stmt)
			return
		}
		e.walkExpr(stmt.ChildByFieldName("condition"))
		if body := stmt.ChildByFieldName("consequence"); body != nil {
			e.analyzeBlock(body)
		}
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			alt := stmt.NamedChild(i)
			switch alt.Type() {
			case "elif_clause":
				e.walkExpr(alt.ChildByFieldName("condition"))
				if body := alt.ChildByFieldName("consequence"); body != nil {
					e.analyzeBlock(body)
				}
			case "else_clause":
				if body := alt.ChildByFieldName("body"); body != nil {
					e.analyzeBlock(body)
				}
			}
		}
	case "for_statement":
		e.handleForLoop(stmt)
	case "while_statement":
		e.walkExpr(stmt.ChildByFieldName("condition"))
		if body := stmt.ChildByFieldName("body"); body != nil {
			e.analyzeBlock(body)
		}
	case "with_statement":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			child := stmt.NamedChild(i)
			if child.Type() == "block" {
				e.analyzeBlock(child)
			} else {
				e.walkExpr(child)
			}
		}
	case "try_statement":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			child := stmt.NamedChild(i)
			switch child.Type() {
			case "block":
				e.analyzeBlock(child)
			case "except_clause", "finally_clause", "else_clause":
				for j := 0; j < int(child.NamedChildCount()); j++ {
					if inner := child.NamedChild(j); inner.Type() == "block" {
						e.analyzeBlock(inner)
					}
				}
			}
		}
	case "return_statement", "raise_statement", "assert_statement",
		"delete_statement", "print_statement", "exec_statement":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			e.walkExpr(stmt.NamedChild(i))
		}
	case "function_definition":
		e.analyzeFunction(stmt, e.nestedPrefix(), "")
	case "class_definition":
		e.analyzeClass(stmt, e.nestedPrefix())
	case "decorated_definition":
		if def := stmt.ChildByFieldName("definition"); def != nil {
			e.analyzeStatement(def)
		}
	case "import_statement", "import_from_statement", "comment",
		"global_statement", "nonlocal_statement", "pass_statement",
		"break_statement", "continue_statement":
		// No calls, no type flow.
	default:
		e.walkExpr(stmt)
	}
}

// nestedPrefix is the qualified-name prefix for definitions nested inside
// the current function.
func (e *Extractor) nestedPrefix() string {
	if e.inFunction {
		return e.currentFunction.Name
	}
	return ""
}

// walkExpr recurses through an expression collecting call sites. Nested
// definitions are not entered; analyzeStatement handles those.
func (e *Extractor) walkExpr(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "call":
		e.handleCall(node)
		// Arguments may contain further calls; handleCall does not recurse.
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				e.walkExpr(args.NamedChild(i))
			}
		}
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Type() == "call" {
			e.walkExpr(fn)
		}
		return
	case "function_definition", "class_definition":
		return
	case "lambda":
		if body := node.ChildByFieldName("body"); body != nil {
			e.walkExpr(body)
		}
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.walkExpr(node.NamedChild(i))
	}
}

// ---- assignments ---------------------------------------------------------

func (e *Extractor) handleAssignment(assign *sitter.Node) {
	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	if right != nil {
		e.walkExpr(right)
	}
	if left == nil || right == nil {
		return
	}

	rightType := e.inferExpr(right)

	switch left.Type() {
	case "identifier":
		name := e.src.Text(left)
		e.scope.Set(name, rightType)
		if rightType.Kind == KindInstance {
			e.recordInstanceAssignment(name, rightType.Name, ast.Line(assign))
		}
	case "attribute":
		obj := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return
		}
		objText := e.src.Text(obj)
		field := e.src.Text(attr)
		if objText != "self" && objText != "cls" {
			return
		}

		if e.currentClass != "" && isEmptyCollectionLiteral(right, e.src.Text(right)) &&
			IsObserverCollectionName(field) {
			e.declareObserverCollection(e.currentClass, field)
		}

		if rightType.Kind == KindInstance {
			e.recordInstanceAssignment(e.currentClass+"."+field, rightType.Name, ast.Line(assign))
		}

		e.detectDirectAssignmentCallback(field, right, ast.Line(assign))
	case "pattern_list", "tuple_pattern":
		// Multiple targets; no per-target inference.
	}
}

func (e *Extractor) recordInstanceAssignment(variable, className string, line int) {
	info, ok := e.shared.TypeFlow.FindTypeByName(className)
	if !ok {
		info = TypeInfo{ID: TypeID{Name: className, Module: e.module}}
	}
	info.Location = Location{File: e.src.Path, Line: line}
	e.shared.TypeFlow.RecordAssignment(e.src.Path, variable, info)
}

func isEmptyCollectionLiteral(node *sitter.Node, text string) bool {
	switch node.Type() {
	case "list", "set", "dictionary":
		return true
	case "call":
		return text == "list()" || text == "set()" || text == "dict()"
	}
	return false
}

func (e *Extractor) declareObserverCollection(class, field string) {
	iface := InferInterfaceFromFieldName(field)
	e.shared.Observers.RegisterInterface(iface, nil)
	e.shared.Observers.RegisterCollection(class, field, iface)
}

// callbackFieldHints mark attribute names that hold callback references.
var callbackFieldHints = []string{"callback", "handler", "on_", "hook", "action"}

func isCallbackFieldName(field string) bool {
	lower := strings.ToLower(field)
	for _, hint := range callbackFieldHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func (e *Extractor) detectDirectAssignmentCallback(field string, right *sitter.Node, line int) {
	if !isCallbackFieldName(field) {
		return
	}
	if right.Type() != "identifier" && right.Type() != "attribute" {
		return
	}
	e.shared.Callbacks.Add(PendingCallback{
		CallbackExpr: e.src.Text(right),
		Registration: Location{File: e.src.Path, Line: line},
		Type:         CallbackDirectAssignment,
		Context: CallbackContext{
			CurrentClass:    e.currentClass,
			CurrentFunction: e.currentFunctionName(),
		},
		Registrar: e.registrarID(line),
	})
}

func (e *Extractor) currentFunctionName() string {
	if e.inFunction {
		return e.currentFunction.Name
	}
	return ""
}

// registrarID is the caller of synthesized callback edges: the current
// function, or the module main pseudo-function for module-level code.
func (e *Extractor) registrarID(line int) graph.FunctionID {
	if e.inFunction {
		return e.currentFunction
	}
	return e.moduleMain(line)
}

// ---- calls ---------------------------------------------------------------

func (e *Extractor) handleCall(call *sitter.Node) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}
	fnText := e.src.Text(fn)
	args := call.ChildByFieldName("arguments")

	if fn.Type() == "attribute" {
		method := e.src.Text(fn.ChildByFieldName("attribute"))

		handled := false
		if isEventBindingMethod(method) && e.synthesizeBindingEdges(args) {
			handled = true
		}
		// connect registers a callback in addition to the binding edge, so
		// the same pair can carry both a Direct and a Callback edge.
		if (method == "connect" || isCallbackRegistrarMethod(method)) && e.collectSignalCallbacks(args) {
			handled = true
		}
		if handled {
			return
		}
		if e.trackCollectionOperation(fn, method, args) {
			return
		}
		if isRegistrationMethod(method) {
			e.deferObserverRegistration(fn, args)
		}
	}

	if strings.HasSuffix(fnText, "partial") && args != nil {
		if e.collectPartialCallback(args) {
			return
		}
	}

	if fn.Type() != "identifier" && fn.Type() != "attribute" {
		return
	}
	if receiver := e.suppressedReceiver(fnText); receiver {
		return
	}
	caller := e.currentFunction
	callerClass := e.currentClass
	if !e.inFunction {
		// Module-scope calls run at import time; they attach to the
		// module pseudo-function just like main-guard calls.
		caller = e.moduleMain(ast.Line(call))
		callerClass = ""
	}
	e.unresolved = append(e.unresolved, unresolvedCall{
		caller:      caller,
		callerClass: callerClass,
		target:      fnText,
		line:        ast.Line(call),
	})
}

// synthesizeBindingEdges turns `widget.Bind(EVT, self.on_click)` style
// registrations into Direct edges to the handler method. Returns true when
// at least one handler argument was found.
func (e *Extractor) synthesizeBindingEdges(args *sitter.Node) bool {
	if args == nil || !e.inFunction {
		return false
	}
	found := false
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "keyword_argument" {
			arg = arg.ChildByFieldName("value")
			if arg == nil {
				continue
			}
		}
		handler, ok := e.selfHandlerName(arg)
		if !ok {
			continue
		}
		callee, resolved := e.shared.Classes.ResolveMethod(e.currentClass, handler)
		if !resolved {
			callee = graph.FunctionID{
				File: e.src.Path,
				Name: e.currentClass + "." + handler,
				Line: ast.EstimateDefinitionLine(e.src.Lines, handler),
			}
		}
		e.graph.AddEdge(graph.Edge{
			Caller:     e.currentFunction,
			Callee:     callee,
			CallType:   graph.CallDirect,
			Confidence: 1.0,
		})
		found = true
	}
	return found
}

// selfHandlerName extracts X from a bare `self.X` / `cls.X` argument.
func (e *Extractor) selfHandlerName(arg *sitter.Node) (string, bool) {
	if arg.Type() != "attribute" || e.currentClass == "" {
		return "", false
	}
	obj := arg.ChildByFieldName("object")
	attr := arg.ChildByFieldName("attribute")
	if obj == nil || attr == nil {
		return "", false
	}
	objText := e.src.Text(obj)
	if objText != "self" && objText != "cls" {
		return "", false
	}
	return e.src.Text(attr), true
}

func (e *Extractor) collectSignalCallbacks(args *sitter.Node) bool {
	if args == nil {
		return false
	}
	found := false
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "attribute" && arg.Type() != "identifier" {
			continue
		}
		text := e.src.Text(arg)
		if arg.Type() == "attribute" && !strings.HasPrefix(text, "self.") && !strings.HasPrefix(text, "cls.") {
			continue
		}
		e.shared.Callbacks.Add(PendingCallback{
			CallbackExpr: text,
			Registration: Location{File: e.src.Path, Line: ast.Line(arg)},
			Type:         CallbackSignalConnection,
			Context: CallbackContext{
				CurrentClass:    e.currentClass,
				CurrentFunction: e.currentFunctionName(),
			},
			Registrar: e.registrarID(ast.Line(arg)),
		})
		found = true
	}
	return found
}

func (e *Extractor) collectPartialCallback(args *sitter.Node) bool {
	if args.NamedChildCount() == 0 {
		return false
	}
	first := args.NamedChild(0)
	if first.Type() != "identifier" && first.Type() != "attribute" {
		return false
	}
	e.shared.Callbacks.Add(PendingCallback{
		CallbackExpr: e.src.Text(first),
		Registration: Location{File: e.src.Path, Line: ast.Line(first)},
		Type:         CallbackPartial,
		Context: CallbackContext{
			CurrentClass:    e.currentClass,
			CurrentFunction: e.currentFunctionName(),
		},
		Registrar: e.registrarID(ast.Line(first)),
	})
	return true
}

// isRegistrationMethod matches observer registration calls by name.
func isRegistrationMethod(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "add") || strings.HasPrefix(lower, "register") ||
		strings.HasPrefix(lower, "subscribe") || strings.HasPrefix(lower, "attach")
}

// deferObserverRegistration queues a registration-style call so its
// instance arguments can flow into the receiver class's observer
// collections at finalization, after every class has been seen.
func (e *Extractor) deferObserverRegistration(fn *sitter.Node, args *sitter.Node) {
	if args == nil {
		return
	}
	class := e.receiverClass(fn.ChildByFieldName("object"))
	if class == "" {
		return
	}
	var argTypes []TypeID
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if id, ok := e.elementTypeID(args.NamedChild(i)); ok {
			argTypes = append(argTypes, id)
		}
	}
	if len(argTypes) == 0 {
		return
	}
	e.registrations = append(e.registrations, pendingRegistration{
		receiverClass: class,
		argTypes:      argTypes,
	})
}

// receiverClass infers the class of a call receiver expression.
func (e *Extractor) receiverClass(obj *sitter.Node) string {
	if obj == nil {
		return ""
	}
	switch obj.Type() {
	case "identifier":
		name := e.src.Text(obj)
		if name == "self" || name == "cls" {
			return e.currentClass
		}
		if t, ok := e.scope.Lookup(name); ok && (t.Kind == KindInstance || t.Kind == KindClass) {
			return t.Name
		}
		if info, ok := e.shared.TypeFlow.GetVariableType(e.src.Path, name); ok {
			return info.ID.Name
		}
	case "attribute":
		if field, ok := e.selfHandlerName(obj); ok {
			if info, found := e.shared.TypeFlow.GetVariableType(e.src.Path, e.currentClass+"."+field); found {
				return info.ID.Name
			}
		}
	}
	return ""
}

// trackCollectionOperation records element types flowing into observer
// collections: `self.listeners.append(obj)`. Returns true when the call
// was a collection mutation on a self attribute.
func (e *Extractor) trackCollectionOperation(fn *sitter.Node, method string, args *sitter.Node) bool {
	switch method {
	case "append", "add", "insert", "extend":
	default:
		return false
	}
	obj := fn.ChildByFieldName("object")
	if obj == nil || obj.Type() != "attribute" || e.currentClass == "" {
		return false
	}
	field, ok := e.selfHandlerName(obj)
	if !ok {
		return false
	}
	collection := e.currentClass + "." + field

	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if method == "insert" && i == 0 {
				continue
			}
			if id, ok := e.elementTypeID(arg); ok {
				e.shared.TypeFlow.RecordCollectionAdd(e.src.Path, collection, id)
			}
		}
	}
	return true
}

// elementTypeID infers the user-defined type of a value flowing into a
// collection.
func (e *Extractor) elementTypeID(arg *sitter.Node) (TypeID, bool) {
	t := e.inferExpr(arg)
	if t.Kind != KindInstance {
		return TypeID{}, false
	}
	if info, ok := e.shared.TypeFlow.FindTypeByName(t.Name); ok {
		return info.ID, true
	}
	return TypeID{Name: t.Name, Module: e.module}, true
}

// ---- for loops and dispatch mining ---------------------------------------

func (e *Extractor) handleForLoop(stmt *sitter.Node) {
	left := stmt.ChildByFieldName("left")
	right := stmt.ChildByFieldName("right")
	body := stmt.ChildByFieldName("body")
	if right != nil {
		e.walkExpr(right)
	}
	if body == nil {
		return
	}

	var loopVar string
	if left != nil && left.Type() == "identifier" {
		loopVar = e.src.Text(left)
	}

	dispatched := false
	if loopVar != "" && right != nil && e.inFunction {
		if field, ok := e.selfHandlerName(right); ok {
			dispatched = e.mineDispatchLoop(field, loopVar, body, ast.Line(stmt))
		}
	}

	if loopVar != "" {
		e.scope.Set(loopVar, UnknownType())
	}

	if dispatched {
		// The loop body's calls on the loop variable become
		// ObserverDispatch edges at finalization; suppress the Direct
		// collection for them.
		prev := e.suppressed
		e.suppressed = loopVar
		e.analyzeBlock(body)
		e.suppressed = prev
		return
	}
	e.analyzeBlock(body)
}

// mineDispatchLoop records pending dispatches for every method called on
// the loop variable, searching the body recursively so loops with guarded
// dispatch (`if x.enabled: x.notify()`) still count.
func (e *Extractor) mineDispatchLoop(field, loopVar string, body *sitter.Node, line int) bool {
	methods := e.methodCallsOn(body, loopVar)
	if len(methods) == 0 {
		return false
	}

	iface, bound := e.shared.Observers.CollectionInterface(e.currentClass, field)
	if !bound {
		iface = InferInterfaceFromFieldName(field)
	}

	// Confidence is scored at finalization, once every file has had the
	// chance to register the interface.
	for _, method := range methods {
		e.dispatches = append(e.dispatches, PendingDispatch{
			Caller:          e.currentFunction,
			CollectionField: field,
			InterfaceName:   iface,
			MethodName:      method,
			Location:        Location{File: e.src.Path, Line: line},
		})
	}
	return true
}

// methodCallsOn finds method names invoked on target anywhere under node.
func (e *Extractor) methodCallsOn(node *sitter.Node, target string) []string {
	var methods []string
	seen := make(map[string]bool)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call" {
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "attribute" {
				obj := fn.ChildByFieldName("object")
				if obj != nil && obj.Type() == "identifier" && e.src.Text(obj) == target {
					method := e.src.Text(fn.ChildByFieldName("attribute"))
					if !seen[method] {
						seen[method] = true
						methods = append(methods, method)
					}
				}
			}
		}
		if n.Type() == "function_definition" || n.Type() == "class_definition" {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return methods
}

func (e *Extractor) suppressedReceiver(fnText string) bool {
	if e.suppressed == "" {
		return false
	}
	return strings.HasPrefix(fnText, e.suppressed+".")
}

// ---- main guard ----------------------------------------------------------

func (e *Extractor) isMainGuard(ifStmt *sitter.Node) bool {
	cond := ifStmt.ChildByFieldName("condition")
	if cond == nil {
		return false
	}
	text := e.src.Text(cond)
	return strings.Contains(text, "__name__") && strings.Contains(text, "__main__")
}

// moduleMain returns this file's module pseudo-function, creating and
// publishing it on first use. All module-scope execution attaches here:
// main-guard statements, import-time calls, and module-level callback
// registrations share one node per file.
func (e *Extractor) moduleMain(line int) graph.FunctionID {
	if id, ok := e.localFunctions[graph.ModuleMainName]; ok {
		return id
	}
	id := graph.FunctionID{File: e.src.Path, Name: graph.ModuleMainName, Line: line}
	e.graph.AddFunction(graph.FunctionNode{ID: id, IsEntryPoint: true})
	e.localFunctions[graph.ModuleMainName] = id
	e.shared.Cross.RegisterExport(e.module, graph.ModuleMainName, id)
	return id
}

// analyzeMainBlock attributes main-guard statements to the
// __module_main__ pseudo-function, which is always an entry point.
func (e *Extractor) analyzeMainBlock(ifStmt *sitter.Node) {
	body := ifStmt.ChildByFieldName("consequence")
	if body == nil {
		return
	}

	id := e.moduleMain(ast.Line(ifStmt))
	e.graph.AddFunction(graph.FunctionNode{
		ID:           id,
		IsEntryPoint: true,
		Size:         ast.EndLine(ifStmt) - ast.Line(ifStmt) + 1,
	})

	prevFunction, prevIn := e.currentFunction, e.inFunction
	e.currentFunction, e.inFunction = id, true
	defer func() { e.currentFunction, e.inFunction = prevFunction, prevIn }()

	e.scope.Push()
	defer e.scope.Pop()
	e.analyzeBlock(body)
}

// ---- expression type inference -------------------------------------------

// inferExpr applies the literal, arithmetic, and constructor rules. It
// returns Unknown rather than guessing.
func (e *Extractor) inferExpr(node *sitter.Node) InferredType {
	if node == nil {
		return UnknownType()
	}
	switch node.Type() {
	case "integer":
		return BuiltinType("int")
	case "float":
		return BuiltinType("float")
	case "string", "concatenated_string":
		return BuiltinType("str")
	case "true", "false":
		return BuiltinType("bool")
	case "none":
		return BuiltinType("NoneType")
	case "list", "list_comprehension":
		return BuiltinType("list")
	case "dictionary", "dictionary_comprehension":
		return BuiltinType("dict")
	case "set", "set_comprehension":
		return BuiltinType("set")
	case "tuple":
		return BuiltinType("tuple")
	case "parenthesized_expression":
		return e.inferExpr(node.NamedChild(0))
	case "binary_operator":
		op := node.ChildByFieldName("operator")
		return BinaryOpResult(e.src.Text(op),
			e.inferExpr(node.ChildByFieldName("left")),
			e.inferExpr(node.ChildByFieldName("right")))
	case "identifier":
		if t, ok := e.scope.Lookup(e.src.Text(node)); ok {
			return t
		}
		return UnknownType()
	case "attribute":
		if e.currentClass != "" {
			if field, ok := e.selfHandlerName(node); ok {
				if info, found := e.shared.TypeFlow.GetVariableType(e.src.Path, e.currentClass+"."+field); found {
					return InstanceOf(info.ID.Name)
				}
			}
		}
		return UnknownType()
	case "call":
		return e.inferCallType(node)
	}
	return UnknownType()
}

// inferCallType resolves constructor calls: builtins and known classes.
func (e *Extractor) inferCallType(call *sitter.Node) InferredType {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return UnknownType()
	}
	name := e.src.Text(fn)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	if builtin, ok := builtinConstructors[name]; ok {
		return BuiltinType(builtin)
	}
	if e.localClasses[name] {
		return InstanceOf(name)
	}
	if _, ok := e.shared.Classes.Get(name); ok {
		return InstanceOf(name)
	}
	// `from mod import Widget` followed by Widget(): trust the import.
	if qualified, ok := e.imports.Imported[e.src.Text(fn)]; ok {
		if idx := strings.LastIndexByte(qualified, '.'); idx >= 0 {
			final := qualified[idx+1:]
			if final != "" && final[0] >= 'A' && final[0] <= 'Z' {
				return InstanceOf(final)
			}
		}
	}
	return UnknownType()
}
