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
)

// eventBindingMethods are the registration methods whose self.X arguments
// become synthesized Direct edges to the handler.
var eventBindingMethods = map[string]bool{
	"Bind":             true,
	"bind":             true,
	"connect":          true,
	"on":               true,
	"addEventListener": true,
	"addListener":      true,
	"subscribe":        true,
	"observe":          true,
	"listen":           true,
}

func isEventBindingMethod(name string) bool {
	return eventBindingMethods[name]
}

// callbackRegistrarMethods register a handler for later invocation without
// the event-binding shape; their self.X arguments become pending callbacks.
var callbackRegistrarMethods = map[string]bool{
	"CallAfter":         true,
	"call_soon":         true,
	"call_later":        true,
	"after":             true,
	"add_callback":      true,
	"set_callback":      true,
	"register_callback": true,
	"add_done_callback": true,
}

func isCallbackRegistrarMethod(name string) bool {
	return callbackRegistrarMethods[name]
}

// frameworkRouteSuffixes match web framework routing decorators
// (@app.route, @router.get, @blueprint.post, ...).
var frameworkRouteSuffixes = []string{
	".route", ".get", ".post", ".put", ".delete", ".patch", ".head",
	".options", ".websocket", ".middleware",
}

// frameworkCommandSuffixes match CLI and task frameworks
// (@cli.command, @app.task, @click.group, ...).
var frameworkCommandSuffixes = []string{
	".command", ".group", ".task", ".shared_task", ".event", ".main",
}

// isFrameworkEntryDecorator reports whether a decorator name marks a
// framework-invoked entry point.
func isFrameworkEntryDecorator(decorator string) bool {
	if decorator == "route" || decorator == "main" || decorator == "task" {
		return true
	}
	for _, suffix := range frameworkRouteSuffixes {
		if strings.HasSuffix(decorator, suffix) {
			return true
		}
	}
	for _, suffix := range frameworkCommandSuffixes {
		if strings.HasSuffix(decorator, suffix) {
			return true
		}
	}
	return false
}

// complexityNodes are the branching constructs counted by the cyclomatic
// approximation.
var complexityNodes = map[string]bool{
	"if_statement":           true,
	"elif_clause":            true,
	"for_statement":          true,
	"while_statement":        true,
	"except_clause":          true,
	"conditional_expression": true,
	"boolean_operator":       true,
	"case_clause":            true,
}

// countComplexity approximates cyclomatic complexity: one plus the number
// of branching constructs in the definition.
func countComplexity(fn *sitter.Node) int {
	count := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if complexityNodes[n.Type()] {
			count++
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			// Nested definitions have their own complexity.
			if child.Type() == "function_definition" || child.Type() == "class_definition" {
				continue
			}
			walk(child)
		}
	}
	if body := fn.ChildByFieldName("body"); body != nil {
		walk(body)
	}
	return count
}
