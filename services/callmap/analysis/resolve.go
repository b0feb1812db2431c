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

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// heuristicConfidence labels edges produced by the trailing-name scan.
// That scan matches any known function ending in ".method", so its edges
// are explicitly low-confidence.
const heuristicConfidence = 0.5

// resolveCall runs the resolution chain for one collected call site.
//
// Priority order:
//  1. self./cls. receivers resolve against the caller's class with
//     inheritance.
//  2. Bare names resolve through imports, then nested and local
//     definitions, then the cross-module chain.
//  3. Dotted names resolve through the memoized cross-module chain
//     (imported symbols, module aliases, namespace paths, wildcard
//     imports, other files' exports), then by receiver variable type,
//     then as a class-qualified method.
//  4. Last resort for every shape: the trailing-name heuristic.
func (e *Extractor) resolveCall(u unresolvedCall) (graph.FunctionID, float64, bool) {
	target := u.target

	if rest, ok := strings.CutPrefix(target, "self."); ok {
		return e.resolveSelfCall(u, rest)
	}
	if rest, ok := strings.CutPrefix(target, "cls."); ok {
		return e.resolveSelfCall(u, rest)
	}

	if !strings.Contains(target, ".") {
		return e.resolveBareCall(u, target)
	}
	return e.resolveDottedCall(u, target)
}

func (e *Extractor) resolveSelfCall(u unresolvedCall, rest string) (graph.FunctionID, float64, bool) {
	if !strings.Contains(rest, ".") && u.callerClass != "" {
		if id, ok := e.shared.Classes.ResolveMethod(u.callerClass, rest); ok {
			return id, 1.0, true
		}
	}

	// self.field.method: the field's instance type was recorded under
	// "Class.field" when the attribute was assigned.
	if field, method, dotted := strings.Cut(rest, "."); dotted &&
		u.callerClass != "" && !strings.Contains(method, ".") {
		if info, ok := e.shared.TypeFlow.GetVariableType(e.src.Path, u.callerClass+"."+field); ok {
			if id, found := e.shared.Classes.ResolveMethod(info.ID.Name, method); found {
				return id, 1.0, true
			}
		}
	}

	// Deeper chains and unknown methods fall through to the heuristic.
	return e.heuristicResolve(finalSegment(rest))
}

func (e *Extractor) resolveBareCall(u unresolvedCall, name string) (graph.FunctionID, float64, bool) {
	// Imported symbol called directly.
	if _, ok := e.imports.Imported[name]; ok {
		if id, found := e.shared.Cross.ResolveFunction(e.src.Path, name); found {
			return id, 1.0, true
		}
	}

	// Nested function defined in the calling function.
	if id, ok := e.localFunctions[u.caller.Name+"."+name]; ok {
		return id, 1.0, true
	}

	// Sibling method called without self inside a class body scope.
	if u.callerClass != "" {
		if id, ok := e.localFunctions[u.callerClass+"."+name]; ok {
			return id, 1.0, true
		}
	}

	// Module-level function or class constructor in this file.
	if id, ok := e.localFunctions[name]; ok {
		return id, 1.0, true
	}

	// Cross-module chain: wildcard imports and other files' exports.
	if id, ok := e.shared.Cross.ResolveFunction(e.src.Path, name); ok {
		return id, 1.0, true
	}

	return graph.FunctionID{}, 0, false
}

func (e *Extractor) resolveDottedCall(u unresolvedCall, target string) (graph.FunctionID, float64, bool) {
	head, _, _ := strings.Cut(target, ".")
	method := finalSegment(target)

	// Imported symbols, module aliases, namespace paths, wildcard imports,
	// other files' exports. Memoized per (file, target).
	if id, ok := e.shared.Cross.ResolveFunction(e.src.Path, target); ok {
		return id, 1.0, true
	}

	// Receiver variable with a known instance type.
	if t, ok := e.scope.Lookup(head); ok {
		switch t.Kind {
		case KindInstance, KindClass:
			if id, found := e.shared.Classes.ResolveMethod(t.Name, method); found {
				return id, 1.0, true
			}
		}
	}
	if info, ok := e.shared.TypeFlow.GetVariableType(e.src.Path, head); ok {
		if id, found := e.shared.Classes.ResolveMethod(info.ID.Name, method); found {
			return id, 1.0, true
		}
	}

	// ClassName.method static-style call with inheritance.
	if id, ok := e.shared.Classes.ResolveMethod(head, method); ok {
		return id, 1.0, true
	}

	return e.heuristicResolve(method)
}

// heuristicResolve is the strictly-last fallback: any known function whose
// qualified name ends with ".method".
func (e *Extractor) heuristicResolve(method string) (graph.FunctionID, float64, bool) {
	if method == "" {
		return graph.FunctionID{}, 0, false
	}
	if id, ok := e.shared.Cross.ResolveByTrailingName(method); ok {
		return id, heuristicConfidence, true
	}
	return graph.FunctionID{}, 0, false
}

func finalSegment(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
