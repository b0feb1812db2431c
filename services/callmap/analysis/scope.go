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

// ScopeStack models Python's lexical scoping for type inference.
//
// Description:
//
//	A LIFO stack of name->type bindings. The bottom scope is the module
//	scope and can never be popped. Lookup walks innermost to outermost;
//	Set always binds in the innermost scope (shadowing).
//
// Thread Safety: NOT safe for concurrent use; each extractor owns one.
type ScopeStack struct {
	scopes []map[string]InferredType
}

// NewScopeStack returns a stack holding only the module scope.
func NewScopeStack() *ScopeStack {
	return &ScopeStack{scopes: []map[string]InferredType{{}}}
}

// Push enters a new innermost scope.
func (s *ScopeStack) Push() {
	s.scopes = append(s.scopes, map[string]InferredType{})
}

// Pop leaves the innermost scope. The module scope is never popped, so
// unbalanced pops are harmless.
func (s *ScopeStack) Pop() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// Depth returns the number of active scopes.
func (s *ScopeStack) Depth() int { return len(s.scopes) }

// Set binds name to t in the innermost scope.
func (s *ScopeStack) Set(name string, t InferredType) {
	s.scopes[len(s.scopes)-1][name] = t
}

// Lookup resolves name walking innermost to outermost.
func (s *ScopeStack) Lookup(name string) (InferredType, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if t, ok := s.scopes[i][name]; ok {
			return t, true
		}
	}
	return UnknownType(), false
}
