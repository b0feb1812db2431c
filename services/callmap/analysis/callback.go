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
	"sync"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// CallbackType classifies how a callback reference was registered.
type CallbackType int

const (
	// CallbackDirectAssignment is `obj.on_done = self.handler`.
	CallbackDirectAssignment CallbackType = iota
	// CallbackSignalConnection is `signal.connect(self.handler)`.
	CallbackSignalConnection
	// CallbackPartial is registration through functools.partial.
	CallbackPartial
)

// String returns the wire name of the callback type.
func (t CallbackType) String() string {
	switch t {
	case CallbackDirectAssignment:
		return "DirectAssignment"
	case CallbackSignalConnection:
		return "SignalConnection"
	case CallbackPartial:
		return "Partial"
	default:
		return "Unknown"
	}
}

// callbackConfidence maps registration style to edge confidence. Signal
// connections are the strongest signal; partials the weakest because the
// wrapped target is recovered textually.
func callbackConfidence(t CallbackType) float64 {
	switch t {
	case CallbackSignalConnection:
		return 0.9
	case CallbackDirectAssignment:
		return 0.85
	case CallbackPartial:
		return 0.8
	default:
		return 0.7
	}
}

// CallbackContext captures where a callback registration was seen.
type CallbackContext struct {
	CurrentClass    string
	CurrentFunction string
}

// PendingCallback is a callback registration awaiting resolution.
type PendingCallback struct {
	// CallbackExpr is the textual handler reference, e.g. "self.on_click"
	// or "process_row".
	CallbackExpr string
	Registration Location
	Type         CallbackType
	Context      CallbackContext
	// Registrar is the function that performed the registration; it
	// becomes the caller of the synthesized Callback edge.
	Registrar graph.FunctionID
}

// ResolvedCallback pairs a pending registration with its resolved target.
type ResolvedCallback struct {
	Pending    PendingCallback
	Target     graph.FunctionID
	Confidence float64
}

// CallbackTracker accumulates callback registrations across files and
// resolves them once the whole project has been extracted.
//
// Thread Safety: Safe for concurrent use.
type CallbackTracker struct {
	mu      sync.Mutex
	pending []PendingCallback
}

// NewCallbackTracker returns an empty tracker.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{}
}

// Add queues a pending callback.
func (c *CallbackTracker) Add(cb PendingCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, cb)
}

// PendingCount returns the number of queued registrations.
func (c *CallbackTracker) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Resolve matches every pending callback against the project's known
// functions and drains the queue.
//
// Description:
//
//	Candidate names are tried in order: the expression with a self./cls.
//	prefix replaced by the registration class, the expression as written,
//	and the expression nested under the registering function
//	("outer.inner" for locally defined handlers). The first candidate the
//	lookup recognizes wins. Unmatched registrations are dropped.
//
// Inputs:
//
//	lookup - Resolves a qualified function name to its FunctionID.
//
// Outputs:
//
//	[]ResolvedCallback - One entry per matched registration.
func (c *CallbackTracker) Resolve(lookup func(name string) (graph.FunctionID, bool)) []ResolvedCallback {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	var out []ResolvedCallback
	for _, cb := range pending {
		for _, candidate := range callbackCandidates(cb) {
			if id, ok := lookup(candidate); ok {
				out = append(out, ResolvedCallback{
					Pending:    cb,
					Target:     id,
					Confidence: callbackConfidence(cb.Type),
				})
				break
			}
		}
	}
	return out
}

func callbackCandidates(cb PendingCallback) []string {
	expr := strings.TrimSpace(cb.CallbackExpr)
	var candidates []string

	stripped := expr
	switch {
	case strings.HasPrefix(expr, "self."):
		stripped = expr[len("self."):]
	case strings.HasPrefix(expr, "cls."):
		stripped = expr[len("cls."):]
	}
	if stripped != expr && cb.Context.CurrentClass != "" {
		candidates = append(candidates, cb.Context.CurrentClass+"."+stripped)
	}

	candidates = append(candidates, expr)
	if stripped != expr {
		candidates = append(candidates, stripped)
	}
	if cb.Context.CurrentFunction != "" && !strings.Contains(expr, ".") {
		candidates = append(candidates, cb.Context.CurrentFunction+"."+expr)
	}
	return candidates
}
