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
	"testing"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

func mapLookup(known map[string]graph.FunctionID) func(string) (graph.FunctionID, bool) {
	return func(name string) (graph.FunctionID, bool) {
		id, ok := known[name]
		return id, ok
	}
}

func TestCallbackTracker_Resolve(t *testing.T) {
	classMethod := graph.FunctionID{File: "ui.py", Name: "Dialog.on_click", Line: 5}
	bareMethod := graph.FunctionID{File: "ui.py", Name: "on_click", Line: 20}
	nested := graph.FunctionID{File: "ui.py", Name: "setup.inner", Line: 12}

	t.Run("self prefix resolves against the registration class first", func(t *testing.T) {
		tracker := NewCallbackTracker()
		tracker.Add(PendingCallback{
			CallbackExpr: "self.on_click",
			Type:         CallbackSignalConnection,
			Context:      CallbackContext{CurrentClass: "Dialog"},
			Registrar:    graph.FunctionID{File: "ui.py", Name: "Dialog.__init__", Line: 2},
		})
		// Both the qualified and bare names exist; the class-qualified
		// candidate must win.
		resolved := tracker.Resolve(mapLookup(map[string]graph.FunctionID{
			"Dialog.on_click": classMethod,
			"on_click":        bareMethod,
		}))
		if len(resolved) != 1 {
			t.Fatalf("resolved %d callbacks, want 1", len(resolved))
		}
		if resolved[0].Target != classMethod {
			t.Errorf("Target = %v, want %v", resolved[0].Target, classMethod)
		}
		if resolved[0].Confidence != 0.9 {
			t.Errorf("Confidence = %v, want 0.9 for signal connections", resolved[0].Confidence)
		}
	})

	t.Run("undotted expression falls back to the registering function", func(t *testing.T) {
		tracker := NewCallbackTracker()
		tracker.Add(PendingCallback{
			CallbackExpr: "inner",
			Type:         CallbackPartial,
			Context:      CallbackContext{CurrentFunction: "setup"},
		})
		resolved := tracker.Resolve(mapLookup(map[string]graph.FunctionID{
			"setup.inner": nested,
		}))
		if len(resolved) != 1 || resolved[0].Target != nested {
			t.Fatalf("resolved = %+v, want setup.inner", resolved)
		}
		if resolved[0].Confidence != 0.8 {
			t.Errorf("Confidence = %v, want 0.8 for partials", resolved[0].Confidence)
		}
	})

	t.Run("unmatched registrations are dropped and the queue drains", func(t *testing.T) {
		tracker := NewCallbackTracker()
		tracker.Add(PendingCallback{CallbackExpr: "ghost", Type: CallbackDirectAssignment})
		resolved := tracker.Resolve(mapLookup(nil))
		if len(resolved) != 0 {
			t.Errorf("resolved = %+v, want none", resolved)
		}
		if tracker.PendingCount() != 0 {
			t.Errorf("PendingCount = %d after Resolve, want 0", tracker.PendingCount())
		}
	})
}

func TestCallbackConfidence(t *testing.T) {
	tests := []struct {
		typ  CallbackType
		want float64
	}{
		{CallbackSignalConnection, 0.9},
		{CallbackDirectAssignment, 0.85},
		{CallbackPartial, 0.8},
	}
	for _, tt := range tests {
		if got := callbackConfidence(tt.typ); got != tt.want {
			t.Errorf("callbackConfidence(%v) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestCallbackType_String(t *testing.T) {
	tests := []struct {
		typ  CallbackType
		want string
	}{
		{CallbackDirectAssignment, "DirectAssignment"},
		{CallbackSignalConnection, "SignalConnection"},
		{CallbackPartial, "Partial"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
