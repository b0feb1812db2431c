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

import "sync"

// TypeID names a user-defined type, optionally qualified by the module
// that defines it.
type TypeID struct {
	Name   string
	Module string
}

// TypeInfo is everything the tracker knows about a type: its identity,
// where it was defined, and its declared base classes.
type TypeInfo struct {
	ID          TypeID
	Location    Location
	BaseClasses []string
}

type varKey struct {
	file string
	name string
}

// TypeFlowTracker accumulates cross-file type facts.
//
// Description:
//
//	Records variable assignments, collection element types, and type
//	registrations across the whole project. The tracker is flow-insensitive
//	and monotonic: facts only accumulate, later assignments to the same
//	variable overwrite the recorded type but nothing is ever forgotten
//	about collections or registered types.
//
// Thread Safety: Safe for concurrent use. Every method takes the lock for
// a single map operation.
type TypeFlowTracker struct {
	mu          sync.RWMutex
	variables   map[varKey]TypeInfo
	collections map[varKey][]TypeID
	types       map[TypeID]TypeInfo
}

// NewTypeFlowTracker returns an empty tracker.
func NewTypeFlowTracker() *TypeFlowTracker {
	return &TypeFlowTracker{
		variables:   make(map[varKey]TypeInfo),
		collections: make(map[varKey][]TypeID),
		types:       make(map[TypeID]TypeInfo),
	}
}

// RecordAssignment records that variable in file holds a value of the
// given type. Later assignments overwrite earlier ones.
func (t *TypeFlowTracker) RecordAssignment(file, variable string, info TypeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.variables[varKey{file: file, name: variable}] = info
}

// RecordCollectionAdd records that an element of type id was added to the
// named collection (append/add/insert). Duplicate element types collapse.
func (t *TypeFlowTracker) RecordCollectionAdd(file, collection string, id TypeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := varKey{file: file, name: collection}
	for _, existing := range t.collections[key] {
		if existing == id {
			return
		}
	}
	t.collections[key] = append(t.collections[key], id)
}

// RecordCollectionExtend records a batch of element types (extend/update).
func (t *TypeFlowTracker) RecordCollectionExtend(file, collection string, ids []TypeID) {
	for _, id := range ids {
		t.RecordCollectionAdd(file, collection, id)
	}
}

// RegisterType records a type definition with its base classes.
func (t *TypeFlowTracker) RegisterType(info TypeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.types[info.ID] = info
}

// GetVariableType returns the recorded type of variable in file.
func (t *TypeFlowTracker) GetVariableType(file, variable string) (TypeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.variables[varKey{file: file, name: variable}]
	return info, ok
}

// GetCollectionTypeIDs returns the element types recorded for collection
// in file, in insertion order. Nil when nothing was recorded.
func (t *TypeFlowTracker) GetCollectionTypeIDs(file, collection string) []TypeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.collections[varKey{file: file, name: collection}]
	if ids == nil {
		return nil
	}
	out := make([]TypeID, len(ids))
	copy(out, ids)
	return out
}

// FindTypeByName returns the registered type with the given bare name,
// regardless of module. First match in deterministic (module-sorted)
// order wins when the name is ambiguous.
func (t *TypeFlowTracker) FindTypeByName(name string) (TypeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var best TypeInfo
	found := false
	for id, info := range t.types {
		if id.Name != name {
			continue
		}
		if !found || id.Module < best.ID.Module {
			best = info
			found = true
		}
	}
	return best, found
}

// GetTypeInfo returns the registered definition of id.
func (t *TypeFlowTracker) GetTypeInfo(id TypeID) (TypeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.types[id]
	return info, ok
}
