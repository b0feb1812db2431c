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
	"sync"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// ClassInfo is a class definition as seen by the index.
type ClassInfo struct {
	Name    string
	File    string
	Line    int
	Bases   []string
	Methods map[string]graph.FunctionID
}

// ClassIndex is the project-wide class table.
//
// Description:
//
//	Classes are keyed by bare name. Method resolution walks the base
//	class chain depth-first with cycle protection, so inherited methods
//	resolve to the defining class.
//
// Thread Safety: Safe for concurrent use.
type ClassIndex struct {
	mu      sync.RWMutex
	classes map[string]*ClassInfo
}

// NewClassIndex returns an empty index.
func NewClassIndex() *ClassIndex {
	return &ClassIndex{classes: make(map[string]*ClassInfo)}
}

// AddClass registers a class definition. Re-adding the same class merges
// bases and keeps existing methods.
func (c *ClassIndex) AddClass(name, file string, line int, bases []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.classes[name]; ok {
		existing.Bases = mergeBases(existing.Bases, bases)
		return
	}
	c.classes[name] = &ClassInfo{
		Name:    name,
		File:    file,
		Line:    line,
		Bases:   append([]string(nil), bases...),
		Methods: make(map[string]graph.FunctionID),
	}
}

func mergeBases(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, b := range existing {
		seen[b] = true
	}
	for _, b := range extra {
		if !seen[b] {
			existing = append(existing, b)
			seen[b] = true
		}
	}
	return existing
}

// AddMethod registers a method on a class, creating the class entry if it
// has not been seen yet.
func (c *ClassIndex) AddMethod(class, method string, id graph.FunctionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.classes[class]
	if !ok {
		info = &ClassInfo{Name: class, File: id.File, Methods: make(map[string]graph.FunctionID)}
		c.classes[class] = info
	}
	info.Methods[method] = id
}

// Get returns a copy of the class entry.
func (c *ClassIndex) Get(name string) (ClassInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.classes[name]
	if !ok {
		return ClassInfo{}, false
	}
	out := *info
	out.Bases = append([]string(nil), info.Bases...)
	out.Methods = make(map[string]graph.FunctionID, len(info.Methods))
	for k, v := range info.Methods {
		out.Methods[k] = v
	}
	return out, true
}

// ResolveMethod finds method on class, walking base classes when the
// class itself does not define it.
func (c *ClassIndex) ResolveMethod(class, method string) (graph.FunctionID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveMethodLocked(class, method, map[string]bool{})
}

func (c *ClassIndex) resolveMethodLocked(class, method string, visited map[string]bool) (graph.FunctionID, bool) {
	if visited[class] {
		return graph.FunctionID{}, false
	}
	visited[class] = true

	info, ok := c.classes[class]
	if !ok {
		return graph.FunctionID{}, false
	}
	if id, ok := info.Methods[method]; ok {
		return id, true
	}
	for _, base := range info.Bases {
		if id, ok := c.resolveMethodLocked(base, method, visited); ok {
			return id, true
		}
	}
	return graph.FunctionID{}, false
}

// Subclasses returns the classes that list base (directly) in their bases.
func (c *ClassIndex) Subclasses(base string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for name, info := range c.classes {
		for _, b := range info.Bases {
			if b == base {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
