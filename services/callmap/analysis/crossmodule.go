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
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

type cacheEntry struct {
	id graph.FunctionID
	ok bool
}

// CrossModuleContext is the project-wide symbol table plus the memoized
// cross-module resolution chain.
//
// Description:
//
//	Every file registers its exports (top-level functions, classes, and
//	Class.method entries) and its import context during extraction. After
//	the extraction barrier, ResolveFunction answers lookups through the
//	chain: imported symbols, module aliases and namespace paths, wildcard
//	imports, then other files' exports. Results, including failures, are
//	memoized per (file, name) and written at most once per run, so the
//	underlying chain executes exactly once for a repeated lookup.
//
// Thread Safety: Safe for concurrent use.
type CrossModuleContext struct {
	mu          sync.RWMutex
	exports     map[string]map[string]graph.FunctionID
	fileModules map[string]string
	imports     map[string]*ImportContext

	cacheMu sync.Mutex
	cache   map[varKey]cacheEntry

	// lookup is the uncached resolution chain. Tests wrap it to count
	// underlying lookups.
	lookup func(file, name string) (graph.FunctionID, bool)
}

// NewCrossModuleContext returns an empty context.
func NewCrossModuleContext() *CrossModuleContext {
	c := &CrossModuleContext{
		exports:     make(map[string]map[string]graph.FunctionID),
		fileModules: make(map[string]string),
		imports:     make(map[string]*ImportContext),
		cache:       make(map[varKey]cacheEntry),
	}
	c.lookup = c.resolveUncached
	return c
}

// RegisterExport publishes a symbol exported by module.
func (c *CrossModuleContext) RegisterExport(module, name string, id graph.FunctionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.exports[module]
	if !ok {
		table = make(map[string]graph.FunctionID)
		c.exports[module] = table
	}
	table[name] = id
}

// SetFileImports binds a file to its module path and import context.
func (c *CrossModuleContext) SetFileImports(file, module string, imp *ImportContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileModules[file] = module
	c.imports[file] = imp
}

// ModuleOf returns the dotted module path of file.
func (c *CrossModuleContext) ModuleOf(file string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fileModules[file]
}

// ImportsOf returns the import context of file, or an empty one.
func (c *CrossModuleContext) ImportsOf(file string) *ImportContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if imp, ok := c.imports[file]; ok {
		return imp
	}
	return NewImportContext()
}

// ResolveFunction resolves name as seen from file through the cross-module
// chain, memoizing the outcome.
//
// The cache is write-once per (file, name) per run: the first result,
// success or failure, sticks.
func (c *CrossModuleContext) ResolveFunction(file, name string) (graph.FunctionID, bool) {
	key := varKey{file: file, name: name}

	c.cacheMu.Lock()
	if entry, ok := c.cache[key]; ok {
		c.cacheMu.Unlock()
		return entry.id, entry.ok
	}
	c.cacheMu.Unlock()

	id, ok := c.lookup(file, name)

	c.cacheMu.Lock()
	if _, exists := c.cache[key]; !exists {
		c.cache[key] = cacheEntry{id: id, ok: ok}
	} else {
		// Another goroutine raced us; the first write wins.
		entry := c.cache[key]
		id, ok = entry.id, entry.ok
	}
	c.cacheMu.Unlock()
	return id, ok
}

// resolveUncached is the resolution chain proper, in strict priority
// order. It never consults or writes the cache.
func (c *CrossModuleContext) resolveUncached(file, name string) (graph.FunctionID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	imp := c.imports[file]

	if imp != nil {
		// Imported symbol, exact local name.
		if qualified, ok := imp.Imported[name]; ok {
			if id, found := c.lookupQualifiedLocked(qualified); found {
				return id, true
			}
		}

		// Dotted name whose first segment is an imported symbol
		// (`from m import Widget` then Widget.render).
		if head, rest, isDotted := strings.Cut(name, "."); isDotted {
			if qualified, ok := imp.Imported[head]; ok {
				if id, found := c.lookupQualifiedLocked(qualified + "." + rest); found {
					return id, true
				}
			}

			// Module alias receiver: `import pkg.mod as m` then m.f().
			// Longest alias prefix wins so `import pkg.sub` beats `import pkg`.
			if id, found := c.lookupAliasedLocked(imp, name); found {
				return id, true
			}
		}

		// Wildcard imports, in declaration order.
		for _, module := range imp.Wildcards {
			if id, ok := c.exports[module][name]; ok {
				return id, true
			}
		}
	}

	// Namespace path present verbatim in the symbol table
	// (import pkg.sub; pkg.sub.helper()).
	if id, found := c.lookupQualifiedLocked(name); found {
		return id, true
	}

	// Other files' exports: deterministic scan over sorted modules.
	modules := make([]string, 0, len(c.exports))
	for m := range c.exports {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		if id, ok := c.exports[m][name]; ok {
			return id, true
		}
	}

	return graph.FunctionID{}, false
}

// lookupAliasedLocked resolves "alias.rest" where alias (possibly dotted)
// is a module alias.
func (c *CrossModuleContext) lookupAliasedLocked(imp *ImportContext, name string) (graph.FunctionID, bool) {
	segments := strings.Split(name, ".")
	for cut := len(segments) - 1; cut >= 1; cut-- {
		alias := strings.Join(segments[:cut], ".")
		module, ok := imp.ModuleAliases[alias]
		if !ok {
			continue
		}
		rest := strings.Join(segments[cut:], ".")
		if id, ok := c.exports[module][rest]; ok {
			return id, true
		}
		// Bare final segment as fallback for method-style paths.
		if id, ok := c.exports[module][segments[len(segments)-1]]; ok {
			return id, true
		}
	}
	return graph.FunctionID{}, false
}

// lookupQualifiedLocked splits "pkg.mod.symbol" at every dot from the
// right and probes exports[module][symbol].
func (c *CrossModuleContext) lookupQualifiedLocked(qualified string) (graph.FunctionID, bool) {
	for i := len(qualified) - 1; i > 0; i-- {
		if qualified[i] != '.' {
			continue
		}
		module, symbol := qualified[:i], qualified[i+1:]
		if id, ok := c.exports[module][symbol]; ok {
			return id, true
		}
		// Symbol may itself be dotted (Class.method), so keep splitting
		// leftward; also probe the two-segment tail at this split.
		if j := strings.LastIndex(module, "."); j > 0 {
			if id, ok := c.exports[module[:j]][module[j+1:]+"."+symbol]; ok {
				return id, true
			}
		}
	}
	return graph.FunctionID{}, false
}

// FindExport scans every module for an export with the exact qualified
// name ("process_row", "Widget.render"), in sorted module order.
func (c *CrossModuleContext) FindExport(name string) (graph.FunctionID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	modules := make([]string, 0, len(c.exports))
	for m := range c.exports {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		if id, ok := c.exports[m][name]; ok {
			return id, true
		}
	}
	return graph.FunctionID{}, false
}

// ResolveByTrailingName is the last-resort heuristic: the first exported
// symbol, in sorted module and name order, whose qualified name ends with
// ".method". Explicitly low-confidence; callers label the edge accordingly.
func (c *CrossModuleContext) ResolveByTrailingName(method string) (graph.FunctionID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	suffix := "." + method
	modules := make([]string, 0, len(c.exports))
	for m := range c.exports {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		names := make([]string, 0, len(c.exports[m]))
		for n := range c.exports[m] {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if strings.HasSuffix(n, suffix) {
				return c.exports[m][n], true
			}
		}
	}
	return graph.FunctionID{}, false
}
