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
)

// ImportContext records every import binding a file establishes.
//
// Thread Safety: Built single-threaded during extraction, then read-only.
type ImportContext struct {
	// Imported maps a local name to the fully qualified symbol it names:
	// `from pkg.mod import f as g` yields Imported["g"] = "pkg.mod.f".
	Imported map[string]string

	// ModuleAliases maps a local module name to its dotted path:
	// `import numpy as np` yields ModuleAliases["np"] = "numpy";
	// `import pkg.sub` yields ModuleAliases["pkg.sub"] = "pkg.sub".
	ModuleAliases map[string]string

	// Wildcards lists modules pulled in via `from m import *`.
	Wildcards []string
}

// NewImportContext returns an empty context.
func NewImportContext() *ImportContext {
	return &ImportContext{
		Imported:      make(map[string]string),
		ModuleAliases: make(map[string]string),
	}
}

// AddModuleImport records `import module [as alias]`.
func (c *ImportContext) AddModuleImport(module, alias string) {
	if alias == "" {
		alias = module
	}
	c.ModuleAliases[alias] = module
}

// AddFromImport records `from module import symbol [as alias]`.
func (c *ImportContext) AddFromImport(module, symbol, alias string) {
	if alias == "" {
		alias = symbol
	}
	c.Imported[alias] = module + "." + symbol
}

// AddWildcardImport records `from module import *`.
func (c *ImportContext) AddWildcardImport(module string) {
	for _, existing := range c.Wildcards {
		if existing == module {
			return
		}
	}
	c.Wildcards = append(c.Wildcards, module)
}

// ModulePathForFile converts a project-relative file path to a dotted
// module path: "pkg/sub/mod.py" -> "pkg.sub.mod", "pkg/__init__.py" ->
// "pkg".
func ModulePathForFile(relPath string) string {
	p := strings.TrimSuffix(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), ".py")
	p = strings.TrimSuffix(p, "/__init__")
	p = strings.TrimPrefix(p, "./")
	return strings.ReplaceAll(p, "/", ".")
}

// ResolveRelativeModule resolves a relative import against the importing
// module: dots is the number of leading dots, target the trailing module
// path (may be empty for `from . import x`).
//
// For module "pkg.sub.mod", dots=1 target="util" yields "pkg.sub.util";
// dots=2 target="" yields "pkg".
func ResolveRelativeModule(modulePath string, dots int, target string) string {
	if dots <= 0 {
		return target
	}
	segments := strings.Split(modulePath, ".")
	// One dot means the module's own package.
	keep := len(segments) - dots
	if keep < 0 {
		keep = 0
	}
	base := segments[:keep]
	if target != "" {
		base = append(append([]string{}, base...), strings.Split(target, ".")...)
	}
	return strings.Join(base, ".")
}
