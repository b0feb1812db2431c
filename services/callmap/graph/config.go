// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds user-provided overrides for project analysis.
//
// Description:
//
//	Loaded from <projectRoot>/callmap.config.yaml. All fields are optional.
//	A missing config file is not an error (zero-config works out of the box).
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// ExcludePaths lists file path prefixes to skip during analysis.
	// Example: ["vendor/", "third_party/", ".venv/"]
	ExcludePaths []string `yaml:"exclude_paths"`

	// EntryPointDecorators lists extra decorator names (beyond the built-in
	// framework set) that mark a function as an entry point.
	// Example: ["scheduled_task", "cli_command"]
	EntryPointDecorators []string `yaml:"entry_point_decorators"`

	// MaxFileSizeBytes overrides the per-file parse size limit when positive.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
}

// LoadConfig reads callmap.config.yaml from the project root.
//
// Description:
//
//	Reads and parses the config file. If the project root is empty or the
//	file does not exist, returns an empty config with no error. Only
//	returns an error if the file exists but cannot be parsed.
//
// Inputs:
//
//	projectRoot - Absolute path to the project root. May be empty.
//
// Outputs:
//
//	Config - The parsed config, or empty config if file is missing.
//	error - Non-nil only if the file exists but has invalid YAML.
//
// Thread Safety: Safe for concurrent use (stateless function).
func LoadConfig(projectRoot string) (Config, error) {
	if projectRoot == "" {
		return Config{}, nil
	}

	configPath := filepath.Join(projectRoot, "callmap.config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading callmap.config.yaml: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing callmap.config.yaml: %w", err)
	}

	return config, nil
}

// Excluded reports whether relPath falls under any configured exclude prefix.
func (c Config) Excluded(relPath string) bool {
	norm := filepath.ToSlash(relPath)
	for _, prefix := range c.ExcludePaths {
		p := filepath.ToSlash(prefix)
		if p != "" && len(norm) >= len(p) && norm[:len(p)] == p {
			return true
		}
	}
	return false
}
