// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast wraps tree-sitter parsing of Python source into Source
// handles the analysis package walks. It owns file-size and encoding
// validation, content hashing, and parse telemetry.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Sentinel errors returned by Parse.
var (
	// ErrFileTooLarge means content exceeded the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidContent means content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")
)

const (
	// DefaultMaxFileSize is the parse size limit unless overridden.
	DefaultMaxFileSize = 10 * 1024 * 1024
	// WarnFileSize triggers a slow-parse warning log.
	WarnFileSize = 1024 * 1024
)

// Source is a parsed Python file.
//
// Description:
//
//	Holds the raw content, the tree-sitter parse tree, and the source
//	split into lines for definition-site estimation. Callers must Close
//	the Source to release the tree.
//
// Thread Safety: Safe for concurrent reads. Close must not race with reads.
type Source struct {
	Path    string
	Content []byte
	Hash    string
	Lines   []string

	tree *sitter.Tree
}

// Root returns the module node of the parse tree.
func (s *Source) Root() *sitter.Node {
	return s.tree.RootNode()
}

// Text returns the source text spanned by node.
func (s *Source) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(s.Content[node.StartByte():node.EndByte()])
}

// HasSyntaxError reports whether the parse tree contains ERROR nodes.
// Tree-sitter is error-tolerant, so this is the signal that a file failed
// to parse even though a tree was produced.
func (s *Source) HasSyntaxError() bool {
	return s.tree.RootNode().HasError()
}

// Close releases the underlying tree-sitter tree.
func (s *Source) Close() {
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
}

// Line returns the 1-based line of node's first character.
func Line(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPoint().Row) + 1
}

// EndLine returns the 1-based line of node's last character.
func EndLine(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.EndPoint().Row) + 1
}

// EstimateDefinitionLine scans source lines for a `def <name>` or
// `async def <name>` prefix and returns its 1-based line, or 0 when no
// definition is found. Used for synthesized references (event-binding
// handlers) where the defining node is not at hand.
func EstimateDefinitionLine(lines []string, name string) int {
	short := name
	if i := strings.LastIndex(short, "."); i >= 0 {
		short = short[i+1:]
	}
	defPrefix := "def " + short
	asyncPrefix := "async def " + short
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, defPrefix) || strings.HasPrefix(trimmed, asyncPrefix) {
			rest := trimmed
			if strings.HasPrefix(trimmed, asyncPrefix) {
				rest = trimmed[len(asyncPrefix):]
			} else {
				rest = trimmed[len(defPrefix):]
			}
			// Reject prefix matches like "def handle_all" for "handle".
			if rest == "" || rest[0] == '(' || rest[0] == ' ' || rest[0] == ':' {
				return i + 1
			}
		}
	}
	return 0
}

// ParserOption configures a PythonParser instance.
type ParserOption func(*PythonParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser parses Python source with tree-sitter.
//
// Description:
//
//	Each Parse call creates its own tree-sitter parser instance, so a
//	single PythonParser is safe to share across goroutines. The parser is
//	error-tolerant: syntactically invalid code still yields a tree with
//	ERROR nodes, which downstream analysis skips.
//
// Thread Safety: Safe for concurrent use.
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a PythonParser with the given options.
func NewPythonParser(opts ...ParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses Python source into a Source handle.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing;
//	  tree-sitter itself cannot be interrupted mid-parse.
//	content - Raw Python source bytes. Must be valid UTF-8.
//	filePath - Path for error reporting and node identity. Should be
//	  relative to the project root with forward slashes.
//
// Outputs:
//
//	*Source - The parsed file. Caller must Close it.
//	error - ErrFileTooLarge, ErrInvalidContent, context errors, or a
//	  wrapped tree-sitter failure.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*Source, error) {
	ctx, span := startParseSpan(ctx, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(time.Since(start), false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(time.Since(start), false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(time.Since(start), false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(time.Since(start), false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		tree.Close()
		recordParseMetrics(time.Since(start), false)
		return nil, fmt.Errorf("parse canceled: %w", err)
	}

	src := &Source{
		Path:    filePath,
		Content: content,
		Hash:    hex.EncodeToString(hash[:]),
		Lines:   strings.Split(string(content), "\n"),
		tree:    tree,
	}

	recordParseMetrics(time.Since(start), true)
	annotateParseSpan(span, src)
	return src, nil
}
