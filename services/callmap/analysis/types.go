// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis implements the multi-pass Python call graph resolver:
// per-file two-pass extraction, scope-chain type inference, cross-module
// symbol resolution with memoized caching, cross-file type-flow tracking,
// observer discovery with deferred dispatch synthesis, and callback
// tracking.
package analysis

// TypeKind discriminates the InferredType tagged union.
type TypeKind int

const (
	// KindUnknown is the absence of type information. Unknown never
	// upgrades on its own; only new evidence does.
	KindUnknown TypeKind = iota
	// KindBuiltin is a Python builtin type (int, str, list, ...).
	KindBuiltin
	// KindInstance is an instance of a user-defined class.
	KindInstance
	// KindClass is a reference to a class object itself.
	KindClass
	// KindModule is an imported module object.
	KindModule
	// KindFunction is a reference to a function object.
	KindFunction
)

// InferredType is the scope-level type lattice value.
//
// Name holds the builtin name, class name, module path, or function name
// depending on Kind; it is empty for KindUnknown.
type InferredType struct {
	Kind TypeKind
	Name string
}

// UnknownType is the bottom of the inference lattice.
func UnknownType() InferredType { return InferredType{Kind: KindUnknown} }

// BuiltinType returns a builtin type value.
func BuiltinType(name string) InferredType {
	return InferredType{Kind: KindBuiltin, Name: name}
}

// InstanceOf returns an instance-of-class type value.
func InstanceOf(class string) InferredType {
	return InferredType{Kind: KindInstance, Name: class}
}

// ClassType returns a class-object type value.
func ClassType(name string) InferredType {
	return InferredType{Kind: KindClass, Name: name}
}

// ModuleType returns a module-object type value.
func ModuleType(path string) InferredType {
	return InferredType{Kind: KindModule, Name: path}
}

// FunctionType returns a function-object type value.
func FunctionType(name string) InferredType {
	return InferredType{Kind: KindFunction, Name: name}
}

// IsKnown reports whether t carries any information.
func (t InferredType) IsKnown() bool { return t.Kind != KindUnknown }

// Location is a source position used by the trackers.
type Location struct {
	File string
	Line int
}

// builtinConstructors maps builtin constructor calls to the builtin type
// they produce.
var builtinConstructors = map[string]string{
	"int":       "int",
	"float":     "float",
	"str":       "str",
	"bool":      "bool",
	"list":      "list",
	"dict":      "dict",
	"set":       "set",
	"tuple":     "tuple",
	"frozenset": "frozenset",
	"bytes":     "bytes",
	"bytearray": "bytearray",
}

// BinaryOpResult applies the arithmetic inference rules.
//
// int op int yields int except true division, which yields float.
// str + str and str * int yield str. Anything else is Unknown.
func BinaryOpResult(op string, left, right InferredType) InferredType {
	if left.Kind != KindBuiltin || right.Kind != KindBuiltin {
		return UnknownType()
	}
	switch {
	case left.Name == "int" && right.Name == "int":
		if op == "/" {
			return BuiltinType("float")
		}
		switch op {
		case "+", "-", "*", "//", "%", "**", "&", "|", "^", "<<", ">>":
			return BuiltinType("int")
		}
	case left.Name == "str" && op == "+" && right.Name == "str":
		return BuiltinType("str")
	case left.Name == "str" && op == "*" && right.Name == "int":
		return BuiltinType("str")
	case left.Name == "float" || right.Name == "float":
		switch op {
		case "+", "-", "*", "/", "//", "%", "**":
			if (left.Name == "float" || left.Name == "int") &&
				(right.Name == "float" || right.Name == "int") {
				return BuiltinType("float")
			}
		}
	}
	return UnknownType()
}
