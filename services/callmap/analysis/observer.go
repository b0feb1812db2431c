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
	"unicode"

	"github.com/AleutianAI/callmap/services/callmap/graph"
)

// GenericObserverInterface is the catch-all interface key. Implementations
// register under their specific interface AND under this key, so dispatch
// loops over anonymously-typed collections can still fan out.
const GenericObserverInterface = "Observer"

// observerFieldNames are the collection field names that signal an
// observer registry, matched case-insensitively as substrings.
var observerFieldNames = []string{
	"observers", "listeners", "handlers", "callbacks", "subscribers", "watchers",
}

// observerBaseSuffixes mark base classes that name an observer interface
// by convention.
var observerBaseSuffixes = []string{"Observer", "Listener", "Handler", "Callback"}

// IsObserverCollectionName reports whether a field name looks like an
// observer collection (self.listeners, self._event_handlers, ...).
func IsObserverCollectionName(field string) bool {
	lower := strings.ToLower(field)
	for _, name := range observerFieldNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// IsObserverInterfaceName reports whether a class name looks like an
// observer interface by suffix convention.
func IsObserverInterfaceName(name string) bool {
	for _, suffix := range observerBaseSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// InferInterfaceFromFieldName derives an interface name from a collection
// field: strip a trailing 's' and capitalize ("listeners" -> "Listener").
func InferInterfaceFromFieldName(field string) string {
	name := strings.TrimPrefix(field, "_")
	name = strings.TrimSuffix(name, "s")
	if name == "" {
		return GenericObserverInterface
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// PendingDispatch is a mined dispatch loop awaiting global fan-out.
//
// Dispatch loops are collected during per-file extraction but resolved
// only after every file has been processed, so implementations registered
// by later files still receive edges. Edge confidence is likewise scored
// at fan-out time, against the complete registry.
type PendingDispatch struct {
	Caller          graph.FunctionID
	CollectionField string
	InterfaceName   string
	MethodName      string
	Location        Location
}

// ObserverRegistry tracks observer interfaces, their implementations, and
// which collection fields hold them.
//
// Thread Safety: Safe for concurrent use.
type ObserverRegistry struct {
	mu              sync.RWMutex
	interfaces      map[string]map[string]bool // interface -> method set
	implementations map[string][]string        // interface -> implementing classes
	collections     map[string]string          // "Class.field" -> interface
}

// NewObserverRegistry returns an empty registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{
		interfaces:      make(map[string]map[string]bool),
		implementations: make(map[string][]string),
		collections:     make(map[string]string),
	}
}

// RegisterInterface records an interface and its method names. Dunder
// methods are skipped. Registering again adds methods.
func (r *ObserverRegistry) RegisterInterface(name string, methods []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.interfaces[name]
	if !ok {
		set = make(map[string]bool)
		r.interfaces[name] = set
	}
	for _, m := range methods {
		if strings.HasPrefix(m, "__") {
			continue
		}
		set[m] = true
	}
}

// RegisterImplementation records that class implements iface. The class is
// also registered under the generic Observer key.
func (r *ObserverRegistry) RegisterImplementation(iface, class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addImplementationLocked(iface, class)
	if iface != GenericObserverInterface {
		r.addImplementationLocked(GenericObserverInterface, class)
	}
}

func (r *ObserverRegistry) addImplementationLocked(iface, class string) {
	for _, existing := range r.implementations[iface] {
		if existing == class {
			return
		}
	}
	r.implementations[iface] = append(r.implementations[iface], class)
}

// RegisterCollection binds a "Class.field" observer collection to the
// interface its elements are assumed to implement.
func (r *ObserverRegistry) RegisterCollection(class, field, iface string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[class+"."+field] = iface
}

// CollectionInterface returns the interface bound to class.field.
func (r *ObserverRegistry) CollectionInterface(class, field string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iface, ok := r.collections[class+"."+field]
	return iface, ok
}

// Collections returns a copy of every registered observer collection,
// keyed "Class.field" -> interface name.
func (r *ObserverRegistry) Collections() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.collections))
	for k, v := range r.collections {
		out[k] = v
	}
	return out
}

// CollectionFieldsOf returns the observer collection fields declared on
// class, with their interfaces.
func (r *ObserverRegistry) CollectionFieldsOf(class string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := class + "."
	out := make(map[string]string)
	for k, v := range r.collections {
		if strings.HasPrefix(k, prefix) {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

// KnownInterface reports whether name was registered as an interface.
func (r *ObserverRegistry) KnownInterface(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.interfaces[name]
	return ok
}

// InterfaceMethods returns the method names of an interface, sorted.
func (r *ObserverRegistry) InterfaceMethods(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.interfaces[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Implementations returns the classes registered for iface, in
// registration order.
func (r *ObserverRegistry) Implementations(iface string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impls := r.implementations[iface]
	out := make([]string, len(impls))
	copy(out, impls)
	return out
}

// DispatchConfidence scores a mined dispatch loop.
//
// Base 0.85; +0.05 when the collection field matches a known observer
// name; +0.05 when the interface is registered. Clamped to [0.70, 0.95].
func DispatchConfidence(field string, interfaceRegistered bool) float64 {
	confidence := 0.85
	if IsObserverCollectionName(field) {
		confidence += 0.05
	}
	if interfaceRegistered {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	if confidence < 0.70 {
		confidence = 0.70
	}
	return confidence
}
