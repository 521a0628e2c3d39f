// contract.go: Interface contracts and method shape checks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"reflect"
	"strings"
)

// AnyArity disables the parameter count check of a MethodSignature.
const AnyArity = -1

// MethodSignature names a method and its parameter count.
type MethodSignature struct {
	Name  string `json:"name" yaml:"name"`
	Arity int    `json:"arity" yaml:"arity"`
}

// Method is shorthand for a MethodSignature literal.
func Method(name string, arity int) MethodSignature {
	return MethodSignature{Name: name, Arity: arity}
}

// Interface is an immutable named contract.
//
// Providers must implement Methods minus ConsumerRequired; apps using the
// interface must implement ConsumerRequired themselves. Abstract interfaces
// can be referenced but never implemented directly.
type Interface struct {
	name             string
	methods          []MethodSignature
	consumerRequired []MethodSignature
	abstract         bool
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// Methods returns a copy of every method of the contract.
func (i *Interface) Methods() []MethodSignature {
	return append([]MethodSignature(nil), i.methods...)
}

// ConsumerRequired returns the methods an app using the interface must implement.
func (i *Interface) ConsumerRequired() []MethodSignature {
	return append([]MethodSignature(nil), i.consumerRequired...)
}

// IsAbstract reports whether the interface may not be implemented.
func (i *Interface) IsAbstract() bool { return i.abstract }

// ProviderMethods returns the methods a provider must implement.
func (i *Interface) ProviderMethods() []MethodSignature {
	out := make([]MethodSignature, 0, len(i.methods))
	for _, m := range i.methods {
		if !containsSignature(i.consumerRequired, m.Name) {
			out = append(out, m)
		}
	}
	return out
}

// Slot returns the provider slot name of the interface.
func (i *Interface) Slot() string { return ProviderSlot(i.name) }

func (i *Interface) sameShape(methods, consumerRequired []MethodSignature, abstract bool) bool {
	return i.abstract == abstract &&
		sameSignatures(i.methods, methods) &&
		sameSignatures(i.consumerRequired, consumerRequired)
}

// ProviderSlot maps an interface name to the name its provider is published
// under: a leading "I" contract marker becomes "P" ("IStorage" -> "PStorage").
// Names without the marker get a "P" prefix.
func ProviderSlot(interfaceName string) string {
	if strings.HasPrefix(interfaceName, "I") && len(interfaceName) > 1 {
		return "P" + interfaceName[1:]
	}
	return "P" + interfaceName
}

func newInterface(name string, methods, consumerRequired []MethodSignature, abstract bool) (*Interface, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidInterfaceError(name, "name is required")
	}
	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if m.Name == "" {
			return nil, NewInvalidInterfaceError(name, "method name is required")
		}
		if _, dup := seen[m.Name]; dup {
			return nil, NewInvalidInterfaceError(name, "duplicate method "+m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	for _, m := range consumerRequired {
		if !containsSignature(methods, m.Name) {
			return nil, NewInvalidInterfaceError(name, "consumer-required method "+m.Name+" is not part of the interface")
		}
	}
	return &Interface{
		name:             name,
		methods:          append([]MethodSignature(nil), methods...),
		consumerRequired: append([]MethodSignature(nil), consumerRequired...),
		abstract:         abstract,
	}, nil
}

// missingMethod returns the first signature instance does not satisfy, if any.
func missingMethod(instance any, signatures []MethodSignature) (string, bool) {
	v := reflect.ValueOf(instance)
	for _, sig := range signatures {
		m := v.MethodByName(sig.Name)
		if !m.IsValid() || !arityMatches(m.Type(), sig.Arity) {
			return sig.Name, true
		}
	}
	return "", false
}

func arityMatches(t reflect.Type, arity int) bool {
	if arity < 0 {
		return true
	}
	if t.IsVariadic() {
		return arity >= t.NumIn()-1
	}
	return t.NumIn() == arity
}

func containsSignature(list []MethodSignature, name string) bool {
	for _, m := range list {
		if m.Name == name {
			return true
		}
	}
	return false
}

func sameSignatures(a, b []MethodSignature) bool {
	if len(a) != len(b) {
		return false
	}
	index := make(map[string]int, len(a))
	for _, m := range a {
		index[m.Name] = m.Arity
	}
	for _, m := range b {
		arity, ok := index[m.Name]
		if !ok || arity != m.Arity {
			return false
		}
	}
	return true
}

// typeName returns a readable name for the dynamic type of v.
func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
