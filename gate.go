// gate.go: Capability gate guarding every call into a published plugin
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Caller is a capability token presented with every gated call.
//
// Apps present the interfaces they use, plugins the interfaces they
// implement. Extension code never picks its own token: the runtime binds
// handles to the token of the type being constructed. A nil Caller stands
// for trusted host code and is only handed out by Runtime.
type Caller interface {
	CallerName() string
	CallerInterfaces() []string
}

// callerToken is the token minted for a plugin or app type.
type callerToken struct {
	name       string
	interfaces []string
}

func newCallerToken(name string, interfaces []string) callerToken {
	return callerToken{name: name, interfaces: append([]string(nil), interfaces...)}
}

func (c callerToken) CallerName() string         { return c.name }
func (c callerToken) CallerInterfaces() []string { return c.interfaces }

// Provider is a published plugin instance wrapped by the capability gate.
//
// All fields except the unloaded flag are fixed at construction, so
// Authorize and Call can run concurrently without locking.
type Provider struct {
	id         string
	instance   any
	value      reflect.Value
	interfaces []*Interface
	names      []string
	gated      map[string]struct{}
	published  bool
	unloaded   atomic.Bool

	logger  Logger
	metrics MetricsCollector
}

func newProvider(id string, instance any, interfaces []*Interface, logger Logger, metrics MetricsCollector) *Provider {
	p := &Provider{
		id:         id,
		instance:   instance,
		value:      reflect.ValueOf(instance),
		interfaces: interfaces,
		names:      make([]string, 0, len(interfaces)),
		gated:      make(map[string]struct{}),
		logger:     logger,
		metrics:    metrics,
	}
	for _, iface := range interfaces {
		p.names = append(p.names, iface.Name())
		for _, m := range iface.ProviderMethods() {
			p.gated[m.Name] = struct{}{}
		}
	}
	return p
}

// ID returns the plugin id.
func (p *Provider) ID() string { return p.id }

// Interfaces returns the names of the implemented interfaces in declaration order.
func (p *Provider) Interfaces() []string {
	return append([]string(nil), p.names...)
}

// Implements reports whether the provider implements the named interface.
func (p *Provider) Implements(name string) bool {
	for _, n := range p.names {
		if n == name {
			return true
		}
	}
	return false
}

// Published reports whether the provider occupies interface slots.
func (p *Provider) Published() bool { return p.published }

// Unloaded reports whether the provider was withdrawn.
func (p *Provider) Unloaded() bool { return p.unloaded.Load() }

// IsGated reports whether calls to method go through Authorize.
func (p *Provider) IsGated(method string) bool {
	_, ok := p.gated[method]
	return ok
}

// Authorize checks that caller may invoke method on the provider.
func (p *Provider) Authorize(caller Caller, method string) error {
	if isTrustedCaller(caller) {
		return nil
	}
	for _, declared := range caller.CallerInterfaces() {
		if p.Implements(declared) {
			return nil
		}
	}
	p.metrics.IncrementCounter("extension_access_denied_total", map[string]string{
		"provider": p.id,
		"method":   method,
	}, 1)
	p.logger.Warn("Access denied",
		"caller", caller.CallerName(),
		"provider", p.id,
		"method", method)
	return NewAccessDeniedError(caller.CallerName(), method)
}

// call invokes method on the wrapped instance on behalf of caller.
//
// Gated methods are authorized first. The method's results are returned in
// order, except a trailing error result, which is returned as the call error
// unchanged. Panics raised by the method propagate.
func (p *Provider) call(caller Caller, method string, args ...any) ([]any, error) {
	if p.unloaded.Load() {
		return nil, NewProviderNotFoundError(p.id)
	}
	m := p.value.MethodByName(method)
	if !m.IsValid() {
		return nil, NewMethodNotFoundError(p.id, method)
	}
	if p.IsGated(method) {
		if err := p.Authorize(caller, method); err != nil {
			return nil, err
		}
	}
	in, err := callArguments(m.Type(), args)
	if err != nil {
		return nil, NewInvalidCallError(p.id, method, err.Error())
	}
	return splitResults(m.Type(), m.Call(in))
}

func (p *Provider) bind(caller Caller) *Handle {
	return &Handle{provider: p, caller: caller}
}

// Handle is a provider bound to a caller token. It is the only way to call
// into a provider.
type Handle struct {
	provider *Provider
	caller   Caller
}

// ID returns the plugin id of the provider behind h.
func (h *Handle) ID() string { return h.provider.id }

// Interfaces returns the interfaces the provider implements.
func (h *Handle) Interfaces() []string { return h.provider.Interfaces() }

// Owner returns the name of the bound token, or "" for host handles.
func (h *Handle) Owner() string {
	if isTrustedCaller(h.caller) {
		return ""
	}
	return h.caller.CallerName()
}

// Call invokes method with the bound caller token.
func (h *Handle) Call(method string, args ...any) ([]any, error) {
	return h.provider.call(h.caller, method, args...)
}

// CallFirst calls method through h and returns its first result as T.
func CallFirst[T any](h *Handle, method string, args ...any) (T, error) {
	var zero T
	results, err := h.Call(method, args...)
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, NewInvalidCallError(h.provider.id, method, "method returned no value")
	}
	if results[0] == nil {
		return zero, nil
	}
	value, ok := results[0].(T)
	if !ok {
		return zero, NewInvalidCallError(h.provider.id, method,
			fmt.Sprintf("result is %T, not %T", results[0], zero))
	}
	return value, nil
}

func isTrustedCaller(caller Caller) bool {
	if caller == nil {
		return true
	}
	v := reflect.ValueOf(caller)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callArguments(t reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("expected %d arguments, got %d", fixed, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if i < fixed {
			pt = t.In(i)
		} else {
			pt = t.In(fixed).Elem()
		}
		v, err := argumentValue(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

func argumentValue(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch pt.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		default:
			return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", pt)
		}
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(pt) {
		return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), pt)
	}
	return v, nil
}

func splitResults(t reflect.Type, out []reflect.Value) ([]any, error) {
	n := len(out)
	var callErr error
	if n > 0 && t.Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			callErr = e.Interface().(error)
		}
		n--
	}
	results := make([]any, n)
	for i := 0; i < n; i++ {
		results[i] = out[i].Interface()
	}
	return results, callErr
}
