// plugin_manager.go: Plugin type lifecycle and instantiation protocol
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sort"
	"strings"
	"sync"
)

// PluginType describes how to build a plugin.
type PluginType struct {
	// Name is the plugin id and must be unique among live types.
	Name string
	// Implements lists the interfaces the instance must satisfy.
	Implements []string
	// MultiInstance builds a fresh unpublished provider on every request.
	MultiInstance bool
	// Platforms restricts the type to these platform tags; empty or "any"
	// allows every platform.
	Platforms []string
	// New builds the instance.
	New func(ctx *RuntimeContext) (any, error)
}

// TypeState is the lifecycle state of a plugin type.
type TypeState int

const (
	// TypeUnregistered means the name is unknown.
	TypeUnregistered TypeState = iota
	// TypeRegistered means the type is known but not instantiated.
	TypeRegistered
	// TypeInstantiated means an instance was built (and cached unless multi-instance).
	TypeInstantiated
	// TypeUnloaded is terminal until the type is registered again.
	TypeUnloaded
)

// String returns the state name.
func (s TypeState) String() string {
	switch s {
	case TypeUnregistered:
		return "unregistered"
	case TypeRegistered:
		return "registered"
	case TypeInstantiated:
		return "instantiated"
	case TypeUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

type pluginTypeEntry struct {
	typ      PluginType
	state    TypeState
	provider *Provider
	ctx      *RuntimeContext
}

// PluginManager owns plugin types and turns them into published providers.
type PluginManager struct {
	mu        sync.Mutex
	types     map[string]*pluginTypeEntry
	contracts *ContractRegistry
	platform  string
	logger    Logger
	metrics   MetricsCollector
}

// NewPluginManager creates a manager publishing into contracts.
func NewPluginManager(contracts *ContractRegistry, platform string, logger any, metrics MetricsCollector) *PluginManager {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &PluginManager{
		types:     make(map[string]*pluginTypeEntry),
		contracts: contracts,
		platform:  platform,
		logger:    NewLogger(logger),
		metrics:   metrics,
	}
}

// RegisterType registers a plugin type built with a host-level context.
func (m *PluginManager) RegisterType(t PluginType) error {
	return m.register(t, nil)
}

func (m *PluginManager) register(t PluginType, ctx *RuntimeContext) error {
	if strings.TrimSpace(t.Name) == "" {
		return NewInvalidPluginTypeError(t.Name, "name is required")
	}
	if t.New == nil {
		return NewInvalidPluginTypeError(t.Name, "constructor is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx == nil {
		ctx = &RuntimeContext{
			platform:  m.platform,
			contracts: m.contracts,
			plugins:   m,
			logger:    m.logger,
		}
	}
	if existing, ok := m.types[t.Name]; ok && existing.state != TypeUnloaded {
		return NewDuplicatePluginTypeError(t.Name)
	}
	ctx = ctx.forCaller(t.Name, t.Implements)
	m.types[t.Name] = &pluginTypeEntry{typ: t, state: TypeRegistered, ctx: ctx}
	m.logger.Debug("Plugin type registered", "plugin_type", t.Name, "package", ctx.pkg)
	return nil
}

// Instantiate returns the provider for a plugin type, constructing and
// publishing it on first request. Multi-instance types get a new validated
// provider on every call which is neither cached nor published.
//
// A failed construction or validation leaves the type Registered.
func (m *PluginManager) Instantiate(name string) (*Provider, error) {
	m.mu.Lock()
	entry, ok := m.types[name]
	if !ok || entry.state == TypeUnloaded {
		m.mu.Unlock()
		return nil, NewPluginTypeNotFoundError(name)
	}
	if entry.provider != nil {
		p := entry.provider
		m.mu.Unlock()
		return p, nil
	}
	t, ctx, platform := entry.typ, entry.ctx, m.platform
	m.mu.Unlock()

	if !platformAllowed(t.Platforms, platform) {
		return nil, NewPlatformRequirementError(t.Platforms)
	}

	var instance any
	err := callSafely(func() error {
		var ctorErr error
		instance, ctorErr = t.New(ctx)
		return ctorErr
	})
	if err != nil || instance == nil {
		m.metrics.IncrementCounter("extension_plugin_construction_failures_total", map[string]string{"plugin_type": name}, 1)
		return nil, NewPluginConstructionError(name, err)
	}

	var p *Provider
	if t.MultiInstance {
		p, err = m.contracts.newValidatedProvider(name, instance, t.Implements)
	} else {
		p, err = m.contracts.RegisterPlugin(name, instance, t.Implements)
	}
	if err != nil {
		discardInstance(m.logger, name, instance)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.state == TypeRegistered || entry.state == TypeInstantiated {
		entry.state = TypeInstantiated
		if !t.MultiInstance {
			entry.provider = p
		}
	}
	m.logger.Debug("Plugin instantiated", "plugin_type", name, "multi_instance", t.MultiInstance)
	return p, nil
}

func (m *PluginManager) setPlatform(platform string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platform = platform
}

// Get returns the cached provider without constructing one.
func (m *PluginManager) Get(name string) (*Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.types[name]
	if !ok || entry.provider == nil {
		return nil, false
	}
	return entry.provider, true
}

// UnloadType withdraws the published provider of a type, calling its Unload
// hook, and marks the type Unloaded. Unknown or unloaded types are ignored.
func (m *PluginManager) UnloadType(name string) error {
	m.mu.Lock()
	entry, ok := m.types[name]
	if !ok || entry.state == TypeUnloaded {
		m.mu.Unlock()
		return nil
	}
	p := entry.provider
	entry.provider = nil
	entry.state = TypeUnloaded
	m.mu.Unlock()

	m.logger.Debug("Plugin type unloaded", "plugin_type", name)
	if p == nil {
		return nil
	}
	return m.contracts.UnregisterPlugin(p.ID())
}

// State returns the lifecycle state of a type.
func (m *PluginManager) State(name string) TypeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.types[name]
	if !ok {
		return TypeUnregistered
	}
	return entry.state
}

// Types returns the names of all live types, sorted.
func (m *PluginManager) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.types))
	for name, entry := range m.types {
		if entry.state != TypeUnloaded {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Type returns the declaration of a live type.
func (m *PluginManager) Type(name string) (PluginType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.types[name]
	if !ok || entry.state == TypeUnloaded {
		return PluginType{}, false
	}
	return entry.typ, true
}

// discardInstance runs the Unload hook of an instance that was built but
// never published.
func discardInstance(logger Logger, name string, instance any) {
	hook, ok := instance.(Unloader)
	if !ok {
		return
	}
	defer withStackRecover(logger, "plugin", name, "hook", "Unload")()
	hook.Unload()
}

func platformAllowed(platforms []string, platform string) bool {
	if len(platforms) == 0 {
		return true
	}
	for _, p := range platforms {
		if p == platformAny || p == platform {
			return true
		}
	}
	return false
}
