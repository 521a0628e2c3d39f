// contract_registry.go: Interface definitions and provider slots
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

// Unloader is implemented by plugins that need to release resources when
// they are withdrawn from the registry.
type Unloader interface {
	Unload()
}

// ContractRegistry defines interfaces and keeps, for each of them, the single
// live plugin providing it.
//
// Registration and withdrawal are serialized with a mutex; lookups take a
// read lock, so dispatchers can query the registry while a load pass runs.
type ContractRegistry struct {
	mu         sync.RWMutex
	interfaces map[string]*Interface
	slots      map[string]*Provider
	providers  map[string]*Provider

	logger  Logger
	metrics MetricsCollector
	bus     *NotificationBus
}

// NewContractRegistry creates an empty registry. Passing a nil bus disables
// provider notifications; a nil metrics collector drops samples.
func NewContractRegistry(logger any, bus *NotificationBus, metrics MetricsCollector) *ContractRegistry {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &ContractRegistry{
		interfaces: make(map[string]*Interface),
		slots:      make(map[string]*Provider),
		providers:  make(map[string]*Provider),
		logger:     NewLogger(logger),
		metrics:    metrics,
		bus:        bus,
	}
}

// DefineInterface defines a named contract.
//
// Redefining a name with an identical shape returns the existing interface,
// so a reloaded extension can run its definitions again.
func (r *ContractRegistry) DefineInterface(name string, methods, consumerRequired []MethodSignature, abstract bool) (*Interface, error) {
	iface, err := newInterface(name, methods, consumerRequired, abstract)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.interfaces[name]; ok {
		if existing.sameShape(methods, consumerRequired, abstract) {
			return existing, nil
		}
		return nil, NewDuplicateInterfaceError(name)
	}
	r.interfaces[name] = iface
	r.logger.Debug("Interface defined", "interface", name, "methods", len(methods), "abstract", abstract)
	return iface, nil
}

// LookupInterface returns a defined interface.
func (r *ContractRegistry) LookupInterface(name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iface, ok := r.interfaces[name]
	return iface, ok
}

// Interfaces returns the names of all defined interfaces, sorted.
func (r *ContractRegistry) Interfaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.interfaces))
	for name := range r.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterPlugin validates instance against every named interface and
// publishes it, wrapped by the capability gate, under each interface slot.
//
// Every interface is validated before any slot is written: a failed
// registration leaves the registry unchanged.
func (r *ContractRegistry) RegisterPlugin(id string, instance any, interfaces []string) (*Provider, error) {
	r.mu.Lock()
	if _, taken := r.providers[id]; taken {
		r.mu.Unlock()
		return nil, NewInvalidProviderError(id, "a plugin with this id is already published")
	}
	resolved, err := r.validateLocked(id, instance, interfaces, true)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	p := newProvider(id, instance, resolved, r.logger, r.metrics)
	p.published = true
	for _, iface := range resolved {
		r.slots[iface.Name()] = p
	}
	r.providers[id] = p
	r.mu.Unlock()

	r.metrics.IncrementCounter("extension_providers_published_total", nil, 1)
	r.logger.Info("Provider published", "plugin", id, "interfaces", strings.Join(p.names, ","))
	r.publish(Event{Type: EventProviderPublished, Provider: id, Interface: strings.Join(p.names, ",")})
	return p, nil
}

// newValidatedProvider wraps a multi-instance plugin without publishing it.
func (r *ContractRegistry) newValidatedProvider(id string, instance any, interfaces []string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved, err := r.validateLocked(id, instance, interfaces, false)
	if err != nil {
		return nil, err
	}
	return newProvider(id, instance, resolved, r.logger, r.metrics), nil
}

func (r *ContractRegistry) validateLocked(id string, instance any, interfaces []string, checkSlots bool) ([]*Interface, error) {
	if id == "" {
		return nil, NewInvalidProviderError(id, "plugin id is required")
	}
	if instance == nil {
		return nil, NewInvalidProviderError(id, "instance is nil")
	}

	resolved := make([]*Interface, 0, len(interfaces))
	seen := make(map[string]struct{}, len(interfaces))
	for _, name := range interfaces {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		iface, ok := r.interfaces[name]
		if !ok {
			return nil, NewUnknownInterfaceError(name)
		}
		if checkSlots {
			if current, occupied := r.slots[name]; occupied {
				return nil, NewAlreadyImplementedError(iface.Slot(), name, current.ID())
			}
		}
		if iface.IsAbstract() {
			return nil, NewAbstractInterfaceError(iface.Slot(), name)
		}
		if method, missing := missingMethod(instance, iface.ProviderMethods()); missing {
			return nil, NewInterfaceImplementationError(id, name, method)
		}
		resolved = append(resolved, iface)
	}
	return resolved, nil
}

// LookupProvider returns the provider published under an interface name,
// its slot name ("IStorage" or "PStorage") or a plugin id.
func (r *ContractRegistry) LookupProvider(name string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.slots[name]; ok {
		return p, nil
	}
	for ifaceName, p := range r.slots {
		if ProviderSlot(ifaceName) == name {
			return p, nil
		}
	}
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, NewProviderNotFoundError(name)
}

// Provider returns a published provider by plugin id.
func (r *ContractRegistry) Provider(id string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns the ids of all published providers, sorted.
func (r *ContractRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnregisterPlugin calls the plugin's Unload hook and then withdraws it from
// every slot it occupies. Unknown ids are ignored.
func (r *ContractRegistry) UnregisterPlugin(id string) error {
	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	r.unloadInstance(p)

	r.mu.Lock()
	if r.providers[id] != p {
		r.mu.Unlock()
		return nil
	}
	delete(r.providers, id)
	for name, occupant := range r.slots {
		if occupant == p {
			delete(r.slots, name)
		}
	}
	r.mu.Unlock()

	r.metrics.IncrementCounter("extension_providers_withdrawn_total", nil, 1)
	r.logger.Info("Provider withdrawn", "plugin", id)
	r.publish(Event{Type: EventProviderWithdrawn, Provider: id, Interface: strings.Join(p.names, ",")})
	return nil
}

// unloadInstance marks p unloaded and runs its Unload hook once.
func (r *ContractRegistry) unloadInstance(p *Provider) {
	if !p.unloaded.CompareAndSwap(false, true) {
		return
	}
	hook, ok := p.instance.(Unloader)
	if !ok {
		return
	}
	defer withStackRecover(r.logger, "plugin", p.id, "hook", "Unload")()
	hook.Unload()
}

// ValidateConsumer checks that an app implements the consumer-required
// methods of every interface it uses.
func (r *ContractRegistry) ValidateConsumer(app string, instance any, interfaces []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range interfaces {
		iface, ok := r.interfaces[name]
		if !ok {
			return NewUnknownInterfaceError(name)
		}
		if method, missing := missingMethod(instance, iface.ConsumerRequired()); missing {
			return NewAppInterfaceImplementationError(app, name, method)
		}
	}
	return nil
}

func (r *ContractRegistry) publish(event Event) {
	if r.bus != nil {
		r.bus.Publish(event)
	}
}
