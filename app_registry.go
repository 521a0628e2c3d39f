// app_registry.go: Consumer-side registry of app instances
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"reflect"
	"sync"
)

// AppMetadata describes an app. Everything except Name comes from the
// manifest of the owning package.
type AppMetadata struct {
	Name        string `json:"name" yaml:"name"`
	Package     string `json:"package" yaml:"package"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage    string `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// AppInfo wraps a registered app instance. It doubles as the app's caller
// token for gated calls.
type AppInfo struct {
	meta       AppMetadata
	instance   any
	interfaces []string
}

// Name returns the app name.
func (a *AppInfo) Name() string { return a.meta.Name }

// Metadata returns the app metadata.
func (a *AppInfo) Metadata() AppMetadata { return a.meta }

// Instance returns the app instance.
func (a *AppInfo) Instance() any { return a.instance }

// Interfaces returns the interfaces the app uses.
func (a *AppInfo) Interfaces() []string { return append([]string(nil), a.interfaces...) }

// Uses reports whether the app declared iface.
func (a *AppInfo) Uses(iface string) bool {
	for _, name := range a.interfaces {
		if name == iface {
			return true
		}
	}
	return false
}

// CallerName implements Caller.
func (a *AppInfo) CallerName() string { return a.meta.Name }

// CallerInterfaces implements Caller.
func (a *AppInfo) CallerInterfaces() []string { return a.interfaces }

// AppRegistry tracks app instances by the interfaces they use.
type AppRegistry struct {
	mu      sync.RWMutex
	apps    []*AppInfo
	buckets map[string][]*AppInfo

	logger Logger
	bus    *NotificationBus
}

// NewAppRegistry creates an empty registry. A nil bus disables notifications.
func NewAppRegistry(logger any, bus *NotificationBus) *AppRegistry {
	return &AppRegistry{
		buckets: make(map[string][]*AppInfo),
		logger:  NewLogger(logger),
		bus:     bus,
	}
}

// Register records instance under every interface and fires one register
// event per interface. It returns nil when interfaces is empty and the
// existing wrapper when instance is already registered.
func (r *AppRegistry) Register(meta AppMetadata, instance any, interfaces []string) *AppInfo {
	if len(interfaces) == 0 || instance == nil {
		r.logger.Debug("App not registered: no interfaces", "app", meta.Name)
		return nil
	}

	r.mu.Lock()
	for _, existing := range r.apps {
		if sameInstance(existing.instance, instance) {
			r.mu.Unlock()
			return existing
		}
	}
	info := &AppInfo{meta: meta, instance: instance, interfaces: uniqueStrings(interfaces)}
	r.apps = append(r.apps, info)
	for _, iface := range info.interfaces {
		r.buckets[iface] = append(r.buckets[iface], info)
	}
	r.mu.Unlock()

	r.logger.Info("App registered", "app", meta.Name, "package", meta.Package)
	for _, iface := range info.interfaces {
		r.publish(Event{Type: EventRegister, App: info, Interface: iface, Extension: meta.Package})
	}
	return info
}

// Unregister removes info from every interface bucket and fires one
// unregister event per interface. It reports whether info was registered.
func (r *AppRegistry) Unregister(info *AppInfo) bool {
	if info == nil {
		return false
	}
	r.mu.Lock()
	idx := -1
	for i, existing := range r.apps {
		if existing == info {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	r.apps = append(r.apps[:idx], r.apps[idx+1:]...)
	for _, iface := range info.interfaces {
		bucket := r.buckets[iface]
		for i, existing := range bucket {
			if existing == info {
				r.buckets[iface] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	r.logger.Info("App unregistered", "app", info.meta.Name, "package", info.meta.Package)
	for _, iface := range info.interfaces {
		r.publish(Event{Type: EventUnregister, App: info, Interface: iface, Extension: info.meta.Package})
	}
	return true
}

// UnregisterByName removes every app with the given name and returns how
// many were removed.
func (r *AppRegistry) UnregisterByName(name string) int {
	removed := 0
	for _, info := range r.Grab("", func(a *AppInfo) bool { return a.meta.Name == name }) {
		if r.Unregister(info) {
			removed++
		}
	}
	return removed
}

// UnregisterInstance removes the wrapper of instance, looked up by identity.
func (r *AppRegistry) UnregisterInstance(instance any) bool {
	r.mu.RLock()
	var target *AppInfo
	for _, existing := range r.apps {
		if sameInstance(existing.instance, instance) {
			target = existing
			break
		}
	}
	r.mu.RUnlock()
	return r.Unregister(target)
}

// Grab returns the apps registered under iface narrowed by filter. An empty
// iface returns every app. The result never holds the same app twice.
func (r *AppRegistry) Grab(iface string, filter func(*AppInfo) bool) []*AppInfo {
	r.mu.RLock()
	var source []*AppInfo
	if iface == "" {
		source = r.apps
	} else if bucket, ok := r.buckets[iface]; ok {
		source = bucket
	} else {
		known := len(r.apps) > 0
		r.mu.RUnlock()
		if known {
			r.logger.Warn("No apps registered for interface", "interface", iface)
		}
		return []*AppInfo{}
	}
	out := make([]*AppInfo, 0, len(source))
	for _, info := range source {
		if filter == nil || filter(info) {
			out = append(out, info)
		}
	}
	r.mu.RUnlock()
	return out
}

// Len returns the number of registered apps.
func (r *AppRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.apps)
}

func (r *AppRegistry) publish(event Event) {
	if r.bus != nil {
		r.bus.Publish(event)
	}
}

// sameInstance compares by identity for reference kinds and by value for
// comparable values.
func sameInstance(a, b any) (same bool) {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
