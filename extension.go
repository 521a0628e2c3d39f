// extension.go: Registration entry points for compiled-in extension modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Extension is a module referenced from a manifest's modules list. The
// loader calls Register once per load of the owning package.
type Extension interface {
	Register(r *Registrar) error
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(r *Registrar) error

// Register implements Extension.
func (f ExtensionFunc) Register(r *Registrar) error { return f(r) }

// Catalog maps module names to compiled-in extensions.
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]Extension
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{modules: make(map[string]Extension)}
}

// Add makes ext available under name.
func (c *Catalog) Add(name string, ext Extension) error {
	if strings.TrimSpace(name) == "" {
		return NewSecurityValidationError("module name cannot be empty", nil)
	}
	if ext == nil {
		return NewInvalidPluginTypeError(name, "extension is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.modules[name]; exists {
		return NewInvalidPluginTypeError(name, "module is already in the catalog")
	}
	c.modules[name] = ext
	return nil
}

// Lookup returns the extension registered under name.
func (c *Catalog) Lookup(name string) (Extension, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ext, ok := c.modules[name]
	return ext, ok
}

// Names returns the sorted module names.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppType declares an app constructed when its package loads.
type AppType struct {
	// Name identifies the app; defaults to the manifest name.
	Name string
	// Uses lists the interfaces the app consumes.
	Uses []string
	// New builds the instance.
	New func(ctx *RuntimeContext) (any, error)
}

// RuntimeContext is handed to constructors and registration entry points.
type RuntimeContext struct {
	pkg       string
	platform  string
	contracts *ContractRegistry
	apps      *AppRegistry
	plugins   *PluginManager
	bus       *NotificationBus
	config    *RuntimeConfig
	logger    Logger
	caller    Caller
}

// Package returns the package the context belongs to.
func (c *RuntimeContext) Package() string { return c.pkg }

// Platform returns the runtime platform tag.
func (c *RuntimeContext) Platform() string { return c.platform }

// Contracts returns the contract registry.
func (c *RuntimeContext) Contracts() *ContractRegistry { return c.contracts }

// Apps returns the app registry.
func (c *RuntimeContext) Apps() *AppRegistry { return c.apps }

// Plugins returns the plugin manager.
func (c *RuntimeContext) Plugins() *PluginManager { return c.plugins }

// Bus returns the notification bus.
func (c *RuntimeContext) Bus() *NotificationBus { return c.bus }

// Config returns the runtime configuration, never nil.
func (c *RuntimeContext) Config() *RuntimeConfig {
	if c.config == nil {
		return NewRuntimeConfig(nil)
	}
	return c.config
}

// Logger returns a logger tagged with the package name.
func (c *RuntimeContext) Logger() Logger { return c.logger }

// Provider looks up a published provider like Contracts().LookupProvider
// and binds it to the token of the type being constructed. Module Register
// functions get a token without interfaces, so gated calls are refused.
func (c *RuntimeContext) Provider(name string) (*Handle, error) {
	p, err := c.contracts.LookupProvider(name)
	if err != nil {
		return nil, err
	}
	return p.bind(c.token()), nil
}

// Bind binds a provider obtained elsewhere, such as a multi-instance
// provider from Plugins().Instantiate, to the context's token.
func (c *RuntimeContext) Bind(p *Provider) *Handle {
	return p.bind(c.token())
}

func (c *RuntimeContext) token() Caller {
	if c.caller == nil {
		return newCallerToken(c.pkg, nil)
	}
	return c.caller
}

// Context returns a context carrying the package logger.
func (c *RuntimeContext) Context() context.Context {
	return ContextWithLogger(context.Background(), c.logger)
}

func (c *RuntimeContext) forPackage(pkg string) *RuntimeContext {
	clone := *c
	clone.pkg = pkg
	clone.logger = c.logger.With("extension", pkg)
	clone.caller = newCallerToken(pkg, nil)
	return &clone
}

// forCaller returns a copy whose token carries the interfaces a plugin type
// implements or an app type uses.
func (c *RuntimeContext) forCaller(name string, interfaces []string) *RuntimeContext {
	clone := *c
	clone.caller = newCallerToken(name, interfaces)
	return &clone
}

// Registrar is the handle a module receives in Register. It records what
// the module adds so a failed load can be rolled back.
type Registrar struct {
	ctx         *RuntimeContext
	pluginTypes []string
	appTypes    []AppType
}

func newRegistrar(ctx *RuntimeContext) *Registrar {
	return &Registrar{ctx: ctx}
}

// Context returns the runtime context of the package being loaded.
func (r *Registrar) Context() *RuntimeContext { return r.ctx }

// Logger returns the package logger.
func (r *Registrar) Logger() Logger { return r.ctx.logger }

// DefineInterface defines an interface in the contract registry.
func (r *Registrar) DefineInterface(name string, methods, consumerRequired []MethodSignature, abstract bool) (*Interface, error) {
	return r.ctx.contracts.DefineInterface(name, methods, consumerRequired, abstract)
}

// RegisterPluginType registers a plugin type owned by the package.
func (r *Registrar) RegisterPluginType(t PluginType) error {
	if err := r.ctx.plugins.register(t, r.ctx); err != nil {
		return err
	}
	r.pluginTypes = append(r.pluginTypes, t.Name)
	return nil
}

// RegisterAppType declares an app to construct once the package's plugins
// are instantiated.
func (r *Registrar) RegisterAppType(t AppType) error {
	if t.New == nil {
		return NewInvalidPluginTypeError(t.Name, "app constructor is required")
	}
	if len(t.Uses) == 0 {
		r.ctx.logger.Debug("App type uses no interfaces and will not be registered", "app", t.Name)
	}
	r.appTypes = append(r.appTypes, t)
	return nil
}

// PluginTypes returns the plugin type names registered through r.
func (r *Registrar) PluginTypes() []string {
	return append([]string(nil), r.pluginTypes...)
}
