// runtime.go: Runtime facade wiring registries, loader and watchers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sync"
)

// RuntimeOptions configures a Runtime. Zero values select defaults.
type RuntimeOptions struct {
	// Logger accepts a Logger, a *zap.Logger or nil.
	Logger any
	// Path is the extensions directory used by Initialize when none is given.
	Path string
	// Platform is the runtime platform tag.
	Platform string

	Generation    int
	RetryLimit    int
	NativeModules []string

	Catalog *Catalog
	Config  *RuntimeConfig
	// ConfigPath loads Config from a file when Config is nil.
	ConfigPath string
	Metrics    MetricsCollector

	ExitFunc func(code int)
	LookPath func(file string) (string, error)
}

// Runtime is the host-facing entry point: it owns the contract registry,
// the app registry, the plugin manager, the notification bus and the
// extension loader.
type Runtime struct {
	options   RuntimeOptions
	logger    *swappableLogger
	config    *RuntimeConfig
	catalog   *Catalog
	bus       *NotificationBus
	contracts *ContractRegistry
	apps      *AppRegistry
	plugins   *PluginManager
	loader    *ExtensionLoader

	mu             sync.Mutex
	configWatcher  *ConfigWatcher
	extensionWatch *ExtensionReloader
}

// New builds a runtime. The "extensions" configuration section may supply
// retry_limit, generation and platform when the options leave them unset.
func New(opts RuntimeOptions) (*Runtime, error) {
	logger := newSwappableLogger(NewLogger(opts.Logger))

	config := opts.Config
	if config == nil && opts.ConfigPath != "" {
		loaded, err := LoadRuntimeConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if config == nil {
		config = NewRuntimeConfig(nil)
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = config.GetInt("extensions", "retry_limit", DefaultRetryLimit)
	}
	if opts.Generation == 0 {
		opts.Generation = config.GetInt("extensions", "generation", DefaultGeneration)
	}
	if opts.Platform == "" {
		opts.Platform = config.GetString("extensions", "platform", "")
	}
	if opts.Path == "" {
		opts.Path = config.GetString("extensions", "path", "")
	}
	if opts.Catalog == nil {
		opts.Catalog = NewCatalog()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoOpMetricsCollector{}
	}

	bus := NewNotificationBus(logger)
	contracts := NewContractRegistry(logger, bus, opts.Metrics)
	apps := NewAppRegistry(logger, bus)
	plugins := NewPluginManager(contracts, opts.Platform, logger, opts.Metrics)
	loader := NewExtensionLoader(LoaderConfig{
		Contracts:     contracts,
		Apps:          apps,
		Plugins:       plugins,
		Bus:           bus,
		Catalog:       opts.Catalog,
		Config:        config,
		Generation:    opts.Generation,
		RetryLimit:    opts.RetryLimit,
		NativeModules: opts.NativeModules,
		Metrics:       opts.Metrics,
		ExitFunc:      opts.ExitFunc,
		LookPath:      opts.LookPath,
	})

	return &Runtime{
		options:   opts,
		logger:    logger,
		config:    config,
		catalog:   opts.Catalog,
		bus:       bus,
		contracts: contracts,
		apps:      apps,
		plugins:   plugins,
		loader:    loader,
	}, nil
}

// Initialize sets the logger, extensions directory and platform. Empty
// arguments fall back to the options given to New. The logger replaces the
// one every component was built with.
func (r *Runtime) Initialize(logger any, path, platform string) error {
	if logger != nil {
		r.logger.set(NewLogger(logger))
	}
	if path == "" {
		path = r.options.Path
	}
	if platform == "" {
		platform = r.options.Platform
	}
	return r.loader.Initialize(r.logger, path, platform)
}

// LoadAll loads every discovered package.
func (r *Runtime) LoadAll() error { return r.loader.LoadAll() }

// Load loads one package by directory name.
func (r *Runtime) Load(name string) error { return r.loader.Load(name) }

// Unload unloads one package. Unknown names are ignored.
func (r *Runtime) Unload(name string) error { return r.loader.Unload(name) }

// Reload unloads a package and loads it again from disk.
func (r *Runtime) Reload(name string) error { return r.loader.Reload(name) }

// ListLoaded returns the status of every package seen so far.
func (r *Runtime) ListLoaded() map[string]ManifestStatus { return r.loader.ListLoaded() }

// Contracts returns the contract registry.
func (r *Runtime) Contracts() *ContractRegistry { return r.contracts }

// Provider returns a trusted host handle to the provider published under
// name. Gated methods are not checked for host handles.
func (r *Runtime) Provider(name string) (*Handle, error) {
	p, err := r.contracts.LookupProvider(name)
	if err != nil {
		return nil, err
	}
	return p.bind(nil), nil
}

// ProviderFor returns a handle that calls on behalf of app, checked
// against the interfaces the app declared.
func (r *Runtime) ProviderFor(app *AppInfo, name string) (*Handle, error) {
	if app == nil {
		return nil, NewInvalidCallError(name, "ProviderFor", "app is nil")
	}
	p, err := r.contracts.LookupProvider(name)
	if err != nil {
		return nil, err
	}
	return p.bind(newCallerToken(app.Name(), app.Interfaces())), nil
}

// Instance returns the instance behind a published provider without the
// gate.
func (r *Runtime) Instance(name string) (any, error) {
	p, err := r.contracts.LookupProvider(name)
	if err != nil {
		return nil, err
	}
	return p.instance, nil
}

// Apps returns the app registry.
func (r *Runtime) Apps() *AppRegistry { return r.apps }

// Plugins returns the plugin manager.
func (r *Runtime) Plugins() *PluginManager { return r.plugins }

// Bus returns the notification bus.
func (r *Runtime) Bus() *NotificationBus { return r.bus }

// Config returns the runtime configuration.
func (r *Runtime) Config() *RuntimeConfig { return r.config }

// Catalog returns the module catalog.
func (r *Runtime) Catalog() *Catalog { return r.catalog }

// Loader returns the extension loader.
func (r *Runtime) Loader() *ExtensionLoader { return r.loader }

// WatchConfig starts reloading the configuration file on change.
func (r *Runtime) WatchConfig(opts WatcherOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configWatcher != nil {
		return NewConfigWatcherError("config watcher is already running", nil)
	}
	w, err := NewConfigWatcher(r.config, r.bus, r.logger, opts)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	r.configWatcher = w
	return nil
}

// WatchExtensions starts reloading packages when their manifests change.
func (r *Runtime) WatchExtensions(opts ReloadOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extensionWatch != nil {
		return NewConfigWatcherError("extension reloader is already running", nil)
	}
	w := NewExtensionReloader(r.loader, r.logger, opts)
	if err := w.Start(); err != nil {
		return err
	}
	r.extensionWatch = w
	return nil
}

// Close stops the watchers and flushes the logger. Loaded packages stay
// loaded.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	if r.extensionWatch != nil {
		if err := r.extensionWatch.Stop(); err != nil {
			firstErr = err
		}
		r.extensionWatch = nil
	}
	if r.configWatcher != nil {
		if err := r.configWatcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.configWatcher = nil
	}
	flushLogger(r.logger)
	return firstErr
}
