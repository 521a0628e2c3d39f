// loader.go: Dependency-ordered extension loader with bounded retries
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	timecache "github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

const (
	// DefaultRetryLimit bounds how often one package may fail on the same
	// missing sibling before the load pass is declared unsatisfiable.
	DefaultRetryLimit = 10
	// DefaultGeneration is the manifest generation this runtime accepts.
	DefaultGeneration = 1
)

// LoadingState is the state of a package in the loader.
type LoadingState string

const (
	// LoadingStatePending indicates the package is waiting to be loaded
	LoadingStatePending LoadingState = "pending"
	// LoadingStateLoading indicates the package is being loaded
	LoadingStateLoading LoadingState = "loading"
	// LoadingStateLoaded indicates the package loaded successfully
	LoadingStateLoaded LoadingState = "loaded"
	// LoadingStateFailed indicates the package was skipped
	LoadingStateFailed LoadingState = "failed"
	// LoadingStateUnloading indicates the package is being unloaded
	LoadingStateUnloading LoadingState = "unloading"
)

// ManifestStatus reports what the loader did with a package.
type ManifestStatus struct {
	Manifest *ExtensionManifest `json:"manifest"`
	State    LoadingState       `json:"state"`
	Problem  error              `json:"-"`
	LoadedAt time.Time          `json:"loaded_at,omitempty"`
	Plugins  []string           `json:"plugins,omitempty"`
	Apps     []string           `json:"apps,omitempty"`
}

// ProblemDescription returns a human-readable reason the package was skipped.
func (s ManifestStatus) ProblemDescription() string {
	return DescribeProblem(s.Problem)
}

// packageRecord is everything a package added to the registries.
type packageRecord struct {
	pluginTypes []string
	appTypes    []AppType
	apps        []*AppInfo
}

// LoaderConfig wires an ExtensionLoader to the registries it fills.
type LoaderConfig struct {
	Contracts *ContractRegistry
	Apps      *AppRegistry
	Plugins   *PluginManager
	Bus       *NotificationBus
	Catalog   *Catalog
	Config    *RuntimeConfig

	// Generation defaults to DefaultGeneration.
	Generation int
	// RetryLimit defaults to DefaultRetryLimit.
	RetryLimit int
	// NativeModules satisfy module dependencies in addition to the catalog.
	NativeModules []string

	Metrics MetricsCollector
	// ExitFunc terminates the process on an unsatisfiable dependency.
	// Defaults to os.Exit.
	ExitFunc func(code int)
	// LookPath finds external tools. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// ExtensionLoader discovers extension packages and loads them in an order
// that satisfies their plugin dependencies.
//
// Load passes are serialized. Observers of the bus run inside a pass and
// must not call back into Load, Unload or LoadAll.
type ExtensionLoader struct {
	mu sync.Mutex

	statusMu sync.RWMutex
	status   map[string]*ManifestStatus
	owned    map[string]*packageRecord
	retries  map[[2]string]int

	root        string
	platform    string
	initialized bool
	generation  int
	retryLimit  int

	contracts     *ContractRegistry
	apps          *AppRegistry
	plugins       *PluginManager
	bus           *NotificationBus
	catalog       *Catalog
	config        *RuntimeConfig
	nativeModules map[string]struct{}
	graph         *DependencyGraph

	logger    Logger
	metrics   LoaderMetrics
	collector MetricsCollector
	exit      func(int)
	lookPath  func(string) (string, error)
}

// NewExtensionLoader creates a loader. Initialize must be called before
// loading.
func NewExtensionLoader(cfg LoaderConfig) *ExtensionLoader {
	if cfg.Generation == 0 {
		cfg.Generation = DefaultGeneration
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.Catalog == nil {
		cfg.Catalog = NewCatalog()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoOpMetricsCollector{}
	}
	if cfg.ExitFunc == nil {
		cfg.ExitFunc = os.Exit
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	native := make(map[string]struct{}, len(cfg.NativeModules))
	for _, name := range cfg.NativeModules {
		native[name] = struct{}{}
	}
	return &ExtensionLoader{
		status:        make(map[string]*ManifestStatus),
		owned:         make(map[string]*packageRecord),
		retries:       make(map[[2]string]int),
		generation:    cfg.Generation,
		retryLimit:    cfg.RetryLimit,
		contracts:     cfg.Contracts,
		apps:          cfg.Apps,
		plugins:       cfg.Plugins,
		bus:           cfg.Bus,
		catalog:       cfg.Catalog,
		config:        cfg.Config,
		nativeModules: native,
		graph:         NewDependencyGraph(),
		logger:        DefaultLogger(),
		collector:     cfg.Metrics,
		exit:          cfg.ExitFunc,
		lookPath:      cfg.LookPath,
	}
}

// Initialize sets the logger, the extensions directory and the platform tag.
func (l *ExtensionLoader) Initialize(logger any, path, platform string) error {
	info, err := os.Stat(path)
	if err != nil {
		return NewDiscoveryError("extensions directory is not accessible", err).WithContext("path", path)
	}
	if !info.IsDir() {
		return NewDiscoveryError("extensions path is not a directory", nil).WithContext("path", path)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = NewLogger(logger)
	l.root = path
	l.platform = platform
	l.plugins.setPlatform(platform)
	l.initialized = true
	l.logger.Info("Extension loader initialized", "path", path, "platform", platform, "generation", l.generation)
	return nil
}

func (l *ExtensionLoader) baseContext() *RuntimeContext {
	return &RuntimeContext{
		platform:  l.platform,
		contracts: l.contracts,
		apps:      l.apps,
		plugins:   l.plugins,
		bus:       l.bus,
		config:    l.config,
		logger:    l.logger,
	}
}

// LoadAll loads every discovered package that is not loaded yet.
//
// Packages are taken from the end of the queue. A package failing on a
// missing sibling that is still queued is retried after that sibling; each
// (package, sibling) pair may fail at most RetryLimit+1 times. Exceeding the
// limit logs the cycle, flushes the logger and exits the process with
// status 1. LoadAll returns CircularDependencyError if the exit function
// returns.
func (l *ExtensionLoader) LoadAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return NewLoaderNotInitializedError()
	}

	passID := uuid.New().String()
	log := l.logger.With("pass", passID)
	l.metrics.LoadPasses.Add(1)
	started := time.Now()

	discovered, err := DiscoverExtensions(l.root, l.logger)
	if err != nil {
		return err
	}

	results := make(map[string]DiscoveryResult, len(discovered))
	queue := make([]string, 0, len(discovered))
	for _, r := range discovered {
		if _, dup := results[r.Package]; dup || l.isLoaded(r.Package) {
			continue
		}
		results[r.Package] = r
		queue = append(queue, r.Package)
		l.setStatus(r.Package, &ManifestStatus{Manifest: r.Manifest, State: LoadingStatePending})
	}

	l.statusMu.Lock()
	l.retries = make(map[[2]string]int)
	l.statusMu.Unlock()

	log.Info("Loading extensions", "packages", len(queue))
	failed := make(map[string]struct{})
	for len(queue) > 0 {
		pkg := queue[len(queue)-1]
		r := results[pkg]
		err := l.load(pkg, r.Manifest, r.Err)
		if err == nil {
			queue = removeString(queue, pkg)
			continue
		}

		missing, retryable := IsUnresolvedDependency(err)
		if !retryable {
			failed[pkg] = struct{}{}
			queue = removeString(queue, pkg)
			continue
		}

		count := l.recordRetry(pkg, missing)
		if count > l.retryLimit {
			return l.fatal(log, pkg, missing, count)
		}
		if idx := l.queuedIndex(queue, results, missing); idx >= 0 {
			queue = moveToEnd(queue, idx)
			log.Debug("Deferring extension until its dependency loads",
				"extension", pkg, "dependency", missing, "attempt", count)
			continue
		}
		if _, permanent := failed[missing]; permanent {
			log.Warn("Extension skipped: dependency failed to load", "extension", pkg, "dependency", missing)
		} else {
			log.Warn("Extension skipped: dependency not available", "extension", pkg, "dependency", missing)
		}
		queue = removeString(queue, pkg)
	}

	elapsed := time.Since(started)
	l.collector.RecordHistogram("extension_load_pass_seconds", nil, elapsed.Seconds())
	log.Info("Extensions loaded", "loaded", len(l.loadedNames()), "failed", len(failed), "duration", elapsed)
	l.publish(Event{Type: EventLoadApps, Metadata: map[string]interface{}{"pass": passID}})
	return nil
}

// Load loads a single package by directory name. Loading a package that is
// already loaded is a no-op. Missing siblings are not retried.
func (l *ExtensionLoader) Load(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return NewLoaderNotInitializedError()
	}
	if l.isLoaded(name) {
		return nil
	}
	manifest, err := ReadPackageManifest(l.root, name)
	if err != nil && ErrorCodeOf(err) == ErrCodeExtensionNotFound {
		return err
	}
	return l.load(name, manifest, err)
}

// Unload removes everything a package registered and forgets its status.
// Unknown packages are ignored.
func (l *ExtensionLoader) Unload(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unload(name)
}

// Reload unloads a package, re-reads its manifest and loads it again.
func (l *ExtensionLoader) Reload(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return NewLoaderNotInitializedError()
	}
	if err := l.unload(name); err != nil {
		return err
	}
	manifest, err := ReadPackageManifest(l.root, name)
	if err != nil && ErrorCodeOf(err) == ErrCodeExtensionNotFound {
		return err
	}
	l.logger.Info("Reloading extension", "extension", name)
	return l.load(name, manifest, err)
}

func (l *ExtensionLoader) load(pkg string, manifest *ExtensionManifest, discoveryErr error) error {
	if discoveryErr != nil {
		return l.fail(pkg, manifest, discoveryErr)
	}
	l.setStatus(pkg, &ManifestStatus{Manifest: manifest, State: LoadingStateLoading})

	if err := l.checkRequirements(manifest); err != nil {
		return l.fail(pkg, manifest, err)
	}

	ctx := l.baseContext().forPackage(pkg)
	rec := &packageRecord{}
	if err := l.install(manifest, ctx, rec); err != nil {
		l.rollback(pkg, rec)
		return l.fail(pkg, manifest, err)
	}

	status := &ManifestStatus{
		Manifest: manifest,
		State:    LoadingStateLoaded,
		LoadedAt: timecache.CachedTime(),
		Plugins:  append([]string(nil), rec.pluginTypes...),
	}
	for _, app := range rec.apps {
		status.Apps = append(status.Apps, app.Name())
	}
	l.statusMu.Lock()
	l.status[pkg] = status
	l.owned[pkg] = rec
	l.statusMu.Unlock()

	l.graph.Add(pkg, l.dependencyPackages(manifest))
	l.metrics.ExtensionsLoaded.Add(1)
	l.collector.IncrementCounter("extension_loads_total", map[string]string{"result": "loaded"}, 1)
	l.recordActive()
	l.logger.Info("Extension loaded",
		"extension", pkg,
		"version", manifest.Version,
		"plugins", len(status.Plugins),
		"apps", len(status.Apps))
	l.publish(Event{Type: EventExtensionLoaded, Extension: pkg})
	return nil
}

// install runs the package's modules and constructs what they registered.
func (l *ExtensionLoader) install(m *ExtensionManifest, ctx *RuntimeContext, rec *packageRecord) error {
	for _, module := range m.Modules {
		ext, ok := l.catalog.Lookup(module)
		if !ok {
			return NewModuleRequirementError(module)
		}
		reg := newRegistrar(ctx)
		err := callSafely(func() error { return ext.Register(reg) })
		rec.pluginTypes = append(rec.pluginTypes, reg.pluginTypes...)
		rec.appTypes = append(rec.appTypes, reg.appTypes...)
		if err != nil {
			return err
		}
	}

	for _, name := range rec.pluginTypes {
		if t, ok := l.plugins.Type(name); ok && t.MultiInstance {
			continue
		}
		if _, err := l.plugins.Instantiate(name); err != nil {
			return err
		}
	}

	for _, iface := range m.Interfaces {
		if _, err := l.contracts.LookupProvider(iface); err != nil {
			return NewAppRequirementError(iface)
		}
	}

	for _, t := range rec.appTypes {
		name := t.Name
		if name == "" {
			name = m.Name
		}
		appCtx := ctx.forCaller(name, t.Uses)
		var instance any
		err := callSafely(func() error {
			var ctorErr error
			instance, ctorErr = t.New(appCtx)
			return ctorErr
		})
		if err != nil || instance == nil {
			return NewPluginConstructionError(name, err)
		}
		if err := l.contracts.ValidateConsumer(name, instance, t.Uses); err != nil {
			discardInstance(ctx.logger, name, instance)
			return err
		}
		info := l.apps.Register(AppMetadata{
			Name:        name,
			Package:     m.Package,
			Author:      m.Author,
			Version:     m.Version,
			Description: m.Description,
			Homepage:    m.Homepage,
			Icon:        m.Icon,
		}, instance, t.Uses)
		if info != nil {
			rec.apps = append(rec.apps, info)
		}
	}
	return nil
}

// rollback removes apps and plugin types in reverse registration order.
func (l *ExtensionLoader) rollback(pkg string, rec *packageRecord) {
	for i := len(rec.apps) - 1; i >= 0; i-- {
		l.apps.Unregister(rec.apps[i])
	}
	for i := len(rec.pluginTypes) - 1; i >= 0; i-- {
		if err := l.plugins.UnloadType(rec.pluginTypes[i]); err != nil {
			l.logger.Warn("Failed to unload plugin type", "extension", pkg, "plugin_type", rec.pluginTypes[i], "error", err)
		}
	}
}

func (l *ExtensionLoader) fail(pkg string, manifest *ExtensionManifest, err error) error {
	problem := err
	if !IsRequirementError(err) {
		problem = NewExtensionCrashedError(pkg, err)
	}
	l.setStatus(pkg, &ManifestStatus{Manifest: manifest, State: LoadingStateFailed, Problem: problem})

	l.metrics.LoadFailures.Add(1)
	l.collector.IncrementCounter("extension_loads_total", map[string]string{"result": "failed"}, 1)
	l.logger.Warn("Extension skipped",
		"extension", pkg,
		"reason", DescribeProblem(problem),
		"code", ErrorCodeOf(problem),
		"error", err)
	l.publish(Event{Type: EventExtensionFailed, Extension: pkg, Error: problem})
	return problem
}

func (l *ExtensionLoader) unload(name string) error {
	l.statusMu.Lock()
	status, ok := l.status[name]
	if !ok {
		l.statusMu.Unlock()
		return nil
	}
	status.State = LoadingStateUnloading
	rec := l.owned[name]
	l.statusMu.Unlock()

	if rec != nil {
		l.rollback(name, rec)
	}

	l.statusMu.Lock()
	delete(l.status, name)
	delete(l.owned, name)
	l.statusMu.Unlock()
	l.graph.Remove(name)

	l.metrics.ExtensionsUnloaded.Add(1)
	l.collector.IncrementCounter("extension_unloads_total", nil, 1)
	l.recordActive()
	l.logger.Info("Extension unloaded", "extension", name)
	l.publish(Event{Type: EventExtensionUnloaded, Extension: name})
	return nil
}

func (l *ExtensionLoader) fatal(log Logger, pkg, missing string, count int) error {
	err := NewCircularDependencyError(pkg, missing, count)
	l.setStatus(pkg, &ManifestStatus{Manifest: l.manifestOf(pkg), State: LoadingStateFailed, Problem: err})
	log.Error("Circular or unsatisfiable dependency, aborting",
		"extension", pkg,
		"dependency", missing,
		"retries", count,
		"retry_limit", l.retryLimit)
	flushLogger(l.logger)
	l.exit(1)
	return err
}

func (l *ExtensionLoader) recordRetry(pkg, missing string) int {
	l.metrics.DependencyRetries.Add(1)
	l.collector.IncrementCounter("extension_dependency_retries_total", nil, 1)
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	key := [2]string{pkg, missing}
	l.retries[key]++
	return l.retries[key]
}

// queuedIndex finds the queued package a dependency name refers to, by
// package name or manifest name.
func (l *ExtensionLoader) queuedIndex(queue []string, results map[string]DiscoveryResult, name string) int {
	for i, pkg := range queue {
		if pkg == name {
			return i
		}
		if m := results[pkg].Manifest; m != nil && m.Name == name {
			return i
		}
	}
	return -1
}

// dependencyPackages maps the plugin dependencies of m to the loaded
// packages satisfying them.
func (l *ExtensionLoader) dependencyPackages(m *ExtensionManifest) []string {
	var pkgs []string
	for _, name := range m.PluginDependencies(l.platform) {
		if owner, ok := l.resolvePluginDependency(name); ok && owner != "" && owner != m.Package {
			pkgs = append(pkgs, owner)
		}
	}
	return pkgs
}

func (l *ExtensionLoader) setStatus(pkg string, status *ManifestStatus) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	l.status[pkg] = status
}

func (l *ExtensionLoader) manifestOf(pkg string) *ExtensionManifest {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	if st, ok := l.status[pkg]; ok {
		return st.Manifest
	}
	return nil
}

func (l *ExtensionLoader) isLoaded(pkg string) bool {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	st, ok := l.status[pkg]
	return ok && st.State == LoadingStateLoaded
}

func (l *ExtensionLoader) loadedNames() []string {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	var names []string
	for pkg, st := range l.status {
		if st.State == LoadingStateLoaded {
			names = append(names, pkg)
		}
	}
	sort.Strings(names)
	return names
}

func (l *ExtensionLoader) publish(event Event) {
	if l.bus != nil {
		l.bus.Publish(event)
	}
}

// ListLoaded returns the status of every package seen by the loader,
// including skipped ones.
func (l *ExtensionLoader) ListLoaded() map[string]ManifestStatus {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	out := make(map[string]ManifestStatus, len(l.status))
	for pkg, st := range l.status {
		out[pkg] = *st
	}
	return out
}

// Status returns the status of one package.
func (l *ExtensionLoader) Status(name string) (ManifestStatus, bool) {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	st, ok := l.status[name]
	if !ok {
		return ManifestStatus{}, false
	}
	return *st, true
}

// Dependents returns the loaded packages depending on name.
func (l *ExtensionLoader) Dependents(name string) []string {
	var out []string
	for _, dependent := range l.graph.Dependents(name) {
		if l.isLoaded(dependent) {
			out = append(out, dependent)
		}
	}
	return out
}

// CheckRemoval fails with RemovalConflictError while loaded packages still
// depend on name.
func (l *ExtensionLoader) CheckRemoval(name string) error {
	if dependents := l.Dependents(name); len(dependents) > 0 {
		return NewRemovalConflictError(name, dependents)
	}
	return nil
}

// LoadOrder returns the loaded packages ordered so that dependencies come
// before their dependents.
func (l *ExtensionLoader) LoadOrder() ([]string, error) {
	order, err := l.graph.LoadOrder()
	if err != nil {
		return nil, err
	}
	loaded := order[:0]
	for _, pkg := range order {
		if l.isLoaded(pkg) {
			loaded = append(loaded, pkg)
		}
	}
	return loaded, nil
}

// recordActive publishes the number of loaded packages as a gauge.
func (l *ExtensionLoader) recordActive() {
	l.statusMu.RLock()
	active := 0
	for _, st := range l.status {
		if st.State == LoadingStateLoaded {
			active++
		}
	}
	l.statusMu.RUnlock()
	l.collector.SetGauge("extensions_active", nil, float64(active))
}

// Retries returns how often pkg failed on missing during the last pass.
func (l *ExtensionLoader) Retries(pkg, missing string) int {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.retries[[2]string{pkg, missing}]
}

// Metrics returns a snapshot of the loader counters.
func (l *ExtensionLoader) Metrics() LoaderMetricsSnapshot {
	return l.metrics.Snapshot()
}

// Root returns the extensions directory.
func (l *ExtensionLoader) Root() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func moveToEnd(list []string, idx int) []string {
	item := list[idx]
	list = append(list[:idx], list[idx+1:]...)
	return append(list, item)
}
