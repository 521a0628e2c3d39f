// hot_reload.go: Manifest-driven hot reload of loaded extension packages
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/agilira/argus"
)

// ReloadOptions configures how manifest changes are applied.
type ReloadOptions struct {
	Watcher WatcherOptions `json:"watcher" yaml:"watcher"`
	// Cascade reloads loaded dependents together with a changed package.
	// Without it a package with loaded dependents is left untouched.
	Cascade bool `json:"cascade" yaml:"cascade"`
	// MaxWatchedFiles bounds the number of manifests watched.
	MaxWatchedFiles int `json:"max_watched_files" yaml:"max_watched_files"`
}

// DefaultReloadOptions returns cascading reload with default polling.
func DefaultReloadOptions() ReloadOptions {
	return ReloadOptions{
		Watcher:         DefaultWatcherOptions(),
		Cascade:         true,
		MaxWatchedFiles: 256,
	}
}

// ManifestDiff lists the manifest fields that changed between two versions
// of a package.
type ManifestDiff struct {
	Package string   `json:"package"`
	Changes []string `json:"changes"`
}

// Changed reports whether anything relevant changed.
func (d ManifestDiff) Changed() bool { return len(d.Changes) > 0 }

// DiffManifests compares two manifests of the same package.
func DiffManifests(old, updated *ExtensionManifest) ManifestDiff {
	diff := ManifestDiff{}
	if updated != nil {
		diff.Package = updated.Package
	}
	if old == nil || updated == nil {
		diff.Changes = append(diff.Changes, "manifest")
		return diff
	}
	diff.Package = old.Package

	if old.Name != updated.Name {
		diff.Changes = append(diff.Changes, "name")
	}
	if old.Version != updated.Version {
		diff.Changes = append(diff.Changes, "version")
	}
	if old.Generation != updated.Generation {
		diff.Changes = append(diff.Changes, "generation")
	}
	if !reflect.DeepEqual(old.Platforms, updated.Platforms) {
		diff.Changes = append(diff.Changes, "platforms")
	}
	if !reflect.DeepEqual(old.Dependencies, updated.Dependencies) {
		diff.Changes = append(diff.Changes, "dependencies")
	}
	if !reflect.DeepEqual(old.Modules, updated.Modules) {
		diff.Changes = append(diff.Changes, "modules")
	}
	if !reflect.DeepEqual(old.Interfaces, updated.Interfaces) {
		diff.Changes = append(diff.Changes, "interfaces")
	}
	if old.Author != updated.Author || old.Description != updated.Description ||
		old.Homepage != updated.Homepage || old.Icon != updated.Icon {
		diff.Changes = append(diff.Changes, "metadata")
	}
	return diff
}

// ExtensionReloader watches the manifests of loaded packages and reloads a
// package when its manifest changes. A deleted manifest unloads the package.
type ExtensionReloader struct {
	loader  *ExtensionLoader
	options ReloadOptions
	logger  Logger
	watcher *argus.Watcher

	mu       sync.Mutex
	watched  map[string]string
	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	reloads  atomic.Int64
}

// NewExtensionReloader creates a reloader for the packages of loader.
func NewExtensionReloader(loader *ExtensionLoader, logger any, options ReloadOptions) *ExtensionReloader {
	if options.MaxWatchedFiles <= 0 {
		options.MaxWatchedFiles = DefaultReloadOptions().MaxWatchedFiles
	}
	l := NewLogger(logger)
	return &ExtensionReloader{
		loader:  loader,
		options: options,
		logger:  l,
		watcher: newArgusWatcher(options.Watcher, options.MaxWatchedFiles, l, "extension_reloader"),
		watched: make(map[string]string),
	}
}

// Start watches the manifest of every loaded package.
func (r *ExtensionReloader) Start() error {
	if r.stopped.Load() {
		return NewConfigWatcherError("extension reloader has been stopped and cannot be restarted", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("extension reloader is already running", nil)
	}

	for pkg, status := range r.loader.ListLoaded() {
		if status.State != LoadingStateLoaded || status.Manifest == nil || status.Manifest.Path == "" {
			continue
		}
		if err := r.watchLocked(pkg, status.Manifest.Path); err != nil {
			r.enabled.Store(false)
			return err
		}
	}
	if err := r.watcher.Start(); err != nil {
		r.enabled.Store(false)
		return NewConfigWatcherError("failed to start extension reloader", err)
	}
	r.logger.Info("Extension reloader started", "manifests", len(r.watched), "cascade", r.options.Cascade)
	return nil
}

func (r *ExtensionReloader) watchLocked(pkg, path string) error {
	clean := filepath.Clean(path)
	if _, ok := r.watched[clean]; ok {
		return nil
	}
	if err := r.watcher.Watch(clean, r.handleChange); err != nil {
		return NewConfigWatcherError("failed to watch extension manifest", err).WithContext("extension", pkg)
	}
	r.watched[clean] = pkg
	return nil
}

// Stop stops watching. It is permanent.
func (r *ExtensionReloader) Stop() error {
	var stopErr error
	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.stopped.Store(true)
		if !r.enabled.CompareAndSwap(true, false) {
			return
		}
		if err := r.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop extension reloader", err)
			return
		}
		r.logger.Info("Extension reloader stopped")
	})
	return stopErr
}

// IsRunning reports whether the reloader is active.
func (r *ExtensionReloader) IsRunning() bool {
	return r.enabled.Load() && !r.stopped.Load()
}

// Reloads returns the number of packages reloaded.
func (r *ExtensionReloader) Reloads() int64 { return r.reloads.Load() }

func (r *ExtensionReloader) packageFor(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkg, ok := r.watched[filepath.Clean(path)]
	return pkg, ok
}

func (r *ExtensionReloader) handleChange(event argus.ChangeEvent) {
	pkg, ok := r.packageFor(event.Path)
	if !ok {
		return
	}
	if event.IsDelete {
		r.logger.Info("Extension manifest removed", "extension", pkg, "path", event.Path)
		if err := r.RemovePackage(pkg); err != nil {
			r.logger.Warn("Extension not unloaded", "extension", pkg, "error", err)
		}
		return
	}
	if err := r.ReloadPackage(pkg); err != nil {
		r.logger.Warn("Extension reload failed", "extension", pkg, "error", err)
	}
}

// ReloadPackage re-reads the manifest of a loaded package and reloads it
// when it changed. With Cascade its loaded dependents are unloaded first
// and loaded again afterwards.
func (r *ExtensionReloader) ReloadPackage(pkg string) error {
	status, ok := r.loader.Status(pkg)
	if !ok {
		return NewExtensionNotFoundError(pkg)
	}
	updated, err := ReadPackageManifest(r.loader.Root(), pkg)
	if err == nil {
		diff := DiffManifests(status.Manifest, updated)
		if !diff.Changed() && status.State == LoadingStateLoaded {
			r.logger.Debug("Extension manifest unchanged", "extension", pkg)
			return nil
		}
		r.logger.Info("Extension manifest changed", "extension", pkg, "changes", diff.Changes)
	}

	dependents, err := r.detachDependents(pkg)
	if err != nil {
		return err
	}
	reloadErr := r.loader.Reload(pkg)
	r.reattach(dependents)
	if reloadErr != nil {
		return reloadErr
	}
	r.reloads.Add(1)
	return nil
}

// RemovePackage unloads a package, and with Cascade its loaded dependents.
func (r *ExtensionReloader) RemovePackage(pkg string) error {
	if _, err := r.detachDependents(pkg); err != nil {
		return err
	}
	r.mu.Lock()
	for path, owner := range r.watched {
		if owner == pkg {
			delete(r.watched, path)
		}
	}
	r.mu.Unlock()
	return r.loader.Unload(pkg)
}

// detachDependents unloads the transitive dependents of pkg, deepest first,
// and returns them in the order they were discovered.
func (r *ExtensionReloader) detachDependents(pkg string) ([]string, error) {
	if !r.options.Cascade {
		return nil, r.loader.CheckRemoval(pkg)
	}
	var order []string
	seen := map[string]bool{pkg: true}
	frontier := []string{pkg}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, dependent := range r.loader.Dependents(next) {
			if !seen[dependent] {
				seen[dependent] = true
				order = append(order, dependent)
				frontier = append(frontier, dependent)
			}
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		if err := r.loader.Unload(order[i]); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// reattach loads detached dependents until no further progress is made.
func (r *ExtensionReloader) reattach(pending []string) {
	for len(pending) > 0 {
		var remaining []string
		var lastErr error
		for _, pkg := range pending {
			if err := r.loader.Load(pkg); err != nil {
				remaining = append(remaining, pkg)
				lastErr = err
			}
		}
		if len(remaining) == len(pending) {
			r.logger.Warn("Dependents could not be reloaded", "extensions", remaining, "error", lastErr)
			return
		}
		pending = remaining
	}
}
