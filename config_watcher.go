// config_watcher.go: Hot reload of the runtime configuration file via Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// WatcherOptions tunes the Argus watchers used for configuration and
// manifest hot reload.
type WatcherOptions struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	CacheTTL     time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	// AuditFile enables the Argus audit trail when set.
	AuditFile string `json:"audit_file,omitempty" yaml:"audit_file,omitempty"`
}

// DefaultWatcherOptions returns the default polling settings.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     time.Second,
	}
}

func (o WatcherOptions) withDefaults() WatcherOptions {
	def := DefaultWatcherOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.CacheTTL <= 0 || o.CacheTTL > o.PollInterval {
		o.CacheTTL = o.PollInterval / 2
	}
	return o
}

func newArgusWatcher(opts WatcherOptions, maxFiles int, logger Logger, component string) *argus.Watcher {
	opts = opts.withDefaults()
	return argus.New(argus.Config{
		PollInterval:    opts.PollInterval,
		CacheTTL:        opts.CacheTTL,
		MaxWatchedFiles: maxFiles,
		Audit: argus.AuditConfig{
			Enabled:       opts.AuditFile != "",
			OutputFile:    opts.AuditFile,
			MinLevel:      argus.AuditInfo,
			BufferSize:    100,
			FlushInterval: 5 * time.Second,
		},
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			logger.Error("File watching error", "component", component, "file", filepath, "error", err)
		},
	})
}

// ConfigWatcher reloads a RuntimeConfig when its file changes and publishes
// config_changed on the bus. A stopped watcher cannot be restarted.
type ConfigWatcher struct {
	config  *RuntimeConfig
	bus     *NotificationBus
	logger  Logger
	watcher *argus.Watcher

	mu       sync.Mutex
	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	reloads  atomic.Int64
}

// NewConfigWatcher creates a watcher for a file-backed configuration.
func NewConfigWatcher(config *RuntimeConfig, bus *NotificationBus, logger any, opts WatcherOptions) (*ConfigWatcher, error) {
	if config == nil || config.Path() == "" {
		return nil, NewConfigWatcherError("configuration was not loaded from a file", nil)
	}
	l := NewLogger(logger)
	return &ConfigWatcher{
		config:  config,
		bus:     bus,
		logger:  l,
		watcher: newArgusWatcher(opts, 5, l, "config_watcher"),
	}, nil
}

// Start begins watching the configuration file.
func (w *ConfigWatcher) Start() error {
	if w.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped and cannot be restarted", nil)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}
	if err := w.watcher.Watch(w.config.Path(), w.handleChange); err != nil {
		w.enabled.Store(false)
		return NewConfigWatcherError("failed to watch configuration file", err)
	}
	if err := w.watcher.Start(); err != nil {
		w.enabled.Store(false)
		return NewConfigWatcherError("failed to start configuration watcher", err)
	}
	w.logger.Info("Configuration watcher started", "path", w.config.Path())
	return nil
}

// Stop stops watching. It is permanent.
func (w *ConfigWatcher) Stop() error {
	var stopErr error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.stopped.Store(true)
		if !w.enabled.CompareAndSwap(true, false) {
			return
		}
		if err := w.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop configuration watcher", err)
			return
		}
		w.logger.Info("Configuration watcher stopped", "path", w.config.Path())
	})
	return stopErr
}

// IsRunning reports whether the watcher is active.
func (w *ConfigWatcher) IsRunning() bool {
	return w.enabled.Load() && !w.stopped.Load()
}

// Reloads returns the number of successful reloads.
func (w *ConfigWatcher) Reloads() int64 { return w.reloads.Load() }

func (w *ConfigWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		w.logger.Warn("Configuration file was deleted, keeping current values", "path", event.Path)
		return
	}
	if err := w.config.Reload(); err != nil {
		w.logger.Error("Failed to reload configuration", "path", event.Path, "error", err)
		return
	}
	w.reloads.Add(1)
	w.logger.Info("Configuration reloaded", "path", event.Path)
	if w.bus != nil {
		w.bus.Publish(Event{
			Type:     EventConfigChanged,
			Metadata: map[string]interface{}{"path": event.Path},
		})
	}
}
