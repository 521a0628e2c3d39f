// metrics.go: Metrics collection for loader and gate activity
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MetricsCollector receives runtime metrics. Implementations must be safe
// for concurrent use because gated calls report from many goroutines.
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string, value int64)
	SetGauge(name string, labels map[string]string, value float64)
	RecordHistogram(name string, labels map[string]string, value float64)

	// GetMetrics returns a snapshot keyed by metric name and labels.
	GetMetrics() map[string]interface{}
}

// NoOpMetricsCollector drops every sample.
type NoOpMetricsCollector struct{}

// IncrementCounter implements MetricsCollector.
func (NoOpMetricsCollector) IncrementCounter(string, map[string]string, int64) {}

// SetGauge implements MetricsCollector.
func (NoOpMetricsCollector) SetGauge(string, map[string]string, float64) {}

// RecordHistogram implements MetricsCollector.
func (NoOpMetricsCollector) RecordHistogram(string, map[string]string, float64) {}

// GetMetrics implements MetricsCollector.
func (NoOpMetricsCollector) GetMetrics() map[string]interface{} {
	return map[string]interface{}{}
}

const maxHistogramSamples = 1000

// DefaultMetricsCollector keeps metrics in memory.
type DefaultMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewDefaultMetricsCollector creates an empty in-memory collector.
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter implements MetricsCollector.
func (d *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters[metricKey(name, labels)] += value
}

// SetGauge implements MetricsCollector.
func (d *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gauges[metricKey(name, labels)] = value
}

// RecordHistogram implements MetricsCollector. Only the latest samples are kept.
func (d *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := metricKey(name, labels)
	samples := append(d.histograms[key], value)
	if len(samples) > maxHistogramSamples {
		samples = samples[len(samples)-maxHistogramSamples:]
	}
	d.histograms[key] = samples
}

// Counter returns the current value of a counter series.
func (d *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.counters[metricKey(name, labels)]
}

// Gauge returns the last value set for a gauge series.
func (d *DefaultMetricsCollector) Gauge(name string, labels map[string]string) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gauges[metricKey(name, labels)]
}

// GetMetrics implements MetricsCollector. Histograms are summarized as
// _count and _sum entries.
func (d *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]interface{}, len(d.counters)+len(d.gauges)+2*len(d.histograms))
	for k, v := range d.counters {
		out[k] = v
	}
	for k, v := range d.gauges {
		out[k] = v
	}
	for k, samples := range d.histograms {
		sum := 0.0
		for _, s := range samples {
			sum += s
		}
		out[k+"_count"] = len(samples)
		out[k+"_sum"] = sum
	}
	return out
}

// metricKey renders name{k="v",...} with labels sorted by key.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(labels[k])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// LoaderMetrics tracks loader activity.
type LoaderMetrics struct {
	ExtensionsLoaded   atomic.Int64
	ExtensionsUnloaded atomic.Int64
	LoadFailures       atomic.Int64
	DependencyRetries  atomic.Int64
	LoadPasses         atomic.Int64
}

// LoaderMetricsSnapshot is a point-in-time copy of LoaderMetrics.
type LoaderMetricsSnapshot struct {
	ExtensionsLoaded   int64 `json:"extensions_loaded"`
	ExtensionsUnloaded int64 `json:"extensions_unloaded"`
	LoadFailures       int64 `json:"load_failures"`
	DependencyRetries  int64 `json:"dependency_retries"`
	LoadPasses         int64 `json:"load_passes"`
}

// Snapshot copies the current counter values.
func (m *LoaderMetrics) Snapshot() LoaderMetricsSnapshot {
	return LoaderMetricsSnapshot{
		ExtensionsLoaded:   m.ExtensionsLoaded.Load(),
		ExtensionsUnloaded: m.ExtensionsUnloaded.Load(),
		LoadFailures:       m.LoadFailures.Load(),
		DependencyRetries:  m.DependencyRetries.Load(),
		LoadPasses:         m.LoadPasses.Load(),
	}
}
