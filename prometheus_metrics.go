// prometheus_metrics.go: MetricsCollector backed by a Prometheus registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector exports runtime metrics through its own
// Prometheus registry. Metric vectors are created on first use with the
// label names of that first sample; later samples must use the same names.
type PrometheusMetricsCollector struct {
	registry  *prometheus.Registry
	namespace string
	logger    Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a collector registering its metrics
// under namespace.
func NewPrometheusMetricsCollector(namespace string, logger any) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		registry:   prometheus.NewRegistry(),
		namespace:  namespace,
		logger:     NewLogger(logger),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the registry to expose through the host's own handler.
func (p *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return p.registry
}

// IncrementCounter implements MetricsCollector.
func (p *PrometheusMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "Extension runtime counter " + name,
		}, labelNames(labels))
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()

	counter, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		p.logger.Warn("Dropping counter sample", "metric", name, "error", err)
		return
	}
	counter.Add(float64(value))
}

// SetGauge implements MetricsCollector.
func (p *PrometheusMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "Extension runtime gauge " + name,
		}, labelNames(labels))
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	gauge, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		p.logger.Warn("Dropping gauge sample", "metric", name, "error", err)
		return
	}
	gauge.Set(value)
}

// RecordHistogram implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "Extension runtime histogram " + name,
			Buckets:   prometheus.DefBuckets,
		}, labelNames(labels))
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	observer, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		p.logger.Warn("Dropping histogram sample", "metric", name, "error", err)
		return
	}
	observer.Observe(value)
}

// GetMetrics implements MetricsCollector by gathering the registry.
func (p *PrometheusMetricsCollector) GetMetrics() map[string]interface{} {
	out := make(map[string]interface{})
	families, err := p.registry.Gather()
	if err != nil {
		p.logger.Warn("Failed to gather metrics", "error", err)
		return out
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			key := metricKey(family.GetName(), labels)
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key+"_count"] = metric.GetHistogram().GetSampleCount()
				out[key+"_sum"] = metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return out
}

// register must be called with p.mu held.
func (p *PrometheusMetricsCollector) register(name string, collector prometheus.Collector) bool {
	if err := p.registry.Register(collector); err != nil {
		p.logger.Warn("Failed to register metric", "metric", name, "error", err)
		return false
	}
	return true
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
