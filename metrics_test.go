// metrics_test.go: metrics collector tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricKey(t *testing.T) {
	assert.Equal(t, "loads", metricKey("loads", nil))
	assert.Equal(t, `loads{a="1",b="2"}`, metricKey("loads", map[string]string{"b": "2", "a": "1"}))
}

func TestDefaultMetricsCollector(t *testing.T) {
	m := NewDefaultMetricsCollector()
	labels := map[string]string{"result": "loaded"}

	m.IncrementCounter("extension_loads_total", labels, 1)
	m.IncrementCounter("extension_loads_total", labels, 2)
	m.SetGauge("extensions_active", nil, 4)
	m.SetGauge("extensions_active", nil, 3)
	m.RecordHistogram("extension_load_pass_seconds", nil, 0.5)
	m.RecordHistogram("extension_load_pass_seconds", nil, 1.5)

	assert.Equal(t, int64(3), m.Counter("extension_loads_total", labels))
	assert.Equal(t, int64(0), m.Counter("extension_loads_total", nil))
	assert.Equal(t, 3.0, m.Gauge("extensions_active", nil))

	got := m.GetMetrics()
	assert.Equal(t, int64(3), got[`extension_loads_total{result="loaded"}`])
	assert.Equal(t, float64(3), got["extensions_active"])
	assert.Equal(t, 2, got["extension_load_pass_seconds_count"])
	assert.Equal(t, 2.0, got["extension_load_pass_seconds_sum"])
}

func TestDefaultMetricsCollector_HistogramWindow(t *testing.T) {
	m := NewDefaultMetricsCollector()
	for i := 0; i < maxHistogramSamples+10; i++ {
		m.RecordHistogram("latency", nil, 1)
	}
	assert.Equal(t, maxHistogramSamples, m.GetMetrics()["latency_count"])
}

func TestNoOpMetricsCollector(t *testing.T) {
	var m MetricsCollector = NoOpMetricsCollector{}
	m.IncrementCounter("x", nil, 1)
	m.SetGauge("x", nil, 1)
	m.RecordHistogram("x", nil, 1)
	assert.Empty(t, m.GetMetrics())
}

func TestPrometheusMetricsCollector(t *testing.T) {
	logger := NewTestLogger()
	p := NewPrometheusMetricsCollector("ext", logger)

	p.IncrementCounter("extension_loads_total", map[string]string{"result": "loaded"}, 2)
	p.IncrementCounter("extension_loads_total", map[string]string{"result": "failed"}, 1)
	p.SetGauge("extensions_active", nil, 5)
	p.RecordHistogram("extension_load_pass_seconds", nil, 0.25)

	got := p.GetMetrics()
	assert.Equal(t, 2.0, got[`ext_extension_loads_total{result="loaded"}`])
	assert.Equal(t, 1.0, got[`ext_extension_loads_total{result="failed"}`])
	assert.Equal(t, 5.0, got["ext_extensions_active"])
	assert.Equal(t, uint64(1), got["ext_extension_load_pass_seconds_count"])
	assert.Equal(t, 0.25, got["ext_extension_load_pass_seconds_sum"])

	families, err := p.Registry().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)

	t.Run("MismatchedLabelsAreDropped", func(t *testing.T) {
		p.IncrementCounter("extension_loads_total", map[string]string{"other": "x"}, 1)
		assert.True(t, logger.HasMessage("WARN", "Dropping counter sample"))
	})
}

func TestLoaderMetrics_Snapshot(t *testing.T) {
	var m LoaderMetrics
	m.ExtensionsLoaded.Add(3)
	m.LoadFailures.Add(1)
	m.LoadPasses.Add(2)

	assert.Equal(t, LoaderMetricsSnapshot{
		ExtensionsLoaded: 3,
		LoadFailures:     1,
		LoadPasses:       2,
	}, m.Snapshot())
}

func TestRuntime_PrometheusMetrics(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "storage", "extension.yaml", storageManifest("1.0.0"))
	writeManifest(t, root, "ghost", "extension.yaml", "name: Ghost\nversion: 1.0.0\ngeneration: 1\ndependencies: [plugin:nobody]\n")

	p := NewPrometheusMetricsCollector("ext", nil)
	rt, err := New(RuntimeOptions{Catalog: testCatalog(t), Metrics: p, ExitFunc: func(int) {}})
	require.NoError(t, err)
	require.NoError(t, rt.Initialize(NewTestLogger(), root, "linux"))
	require.NoError(t, rt.LoadAll())

	got := p.GetMetrics()
	assert.Equal(t, 1.0, got[`ext_extension_loads_total{result="loaded"}`])
	assert.Equal(t, 1.0, got[`ext_extension_loads_total{result="failed"}`])
	assert.Equal(t, 1.0, got["ext_extension_dependency_retries_total"])
	assert.Equal(t, uint64(1), got["ext_extension_load_pass_seconds_count"])
	assert.Equal(t, 1.0, got["ext_extensions_active"])

	require.NoError(t, rt.Unload("storage"))
	assert.Equal(t, 0.0, p.GetMetrics()["ext_extensions_active"])
}
