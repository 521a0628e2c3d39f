// hot_reload_test.go: manifest-driven reload tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"testing"
	"time"

	"github.com/agilira/argus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webuiManifest = `name: Web UI
version: 1.0.0
generation: 1
modules: [webui]
dependencies: [plugin:storage]
`

func storageManifest(version string) string {
	return "name: Storage\nversion: " + version + "\ngeneration: 1\nmodules: [storage]\n"
}

// loadedPair loads storage and webui, where webui depends on storage.
func loadedPair(t *testing.T) (*Runtime, string, *TestLogger) {
	t.Helper()
	root := t.TempDir()
	path := writeManifest(t, root, "storage", "extension.yaml", storageManifest("1.0.0"))
	writeManifest(t, root, "webui", "extension.yaml", webuiManifest)

	logger := NewTestLogger()
	rt, _ := newTestRuntime(t, root, testCatalog(t), logger)
	require.NoError(t, rt.LoadAll())
	require.Equal(t, []string{"webui"}, rt.Loader().Dependents("storage"))
	return rt, path, logger
}

func TestDiffManifests(t *testing.T) {
	base := func() *ExtensionManifest {
		return &ExtensionManifest{
			Package:      "webui",
			Name:         "Web UI",
			Version:      "1.0.0",
			Generation:   1,
			Modules:      []string{"webui"},
			Dependencies: []Dependency{{Kind: DependencyPlugin, Name: "storage"}},
		}
	}
	tests := []struct {
		name   string
		mutate func(m *ExtensionManifest)
		want   []string
	}{
		{"Unchanged", func(*ExtensionManifest) {}, nil},
		{"Version", func(m *ExtensionManifest) { m.Version = "1.1.0" }, []string{"version"}},
		{"Modules", func(m *ExtensionManifest) { m.Modules = append(m.Modules, "extra") }, []string{"modules"}},
		{"Dependencies", func(m *ExtensionManifest) { m.Dependencies = nil }, []string{"dependencies"}},
		{"Metadata", func(m *ExtensionManifest) { m.Author = "someone" }, []string{"metadata"}},
		{"Several", func(m *ExtensionManifest) {
			m.Name = "Dashboard"
			m.Generation = 2
			m.Platforms = PlatformList{"linux"}
		}, []string{"name", "generation", "platforms"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := base()
			tt.mutate(updated)
			diff := DiffManifests(base(), updated)
			assert.Equal(t, "webui", diff.Package)
			assert.Equal(t, tt.want, diff.Changes)
			assert.Equal(t, tt.want != nil, diff.Changed())
		})
	}

	diff := DiffManifests(nil, base())
	assert.Equal(t, []string{"manifest"}, diff.Changes)
}

func TestExtensionReloader_CascadeReload(t *testing.T) {
	rt, path, _ := loadedPair(t)
	r := NewExtensionReloader(rt.Loader(), NewTestLogger(), DefaultReloadOptions())

	// An unchanged manifest is not reloaded.
	require.NoError(t, r.ReloadPackage("storage"))
	assert.Equal(t, int64(0), r.Reloads())

	require.NoError(t, os.WriteFile(path, []byte(storageManifest("1.1.0")), 0o600))
	require.NoError(t, r.ReloadPackage("storage"))
	assert.Equal(t, int64(1), r.Reloads())

	status := rt.ListLoaded()
	assert.Equal(t, LoadingStateLoaded, status["storage"].State)
	assert.Equal(t, "1.1.0", status["storage"].Manifest.Version)
	assert.Equal(t, LoadingStateLoaded, status["webui"].State)
	assert.Equal(t, []string{"webui"}, rt.Loader().Dependents("storage"))

	apps := rt.Apps().Grab("IStorage", nil)
	require.Len(t, apps, 1)
	assert.Equal(t, "Dashboard", apps[0].Name())

	err := r.ReloadPackage("unknown")
	assert.Equal(t, ErrCodeExtensionNotFound, ErrorCodeOf(err))
}

func TestExtensionReloader_WithoutCascade(t *testing.T) {
	rt, path, _ := loadedPair(t)
	r := NewExtensionReloader(rt.Loader(), nil, ReloadOptions{})

	require.NoError(t, os.WriteFile(path, []byte(storageManifest("1.1.0")), 0o600))
	err := r.ReloadPackage("storage")
	assert.Equal(t, ErrCodeRemovalConflict, ErrorCodeOf(err))
	assert.Equal(t, "1.0.0", rt.ListLoaded()["storage"].Manifest.Version)

	// A leaf package has nothing depending on it.
	require.NoError(t, r.RemovePackage("webui"))
	require.NoError(t, r.ReloadPackage("storage"))
	assert.Equal(t, "1.1.0", rt.ListLoaded()["storage"].Manifest.Version)
}

func TestExtensionReloader_RemovePackageCascades(t *testing.T) {
	rt, _, _ := loadedPair(t)
	r := NewExtensionReloader(rt.Loader(), nil, DefaultReloadOptions())

	require.NoError(t, r.RemovePackage("storage"))
	assert.Empty(t, rt.ListLoaded())
	assert.Equal(t, 0, rt.Apps().Len())
	assert.Empty(t, rt.Contracts().Providers())
}

func TestExtensionReloader_HandleChange(t *testing.T) {
	rt, path, _ := loadedPair(t)
	logger := NewTestLogger()
	r := NewExtensionReloader(rt.Loader(), logger, ReloadOptions{
		// Changes are delivered by hand below.
		Watcher: WatcherOptions{PollInterval: time.Hour},
		Cascade: true,
	})
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start())

	// Paths that are not watched are ignored.
	r.handleChange(argus.ChangeEvent{Path: "/elsewhere/extension.yaml", IsModify: true})
	assert.Equal(t, int64(0), r.Reloads())

	require.NoError(t, os.WriteFile(path, []byte(storageManifest("2.0.0")), 0o600))
	r.handleChange(argus.ChangeEvent{Path: path, IsModify: true})
	assert.Equal(t, "2.0.0", rt.ListLoaded()["storage"].Manifest.Version)

	require.NoError(t, os.Remove(path))
	r.handleChange(argus.ChangeEvent{Path: path, IsDelete: true})
	_, loaded := rt.ListLoaded()["storage"]
	assert.False(t, loaded)
	assert.True(t, logger.HasMessage("INFO", "Extension manifest removed"))

	require.NoError(t, r.Stop())
	assert.False(t, r.IsRunning())
	assert.Error(t, r.Start())
}
