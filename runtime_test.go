// runtime_test.go: end-to-end runtime tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_ConfigSection(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "legacy", "extension.yaml", "name: Legacy\nversion: 1.0.0\ngeneration: 2\n")
	configPath := writeConfigFile(t, "runtime.yaml", `extensions:
  retry_limit: 3
  generation: 2
  platform: linux
  path: `+root+`
`)

	rt, err := New(RuntimeOptions{ConfigPath: configPath, ExitFunc: func(int) {}})
	require.NoError(t, err)
	assert.Equal(t, configPath, rt.Config().Path())
	assert.Equal(t, 3, rt.Loader().retryLimit)

	// Path and platform come from the configuration.
	require.NoError(t, rt.Initialize(NewTestLogger(), "", ""))
	assert.Equal(t, root, rt.Loader().Root())
	require.NoError(t, rt.LoadAll())
	assert.Equal(t, LoadingStateLoaded, rt.ListLoaded()["legacy"].State)
}

func TestNew_OptionsOverrideConfig(t *testing.T) {
	config := NewRuntimeConfig(map[string]interface{}{
		"extensions": map[string]interface{}{"retry_limit": 3, "generation": 2},
	})
	rt, err := New(RuntimeOptions{Config: config, RetryLimit: 7, Generation: 1})
	require.NoError(t, err)
	assert.Same(t, config, rt.Config())
	assert.Equal(t, 7, rt.Loader().retryLimit)
	assert.Equal(t, 1, rt.Loader().generation)
	assert.NotNil(t, rt.Catalog())
}

func TestNew_MissingConfigFile(t *testing.T) {
	_, err := New(RuntimeOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Equal(t, ErrCodeConfigNotFound, ErrorCodeOf(err))
}

func TestRuntime_EndToEnd(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "storage", "extension.yaml", storageManifest("1.0.0"))
	writeManifest(t, root, "webui", "extension.yaml", webuiManifest)

	core, logs := observer.New(zapcore.InfoLevel)
	rt, err := New(RuntimeOptions{
		Logger:   zap.New(core),
		Path:     root,
		Platform: "linux",
		Catalog:  testCatalog(t),
		ExitFunc: func(int) { t.Fatal("unexpected exit") },
	})
	require.NoError(t, err)
	require.NoError(t, rt.Initialize(nil, "", ""))
	require.NoError(t, rt.LoadAll())
	assert.Equal(t, 2, logs.FilterMessage("Extension loaded").Len())

	apps := rt.Apps().Grab("IStorage", nil)
	require.Len(t, apps, 1)
	app := apps[0]

	handle, err := rt.ProviderFor(app, "IStorage")
	require.NoError(t, err)

	_, err = handle.Call("Put", "theme", "dark")
	require.NoError(t, err)
	theme, err := CallFirst[string](handle, "Get", "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)

	// An app that does not use IStorage is refused.
	outsider := rt.Apps().Register(AppMetadata{Name: "Outsider"}, &dashboard{name: "x"}, []string{"ILogging"})
	require.NotNil(t, outsider)
	denied, err := rt.ProviderFor(outsider, "IStorage")
	require.NoError(t, err)
	_, err = CallFirst[string](denied, "Get", "theme")
	assert.Equal(t, ErrCodeAccessDenied, ErrorCodeOf(err))

	require.NoError(t, rt.Unload("webui"))
	require.NoError(t, rt.Unload("storage"))
	_, err = handle.Call("Get", "theme")
	assert.Equal(t, ErrCodeProviderNotFound, ErrorCodeOf(err))
	require.NoError(t, rt.Close())
}

func TestRuntime_Watchers(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "storage", "extension.yaml", storageManifest("1.0.0"))
	configPath := writeConfigFile(t, "runtime.yaml", "log_level: info\n")

	exit := &exitRecorder{}
	rt, err := New(RuntimeOptions{ConfigPath: configPath, Catalog: testCatalog(t), ExitFunc: exit.exit})
	require.NoError(t, err)
	require.NoError(t, rt.Initialize(NewTestLogger(), root, "linux"))
	require.NoError(t, rt.LoadAll())

	opts := WatcherOptions{PollInterval: time.Hour}
	require.NoError(t, rt.WatchConfig(opts))
	assert.Error(t, rt.WatchConfig(opts))

	reload := DefaultReloadOptions()
	reload.Watcher = opts
	require.NoError(t, rt.WatchExtensions(reload))
	assert.Error(t, rt.WatchExtensions(reload))

	require.NoError(t, rt.Close())
	// Loaded packages survive Close.
	assert.Equal(t, LoadingStateLoaded, rt.ListLoaded()["storage"].State)
	require.NoError(t, rt.WatchConfig(opts))
	require.NoError(t, rt.Close())
}

func TestRuntime_WatchConfigWithoutFile(t *testing.T) {
	rt, err := New(RuntimeOptions{})
	require.NoError(t, err)
	assert.Equal(t, ErrCodeConfigWatcherError, ErrorCodeOf(rt.WatchConfig(WatcherOptions{})))
}

func TestRuntime_InitializeLoggerReachesComponents(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "storage", "extension.yaml", storageManifest("1.0.0"))
	writeManifest(t, root, "webui", "extension.yaml", webuiManifest)

	rt, err := New(RuntimeOptions{Catalog: testCatalog(t), ExitFunc: func(int) {}})
	require.NoError(t, err)
	rt.Bus().SubscribeFunc(func(Event) error { return errors.New("observer broke") })

	logger := NewTestLogger()
	require.NoError(t, rt.Initialize(logger, root, "linux"))
	require.NoError(t, rt.LoadAll())

	audit, err := rt.Instance("PLogging")
	require.NoError(t, err)
	_, err = audit.(*auditLog).storage.Call("Get", "greeting")
	require.Error(t, err)

	tests := []struct {
		level string
		msg   string
	}{
		{"INFO", "Extension loaded"},
		{"INFO", "Provider published"},
		{"INFO", "App registered"},
		{"WARN", "Observer failed to handle event"},
		{"WARN", "Access denied"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.True(t, logger.HasMessage(tt.level, tt.msg))
		})
	}

	// A later Initialize swaps the logger again for every component.
	next := NewTestLogger()
	require.NoError(t, rt.Initialize(next, root, "linux"))
	require.NoError(t, rt.Unload("webui"))
	assert.True(t, next.HasMessage("INFO", "Provider withdrawn"))
	assert.False(t, logger.HasMessage("INFO", "Provider withdrawn"))
}
