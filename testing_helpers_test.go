// testing_helpers_test.go: shared fixtures for the extension runtime tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// memoryStorage implements IStorage.
type memoryStorage struct {
	data     map[string]string
	unloaded atomic.Int32
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{data: map[string]string{"greeting": "hello"}}
}

func (m *memoryStorage) Get(key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *memoryStorage) Put(key, value string) { m.data[key] = value }

func (m *memoryStorage) Keys(prefix string, limit ...int) []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

func (m *memoryStorage) Unload() { m.unloaded.Add(1) }

// incompleteStorage lacks Put.
type incompleteStorage struct{}

func (incompleteStorage) Get(key string) (string, error) { return "", nil }

// stdoutLogging implements ILogging.
type stdoutLogging struct{ lines []string }

func (s *stdoutLogging) Log(line string) { s.lines = append(s.lines, line) }

// dashboard is an app using IStorage; it implements the consumer-required
// Render method.
type dashboard struct {
	name    string
	storage *Handle
}

func (d *dashboard) Render() string { return "dashboard " + d.name }

// bareApp implements no consumer-required methods.
type bareApp struct{}

// testCaller is a Caller with a fixed list of interfaces.
type testCaller struct {
	name       string
	interfaces []string
}

func (c testCaller) CallerName() string         { return c.name }
func (c testCaller) CallerInterfaces() []string { return c.interfaces }

func storageMethods() []MethodSignature {
	return []MethodSignature{
		Method("Get", 1),
		Method("Put", 2),
		Method("Keys", AnyArity),
		Method("Render", 0),
	}
}

func storageConsumerRequired() []MethodSignature {
	return []MethodSignature{Method("Render", 0)}
}

// newTestContracts returns a registry with IStorage, ILogging and the
// abstract IBase defined.
func newTestContracts(t *testing.T, logger Logger, bus *NotificationBus) *ContractRegistry {
	t.Helper()
	r := NewContractRegistry(logger, bus, nil)
	_, err := r.DefineInterface("IStorage", storageMethods(), storageConsumerRequired(), false)
	require.NoError(t, err)
	_, err = r.DefineInterface("ILogging", []MethodSignature{Method("Log", 1)}, nil, false)
	require.NoError(t, err)
	_, err = r.DefineInterface("IBase", []MethodSignature{Method("Name", 0)}, nil, true)
	require.NoError(t, err)
	return r
}

// writeManifest creates root/pkg/name with content.
func writeManifest(t *testing.T, root, pkg, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, pkg)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// exitRecorder replaces os.Exit in loader tests.
type exitRecorder struct {
	calls atomic.Int32
	code  atomic.Int32
}

func (e *exitRecorder) exit(code int) {
	e.calls.Add(1)
	e.code.Store(int32(code))
}

// newTestRuntime builds a runtime over root with a recording exit function
// and a lookPath that only knows "git".
func newTestRuntime(t *testing.T, root string, catalog *Catalog, logger *TestLogger) (*Runtime, *exitRecorder) {
	t.Helper()
	exit := &exitRecorder{}
	rt, err := New(RuntimeOptions{
		Catalog:  catalog,
		ExitFunc: exit.exit,
		LookPath: func(file string) (string, error) {
			if file == "git" {
				return "/usr/bin/git", nil
			}
			return "", errors.New("executable file not found")
		},
	})
	require.NoError(t, err)
	require.NoError(t, rt.Initialize(logger, root, "linux"))
	return rt, exit
}
