// errors_test.go: structured error tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors_Codes(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"DuplicateInterface", NewDuplicateInterfaceError("IStorage"), ErrCodeDuplicateInterface},
		{"InvalidInterface", NewInvalidInterfaceError("", "empty name"), ErrCodeInvalidInterface},
		{"AlreadyImplemented", NewAlreadyImplementedError("PStorage", "IStorage", "MemoryStorage"), ErrCodeAlreadyImplemented},
		{"AbstractInterface", NewAbstractInterfaceError("PBase", "IBase"), ErrCodeAbstractInterface},
		{"InterfaceImplementation", NewInterfaceImplementationError("P", "IStorage", "Put"), ErrCodeInterfaceImplementation},
		{"AppInterfaceImplementation", NewAppInterfaceImplementationError("A", "IStorage", "Render"), ErrCodeAppInterfaceImplementation},
		{"ProviderNotFound", NewProviderNotFoundError("IStorage"), ErrCodeProviderNotFound},
		{"UnknownInterface", NewUnknownInterfaceError("IMissing"), ErrCodeUnknownInterface},
		{"InvalidProvider", NewInvalidProviderError("", "empty id"), ErrCodeInvalidProvider},
		{"PluginTypeNotFound", NewPluginTypeNotFoundError("X"), ErrCodePluginTypeNotFound},
		{"DuplicatePluginType", NewDuplicatePluginTypeError("X"), ErrCodeDuplicatePluginType},
		{"PluginConstruction", NewPluginConstructionError("X", cause), ErrCodePluginConstruction},
		{"InvalidPluginType", NewInvalidPluginTypeError("X", "no constructor"), ErrCodeInvalidPluginType},
		{"AccessDenied", NewAccessDeniedError("intruder", "Get"), ErrCodeAccessDenied},
		{"MethodNotFound", NewMethodNotFoundError("P", "Fly"), ErrCodeMethodNotFound},
		{"InvalidCall", NewInvalidCallError("P", "Get", "want 1 argument"), ErrCodeInvalidCall},
		{"Platform", NewPlatformRequirementError([]string{"windows"}), ErrCodePlatformRequirement},
		{"Generation", NewGenerationRequirementError(2, 1), ErrCodeGenerationRequirement},
		{"Plugin", NewPluginRequirementError("storage", "webui"), ErrCodePluginRequirement},
		{"Module", NewModuleRequirementError("sqlite"), ErrCodeModuleRequirement},
		{"Software", NewSoftwareRequirementError("git", "git-core", "git"), ErrCodeSoftwareRequirement},
		{"App", NewAppRequirementError("IStorage"), ErrCodeAppRequirement},
		{"Version", NewVersionRequirementError("storage", ">=2.0.0", "1.0.0"), ErrCodeVersionRequirement},
		{"ExtensionNotFound", NewExtensionNotFoundError("x"), ErrCodeExtensionNotFound},
		{"ExtensionCrashed", NewExtensionCrashedError("x", cause), ErrCodeExtensionCrashed},
		{"CircularDependency", NewCircularDependencyError("x", "y", 11), ErrCodeCircularDependency},
		{"RemovalConflict", NewRemovalConflictError("storage", []string{"webui"}), ErrCodeRemovalConflict},
		{"LoaderNotInitialized", NewLoaderNotInitializedError(), ErrCodeLoaderNotInitialized},
		{"Manifest", NewManifestError("extension.yaml", nil), ErrCodeManifestError},
		{"ManifestWithCause", NewManifestError("extension.yaml", cause), ErrCodeManifestError},
		{"Discovery", NewDiscoveryError("scan failed", cause), ErrCodeDiscoveryError},
		{"InvalidVersion", NewInvalidVersionError("one", nil), ErrCodeInvalidVersion},
		{"ConfigNotFound", NewConfigNotFoundError("runtime.yaml", cause), ErrCodeConfigNotFound},
		{"ConfigParse", NewConfigParseError("runtime.yaml", cause), ErrCodeConfigParseError},
		{"ConfigWatcher", NewConfigWatcherError("stopped", nil), ErrCodeConfigWatcherError},
		{"SecurityValidation", NewSecurityValidationError("bad name", nil), ErrCodeSecurityValidationError},
		{"PathTraversal", NewPathTraversalError("../x"), ErrCodePathTraversalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.Equal(t, tt.code, ErrorCodeOf(tt.err))
			assert.NotEmpty(t, tt.err.Error())
			assert.Equal(t, strings.HasPrefix(tt.code, "REQUIREMENT_"), IsRequirementError(tt.err))
		})
	}
}

func TestErrorCodeOf_Wrapped(t *testing.T) {
	assert.Empty(t, ErrorCodeOf(nil))
	assert.Empty(t, ErrorCodeOf(errors.New("plain")))

	wrapped := fmt.Errorf("loading: %w", NewModuleRequirementError("sqlite"))
	assert.Equal(t, ErrCodeModuleRequirement, ErrorCodeOf(wrapped))
	assert.True(t, IsRequirementError(wrapped))

	// The outermost structured error wins.
	crashed := NewExtensionCrashedError("webui", NewModuleRequirementError("sqlite"))
	assert.Equal(t, ErrCodeExtensionCrashed, ErrorCodeOf(crashed))
	assert.False(t, IsRequirementError(crashed))
}

func TestIsUnresolvedDependency_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("pass: %w", NewPluginRequirementError("storage", "webui"))
	name, ok := IsUnresolvedDependency(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "storage", name)

	_, ok = IsUnresolvedDependency(nil)
	assert.False(t, ok)
}

func TestDescribeProblem(t *testing.T) {
	assert.Empty(t, DescribeProblem(nil))
	assert.Equal(t, "plain failure", DescribeProblem(errors.New("plain failure")))
	assert.Equal(t, "crashed while loading", DescribeProblem(NewExtensionCrashedError("x", errors.New("boom"))))
	assert.Equal(t, `requires plugin "storage"`, DescribeProblem(NewPluginRequirementError("storage", "webui")))
	assert.Equal(t, `requires module "sqlite"`, DescribeProblem(NewModuleRequirementError("sqlite")))
}

func TestPluginRequirementError_Context(t *testing.T) {
	err := NewPluginRequirementError("storage", "webui")
	assert.Equal(t, "storage", err.Context["dependency"])
	assert.Equal(t, "webui", err.Context["package"])
}
