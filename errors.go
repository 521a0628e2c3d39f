// errors.go: structured error definitions for the extension runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the extension runtime
const (
	// Contract errors (1000-1099)
	ErrCodeDuplicateInterface         = "CONTRACT_1001"
	ErrCodeInvalidInterface           = "CONTRACT_1002"
	ErrCodeAlreadyImplemented         = "CONTRACT_1003"
	ErrCodeAbstractInterface          = "CONTRACT_1004"
	ErrCodeInterfaceImplementation    = "CONTRACT_1005"
	ErrCodeAppInterfaceImplementation = "CONTRACT_1006"
	ErrCodeProviderNotFound           = "CONTRACT_1007"
	ErrCodeUnknownInterface           = "CONTRACT_1008"
	ErrCodeInvalidProvider            = "CONTRACT_1009"

	// Plugin instantiation errors (1100-1199)
	ErrCodePluginTypeNotFound  = "PLUGIN_1101"
	ErrCodeDuplicatePluginType = "PLUGIN_1102"
	ErrCodePluginConstruction  = "PLUGIN_1103"
	ErrCodeInvalidPluginType   = "PLUGIN_1104"

	// Access control errors (1200-1299)
	ErrCodeAccessDenied   = "ACCESS_1201"
	ErrCodeMethodNotFound = "ACCESS_1202"
	ErrCodeInvalidCall    = "ACCESS_1203"

	// Requirement errors (1300-1399)
	ErrCodePlatformRequirement   = "REQUIREMENT_1301"
	ErrCodeGenerationRequirement = "REQUIREMENT_1302"
	ErrCodePluginRequirement     = "REQUIREMENT_1303"
	ErrCodeModuleRequirement     = "REQUIREMENT_1304"
	ErrCodeSoftwareRequirement   = "REQUIREMENT_1305"
	ErrCodeAppRequirement        = "REQUIREMENT_1306"
	ErrCodeVersionRequirement    = "REQUIREMENT_1307"

	// Loader errors (1400-1499)
	ErrCodeExtensionNotFound    = "LOADER_1401"
	ErrCodeExtensionCrashed     = "LOADER_1402"
	ErrCodeCircularDependency   = "LOADER_1403"
	ErrCodeRemovalConflict      = "LOADER_1404"
	ErrCodeLoaderNotInitialized = "LOADER_1405"
	ErrCodeManifestError        = "LOADER_1406"
	ErrCodeDiscoveryError       = "LOADER_1407"
	ErrCodeInvalidVersion       = "LOADER_1408"

	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound     = "CONFIG_1701"
	ErrCodeConfigParseError   = "CONFIG_1702"
	ErrCodeConfigWatcherError = "CONFIG_1703"

	// Security errors (1800-1899)
	ErrCodeSecurityValidationError = "SECURITY_1801"
	ErrCodePathTraversalError      = "SECURITY_1802"
)

const requirementCodePrefix = "REQUIREMENT_"

// Contract errors

// NewDuplicateInterfaceError reports a redefinition with a different shape.
func NewDuplicateInterfaceError(name string) *errors.Error {
	return errors.New(ErrCodeDuplicateInterface, fmt.Sprintf("interface %s is already defined with a different shape", name)).
		WithUserMessage("Interface is already defined with a different shape").
		WithContext("interface", name).
		WithSeverity("error")
}

// NewInvalidInterfaceError reports a malformed interface definition.
func NewInvalidInterfaceError(name, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidInterface, fmt.Sprintf("invalid interface %q: %s", name, reason)).
		WithUserMessage("Interface definition is invalid").
		WithContext("interface", name).
		WithContext("reason", reason).
		WithSeverity("error")
}

// NewAlreadyImplementedError reports an occupied provider slot.
func NewAlreadyImplementedError(slot, iface, current string) *errors.Error {
	return errors.New(ErrCodeAlreadyImplemented, fmt.Sprintf("%s (%s) is already implemented by %s", slot, iface, current)).
		WithUserMessage("Interface is already implemented by another plugin").
		WithContext("slot", slot).
		WithContext("interface", iface).
		WithContext("current_provider", current).
		WithSeverity("error")
}

// NewAbstractInterfaceError reports an attempt to implement an abstract interface.
func NewAbstractInterfaceError(slot, iface string) *errors.Error {
	return errors.New(ErrCodeAbstractInterface, fmt.Sprintf("%s cannot implement abstract interface %s", slot, iface)).
		WithUserMessage("Abstract interfaces cannot be implemented directly").
		WithContext("slot", slot).
		WithContext("interface", iface).
		WithSeverity("error")
}

// NewInterfaceImplementationError reports a provider missing a required method.
func NewInterfaceImplementationError(plugin, iface, method string) *errors.Error {
	return errors.New(ErrCodeInterfaceImplementation, fmt.Sprintf("%s does not implement %s.%s", plugin, iface, method)).
		WithUserMessage("Plugin does not implement a method required by its interface").
		WithContext("plugin", plugin).
		WithContext("interface", iface).
		WithContext("missing_method", method).
		WithSeverity("error")
}

// NewAppInterfaceImplementationError reports an app missing a consumer-required method.
func NewAppInterfaceImplementationError(app, iface, method string) *errors.Error {
	return errors.New(ErrCodeAppInterfaceImplementation, fmt.Sprintf("app %s does not implement %s.%s", app, iface, method)).
		WithUserMessage("App does not implement a method required from consumers of its interface").
		WithContext("app", app).
		WithContext("interface", iface).
		WithContext("missing_method", method).
		WithSeverity("error")
}

// NewProviderNotFoundError reports an empty provider slot.
func NewProviderNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodeProviderNotFound, fmt.Sprintf("no provider for %s", name)).
		WithUserMessage("No plugin provides the requested interface").
		WithContext("name", name).
		WithSeverity("warning")
}

// NewUnknownInterfaceError reports a reference to an undefined interface.
func NewUnknownInterfaceError(name string) *errors.Error {
	return errors.New(ErrCodeUnknownInterface, fmt.Sprintf("interface %s is not defined", name)).
		WithUserMessage("Interface is not defined").
		WithContext("interface", name).
		WithSeverity("error")
}

// NewInvalidProviderError reports a nil or unnamed provider registration.
func NewInvalidProviderError(id, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidProvider, fmt.Sprintf("invalid provider %q: %s", id, reason)).
		WithUserMessage("Plugin registration is invalid").
		WithContext("plugin", id).
		WithContext("reason", reason).
		WithSeverity("error")
}

// Plugin instantiation errors

// NewPluginTypeNotFoundError reports an unknown or unloaded plugin type.
func NewPluginTypeNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodePluginTypeNotFound, fmt.Sprintf("plugin type %s is not registered", name)).
		WithUserMessage("Plugin type is not registered").
		WithContext("plugin_type", name).
		WithSeverity("error")
}

// NewDuplicatePluginTypeError reports a second live registration of a type name.
func NewDuplicatePluginTypeError(name string) *errors.Error {
	return errors.New(ErrCodeDuplicatePluginType, fmt.Sprintf("plugin type %s is already registered", name)).
		WithUserMessage("Plugin type is already registered").
		WithContext("plugin_type", name).
		WithSeverity("error")
}

// NewPluginConstructionError wraps a constructor failure.
func NewPluginConstructionError(name string, cause error) *errors.Error {
	if cause == nil {
		cause = stderrors.New("constructor returned no instance")
	}
	return errors.Wrap(cause, ErrCodePluginConstruction, fmt.Sprintf("unable to instantiate plugin %s", name)).
		WithUserMessage("Plugin constructor failed").
		WithContext("plugin_type", name).
		WithSeverity("error")
}

// NewInvalidPluginTypeError reports a malformed type declaration.
func NewInvalidPluginTypeError(name, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidPluginType, fmt.Sprintf("invalid plugin type %q: %s", name, reason)).
		WithUserMessage("Plugin type declaration is invalid").
		WithContext("plugin_type", name).
		WithContext("reason", reason).
		WithSeverity("error")
}

// Access control errors

// NewAccessDeniedError reports a caller without a shared interface.
func NewAccessDeniedError(caller, method string) *errors.Error {
	return errors.New(ErrCodeAccessDenied, fmt.Sprintf("access denied: %s cannot call %s", caller, method)).
		WithUserMessage("Access denied").
		WithContext("caller", caller).
		WithContext("method", method).
		WithSeverity("warning")
}

// NewMethodNotFoundError reports a call to a method the provider lacks.
func NewMethodNotFoundError(provider, method string) *errors.Error {
	return errors.New(ErrCodeMethodNotFound, fmt.Sprintf("%s has no method %s", provider, method)).
		WithUserMessage("Method not found").
		WithContext("provider", provider).
		WithContext("method", method).
		WithSeverity("error")
}

// NewInvalidCallError reports arguments that do not fit the method.
func NewInvalidCallError(provider, method, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidCall, fmt.Sprintf("invalid call %s.%s: %s", provider, method, reason)).
		WithUserMessage("Invalid method call").
		WithContext("provider", provider).
		WithContext("method", method).
		WithContext("reason", reason).
		WithSeverity("error")
}

// Requirement errors

// NewPlatformRequirementError reports an unsupported platform.
func NewPlatformRequirementError(platforms []string) *errors.Error {
	list := strings.Join(platforms, ", ")
	return errors.New(ErrCodePlatformRequirement, "platform requirement not met").
		WithUserMessage(fmt.Sprintf("requires platform %s", list)).
		WithContext("platforms", list).
		WithSeverity("warning")
}

// NewGenerationRequirementError reports a manifest built for another runtime generation.
func NewGenerationRequirementError(required, current int) *errors.Error {
	return errors.New(ErrCodeGenerationRequirement, "runtime generation requirement not met").
		WithUserMessage(fmt.Sprintf("requires runtime generation %d", required)).
		WithContext("required_generation", required).
		WithContext("current_generation", current).
		WithSeverity("warning")
}

// NewPluginRequirementError reports a missing sibling plugin. It is the only
// retryable requirement error.
func NewPluginRequirementError(name, pkg string) *errors.Error {
	return errors.New(ErrCodePluginRequirement, fmt.Sprintf("required plugin %s is not available", name)).
		WithUserMessage(fmt.Sprintf("requires plugin %q", name)).
		WithContext("dependency", name).
		WithContext("package", pkg).
		WithSeverity("warning").
		AsRetryable()
}

// NewModuleRequirementError reports a missing native module.
func NewModuleRequirementError(name string) *errors.Error {
	return errors.New(ErrCodeModuleRequirement, fmt.Sprintf("required module %s is not available", name)).
		WithUserMessage(fmt.Sprintf("requires module %q", name)).
		WithContext("dependency", name).
		WithSeverity("warning")
}

// NewSoftwareRequirementError reports a missing external tool.
func NewSoftwareRequirementError(name, pkg, binary string) *errors.Error {
	return errors.New(ErrCodeSoftwareRequirement, fmt.Sprintf("required application %s is not installed", name)).
		WithUserMessage(fmt.Sprintf("requires application %q (package %s, executable %s)", name, pkg, binary)).
		WithContext("dependency", name).
		WithContext("package", pkg).
		WithContext("binary", binary).
		WithSeverity("warning")
}

// NewAppRequirementError reports a package interface without a provider.
func NewAppRequirementError(iface string) *errors.Error {
	return errors.New(ErrCodeAppRequirement, fmt.Sprintf("no provider for required interface %s", iface)).
		WithUserMessage(fmt.Sprintf("requires a provider for %s", iface)).
		WithContext("interface", iface).
		WithSeverity("warning")
}

// NewVersionRequirementError reports a dependency present with an incompatible version.
func NewVersionRequirementError(name, constraint, actual string) *errors.Error {
	return errors.New(ErrCodeVersionRequirement, fmt.Sprintf("plugin %s version %s does not satisfy %s", name, actual, constraint)).
		WithUserMessage(fmt.Sprintf("requires plugin %q %s", name, constraint)).
		WithContext("dependency", name).
		WithContext("constraint", constraint).
		WithContext("actual_version", actual).
		WithSeverity("warning")
}

// Loader errors

// NewExtensionNotFoundError reports a package with no manifest.
func NewExtensionNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodeExtensionNotFound, fmt.Sprintf("extension %s not found", name)).
		WithUserMessage("Extension not found").
		WithContext("extension", name).
		WithSeverity("error")
}

// NewExtensionCrashedError wraps an unexpected failure while loading a package.
func NewExtensionCrashedError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeExtensionCrashed, fmt.Sprintf("extension %s crashed while loading", name)).
		WithUserMessage("crashed while loading").
		WithContext("extension", name).
		WithSeverity("error")
}

// NewCircularDependencyError reports an unsatisfiable dependency between two packages.
func NewCircularDependencyError(pkg, dependency string, retries int) *errors.Error {
	return errors.New(ErrCodeCircularDependency, fmt.Sprintf("circular dependency between %s and %s", pkg, dependency)).
		WithUserMessage("Circular or unsatisfiable extension dependency").
		WithContext("extension", pkg).
		WithContext("dependency", dependency).
		WithContext("retries", retries).
		WithSeverity("error")
}

// NewRemovalConflictError reports loaded packages that still depend on a package.
func NewRemovalConflictError(name string, dependents []string) *errors.Error {
	return errors.New(ErrCodeRemovalConflict, fmt.Sprintf("extension %s is required by %s", name, strings.Join(dependents, ", "))).
		WithUserMessage("Extension is required by other extensions").
		WithContext("extension", name).
		WithContext("dependents", dependents).
		WithSeverity("error")
}

// NewLoaderNotInitializedError reports use of the loader before Initialize.
func NewLoaderNotInitializedError() *errors.Error {
	return errors.New(ErrCodeLoaderNotInitialized, "extension loader is not initialized").
		WithUserMessage("Extension loader is not initialized").
		WithSeverity("error")
}

// NewManifestError wraps a manifest decoding or validation failure.
func NewManifestError(path string, cause error) *errors.Error {
	err := errors.New(ErrCodeManifestError, fmt.Sprintf("invalid manifest %s", path))
	if cause != nil {
		err = errors.Wrap(cause, ErrCodeManifestError, fmt.Sprintf("invalid manifest %s", path))
	}
	return err.
		WithUserMessage("Extension manifest is invalid").
		WithContext("path", path).
		WithSeverity("error")
}

// NewDiscoveryError wraps a directory scanning failure.
func NewDiscoveryError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeDiscoveryError, message).
			WithUserMessage("Extension discovery failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeDiscoveryError, message).
		WithUserMessage("Extension discovery failed").
		WithSeverity("error")
}

// NewInvalidVersionError reports an unparsable version string.
func NewInvalidVersionError(version string, cause error) *errors.Error {
	msg := fmt.Sprintf("invalid version %q", version)
	err := errors.New(ErrCodeInvalidVersion, msg)
	if cause != nil {
		err = errors.Wrap(cause, ErrCodeInvalidVersion, msg)
	}
	return err.
		WithUserMessage("Version is not a valid semantic version").
		WithContext("version", version).
		WithSeverity("error")
}

// Configuration errors

// NewConfigNotFoundError reports a missing configuration file.
func NewConfigNotFoundError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigNotFound, fmt.Sprintf("configuration file %s not found", path)).
		WithUserMessage("Configuration file not found").
		WithContext("path", path).
		WithSeverity("error")
}

// NewConfigParseError wraps a configuration parsing failure.
func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, fmt.Sprintf("failed to parse configuration %s", path)).
		WithUserMessage("Configuration file could not be parsed").
		WithContext("path", path).
		WithSeverity("error")
}

// NewConfigWatcherError wraps a file watcher failure.
func NewConfigWatcherError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeConfigWatcherError, message).WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeConfigWatcherError, message).WithSeverity("error")
}

// Security errors

// NewSecurityValidationError reports an unsafe name or path.
func NewSecurityValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeSecurityValidationError, message).WithSeverity("error")
	}
	return errors.New(ErrCodeSecurityValidationError, message).WithSeverity("error")
}

// NewPathTraversalError reports a path traversal attempt.
func NewPathTraversalError(path string) *errors.Error {
	return errors.New(ErrCodePathTraversalError, "path traversal attempt detected").
		WithUserMessage("Invalid path").
		WithContext("path", path).
		WithSeverity("error")
}

// ErrorCodeOf returns the structured error code of err, or "" when err is not
// a structured error.
func ErrorCodeOf(err error) string {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return string(structured.ErrorCode())
	}
	return ""
}

// IsRequirementError reports whether err is an unmet dependency of any kind.
func IsRequirementError(err error) bool {
	return strings.HasPrefix(ErrorCodeOf(err), requirementCodePrefix)
}

// IsUnresolvedDependency reports whether err is a missing sibling plugin and
// returns the missing name.
func IsUnresolvedDependency(err error) (string, bool) {
	var structured *errors.Error
	if !stderrors.As(err, &structured) || structured.ErrorCode() != errors.ErrorCode(ErrCodePluginRequirement) {
		return "", false
	}
	name, _ := structured.Context["dependency"].(string)
	return name, true
}

// DescribeProblem returns a short human-readable description of a load
// problem, preferring the user message of structured errors.
func DescribeProblem(err error) string {
	if err == nil {
		return ""
	}
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		if msg := structured.UserMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}
