// manifest.go: Extension package manifests and dependency declarations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const platformAny = "any"

// DependencyKind selects how a dependency is resolved.
type DependencyKind string

const (
	// DependencyPlugin is a sibling plugin, resolved by package or provider name.
	DependencyPlugin DependencyKind = "plugin"
	// DependencyModule is a native module compiled into the host.
	DependencyModule DependencyKind = "module"
	// DependencyApp is an external tool that must be installed on the host.
	DependencyApp DependencyKind = "app"
)

// Dependency is one entry of a manifest's dependency list.
//
// It decodes from a mapping, a "kind:name" string or a
// [kind, name, package, binary] sequence in every manifest format.
type Dependency struct {
	Kind      DependencyKind `json:"type" yaml:"type" toml:"type"`
	Name      string         `json:"name" yaml:"name" toml:"name"`
	Package   string         `json:"package,omitempty" yaml:"package,omitempty" toml:"package,omitempty"`
	Binary    string         `json:"binary,omitempty" yaml:"binary,omitempty" toml:"binary,omitempty"`
	Version   string         `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Platforms PlatformList   `json:"platforms,omitempty" yaml:"platforms,omitempty" toml:"platforms,omitempty"`
}

// String renders the dependency as "kind:name".
func (d Dependency) String() string {
	return string(d.Kind) + ":" + d.Name
}

// AppliesTo reports whether the dependency is required on platform.
func (d Dependency) AppliesTo(platform string) bool {
	return d.Platforms.Allows(platform)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Dependency) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.decode(raw)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Dependency) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.decode(raw)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Dependency) UnmarshalTOML(raw interface{}) error {
	return d.decode(raw)
}

func (d *Dependency) decode(raw interface{}) error {
	dep, err := decodeDependency(raw)
	if err != nil {
		return err
	}
	*d = dep
	return nil
}

func decodeDependency(raw interface{}) (Dependency, error) {
	switch v := raw.(type) {
	case string:
		kind, name, found := strings.Cut(v, ":")
		if !found {
			return Dependency{Kind: DependencyPlugin, Name: strings.TrimSpace(v)}, nil
		}
		return Dependency{Kind: DependencyKind(strings.TrimSpace(kind)), Name: strings.TrimSpace(name)}, nil

	case []interface{}:
		fields := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return Dependency{}, fmt.Errorf("dependency field %d is %T, not a string", i, item)
			}
			fields[i] = s
		}
		if len(fields) < 2 || len(fields) > 4 {
			return Dependency{}, fmt.Errorf("dependency sequence needs 2 to 4 fields, got %d", len(fields))
		}
		dep := Dependency{Kind: DependencyKind(fields[0]), Name: fields[1]}
		if len(fields) > 2 {
			dep.Package = fields[2]
		}
		if len(fields) > 3 {
			dep.Binary = fields[3]
		}
		return dep, nil

	case map[string]interface{}:
		var dep Dependency
		for key, value := range v {
			if key == "platforms" {
				platforms, err := decodePlatforms(value)
				if err != nil {
					return Dependency{}, err
				}
				dep.Platforms = platforms
				continue
			}
			s, ok := value.(string)
			if !ok {
				return Dependency{}, fmt.Errorf("dependency field %q is %T, not a string", key, value)
			}
			switch key {
			case "type", "kind":
				dep.Kind = DependencyKind(s)
			case "name":
				dep.Name = s
			case "package":
				dep.Package = s
			case "binary":
				dep.Binary = s
			case "version":
				dep.Version = s
			default:
				return Dependency{}, fmt.Errorf("unknown dependency field %q", key)
			}
		}
		return dep, nil
	}
	return Dependency{}, fmt.Errorf("unsupported dependency value %T", raw)
}

// PlatformList is a set of platform tags. It decodes from "any" or a list;
// an empty list also allows every platform.
type PlatformList []string

// Allows reports whether platform is in the list.
func (p PlatformList) Allows(platform string) bool {
	return platformAllowed(p, platform)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PlatformList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return p.decode(raw)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PlatformList) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return p.decode(raw)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (p *PlatformList) UnmarshalTOML(raw interface{}) error {
	return p.decode(raw)
}

func (p *PlatformList) decode(raw interface{}) error {
	list, err := decodePlatforms(raw)
	if err != nil {
		return err
	}
	*p = list
	return nil
}

func decodePlatforms(raw interface{}) (PlatformList, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return PlatformList{strings.TrimSpace(v)}, nil
	case []interface{}:
		list := make(PlatformList, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("platform entry is %T, not a string", item)
			}
			list = append(list, s)
		}
		return list, nil
	}
	return nil, fmt.Errorf("unsupported platforms value %T", raw)
}

// ExtensionManifest describes an extension package. Package is the name of
// the package directory and identifies the package to the loader; Name is
// its display name.
type ExtensionManifest struct {
	Package      string       `json:"-" yaml:"-" toml:"-"`
	Path         string       `json:"-" yaml:"-" toml:"-"`
	Name         string       `json:"name" yaml:"name" toml:"name"`
	Version      string       `json:"version" yaml:"version" toml:"version"`
	Author       string       `json:"author,omitempty" yaml:"author,omitempty" toml:"author,omitempty"`
	Homepage     string       `json:"homepage,omitempty" yaml:"homepage,omitempty" toml:"homepage,omitempty"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Icon         string       `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	Platforms    PlatformList `json:"platforms,omitempty" yaml:"platforms,omitempty" toml:"platforms,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	Modules      []string     `json:"modules,omitempty" yaml:"modules,omitempty" toml:"modules,omitempty"`
	Interfaces   []string     `json:"interfaces,omitempty" yaml:"interfaces,omitempty" toml:"interfaces,omitempty"`
	Generation   int          `json:"generation" yaml:"generation" toml:"generation"`
}

// Validate checks required fields, names and version strings.
func (m *ExtensionManifest) Validate() error {
	if err := validateNameSecurity(m.Package); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return NewManifestError(m.Path, fmt.Errorf("name is required"))
	}
	if _, err := ParseVersion(m.Version); err != nil {
		return NewManifestError(m.Path, err)
	}
	if m.Generation < 0 {
		return NewManifestError(m.Path, fmt.Errorf("generation must not be negative"))
	}
	for _, module := range m.Modules {
		if err := validateNameSecurity(module); err != nil {
			return NewManifestError(m.Path, err)
		}
	}
	for i, dep := range m.Dependencies {
		if err := validateDependency(dep); err != nil {
			return NewManifestError(m.Path, err).WithContext("dependency_index", i)
		}
	}
	return nil
}

// PluginDependencies returns the plugin dependency names that apply on platform.
func (m *ExtensionManifest) PluginDependencies(platform string) []string {
	var names []string
	for _, dep := range m.Dependencies {
		if dep.Kind == DependencyPlugin && dep.AppliesTo(platform) {
			names = append(names, dep.Name)
		}
	}
	return names
}

func validateDependency(dep Dependency) error {
	if strings.TrimSpace(dep.Name) == "" {
		return fmt.Errorf("dependency name is required")
	}
	switch dep.Kind {
	case DependencyPlugin:
		return validConstraint(dep.Version)
	case DependencyModule, DependencyApp:
		if dep.Version != "" {
			return fmt.Errorf("version constraints apply to plugin dependencies only")
		}
		return nil
	default:
		return fmt.Errorf("unknown dependency type %q", dep.Kind)
	}
}

// validateNameSecurity rejects package and module names that could escape
// the extensions directory or reach a shell.
func validateNameSecurity(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewSecurityValidationError("name cannot be empty", nil)
	}
	if strings.Contains(name, "..") {
		return NewPathTraversalError(name)
	}
	if strings.ContainsAny(name, `/\`) {
		return NewSecurityValidationError("name contains path separator characters", nil).
			WithContext("name", name)
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return NewSecurityValidationError("name contains control character", nil).
				WithContext("name", name).
				WithContext("control_character_code", r)
		}
	}
	if i := strings.IndexAny(name, "~|&;$`()[]{}<>"); i >= 0 {
		return NewSecurityValidationError("name contains dangerous character", nil).
			WithContext("name", name).
			WithContext("dangerous_character", string(name[i]))
	}
	return nil
}
