// discovery.go: Extension package discovery and manifest parsing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// ManifestFileNames are the manifest names looked up in a package directory,
// in order of preference.
var ManifestFileNames = []string{
	"extension.yaml",
	"extension.yml",
	"extension.json",
	"extension.toml",
}

// DiscoveryResult is one package directory found by DiscoverExtensions.
// Err is set when the directory holds a manifest that could not be used.
type DiscoveryResult struct {
	Package  string
	Manifest *ExtensionManifest
	Err      error
}

// DiscoverExtensions scans root for package directories holding a manifest.
// Results follow the directory listing order. Hidden directories and
// directories without a manifest are skipped.
func DiscoverExtensions(root string, logger Logger) ([]DiscoveryResult, error) {
	if logger == nil {
		logger = DefaultLogger()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, NewDiscoveryError(fmt.Sprintf("failed to read directory %s", root), err)
	}

	results := make([]DiscoveryResult, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		pkg := entry.Name()
		if err := validateNameSecurity(pkg); err != nil {
			logger.Warn("Skipping extension directory with unsafe name", "package", pkg, "error", err)
			continue
		}
		manifest, err := ReadPackageManifest(root, pkg)
		if err != nil {
			if ErrorCodeOf(err) == ErrCodeExtensionNotFound {
				logger.Debug("Directory has no extension manifest", "package", pkg)
				continue
			}
			logger.Warn("Invalid extension manifest", "package", pkg, "error", err)
		} else {
			logger.Debug("Discovered extension",
				"package", pkg,
				"name", manifest.Name,
				"version", manifest.Version,
				"path", manifest.Path)
		}
		results = append(results, DiscoveryResult{Package: pkg, Manifest: manifest, Err: err})
	}
	return results, nil
}

// FindManifest returns the manifest path inside dir.
func FindManifest(dir string) (string, bool) {
	for _, name := range ManifestFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// ReadPackageManifest reads and validates the manifest of package pkg under root.
func ReadPackageManifest(root, pkg string) (*ExtensionManifest, error) {
	if err := validateNameSecurity(pkg); err != nil {
		return nil, err
	}
	path, ok := FindManifest(filepath.Join(root, pkg))
	if !ok {
		return nil, NewExtensionNotFoundError(pkg)
	}
	manifest, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	manifest.Package = pkg
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// ReadManifest decodes a manifest file. The format follows the extension:
// JSON, YAML or TOML.
func ReadManifest(path string) (*ExtensionManifest, error) {
	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, NewManifestError(path, err)
	}
	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is cleaned above
	if err != nil {
		return nil, NewManifestError(cleanPath, err)
	}

	manifest, err := decodeManifest(data, argus.DetectFormat(cleanPath))
	if err != nil {
		return nil, NewManifestError(cleanPath, err)
	}
	manifest.Path = cleanPath
	return manifest, nil
}

func decodeManifest(data []byte, format argus.ConfigFormat) (*ExtensionManifest, error) {
	var manifest ExtensionManifest
	switch format {
	case argus.FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&manifest); err != nil {
			return nil, err
		}
	case argus.FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&manifest); err != nil {
			return nil, err
		}
	case argus.FormatTOML:
		if _, err := toml.Decode(string(data), &manifest); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format")
	}
	return &manifest, nil
}
