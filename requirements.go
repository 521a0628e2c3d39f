// requirements.go: Platform, generation and dependency checks for manifests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

// checkRequirements validates a manifest against the running host. The
// first unmet requirement is returned; only a missing sibling plugin is
// retryable.
func (l *ExtensionLoader) checkRequirements(m *ExtensionManifest) error {
	if !m.Platforms.Allows(l.platform) {
		return NewPlatformRequirementError(m.Platforms)
	}
	if m.Generation != l.generation {
		return NewGenerationRequirementError(m.Generation, l.generation)
	}
	for _, dep := range m.Dependencies {
		if !dep.AppliesTo(l.platform) {
			continue
		}
		if err := l.checkDependency(m.Package, dep); err != nil {
			return err
		}
	}
	return nil
}

func (l *ExtensionLoader) checkDependency(pkg string, dep Dependency) error {
	switch dep.Kind {
	case DependencyPlugin:
		return l.checkPluginDependency(pkg, dep)

	case DependencyModule:
		if _, ok := l.catalog.Lookup(dep.Name); ok {
			return nil
		}
		if _, ok := l.nativeModules[dep.Name]; ok {
			return nil
		}
		return NewModuleRequirementError(dep.Name)

	case DependencyApp:
		binary := dep.Binary
		if binary == "" {
			binary = dep.Name
		}
		if _, err := l.lookPath(binary); err != nil {
			return NewSoftwareRequirementError(dep.Name, dep.Package, binary)
		}
		return nil
	}
	return NewManifestError(pkg, nil).WithContext("dependency", dep.String())
}

func (l *ExtensionLoader) checkPluginDependency(pkg string, dep Dependency) error {
	owner, ok := l.resolvePluginDependency(dep.Name)
	if !ok {
		return NewPluginRequirementError(dep.Name, pkg)
	}
	if dep.Version == "" || owner == "" {
		return nil
	}

	actual := ""
	l.statusMu.RLock()
	if st, exists := l.status[owner]; exists && st.Manifest != nil {
		actual = st.Manifest.Version
	}
	l.statusMu.RUnlock()

	v, err := ParseVersion(actual)
	if err != nil {
		return NewVersionRequirementError(dep.Name, dep.Version, actual)
	}
	if satisfied, err := v.Satisfies(dep.Version); err != nil || !satisfied {
		return NewVersionRequirementError(dep.Name, dep.Version, actual)
	}
	return nil
}

// resolvePluginDependency finds what satisfies a plugin dependency: a
// loaded package with that package or display name, or a published
// provider. It returns the owning package when one is known.
func (l *ExtensionLoader) resolvePluginDependency(name string) (string, bool) {
	l.statusMu.RLock()
	for pkg, st := range l.status {
		if st.State != LoadingStateLoaded {
			continue
		}
		if pkg == name || (st.Manifest != nil && st.Manifest.Name == name) {
			l.statusMu.RUnlock()
			return pkg, true
		}
	}
	l.statusMu.RUnlock()

	p, err := l.contracts.LookupProvider(name)
	if err != nil {
		return "", false
	}
	return l.ownerOf(p.ID()), true
}

// ownerOf returns the package that registered a plugin type.
func (l *ExtensionLoader) ownerOf(pluginType string) string {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	for pkg, rec := range l.owned {
		for _, name := range rec.pluginTypes {
			if name == pluginType {
				return pkg
			}
		}
	}
	return ""
}
