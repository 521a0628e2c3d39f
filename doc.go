// Package goextensions provides an in-process extension runtime: it
// discovers extension packages on disk, loads them in an order that
// satisfies their dependencies, and wires plugins (providers) to apps
// (consumers) through declared interfaces.
//
// Key Features:
//   - Interface contracts with consumer-required methods and abstract markers
//   - One published provider per interface slot, reachable by interface or slot name
//   - Dependency-ordered loading with bounded retries and cycle detection
//   - Capability-gated calls: a caller reaches only providers sharing one of its interfaces
//   - App registry with identity de-duplication and change notifications
//   - Manifests in YAML, JSON or TOML; configuration hot reload via Argus
//   - Structured errors, pluggable logging (zap adapter) and Prometheus metrics
//
// Basic Usage:
//
//	catalog := goextensions.NewCatalog()
//	_ = catalog.Add("storage", goextensions.ExtensionFunc(func(r *goextensions.Registrar) error {
//		if _, err := r.DefineInterface("IStorage", []goextensions.MethodSignature{
//			goextensions.Method("Get", 1),
//		}, nil, false); err != nil {
//			return err
//		}
//		return r.RegisterPluginType(goextensions.PluginType{
//			Name:       "MemoryStorage",
//			Implements: []string{"IStorage"},
//			New: func(ctx *goextensions.RuntimeContext) (any, error) {
//				return NewMemoryStorage(), nil
//			},
//		})
//	}))
//
//	rt, err := goextensions.New(goextensions.RuntimeOptions{Catalog: catalog})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := rt.Initialize(nil, "./extensions", "linux"); err != nil {
//		log.Fatal(err)
//	}
//	if err := rt.LoadAll(); err != nil {
//		log.Fatal(err)
//	}
//
// Each package directory holds a manifest (extension.yaml, extension.json or
// extension.toml) naming the catalog modules to run:
//
//	name: Storage
//	version: 1.0.0
//	generation: 1
//	modules: [storage]
//	dependencies:
//	  - plugin:Logging
//	  - {type: app, name: git, binary: git}
//
// Calls into a provider go through the capability gate. Constructors get
// handles bound to the interfaces their type declared:
//
//	New: func(ctx *goextensions.RuntimeContext) (any, error) {
//		storage, err := ctx.Provider("PStorage")
//		...
//		value, err := goextensions.CallFirst[string](storage, "Get", "key")
//	}
//
// Host code calls through rt.Provider, which is trusted, or through
// rt.ProviderFor to act on behalf of a registered app.
//
// A package that keeps failing on a missing sibling more than the retry
// limit allows is treated as a circular dependency: the runtime logs it,
// flushes the logger and exits with status 1.
package goextensions
