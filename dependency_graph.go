// dependency_graph.go: Package dependency graph and load ordering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sort"
	"sync"
)

// DependencyGraph records which packages depend on which.
//
//	graph := NewDependencyGraph()
//	graph.Add("webui", []string{"storage", "auth"})
//	graph.Add("auth", []string{"storage"})
//	order, err := graph.LoadOrder() // storage, auth, webui
type DependencyGraph struct {
	mu         sync.RWMutex
	deps       map[string][]string
	dependents map[string]map[string]struct{}
	// added holds nodes passed to Add; the rest are placeholders kept
	// only while something depends on them.
	added map[string]struct{}
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		deps:       make(map[string][]string),
		dependents: make(map[string]map[string]struct{}),
		added:      make(map[string]struct{}),
	}
}

// Add sets the dependencies of name, replacing earlier ones. Dependencies
// become nodes of the graph even when they are never added themselves.
func (g *DependencyGraph) Add(name string, dependencies []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unlinkLocked(name)
	deps := uniqueStrings(dependencies)
	g.added[name] = struct{}{}
	g.deps[name] = deps
	for _, dep := range deps {
		if _, ok := g.deps[dep]; !ok {
			g.deps[dep] = nil
		}
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][name] = struct{}{}
	}
}

// Remove drops name's own edges. Name stays a placeholder node while other
// packages still depend on it, and goes away with its last dependent.
func (g *DependencyGraph) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unlinkLocked(name)
	delete(g.added, name)
	if len(g.dependents[name]) == 0 {
		delete(g.deps, name)
		delete(g.dependents, name)
	} else {
		g.deps[name] = nil
	}
}

// Has reports whether name was added and not removed since.
func (g *DependencyGraph) Has(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.added[name]
	return ok
}

func (g *DependencyGraph) unlinkLocked(name string) {
	for _, dep := range g.deps[name] {
		delete(g.dependents[dep], name)
		if len(g.dependents[dep]) > 0 {
			continue
		}
		delete(g.dependents, dep)
		if _, ok := g.added[dep]; !ok {
			delete(g.deps, dep)
		}
	}
}

// Dependencies returns the direct dependencies of name.
func (g *DependencyGraph) Dependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the packages that directly depend on name, sorted.
func (g *DependencyGraph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.dependents[name]))
	for dependent := range g.dependents[name] {
		out = append(out, dependent)
	}
	sort.Strings(out)
	return out
}

// LoadOrder returns every node with dependencies before their dependents.
// Ties are broken alphabetically. A cycle yields CircularDependencyError
// naming one package of the cycle.
func (g *DependencyGraph) LoadOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.deps))
	for name, deps := range g.deps {
		inDegree[name] = len(deps)
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.deps))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		var unlocked []string
		for dependent := range g.dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(order) != len(g.deps) {
		var stuck []string
		for name, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		dep := ""
		for _, d := range g.deps[stuck[0]] {
			if inDegree[d] > 0 {
				dep = d
				break
			}
		}
		return nil, NewCircularDependencyError(stuck[0], dep, 0)
	}
	return order, nil
}
