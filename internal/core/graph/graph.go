// Package graph holds the logical resources a backend has been asked to create
// and the relations between them.
//
// A resource is keyed by its logical name within its parent scope. Adding the
// same key twice is a naming conflict. Dependencies and parents must already be
// present when a resource is added, so the graph can never contain a cycle.
package graph

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateResource is returned when a name is reused within a scope.
	ErrDuplicateResource = errors.New("duplicate resource")

	// ErrMissingDependency is returned when a parent or dependency is unknown.
	ErrMissingDependency = errors.New("missing dependency")
)

// Resource is one logical infrastructure object.
type Resource struct {
	Type       string
	Name       string
	Parent     string   // ID of the enclosing scope, empty for roots
	DependsOn  []string // IDs that must be realized first
	Properties any
}

// ID returns the key of r: its name qualified by its parent scope.
//
// Example:
//
//	Resource{Name: "web-lb", Parent: "prod"}.ID() // "prod/web-lb"
func (r Resource) ID() string {
	return ResourceID(r.Parent, r.Name)
}

// ResourceID builds the key of a resource named name inside parent.
func ResourceID(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Graph is an insertion-ordered set of resources. It is safe for concurrent use.
type Graph struct {
	mu        sync.RWMutex
	resources []Resource
	index     map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Add inserts r and returns its ID.
func (g *Graph) Add(r Resource) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := r.ID()
	if _, ok := g.index[id]; ok {
		return "", fmt.Errorf("%w: %s %s", ErrDuplicateResource, r.Type, id)
	}
	if r.Parent != "" {
		if _, ok := g.index[r.Parent]; !ok {
			return "", fmt.Errorf("%w: parent %s of %s", ErrMissingDependency, r.Parent, id)
		}
	}
	for _, dep := range r.DependsOn {
		if _, ok := g.index[dep]; !ok {
			return "", fmt.Errorf("%w: %s of %s", ErrMissingDependency, dep, id)
		}
	}

	r.DependsOn = append([]string(nil), r.DependsOn...)
	g.index[id] = len(g.resources)
	g.resources = append(g.resources, r)
	return id, nil
}

// Get returns the resource stored under id.
func (g *Graph) Get(id string) (Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.index[id]
	if !ok {
		return Resource{}, false
	}
	return g.resources[i], true
}

// Len returns the number of resources.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.resources)
}

// Resources returns all resources in insertion order.
func (g *Graph) Resources() []Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Resource(nil), g.resources...)
}

// Children returns the resources whose parent is id, in insertion order.
func (g *Graph) Children(id string) []Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Resource
	for _, r := range g.resources {
		if r.Parent == id {
			out = append(out, r)
		}
	}
	return out
}

// OfType returns the resources of the given type, in insertion order.
func (g *Graph) OfType(typ string) []Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Resource
	for _, r := range g.resources {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}
