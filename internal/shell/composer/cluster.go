package composer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/artpar/microplan/internal/core/backend"
	"github.com/artpar/microplan/internal/core/cluster"
)

// =============================================================================
// Cluster
// =============================================================================

// Cluster is one backend instance services are composed onto. The backend is
// chosen when the cluster is created and never changes.
type Cluster struct {
	name    string
	kind    cluster.Kind
	backend backend.Backend
	handle  backend.ClusterHandle
}

// Name returns the cluster's logical name.
func (c *Cluster) Name() string {
	return c.name
}

// Kind returns the cluster's kind.
func (c *Cluster) Kind() cluster.Kind {
	return c.kind
}

// Handle returns the backend handle of the cluster resource.
func (c *Cluster) Handle() backend.ClusterHandle {
	return c.handle
}

// KindOf returns the kind a cluster was constructed with.
func KindOf(c *Cluster) cluster.Kind {
	return c.kind
}

// capabilities returns the backend serving c, failing when the cluster has
// none or when the backend realizes a different kind.
func (c *Cluster) capabilities() (backend.Backend, error) {
	if c == nil {
		return nil, unsupported("")
	}
	if c.backend == nil || c.backend.Kind() != c.kind {
		return nil, unsupported(c.kind)
	}
	return c.backend, nil
}

// =============================================================================
// Registry
// =============================================================================

// Registry maps cluster kinds to the backends that implement them.
type Registry struct {
	mu       sync.RWMutex
	backends map[cluster.Kind]backend.Backend
	logger   *slog.Logger
}

// NewRegistry creates a registry with the given backends registered.
func NewRegistry(logger *slog.Logger, backends ...backend.Backend) (*Registry, error) {
	r := &Registry{
		backends: make(map[cluster.Kind]backend.Backend),
		logger:   logger,
	}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a backend for its kind.
func (r *Registry) Register(b backend.Backend) error {
	kind := b.Kind()
	if !kind.Valid() {
		return unsupported(kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[kind]; ok {
		return fmt.Errorf("%w: %s", ErrBackendRegistered, kind)
	}
	r.backends[kind] = b
	r.logger.Debug("backend registered", "kind", kind)
	return nil
}

// Lookup returns the backend for kind.
func (r *Registry) Lookup(kind cluster.Kind) (backend.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[kind]
	if !ok {
		return nil, unsupported(kind)
	}
	return b, nil
}

// Supported returns the registered kinds in declaration order.
func (r *Registry) Supported() []cluster.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []cluster.Kind
	for _, k := range cluster.Kinds() {
		if _, ok := r.backends[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// NewCluster creates a cluster of the given kind, requesting the underlying
// cluster resource from the kind's backend.
func (r *Registry) NewCluster(kind cluster.Kind, name string) (*Cluster, error) {
	if name == "" {
		return nil, ErrClusterNameRequired
	}
	b, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}

	handle, err := b.EnsureCluster(name)
	if err != nil {
		return nil, err
	}

	r.logger.Info("cluster planned", "cluster", name, "kind", kind)
	return &Cluster{
		name:    name,
		kind:    kind,
		backend: b,
		handle:  handle,
	}, nil
}
