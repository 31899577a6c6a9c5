// Package composer compiles a ServiceSpec into backend resource requests.
//
// The composer resolves the primary container and each sidecar, links the
// sidecars to the primary, groups everything into one deployable unit and
// returns the service's endpoints. It performs a single synchronous pass;
// every value the backend cannot know yet is carried as a promise Output.
//
//	registry, _ := composer.NewRegistry(logger, ecsBackend)
//	cl, _ := registry.NewCluster(cluster.KindAwsEcs, "my-cluster")
//	svc, err := composer.New(backend.DefaultLimits, logger).ComposeService(cl, s)
package composer

import (
	"log/slog"

	"github.com/artpar/microplan/internal/core/backend"
	"github.com/artpar/microplan/internal/core/promise"
	"github.com/artpar/microplan/internal/core/spec"
)

// Composer turns service specs into deployable groups.
// It holds no per-service state, so one Composer may compose independent
// services concurrently.
type Composer struct {
	limits backend.Limits
	logger *slog.Logger
}

// New creates a Composer reserving limits for every container.
func New(limits backend.Limits, logger *slog.Logger) *Composer {
	return &Composer{
		limits: limits,
		logger: logger,
	}
}

// Service is the result of composing one ServiceSpec.
type Service struct {
	Name       string
	Cluster    *Cluster
	Group      backend.GroupHandle
	Containers backend.ContainerSet

	// Endpoints lists the primary container's ports first, then each
	// sidecar's in declaration order; ports keep their declared order.
	Endpoints []backend.Endpoint
}

// URLs combines every endpoint URL into one Output, in endpoint order.
func (s *Service) URLs() *promise.Output[[]string] {
	urls := make([]*promise.Output[string], len(s.Endpoints))
	for i, ep := range s.Endpoints {
		urls[i] = ep.URL
	}
	return promise.All(urls)
}

// =============================================================================
// Container Resolution
// =============================================================================

// ResolveContainer requests the resources one container needs: its image and,
// when it declares ports, one load balancer with a listener per port. It
// returns the container descriptor and one endpoint per port in order.
func (c *Composer) ResolveContainer(cl *Cluster, cs spec.ContainerSpec) (backend.ContainerDescriptor, []backend.Endpoint, error) {
	b, err := cl.capabilities()
	if err != nil {
		return backend.ContainerDescriptor{}, nil, err
	}
	return c.resolve(b, cl.Handle(), cs)
}

func (c *Composer) resolve(b backend.Backend, scope backend.ClusterHandle, cs spec.ContainerSpec) (backend.ContainerDescriptor, []backend.Endpoint, error) {
	var (
		listeners []backend.ListenerHandle
		endpoints []backend.Endpoint
	)

	if len(cs.Ports) > 0 {
		frontend, err := b.CreateLoadBalancerFrontend(spec.LoadBalancerName(cs.Name), scope)
		if err != nil {
			return backend.ContainerDescriptor{}, nil, err
		}
		listeners = make([]backend.ListenerHandle, 0, len(cs.Ports))
		endpoints = make([]backend.Endpoint, 0, len(cs.Ports))
		for _, port := range cs.Ports {
			l, addr, err := b.CreateListener(spec.ListenerName(cs.Name, port), frontend, port)
			if err != nil {
				return backend.ContainerDescriptor{}, nil, err
			}
			listeners = append(listeners, l)
			endpoints = append(endpoints, backend.NewEndpoint(cs.Name, port, addr))
		}
	}

	image, err := b.ResolveImage(spec.ImageName(cs.Name), cs.Image)
	if err != nil {
		return backend.ContainerDescriptor{}, nil, err
	}

	c.logger.Debug("container resolved",
		"container", cs.Name,
		"image", cs.Image,
		"listeners", len(listeners),
	)

	return backend.ContainerDescriptor{
		Name:      cs.Name,
		Image:     image,
		Listeners: listeners,
		Limits:    c.limits,
		Essential: true,
	}, endpoints, nil
}

// =============================================================================
// Service Composition
// =============================================================================

// ComposeService compiles s into resource requests on cl.
//
// The steps are strictly sequential:
//  1. Reject clusters without a backend for their kind (no requests issued).
//  2. Validate s (no requests issued).
//  3. Resolve the primary container, keyed by its name.
//  4. Resolve each sidecar, keyed "sidecar-<name>" and linked to the primary.
//  5. Request one deployable group with all containers and the desired count.
//
// Backend errors are returned unchanged; requests already issued are left to
// the runtime that realizes them.
func (c *Composer) ComposeService(cl *Cluster, s spec.ServiceSpec) (*Service, error) {
	b, err := cl.capabilities()
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(s); err != nil {
		return nil, err
	}

	primary, endpoints, err := c.resolve(b, cl.Handle(), s.ContainerSpec)
	if err != nil {
		return nil, err
	}
	entries := make([]backend.ContainerEntry, 0, 1+len(s.Sidecars))
	entries = append(entries, backend.ContainerEntry{Key: s.Name, Descriptor: primary})

	for _, sc := range s.Sidecars {
		d, eps, err := c.resolve(b, cl.Handle(), sc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, backend.ContainerEntry{
			Key:        spec.SidecarKey(sc.Name),
			Descriptor: d.WithLinks(s.Name),
		})
		endpoints = append(endpoints, eps...)
	}

	containers, err := backend.NewContainerSet(entries...)
	if err != nil {
		return nil, err
	}

	group, err := b.CreateDeployableGroup(spec.GroupName(s.Name), cl.Handle(), containers, s.DesiredCount())
	if err != nil {
		return nil, err
	}

	c.logger.Info("service composed",
		"service", s.Name,
		"cluster", cl.Name(),
		"containers", containers.Len(),
		"endpoints", len(endpoints),
		"ports", s.PortCount(),
		"desired_count", group.DesiredCount,
	)

	return &Service{
		Name:       s.Name,
		Cluster:    cl,
		Group:      group,
		Containers: containers,
		Endpoints:  endpoints,
	}, nil
}
