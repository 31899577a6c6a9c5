package fargate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/microplan/internal/core/backend"
	"github.com/artpar/microplan/internal/core/cluster"
	"github.com/artpar/microplan/internal/core/graph"
	"github.com/artpar/microplan/internal/core/promise"
	"github.com/artpar/microplan/internal/core/spec"
)

// Resource types recorded in the graph.
const (
	TypeCluster      = "ecs:cluster"
	TypeLoadBalancer = "elb:loadbalancer"
	TypeListener     = "elb:listener"
	TypeImage        = "ecr:image"
	TypeService      = "ecs:service"
)

// =============================================================================
// Resource Properties
// =============================================================================

// Network is what a realized cluster provides to the resources inside it.
type Network struct {
	ClusterARN      string
	VpcID           string
	SubnetIDs       []string
	SecurityGroupID string
}

type loadBalancerInfo struct {
	ARN     string
	DNSName string
}

type clusterProps struct {
	Name    string
	Network *promise.Output[Network]
}

type loadBalancerProps struct {
	Name string
	Info *promise.Output[loadBalancerInfo]
}

type listenerProps struct {
	Name           string
	Port           int
	LoadBalancer   string
	Address        *promise.Output[backend.Address]
	TargetGroupARN *promise.Output[string]
}

type imageProps struct {
	Name   string
	Source string
	URI    *promise.Output[string]
}

type serviceProps struct {
	Name         string
	Containers   backend.ContainerSet
	DesiredCount int
	ARN          *promise.Output[string]
}

// rejecter is implemented by every properties type so a failed apply can
// settle every Output still pending.
type rejecter interface {
	rejectPending(err error)
}

func (p *clusterProps) rejectPending(err error)      { _ = p.Network.Reject(err) }
func (p *loadBalancerProps) rejectPending(err error) { _ = p.Info.Reject(err) }
func (p *imageProps) rejectPending(err error)        { _ = p.URI.Reject(err) }
func (p *serviceProps) rejectPending(err error)      { _ = p.ARN.Reject(err) }
func (p *listenerProps) rejectPending(err error) {
	_ = p.Address.Reject(err)
	_ = p.TargetGroupARN.Reject(err)
}

// =============================================================================
// Backend
// =============================================================================

// Backend plans ECS/Fargate resources. It implements backend.Backend.
// All methods only record intent; nothing reaches AWS until Apply.
type Backend struct {
	graph  *graph.Graph
	logger *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend creates a Backend with an empty resource graph.
func NewBackend(logger *slog.Logger) *Backend {
	return &Backend{
		graph:  graph.New(),
		logger: logger.With("backend", "fargate"),
	}
}

// Graph returns the planned resource graph.
func (b *Backend) Graph() *graph.Graph {
	return b.graph
}

// Kind returns cluster.KindAwsEcs.
func (b *Backend) Kind() cluster.Kind {
	return cluster.KindAwsEcs
}

// EnsureCluster plans an ECS cluster together with its security group.
func (b *Backend) EnsureCluster(name string) (backend.ClusterHandle, error) {
	_, err := b.add("EnsureCluster", graph.Resource{
		Type: TypeCluster,
		Name: name,
		Properties: &clusterProps{
			Name:    name,
			Network: promise.New[Network](),
		},
	})
	if err != nil {
		return backend.ClusterHandle{}, err
	}
	return backend.ClusterHandle{Name: name}, nil
}

// CreateLoadBalancerFrontend plans an internet-facing application load
// balancer in the cluster's subnets and security group.
func (b *Backend) CreateLoadBalancerFrontend(name string, scope backend.ClusterHandle) (backend.FrontendHandle, error) {
	if _, err := b.require("CreateLoadBalancerFrontend", scope.Name, TypeCluster); err != nil {
		return backend.FrontendHandle{}, err
	}
	_, err := b.add("CreateLoadBalancerFrontend", graph.Resource{
		Type:   TypeLoadBalancer,
		Name:   name,
		Parent: scope.Name,
		Properties: &loadBalancerProps{
			Name: name,
			Info: promise.New[loadBalancerInfo](),
		},
	})
	if err != nil {
		return backend.FrontendHandle{}, err
	}
	return backend.FrontendHandle{Name: name, Scope: scope}, nil
}

// CreateListener plans a target group and an HTTP listener forwarding port
// to it. The returned address resolves to the load balancer's DNS name.
func (b *Backend) CreateListener(name string, frontend backend.FrontendHandle, port int) (backend.ListenerHandle, *promise.Output[backend.Address], error) {
	lbID := graph.ResourceID(frontend.Scope.Name, frontend.Name)
	if _, err := b.require("CreateListener", lbID, TypeLoadBalancer); err != nil {
		return backend.ListenerHandle{}, nil, err
	}

	props := &listenerProps{
		Name:           name,
		Port:           port,
		LoadBalancer:   lbID,
		Address:        promise.New[backend.Address](),
		TargetGroupARN: promise.New[string](),
	}
	_, err := b.add("CreateListener", graph.Resource{
		Type:       TypeListener,
		Name:       name,
		Parent:     frontend.Scope.Name,
		DependsOn:  []string{lbID},
		Properties: props,
	})
	if err != nil {
		return backend.ListenerHandle{}, nil, err
	}
	return backend.ListenerHandle{Name: name, Frontend: frontend, Port: port}, props.Address, nil
}

// ResolveImage plans an image. Local build contexts are built and pushed to
// ECR during apply; registry references resolve immediately.
func (b *Backend) ResolveImage(name, source string) (backend.ImageReference, error) {
	props := &imageProps{
		Name:   name,
		Source: source,
		URI:    promise.New[string](),
	}
	if !spec.IsBuildContext(source) {
		_ = props.URI.Resolve(source)
	}

	if _, err := b.add("ResolveImage", graph.Resource{
		Type:       TypeImage,
		Name:       name,
		Properties: props,
	}); err != nil {
		return backend.ImageReference{}, err
	}
	return backend.ImageReference{Name: name, Source: source, URI: props.URI}, nil
}

// CreateDeployableGroup plans a Fargate task definition and the ECS service
// running it behind the containers' listeners.
func (b *Backend) CreateDeployableGroup(name string, scope backend.ClusterHandle, containers backend.ContainerSet, desiredCount int) (backend.GroupHandle, error) {
	const op = "CreateDeployableGroup"
	if _, err := b.require(op, scope.Name, TypeCluster); err != nil {
		return backend.GroupHandle{}, err
	}

	var deps []string
	for _, e := range containers.Entries() {
		if _, err := b.require(op, e.Descriptor.Image.Name, TypeImage); err != nil {
			return backend.GroupHandle{}, err
		}
		deps = append(deps, e.Descriptor.Image.Name)
		for _, l := range e.Descriptor.Listeners {
			id := graph.ResourceID(l.Frontend.Scope.Name, l.Name)
			if _, err := b.require(op, id, TypeListener); err != nil {
				return backend.GroupHandle{}, err
			}
			deps = append(deps, id)
		}
	}

	_, err := b.add(op, graph.Resource{
		Type:      TypeService,
		Name:      name,
		Parent:    scope.Name,
		DependsOn: deps,
		Properties: &serviceProps{
			Name:         name,
			Containers:   containers,
			DesiredCount: desiredCount,
			ARN:          promise.New[string](),
		},
	})
	if err != nil {
		return backend.GroupHandle{}, err
	}
	return backend.GroupHandle{Name: name, Scope: scope, DesiredCount: desiredCount}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (b *Backend) add(op string, r graph.Resource) (string, error) {
	id, err := b.graph.Add(r)
	if err != nil {
		if errors.Is(err, graph.ErrDuplicateResource) {
			return "", backend.NewProvisioningError(op, r.Name, "name already in use",
				fmt.Errorf("%w: %w", backend.ErrNamingConflict, err))
		}
		return "", backend.NewProvisioningError(op, r.Name, "unknown scope",
			fmt.Errorf("%w: %w", backend.ErrUnknownHandle, err))
	}
	b.logger.Debug("resource planned", "type", r.Type, "id", id)
	return id, nil
}

func (b *Backend) require(op, id, typ string) (graph.Resource, error) {
	r, ok := b.graph.Get(id)
	if !ok || r.Type != typ {
		return graph.Resource{}, backend.NewProvisioningError(op, id,
			fmt.Sprintf("no %s with this name was planned", typ), backend.ErrUnknownHandle)
	}
	return r, nil
}
