package backend

import (
	"github.com/artpar/microplan/internal/core/cluster"
	"github.com/artpar/microplan/internal/core/promise"
)

// Backend is the capability set a cluster kind must fully implement before
// it is considered supported.
//
// Every method records intent and returns immediately. Values that are only
// known once resources exist are returned as promise Outputs.
type Backend interface {
	// Kind is the cluster kind this backend realizes.
	Kind() cluster.Kind

	// EnsureCluster requests the cluster resource itself.
	EnsureCluster(name string) (ClusterHandle, error)

	// CreateLoadBalancerFrontend requests a public load balancer inside the
	// cluster's network boundary, inheriting its security posture.
	CreateLoadBalancerFrontend(name string, scope ClusterHandle) (FrontendHandle, error)

	// CreateListener requests a listener on port and returns its address.
	CreateListener(name string, frontend FrontendHandle, port int) (ListenerHandle, *promise.Output[Address], error)

	// ResolveImage returns a reference for source, building and publishing
	// it when source is a local build context.
	ResolveImage(name, source string) (ImageReference, error)

	// CreateDeployableGroup requests the scheduled unit running containers
	// together with desiredCount instances.
	CreateDeployableGroup(name string, scope ClusterHandle, containers ContainerSet, desiredCount int) (GroupHandle, error)
}
