// Package backend defines the capability surface every cluster backend
// implements, and the values that flow between the composer and a backend.
package backend

import (
	"fmt"

	"github.com/artpar/microplan/internal/core/promise"
)

// =============================================================================
// Handles
// =============================================================================

// ClusterHandle refers to a cluster resource requested from a backend.
type ClusterHandle struct {
	Name string
}

// FrontendHandle refers to a load balancer requested from a backend.
type FrontendHandle struct {
	Name  string
	Scope ClusterHandle
}

// ListenerHandle refers to a listener bound to one port of a frontend.
type ListenerHandle struct {
	Name     string
	Frontend FrontendHandle
	Port     int
}

// GroupHandle refers to a deployable group (service/task group).
type GroupHandle struct {
	Name         string
	Scope        ClusterHandle
	DesiredCount int
}

// ImageReference is a container image whose final URI may only be known after
// a build and publish.
type ImageReference struct {
	Name   string
	Source string
	URI    *promise.Output[string]
}

// =============================================================================
// Addresses and Endpoints
// =============================================================================

// Address is the externally resolved location of a listener.
type Address struct {
	Host string
	Port int
}

// URL formats the address as an HTTP endpoint URL.
//
// Example:
//
//	Address{Host: "lb-1.elb.amazonaws.com", Port: 80}.URL()
//	// "http://lb-1.elb.amazonaws.com:80"
func (a Address) URL() string {
	return fmt.Sprintf("http://%s:%d", a.Host, a.Port)
}

// Endpoint is the reachable URL of one declared port of one container.
type Endpoint struct {
	Container string
	Port      int
	URL       *promise.Output[string]
}

// NewEndpoint derives an Endpoint from a listener's deferred address.
func NewEndpoint(container string, port int, addr *promise.Output[Address]) Endpoint {
	return Endpoint{
		Container: container,
		Port:      port,
		URL:       promise.Map(addr, Address.URL),
	}
}

// =============================================================================
// Container Descriptors
// =============================================================================

// Limits is the resource reservation of one container.
type Limits struct {
	MemoryMiB int
	CPUShares int
}

// DefaultLimits is the baseline reservation applied to every container.
var DefaultLimits = Limits{MemoryMiB: 256, CPUShares: 256}

// ContainerDescriptor is a resolved container ready to join a deployable group.
type ContainerDescriptor struct {
	Name      string
	Image     ImageReference
	Listeners []ListenerHandle
	Links     []string
	Limits    Limits
	Essential bool
}

// WithLinks returns a copy of d linked to the given containers.
func (d ContainerDescriptor) WithLinks(targets ...string) ContainerDescriptor {
	d.Links = append([]string(nil), targets...)
	return d
}
