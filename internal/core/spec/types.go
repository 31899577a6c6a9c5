// Package spec contains the declarative description of a microservice and pure
// functions to load and validate it.
// This is part of the Functional Core - all functions are pure with no I/O.
package spec

import "strings"

// DefaultReplicas is the desired instance count when a service omits replicas.
const DefaultReplicas = 1

// =============================================================================
// Spec Types
// =============================================================================

// ContainerSpec describes one runnable unit.
type ContainerSpec struct {
	// Name is unique among the primary container and its sidecars.
	Name string `yaml:"name" json:"name"`

	// Image is either a registry reference ("nginx:1.27") or a local build
	// context ("./app") that is built and published during apply.
	Image string `yaml:"image" json:"image"`

	// Ports are exposed through a load balancer, one listener each, in order.
	Ports []int `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// ServiceSpec describes a microservice: a primary container plus sidecars.
type ServiceSpec struct {
	ContainerSpec `yaml:",inline"`

	// Replicas is the desired instance count. Nil means DefaultReplicas.
	Replicas *int `yaml:"replicas,omitempty" json:"replicas,omitempty"`

	// Sidecars run alongside the primary container and link to it.
	Sidecars []ContainerSpec `yaml:"sidecars,omitempty" json:"sidecars,omitempty"`
}

// DesiredCount returns the replica count, defaulting to DefaultReplicas.
func (s ServiceSpec) DesiredCount() int {
	if s.Replicas == nil {
		return DefaultReplicas
	}
	return *s.Replicas
}

// Containers returns the primary container followed by the sidecars.
func (s ServiceSpec) Containers() []ContainerSpec {
	out := make([]ContainerSpec, 0, 1+len(s.Sidecars))
	out = append(out, s.ContainerSpec)
	return append(out, s.Sidecars...)
}

// PortCount returns the number of ports across all containers, which is also
// the number of endpoints a composition of s produces.
func (s ServiceSpec) PortCount() int {
	n := 0
	for _, c := range s.Containers() {
		n += len(c.Ports)
	}
	return n
}

// Replicas returns a pointer to n for use in ServiceSpec literals.
func Replicas(n int) *int {
	return &n
}

// =============================================================================
// Image Sources
// =============================================================================

// IsBuildContext reports whether an image source names a local directory to
// build rather than a registry reference.
//
// Example:
//
//	IsBuildContext("./app")        // true
//	IsBuildContext("nginx:latest") // false
func IsBuildContext(source string) bool {
	if source == "." || source == ".." {
		return true
	}
	for _, prefix := range []string{"./", "../", "/", "~/"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}
