package spec

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// SidecarKey is the container key of a sidecar inside its deployable group.
// Pattern: sidecar-{name}
//
// Example:
//
//	SidecarKey("nginx-rp") // returns "sidecar-nginx-rp"
func SidecarKey(name string) string {
	return fmt.Sprintf("sidecar-%s", name)
}

// ImageName is the logical name of a container's image resource.
// Pattern: {container}-img
func ImageName(container string) string {
	return fmt.Sprintf("%s-img", container)
}

// LoadBalancerName is the logical name of a container's load balancer.
// Pattern: {container}-lb
func LoadBalancerName(container string) string {
	return fmt.Sprintf("%s-lb", container)
}

// ListenerName is the logical name of the listener for one port.
// Pattern: {container}-lb-{port}
//
// Example:
//
//	ListenerName("nginx-rp", 80) // returns "nginx-rp-lb-80"
func ListenerName(container string, port int) string {
	return fmt.Sprintf("%s-lb-%d", container, port)
}

// GroupName is the logical name of a service's deployable group.
// Pattern: {service}-svc
func GroupName(service string) string {
	return fmt.Sprintf("%s-svc", service)
}
