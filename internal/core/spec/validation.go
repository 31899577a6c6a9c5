package spec

import "fmt"

const (
	minPort = 1
	maxPort = 65535
)

// Validate checks a ServiceSpec before any resource is requested.
//
// It rejects:
//   - empty container names or images
//   - container names that repeat across the primary and its sidecars
//   - a sidecar whose group key collides with the primary's name
//   - replicas present and not positive
//   - ports outside 1-65535 or repeated within one container
func Validate(s ServiceSpec) error {
	if s.Replicas != nil && *s.Replicas <= 0 {
		return NewInvalidSpecError("replicas", fmt.Sprintf("must be a positive integer, got %d", *s.Replicas))
	}

	if err := validateContainer("", s.ContainerSpec); err != nil {
		return err
	}

	names := map[string]string{s.Name: "name"}
	keys := map[string]string{s.Name: "name"}
	for i, sc := range s.Sidecars {
		field := fmt.Sprintf("sidecars[%d]", i)
		if err := validateContainer(field+".", sc); err != nil {
			return err
		}
		if prev, ok := names[sc.Name]; ok {
			return NewInvalidSpecError(field+".name", fmt.Sprintf("%q is already used by %s", sc.Name, prev))
		}
		names[sc.Name] = field

		key := SidecarKey(sc.Name)
		if prev, ok := keys[key]; ok {
			return NewInvalidSpecError(field+".name", fmt.Sprintf("container key %q collides with %s", key, prev))
		}
		keys[key] = field
	}

	return nil
}

func validateContainer(prefix string, c ContainerSpec) error {
	if c.Name == "" {
		return NewInvalidSpecError(prefix+"name", "is required")
	}
	if c.Image == "" {
		return NewInvalidSpecError(prefix+"image", "is required")
	}

	seen := make(map[int]bool, len(c.Ports))
	for i, p := range c.Ports {
		field := fmt.Sprintf("%sports[%d]", prefix, i)
		if p < minPort || p > maxPort {
			return NewInvalidSpecError(field, fmt.Sprintf("port %d out of range", p))
		}
		if seen[p] {
			return NewInvalidSpecError(field, fmt.Sprintf("port %d declared twice", p))
		}
		seen[p] = true
	}
	return nil
}
