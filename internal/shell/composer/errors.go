package composer

import (
	"errors"
	"fmt"

	"github.com/artpar/microplan/internal/core/cluster"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrUnsupportedClusterKind is matched by every UnsupportedClusterKindError.
	ErrUnsupportedClusterKind = errors.New("unsupported cluster kind")

	// ErrBackendRegistered is returned when a kind already has a backend.
	ErrBackendRegistered = errors.New("backend already registered for kind")

	// ErrClusterNameRequired is returned when creating a cluster without a name.
	ErrClusterNameRequired = errors.New("cluster name is required")
)

// UnsupportedClusterKindError is returned when no backend implements Kind.
// It is raised before any resource is requested.
type UnsupportedClusterKindError struct {
	Kind cluster.Kind
}

func (e *UnsupportedClusterKindError) Error() string {
	return fmt.Sprintf("%s %q", ErrUnsupportedClusterKind, e.Kind)
}

func (e *UnsupportedClusterKindError) Unwrap() error {
	return ErrUnsupportedClusterKind
}

func unsupported(kind cluster.Kind) error {
	return &UnsupportedClusterKindError{Kind: kind}
}
