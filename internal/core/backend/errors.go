package backend

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrProvisioning is matched by every ProvisioningError.
	ErrProvisioning = errors.New("backend provisioning failed")

	// ErrNamingConflict is returned when a logical name is requested twice
	// in the same scope.
	ErrNamingConflict = errors.New("resource name already in use")

	// ErrUnknownHandle is returned when a handle was not issued by the backend.
	ErrUnknownHandle = errors.New("handle not issued by this backend")
)

// ProvisioningError is a failure surfaced by a backend while requesting or
// realizing a resource (capacity, permissions, naming conflict, build failure).
type ProvisioningError struct {
	Op       string // Backend operation, e.g. "CreateListener"
	Resource string // Logical resource name
	Message  string
	Err      error
}

func (e *ProvisioningError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ProvisioningError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProvisioning}
	}
	return []error{ErrProvisioning, e.Err}
}

// NewProvisioningError creates a new ProvisioningError.
func NewProvisioningError(op, resource, message string, err error) *ProvisioningError {
	return &ProvisioningError{
		Op:       op,
		Resource: resource,
		Message:  message,
		Err:      err,
	}
}
