package image

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrConnectionFailed = errors.New("docker connection failed")
	ErrContextNotFound  = errors.New("build context not found")
	ErrBuildFailed      = errors.New("image build failed")
	ErrPushFailed       = errors.New("image push failed")
	ErrRepositoryFailed = errors.New("registry repository unavailable")
	ErrAuthFailed       = errors.New("registry authentication failed")
)

// ImageError wraps errors with the operation and image they concern.
type ImageError struct {
	Op      string // Operation that failed
	Image   string // Image reference or repository name
	Message string
	Err     error
}

func (e *ImageError) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Image, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// NewImageError creates a new ImageError.
func NewImageError(op, image, message string, err error) *ImageError {
	return &ImageError{
		Op:      op,
		Image:   image,
		Message: message,
		Err:     err,
	}
}
