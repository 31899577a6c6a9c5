package spec

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidSpec is matched by every validation failure.
	ErrInvalidSpec = errors.New("invalid service spec")

	// ErrEmptyInput is returned when a spec document is blank.
	ErrEmptyInput = errors.New("service spec is empty")

	// ErrInvalidYAML is returned when a spec document cannot be decoded.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrNoPrimary is returned when a compose file has no identifiable primary service.
	ErrNoPrimary = errors.New("no primary service")
)

// InvalidSpecError describes which field of a ServiceSpec failed validation.
type InvalidSpecError struct {
	Field   string // e.g., "sidecars[0].ports[1]"
	Message string
}

func (e *InvalidSpecError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidSpec, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSpec, e.Message)
}

func (e *InvalidSpecError) Unwrap() error {
	return ErrInvalidSpec
}

// NewInvalidSpecError creates a new InvalidSpecError.
func NewInvalidSpecError(field, message string) *InvalidSpecError {
	return &InvalidSpecError{Field: field, Message: message}
}

// ParseError wraps errors with context about where loading failed.
type ParseError struct {
	Field   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
