// Package store persists composition plans.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when no plan has the requested ID.
	ErrNotFound = errors.New("plan not found")

	// ErrDuplicateID is returned when saving a plan whose ID is already stored.
	ErrDuplicateID = errors.New("plan ID already exists")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when the schema cannot be brought up to date.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrInvalidData is returned when a stored column cannot be encoded or decoded.
	ErrInvalidData = errors.New("invalid stored data")

	// ErrTxFailed is returned when a transaction cannot begin, commit or roll back.
	ErrTxFailed = errors.New("transaction failed")
)

// StoreError carries the failed operation and the plan it concerned.
// It matches both its sentinel Kind and the driver error that caused it.
type StoreError struct {
	Op      string // e.g. "SavePlan"
	Entity  string
	ID      string
	Message string
	Kind    error
	Err     error
}

func (e *StoreError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.ID != "":
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, msg)
	case e.Entity != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewStoreError creates a StoreError of the given sentinel kind.
func NewStoreError(op, entity, id, message string, kind error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Kind:    kind,
	}
}

// withCause attaches the underlying driver or codec error.
func (e *StoreError) withCause(err error) *StoreError {
	e.Err = err
	return e
}
