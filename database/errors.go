package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"localsearch-forecast/engine"
)

// DBError represents a failed store operation
type DBError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DBError) Unwrap() error {
	return e.Err
}

// Is reports a deadline hit inside the driver as engine.ErrTimeout
func (e *DBError) Is(target error) bool {
	return target == engine.ErrTimeout && errors.Is(e.Err, context.DeadlineExceeded)
}

// NotFoundError is returned when a prediction, scenario or webhook does not exist.
// It matches engine.ErrNotFound.
type NotFoundError struct {
	Resource string
	Key      string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// Unwrap lets callers match engine.ErrNotFound
func (e *NotFoundError) Unwrap() error {
	return engine.ErrNotFound
}

// ValidationError represents invalid connection or row input
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// WrapDBError wraps a database error with operation context.
// gorm.ErrRecordNotFound is left to the caller, which knows the resource key.
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// lookupError converts a single-row lookup failure
func lookupError(operation, resource, key string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewNotFoundError(resource, key)
	}
	return WrapDBError(operation, err)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, key string) error {
	return &NotFoundError{
		Resource: resource,
		Key:      key,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
	}
}
