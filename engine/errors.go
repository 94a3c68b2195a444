package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFactorData is returned when a factor set has malformed weights or values
	ErrInvalidFactorData = errors.New("invalid factor data")
	// ErrModelUnavailable is returned when no active model of the requested type exists
	ErrModelUnavailable = errors.New("prediction model unavailable")
	// ErrNotFound is returned when no data exists for the requested location/keyword
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks a provider call that exceeded its deadline
	ErrTimeout = errors.New("factor provider timeout")
	// ErrFactorMissing is returned by providers that have no reading for a factor
	ErrFactorMissing = errors.New("factor reading missing")
	// ErrInvalidHorizon is returned for forecast horizons outside the supported range
	ErrInvalidHorizon = errors.New("invalid forecast horizon")
)

// FactorDataError describes a rejected factor
type FactorDataError struct {
	Factor string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *FactorDataError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid factor '%s': %s (value: %v)", e.Factor, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid factor '%s': %s", e.Factor, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidFactorData
func (e *FactorDataError) Unwrap() error {
	return ErrInvalidFactorData
}

func newFactorDataError(factor, reason string, value interface{}) error {
	return &FactorDataError{Factor: factor, Reason: reason, Value: value}
}

// NotFoundError carries the key that had no data
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// Unwrap lets errors.Is match ErrNotFound
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func newNotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}
