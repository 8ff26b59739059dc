package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidInput is returned when a request is malformed: a missing name or
	// owner, an empty property value, or a non-numeric pagination parameter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a channel, tag or property does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned by an Authorizer that rejects an operation
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreClosed is returned when trying to use a closed store
	ErrStoreClosed = errors.New("store is closed")

	// ErrBulkFailure is returned when one or more items of a bulk request failed
	ErrBulkFailure = errors.New("bulk request had errors")

	// ErrInvalidQuery is returned when a structured query cannot be translated
	ErrInvalidQuery = errors.New("invalid query")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("indexstore: %v", e.Err)
	}
	return fmt.Sprintf("indexstore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// InvalidInputf returns an ErrInvalidInput carrying a formatted detail message.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound carrying a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// ErrorClass partitions errors into the categories callers act on.
type ErrorClass int

const (
	// ClassUnknown is any error that does not fall in another class
	ClassUnknown ErrorClass = iota
	// ClassInvalidInput marks a bad request shape; never retried
	ClassInvalidInput
	// ClassNotFound marks an unknown channel, tag or property reference
	ClassNotFound
	// ClassUnauthorized marks a rejection by the authorization collaborator
	ClassUnauthorized
	// ClassStore marks an index store failure, including partial bulk failures
	ClassStore
)

// String returns the string representation of the error class
func (c ErrorClass) String() string {
	switch c {
	case ClassInvalidInput:
		return "invalid_input"
	case ClassNotFound:
		return "not_found"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassStore:
		return "store"
	default:
		return "unknown"
	}
}

// Classify reports the class of err. A not-found wrapped in a StoreError is
// still reported as ClassNotFound. A bulk partial failure is ClassStore
// whatever its item errors are.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrBulkFailure):
		return ClassStore
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidQuery):
		return ClassInvalidInput
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	}
	var se *StoreError
	if errors.As(err, &se) {
		return ClassStore
	}
	return ClassUnknown
}

// IsInvalidInput reports whether err is a client-input error.
func IsInvalidInput(err error) bool { return Classify(err) == ClassInvalidInput }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return Classify(err) == ClassNotFound }
