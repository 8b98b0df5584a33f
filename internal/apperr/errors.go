// Package apperr defines the error kinds shared by the workflow engine.
//
// Every typed error unwraps to one sentinel so callers can branch with
// errors.Is without caring which layer produced the failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation indicates a malformed workflow graph or request.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing workflow, execution, document, chunk or file.
	ErrNotFound = errors.New("not found")

	// ErrProcessing indicates a pipeline stage failed.
	ErrProcessing = errors.New("processing error")

	// ErrStorage indicates a vector store or record store write failed.
	ErrStorage = errors.New("storage error")

	// ErrTimeout indicates a stage exceeded its deadline. Timeouts are retryable.
	ErrTimeout = errors.New("timeout")

	// ErrStale indicates a status update older than the stored state.
	ErrStale = errors.New("stale update")
)

// ValidationError reports a structural or configuration defect.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ProcessingError wraps a failure raised inside a pipeline stage.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() []error { return []error{ErrProcessing, e.Err} }

// StorageError wraps a failed write to a vector or record store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrStorage.Error(), e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrStorage.Error(), e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStorage}
	}
	return []error{ErrStorage, e.Err}
}

// TimeoutError reports a stage that did not finish before its deadline.
type TimeoutError struct {
	Stage string
	After string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s stage timed out after %s", e.Stage, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Validation is shorthand for a ValidationError without a field.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFound is shorthand for a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Retryable reports whether a failed run may succeed if started again.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Code maps an error to the code used in API error envelopes.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrStale):
		return "CONFLICT"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrStorage):
		return "STORAGE_ERROR"
	case errors.Is(err, ErrProcessing):
		return "PROCESSING_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps an error to the response status used by the API handlers.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStale):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
