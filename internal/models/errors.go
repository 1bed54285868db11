package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced record, file or vector is absent.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or empty input, such as a document that
// yields no chunks.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError formats a new ValidationError.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ProviderError reports an external provider call that failed after its
// retries were exhausted.
type ProviderError struct {
	Provider string // "vision", "embedding", "vector_index", "object_storage"
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
