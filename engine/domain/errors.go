package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; packages wrap them with
// their own prefix and context.
var (
	ErrMissingFile           = errors.New("missing file")
	ErrMalformedInput        = errors.New("malformed input")
	ErrEmptyResult           = errors.New("empty result")
	ErrEmbedding             = errors.New("embedding failed")
	ErrDimensionMismatch     = errors.New("dimension mismatch")
	ErrIndexIO               = errors.New("index io")
	ErrIndexMetadataMismatch = errors.New("index and metadata mismatch")

	// Index store specifics. Build reports ErrEmptyInput; Load joins ErrNotFound
	// and ErrCorruptIndex with ErrIndexIO.
	ErrEmptyInput   = errors.New("empty input")
	ErrNotFound     = errors.New("not found")
	ErrCorruptIndex = errors.New("corrupt index")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
