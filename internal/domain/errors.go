package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input: unsupported format, empty document,
	// malformed query. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingUnavailable is returned when the embedding collaborator
	// keeps failing after retries.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorStoreUnavailable is returned when the vector store keeps
	// failing after retries.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// ErrRerankerUnavailable is returned when the reranker keeps failing
	// after retries.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrGenerationUnavailable is returned when answer generation fails.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrStoreUnavailable is returned when the job store cannot be read or written.
	ErrStoreUnavailable = errors.New("job store unavailable")
)

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation-class failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
