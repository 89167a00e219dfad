package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion and query pipeline. Handlers map these to
// HTTP status codes; ingestion absorbs them into the evidence document's
// status/last_error fields.
var (
	// ErrEmptyInput is returned for an empty file buffer or blank text input.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnsupportedType is returned when a file is neither a PDF nor a
	// recognized image format.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrExtractionFailed wraps parser and OCR failures.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrNoTextExtracted means parsing succeeded but produced no text, e.g.
	// a blank scan. Not a parser failure.
	ErrNoTextExtracted = errors.New("no text extracted")

	// ErrInputValidation is returned for malformed caller input such as an
	// empty question.
	ErrInputValidation = errors.New("invalid input")
)

// DependencyError marks a failure of an external dependency (embedding
// provider, vector search, generation provider) after retries were exhausted.
// End users only ever see a generic message; the wrapped detail stays in logs.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// IsDependencyError reports whether err is (or wraps) a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
