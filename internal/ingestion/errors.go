package ingestion

import (
	"errors"
	"fmt"
)

// ErrBadSignature marks a file whose magic bytes contradict its declared
// type. This is the one unrecoverable extraction error: it is raised before
// any helper is invoked and has no fallback.
var ErrBadSignature = errors.New("file signature does not match declared type")

// ErrUnsupportedType is returned by the dispatcher for a type that slipped
// past validation. Callers treat it as a per-file failure.
var ErrUnsupportedType = errors.New("unsupported file type")

// ValidationError rejects a file at the entry gate. It is permanent, reported
// per file, and never aborts the batch.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// StorageError wraps an object-store or datastore failure for one file.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
