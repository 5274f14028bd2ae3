package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ValidationError is returned when input is rejected at the registry boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// FetchError wraps a network or upstream failure for a single source.
type FetchError struct {
	SourceID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.SourceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ItemProcessingError marks a single malformed item.
type ItemProcessingError struct {
	Link string
	Err  error
}

func (e *ItemProcessingError) Error() string {
	if e.Link == "" {
		return fmt.Sprintf("process item: %v", e.Err)
	}
	return fmt.Sprintf("process item %s: %v", e.Link, e.Err)
}

func (e *ItemProcessingError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage write or read failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ErrDuplicate is returned by stores when a unique key already exists.
var ErrDuplicate = errors.New("duplicate")
