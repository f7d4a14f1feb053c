package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is the sentinel every "missing row" error wraps.
var ErrNotFound = errors.New("not found")

type notFoundError struct {
	message string
}

func (e *notFoundError) Error() string { return e.message }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

// NotFound returns an error that matches ErrNotFound and carries a
// user-facing message.
func NotFound(message string) error {
	return &notFoundError{message: message}
}

// ValidationError collects field-level messages. Field names follow the
// request shape, e.g. "images.0" or "order".
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// Invalid is shorthand for a ValidationError with a single message.
func Invalid(field, message string) *ValidationError {
	v := NewValidationError()
	v.Add(field, message)
	return v
}

func (v *ValidationError) Add(field, message string) {
	v.Fields[field] = append(v.Fields[field], message)
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Fields) > 0
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// StorageError wraps a blob store failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}

func AsStorage(err error) (*StorageError, bool) {
	var s *StorageError
	ok := errors.As(err, &s)
	return s, ok
}
