// Package errors defines the closed error taxonomy consumed throughout the
// observer pipeline (spec §7). Every error the core returns to a caller is
// one of these seven kinds; nothing else escapes a pipeline invocation.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the pipeline can surface.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindSecurity   Kind = "SECURITY_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindFilter     Kind = "FILTER_ERROR"
	KindStore      Kind = "STORE_ERROR"
	KindTimeout    Kind = "TIMEOUT_ERROR"
	KindSystem     Kind = "SYSTEM_ERROR"
)

// Error is a typed domain error. Fields carries per-field detail for
// ValidationError/SecurityError; it is nil for infrastructure errors.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithField attaches a single field-level detail and returns the receiver.
func (e *Error) WithField(field, reason string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
	return e
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New(KindNotFound, "NOT_FOUND", "resource not found")
	ErrForbidden          = New(KindSecurity, "FORBIDDEN", "forbidden")
	ErrValidation         = New(KindValidation, "VALIDATION_ERROR", "validation failed")
	ErrInternal           = New(KindSystem, "INTERNAL_ERROR", "internal error")
	ErrTimeout            = New(KindTimeout, "TIMEOUT", "observer timed out")
	ErrStore              = New(KindStore, "STORE_ERROR", "store operation failed")
	ErrFilter             = New(KindFilter, "FILTER_ERROR", "invalid filter document")
	ErrSoftDeleteGuard    = New(KindSecurity, "SOFT_DELETE_GUARD", "record is trashed")
	ErrMissingID          = New(KindSystem, "MISSING_ID", "record is missing an identifier")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Kind, ErrInternal.Code, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Fields = nil
	for k, v := range err.Fields {
		clone.WithField(k, v)
	}
	return &clone
}
