// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
)

// ErrorCode defines supported error codes used across the pipeline
// Values are stable for report compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeNetwork is for fetch/connect failures against an external source
	ErrorCodeNetwork

	// ErrorCodeParse is for malformed feeds, pages, or content payloads
	ErrorCodeParse

	// ErrorCodeClassification is for classifier collaborator failures or timeouts
	ErrorCodeClassification

	// ErrorCodeStorage is for transaction/connection failures at the storage boundary
	ErrorCodeStorage

	// ErrorCodeDuplicateKey is for unique constraint violations (expected, not a failure)
	ErrorCodeDuplicateKey

	// ErrorCodeValidation is for malformed configuration or input; fails fast before I/O
	ErrorCodeValidation

	// ErrorCodeNotFound is for missing resources
	ErrorCodeNotFound
)

// Category turns an ErrorCode into the report bucket name used in
// errors_by_category summaries
func Category(c ErrorCode) string {
	switch c {
	case ErrorCodeNetwork:
		return "network"
	case ErrorCodeParse:
		return "parse"
	case ErrorCodeClassification:
		return "classification"
	case ErrorCodeStorage:
		return "storage"
	case ErrorCodeDuplicateKey:
		return "duplicate"
	case ErrorCodeValidation:
		return "validation"
	case ErrorCodeNotFound, ErrorCodeUnknown:
		return "other"
	}
	return "other"
}

// CategoryOf extracts the report bucket for any error
func CategoryOf(err error) string { return Category(CodeOf(err)) }

// ErrNotFound is a sentinel not found error for convenience
var ErrNotFound = New(ErrorCodeNotFound, "not found")

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// field is optional (for validation); op is optional operation tag
// orig is the wrapped cause
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Mutators (copy-on-write)

// WithField attaches a field to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// Networkf returns a network error
func Networkf(format string, a ...any) error { return Newf(ErrorCodeNetwork, format, a...) }

// Parsef returns a parse error
func Parsef(format string, a ...any) error { return Newf(ErrorCodeParse, format, a...) }

// Classificationf returns a classification error
func Classificationf(format string, a ...any) error {
	return Newf(ErrorCodeClassification, format, a...)
}

// Storagef returns a storage error
func Storagef(format string, a ...any) error { return Newf(ErrorCodeStorage, format, a...) }

// DuplicateKeyf returns a duplicate key error
func DuplicateKeyf(format string, a ...any) error { return Newf(ErrorCodeDuplicateKey, format, a...) }

// Validationf returns a validation error
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }

// NotFoundf returns a not found error
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// Retry semantics

// Retryable reports whether the error is retryable. Delegates to backend-specific logic.
// Currently backed by Postgres helpers in pg.go (IsRetryable), and can be extended.
func Retryable(err error) bool { return IsRetryable(err) }
