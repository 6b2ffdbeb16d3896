// Package cyfserr implements the structured error type propagated throughout
// the stack (spec.md §7), modeled on the teacher's content.ContentError
// (pkg/content/errors.go): a closed Kind enum, a human message, optional
// identity fields for log correlation, and a retryability flag.
package cyfserr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds carried throughout the stack (spec.md §7).
type Kind string

const (
	NotFound         Kind = "NotFound"
	AlreadyExists    Kind = "AlreadyExists"
	InvalidData      Kind = "InvalidData"
	InvalidFormat    Kind = "InvalidFormat"
	InvalidInput     Kind = "InvalidInput"
	PermissionDenied Kind = "PermissionDenied"
	NotSupport       Kind = "NotSupport"
	NotMatch         Kind = "NotMatch"
	Unmatch          Kind = "Unmatch"
	Timeout          Kind = "Timeout"
	IoError          Kind = "IoError"
	SqliteError      Kind = "SqliteError"
	UserCanceled     Kind = "UserCanceled"
	Interrupted      Kind = "Interrupted"
	ErrorState       Kind = "ErrorState"
	Pending          Kind = "Pending"
	Failed           Kind = "Failed"
)

// retryableKinds mirrors the propagation policy in spec.md §7: timeouts and
// I/O hiccups are worth retrying, structural/permission failures are not.
var retryableKinds = map[Kind]bool{
	Timeout:      true,
	IoError:      true,
	UserCanceled: false,
	Unmatch:      true,
}

// Error is the structured error carried at every pipeline boundary.
type Error struct {
	Kind      Kind
	Message   string
	ObjectID  string // optional, for log correlation
	Source    string // optional, peer/device identity
	Dec       string // optional, DEC id
	Cause     error
	retryable *bool // overrides retryableKinds when set
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithObject attaches the object identity for log correlation and returns e.
func (e *Error) WithObject(objectID string) *Error {
	e.ObjectID = objectID
	return e
}

// WithSource attaches the request source (peer/device) and returns e.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithDec attaches the DEC id and returns e.
func (e *Error) WithDec(dec string) *Error {
	e.Dec = dec
	return e
}

// WithRetryable overrides the default retryability for Kind and returns e.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.retryable = &retryable
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ObjectID != "" {
		return fmt.Sprintf("%s: %s (object: %s)", e.Kind, e.Message, e.ObjectID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error suggests the caller retry.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return retryableKinds[e.Kind]
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
