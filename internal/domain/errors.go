package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable machine-readable error category. Clients branch on
// the kind, never on message text.
type ErrorKind string

const (
	// ErrUnauthenticated means no principal could be resolved for the request.
	ErrUnauthenticated ErrorKind = "unauthenticated"
	// ErrForbidden means the principal's role does not permit the operation.
	ErrForbidden ErrorKind = "forbidden"
	// ErrNotFound means the referenced record does not exist.
	ErrNotFound ErrorKind = "not_found"
	// ErrValidationFailed means the input shape or values were rejected.
	ErrValidationFailed ErrorKind = "validation_failed"
	// ErrInvalidState means a state-machine precondition was violated,
	// e.g. resolving a payment that already left pending.
	ErrInvalidState ErrorKind = "invalid_state"
	// ErrStoreFailure means the underlying persistence or blob store failed.
	ErrStoreFailure ErrorKind = "store_failure"
)

// Error is a categorized error. The Kind survives wrapping so the HTTP layer
// can map it to a status code and a stable response kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errf builds a categorized error with a formatted message.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr wraps an underlying error with a kind and message.
func WrapErr(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed. Errors that
// carry no kind report ErrStoreFailure: anything uncategorized that reaches
// the caller came from the store or the runtime, not from a business rule.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrStoreFailure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
