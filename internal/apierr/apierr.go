// Package apierr turns every failure of a remote call into one typed error
// with a kind, a user-facing message and a retry hint.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindNotFound     Kind = "not_found"
	KindServerError  Kind = "server_error"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindUnknown      Kind = "unknown"
)

// Retryable reports whether failures of this kind may succeed when retried
// and are therefore eligible for degraded-mode substitution.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServerError:
		return true
	}
	return false
}

// Error is the single error shape returned by the transport and the domain
// clients.
type Error struct {
	Kind      Kind
	Message   string
	Status    int
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an error of the given kind without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: kind.Retryable()}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: kind.Retryable(), Err: cause}
}

// Validation reports a local precondition failure. No request was sent.
func Validation(message string, cause error) *Error {
	return Wrap(KindValidation, message, cause)
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Retryable
}
