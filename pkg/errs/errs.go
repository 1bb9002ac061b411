// Package errs defines the error-kind taxonomy shared by adapters, the
// ingestion pipeline, the sync manager, and the classifier.
package errs

import "fmt"

// Kind classifies an error for retry and reporting purposes.
type Kind string

const (
	AuthFailed               Kind = "AuthFailed"
	TransientUpstream        Kind = "TransientUpstream"
	PermanentUpstream        Kind = "PermanentUpstream"
	NotFound                 Kind = "NotFound"
	InvalidArgument          Kind = "InvalidArgument"
	RateLimited              Kind = "RateLimited"
	ParseError               Kind = "ParseError"
	StorageError             Kind = "StorageError"
	ClassificationUnavailable Kind = "ClassificationUnavailable"
	Cancelled                Kind = "Cancelled"
)

// Error wraps an upstream error with a Kind so callers can branch on
// classification rather than re-parsing provider-specific error strings.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed Error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Retryable reports whether the policy in pkg/retry should retry an error
// of this kind. Only transient network conditions are retryable; 4xx
// (other than 429) and business-logic errors are not.
func Retryable(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	switch e.Kind {
	case TransientUpstream, RateLimited:
		return true
	default:
		return false
	}
}

// As is a thin re-export avoiding an extra "errors" import at call sites
// that already import this package for the Kind constants.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
