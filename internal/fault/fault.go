// Package fault defines the error taxonomy shared by every pipeline stage.
// Each failure carries an explicit Kind so callers branch on classification
// instead of string matching, and so the CLI can map failures to exit codes.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the last-resort bucket for unclassified failures.
	KindUnknown Kind = iota

	// KindValidation marks bad input. Non-retryable, surfaced to the caller.
	KindValidation

	// KindInvariant marks an aggregate method called in the wrong state.
	// Non-retryable; indicates a bug or a race.
	KindInvariant

	// KindConcurrency marks an optimistic lock mismatch. Retryable by the
	// handler with bounded attempts.
	KindConcurrency

	// KindNotFound marks a missing aggregate.
	KindNotFound

	// KindTransient marks a failure expected to clear on retry, such as a
	// network fault, rate limit, or timeout.
	KindTransient

	// KindPermanent marks a failure that retrying cannot fix, such as a
	// parse error or rejected credentials.
	KindPermanent
)

// String returns the kind name used in logs and error text.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant_violation"
	case KindConcurrency:
		return "concurrency"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// Error is a classified failure. It wraps an optional cause and satisfies
// errors.Is/As chains. Failures originating at an external boundary also
// carry the operational ErrorType used for job error records.
type Error struct {
	kind  Kind
	etype ErrorType
	msg   string
	err   error
}

// New builds a classified error with a static message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf builds a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// OfType builds an error classified by its operational error type; the
// taxonomy kind follows from the type.
func OfType(t ErrorType, msg string) *Error {
	return &Error{kind: t.Kind(), etype: t, msg: msg}
}

// WrapType wraps a cause under an operational error type.
func WrapType(t ErrorType, msg string, err error) *Error {
	return &Error{kind: t.Kind(), etype: t, msg: msg, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}

	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf walks the error chain and returns the first classification found,
// or KindUnknown when the chain carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}

	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether a failure is worth retrying. Transient
// failures and optimistic lock collisions qualify; everything else does not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindConcurrency:
		return true
	case KindUnknown, KindValidation, KindInvariant, KindNotFound, KindPermanent:
		return false
	default:
		return false
	}
}

// NotFound builds the canonical missing-aggregate error.
func NotFound(entity, id string) *Error {
	return Newf(KindNotFound, "%s %s not found", entity, id)
}

// Concurrency builds the canonical optimistic-lock error.
func Concurrency(entity, id string, version int64) *Error {
	return Newf(KindConcurrency, "%s %s version %d is stale", entity, id, version)
}

// Invariant builds the canonical wrong-state error.
func Invariant(format string, args ...any) *Error {
	return Newf(KindInvariant, format, args...)
}
