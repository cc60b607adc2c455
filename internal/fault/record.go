package fault

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrorType labels the operational cause of a collection failure. The label
// drives retry decisions and source-health accounting.
type ErrorType string

const (
	// ErrorTypeNetwork marks connection resets, DNS failures and the like.
	ErrorTypeNetwork ErrorType = "NETWORK"

	// ErrorTypeParsing marks malformed payloads from a source.
	ErrorTypeParsing ErrorType = "PARSING"

	// ErrorTypeValidation marks content that failed quality validation.
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeAuth marks rejected credentials.
	ErrorTypeAuth ErrorType = "AUTH"

	// ErrorTypeRateLimit marks throttling by the source.
	ErrorTypeRateLimit ErrorType = "RATE_LIMIT"

	// ErrorTypeTimeout marks an expired deadline on an external call.
	ErrorTypeTimeout ErrorType = "TIMEOUT"

	// ErrorTypeUnknown is the fallback label.
	ErrorTypeUnknown ErrorType = "UNKNOWN"
)

// Retryable reports whether failures of this type are transient.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeTimeout:
		return true
	case ErrorTypeParsing, ErrorTypeValidation, ErrorTypeAuth, ErrorTypeUnknown:
		return false
	default:
		return false
	}
}

// Kind maps the error type onto the taxonomy.
func (t ErrorType) Kind() Kind {
	switch t {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeTimeout:
		return KindTransient
	case ErrorTypeParsing, ErrorTypeValidation, ErrorTypeAuth:
		return KindPermanent
	case ErrorTypeUnknown:
		return KindUnknown
	default:
		return KindUnknown
	}
}

// ErrorRecord is the persisted trace of one failure inside a job run.
type ErrorRecord struct {
	ID         string    `json:"errorId"`
	Timestamp  time.Time `json:"timestamp"`
	Type       ErrorType `json:"errorType"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace,omitempty"`
	RetryCount int       `json:"retryCount"`
}

// NewRecord builds an ErrorRecord stamped with a fresh id and the current time.
func NewRecord(errType ErrorType, message string) ErrorRecord {
	return ErrorRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      errType,
		Message:   message,
	}
}

// Retryable reports whether the recorded failure is transient.
func (r ErrorRecord) Retryable() bool {
	return r.Type.Retryable()
}

// RecordFromError classifies err into an ErrorRecord. Deadline expiry maps
// to TIMEOUT; classified errors map through their kind; everything else is
// UNKNOWN.
func RecordFromError(err error) ErrorRecord {
	return NewRecord(TypeFromError(err), err.Error())
}

// TypeFromError derives the operational error type from an error chain.
// An explicit type set at the failure's origin wins; deadline expiry maps
// to TIMEOUT; otherwise the taxonomy kind picks a coarse label.
func TypeFromError(err error) ErrorType {
	var fe *Error
	if errors.As(err, &fe) && fe.etype != "" {
		return fe.etype
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	switch KindOf(err) {
	case KindTransient:
		return ErrorTypeNetwork
	case KindPermanent:
		return ErrorTypeParsing
	case KindValidation:
		return ErrorTypeValidation
	case KindUnknown, KindInvariant, KindConcurrency, KindNotFound:
		return ErrorTypeUnknown
	default:
		return ErrorTypeUnknown
	}
}
