// Package agenterr defines the executor's error-kind taxonomy so that retry,
// memory-capture, and termination policy can switch on an explicit Kind
// rather than on dynamic type assertions against concrete error structs.
package agenterr

import "fmt"

// Kind classifies an error for the purposes of the reason-act loop's
// propagation policy.
type Kind string

const (
	InvalidInput         Kind = "invalid_input"
	ModelTransport       Kind = "model_transport"
	ModelShape           Kind = "model_shape"
	ToolNotFound         Kind = "tool_not_found"
	ToolArgumentError    Kind = "tool_argument_error"
	ToolTransport        Kind = "tool_transport"
	ToolTimeout          Kind = "tool_timeout"
	SensitiveLookupMiss  Kind = "sensitive_lookup_miss"
	PersistenceTransient Kind = "persistence_transient"
	Cancelled            Kind = "cancelled"
	Internal             Kind = "internal"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// classification instead of catching wide exception-like types.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns Internal, the conservative default for
// failures the loop did not anticipate.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if as(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// as walks err's single-error Unwrap chain and reports the first *Error it
// finds. It does not descend into errors that unwrap to a slice of errors.
func as(err error, target **Error) bool {
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

// Retryable reports whether the loop should retry the current attempt rather
// than immediately terminating, per the propagation policy.
func Retryable(kind Kind) bool {
	return kind == ModelTransport
}

// TerminatesLoop reports whether an error of this kind, once retries (if any)
// are exhausted, ends the outer reason-act loop rather than being captured
// into a tool-result memory turn.
func TerminatesLoop(kind Kind) bool {
	switch kind {
	case ToolNotFound, ToolArgumentError, ToolTransport, ToolTimeout, SensitiveLookupMiss:
		return false
	default:
		return true
	}
}
