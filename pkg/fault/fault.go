package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error. The set is closed; callers may exhaustively
// switch over it.
type Kind int

const (
	// Invalid indicates structural validation failure.
	Invalid Kind = iota
	// PermissionDenied indicates a capability or policy veto.
	PermissionDenied
	// Coordination indicates a consensus or quorum failure.
	Coordination
	// Storage indicates a persistence failure.
	Storage
	// Network indicates a transport failure.
	Network
	// Serialization indicates an encode/decode failure. Fatal for the
	// current operation; never propagates into the journal.
	Serialization
	// Timeout indicates a deadline elapsed.
	Timeout
	// Cancelled indicates the caller cancelled the operation.
	Cancelled
	// NotFound indicates a missing resource.
	NotFound
	// RecoveryFailed indicates a guardian-recovery ceremony failure.
	RecoveryFailed
	// Internal indicates an invariant violation. Logged at fatal severity
	// and never caught silently.
	Internal
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case PermissionDenied:
		return "permission_denied"
	case Coordination:
		return "coordination"
	case Storage:
		return "storage"
	case Network:
		return "network"
	case Serialization:
		return "serialization"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case NotFound:
		return "not_found"
	case RecoveryFailed:
		return "recovery_failed"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the structured error type carried across component boundaries.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Hint      string
	cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// WithHint attaches a recovery hint and returns the error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithCause attaches an underlying error and returns the error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New constructs an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Retryable: retryableByDefault(kind)}
}

// Newf constructs an error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return New(kind, code, fmt.Sprintf(format, args...))
}

func retryableByDefault(kind Kind) bool {
	switch kind {
	case Network, Timeout, Coordination:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of err if it is (or wraps) a *Error, and Internal
// with ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return Internal, false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// CodeOf returns the machine-readable code of err if it is (or wraps) a
// *Error, and the empty string otherwise.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Retryable reports whether err may be retried by the caller.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}
