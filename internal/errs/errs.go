// Package errs defines the error taxonomy shared by every core component.
//
// Components never panic across a public boundary. They return an *Error
// carrying a Kind a caller can branch on with errors.As, a short machine
// Code, and a human Message. Completer and Parser failures that spec.md
// classifies as "recoverable in-band" (ParseUnrecoverable) are not raised
// through this type at all — they are returned as data (see completer.CompletionResult).
package errs

import "fmt"

// Kind classifies an error the way spec.md §7 does, by failure mode rather
// than by Go type.
type Kind string

const (
	KindBadPath          Kind = "bad_path"
	KindNotFound         Kind = "not_found"
	KindSessionClosed    Kind = "session_closed"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindSubscriberOverflow Kind = "subscriber_overflow"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

// Error is the concrete error type returned at every core API boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, target) report true when target is an *Error
// of the same Kind (e.g. errs.NotFound("")), whatever its Code or
// Message; most callers should prefer errors.As(&errs.Error{}).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

func BadPath(message string) *Error {
	return New(KindBadPath, "bad_path", message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, "not_found", message)
}

func SessionClosed(sessionID string) *Error {
	return New(KindSessionClosed, "session_closed", fmt.Sprintf("session %q is closed", sessionID))
}

func CapacityExceeded(message string) *Error {
	return New(KindCapacityExceeded, "capacity_exceeded", message)
}

func SubscriberOverflow(message string) *Error {
	return New(KindSubscriberOverflow, "subscriber_overflow", message)
}

func Cancelled(message string) *Error {
	return New(KindCancelled, "cancelled", message)
}

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, "internal", message, cause)
}
