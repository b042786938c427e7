// Package apperr defines the error kinds shared by the stores, the transaction
// engine and the HTTP layer.
package apperr

import "errors"

// Error kinds. Match them with errors.Is.
var (
	// ErrNotFound reports a missing wallet or transaction.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation reports a state that would make a balance negative.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrResourceBusy reports a row lock that could not be acquired. Callers may retry.
	ErrResourceBusy = errors.New("resource busy")

	// ErrDuplicateKey reports a collision on the external transaction id.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrReferentialIntegrity reports a delete blocked by dependent rows.
	ErrReferentialIntegrity = errors.New("referential integrity")

	// ErrInvalidInput reports a malformed or disallowed request.
	ErrInvalidInput = errors.New("invalid input")
)

// Error couples an error kind with the message shown to API clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New builds an Error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NotFound(message string) *Error  { return New(ErrNotFound, message) }
func Invariant(message string) *Error { return New(ErrInvariantViolation, message) }
func Busy(message string) *Error      { return New(ErrResourceBusy, message) }
func Duplicate(message string) *Error { return New(ErrDuplicateKey, message) }
func Protected(message string) *Error { return New(ErrReferentialIntegrity, message) }
func Invalid(message string) *Error   { return New(ErrInvalidInput, message) }

// Message returns the client-facing message carried by err, or fallback when
// err does not carry one.
func Message(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// Retryable reports whether err is a contention failure worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrResourceBusy)
}
