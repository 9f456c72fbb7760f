package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeConnection        = "connection_error"
	ErrCodeSubscription      = "subscription_error"
	ErrCodeSend              = "send_error"
	ErrCodeNotInRoom         = "not_in_room"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeAlreadySubscribed = "already_subscribed"
)

var (
	ErrNotInRoom    = errors.New("not in room")
	ErrNotConnected = errors.New("not connected")
)

// CoreError wraps a code and human-readable message, optionally carrying
// the underlying cause.
type CoreError struct {
	Code    string
	Message string
	Wrapped error
}

func (e *CoreError) Error() string {
	if e.Wrapped != nil {
		return e.Code + ": " + e.Message + ": " + e.Wrapped.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CoreError) Unwrap() error {
	return e.Wrapped
}

// NewError creates a CoreError with the given code and message.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// WrapError wraps an existing error with a CoreError.
func WrapError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Wrapped: err}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == code
}
