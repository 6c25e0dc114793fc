// Package svcerr defines the business error the HTTP envelope renders as
// a code 500 response. Engines return it for rule violations a caller can
// act on; anything else is treated as an unexpected internal error.
package svcerr

import "errors"

// Error is a business rule violation. Message is shown to the caller
// verbatim; Data optionally carries structured detail such as validation
// failures.
type Error struct {
	Message string
	Data    any
}

// New returns a business error with the given message.
func New(msg string) *Error {
	return &Error{Message: msg}
}

// WithData returns a business error carrying a structured payload.
func WithData(msg string, data any) *Error {
	return &Error{Message: msg, Data: data}
}

func (e *Error) Error() string {
	return e.Message
}

// As extracts a business error from an error chain.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
