package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an operation failure for the API boundary
type Code int

const (
	// BadRequest - malformed or incomplete input, safe to retry after correcting it
	BadRequest Code = iota + 1
	// NotAuthorized - invalid or expired token
	NotAuthorized
	// NotFound - unknown project, task or routing token
	NotFound
	// MethodNotAllowed - one-shot routing URL accessed twice or unknown
	MethodNotAllowed
	// Conflict - state machine violation: locked, assigned, errored
	Conflict
	// PreviousJob - conflict subtype carrying the stored error status of a failed job
	PreviousJob
	// Internal - unexpected failure, recorded as entity error status
	Internal
)

// Error is the typed error passed over package boundaries up to the HTTP layer
type Error struct {
	Code Code
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Msg + ": " + e.err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// New creates an error with the given code
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap keeps the cause available for errors.Is/As chains
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), err: err}
}

// CodeOf extracts the code, Internal if err is not an apperr
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return Internal
}

// HTTPStatus maps a code to the HTTP response status
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case BadRequest:
		return http.StatusBadRequest
	case NotAuthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case Conflict, PreviousJob:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
