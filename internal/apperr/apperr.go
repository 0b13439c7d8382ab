// Package apperr defines the error type handlers return when a failure is
// expected and safe to describe to the client (bad input, missing document,
// too many requests). Anything else reaching the error reporter is treated as
// a programming fault.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an operational error: its Message and Status are sent to the
// client verbatim.
type Error struct {
	Message string
	Status  int

	// Operational is false for errors constructed with Fault.
	Operational bool

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// StatusText is "fail" for client errors and "error" for everything else.
func (e *Error) StatusText() string {
	if e.Status >= 400 && e.Status < 500 {
		return "fail"
	}
	return "error"
}

// New returns an operational error.
func New(msg string, status int) *Error {
	return &Error{Message: msg, Status: status, Operational: true}
}

func Newf(status int, format string, args ...any) *Error {
	return New(fmt.Sprintf(format, args...), status)
}

// Wrap returns an operational error that keeps err in its chain for logging.
// The cause is never shown to the client.
func Wrap(err error, msg string, status int) *Error {
	return &Error{Message: msg, Status: status, Operational: true, cause: err}
}

// Fault marks err as a programming fault. The reporter answers it with a
// generic 500 and logs the cause.
func Fault(err error) *Error {
	return &Error{Message: "internal error", Status: http.StatusInternalServerError, cause: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func NotFound(msg string) *Error   { return New(msg, http.StatusNotFound) }
func BadRequest(msg string) *Error { return New(msg, http.StatusBadRequest) }

// RouteNotFound is the fallback for requests no route matched.
func RouteNotFound(originalURL string) *Error {
	return Newf(http.StatusNotFound, "Can't find %s on this server!", originalURL)
}
