// Package httpmw holds the stages of the public request pipeline. Each stage
// is a func(http.Handler) http.Handler; httpserver.NewHandler composes them
// in a fixed order with Chain.
//
// Stages that reject a request never write the error body themselves. They
// hand an error to the ErrorReporter they were built with so every failure
// response has the same shape.
package httpmw

import "net/http"

// ErrorReporter writes the response for a failed request.
type ErrorReporter interface {
	Report(w http.ResponseWriter, r *http.Request, err error)
}
