package httperr

import "net/http"

// HandlerFunc is an http handler that returns its failure instead of
// writing it.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn to http.HandlerFunc, routing any returned error to the
// reporter.
func (rep *Reporter) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			rep.Report(w, r, err)
		}
	}
}
