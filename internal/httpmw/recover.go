package httpmw

import (
	"net/http"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/xerrors"
)

// Recover turns a panic in any later stage or handler into a programming
// fault and hands it to rep, which logs it and answers 500. onPanic is
// called once per recovered panic. http.ErrAbortHandler is re-raised so the
// server can abort the connection as intended.
func Recover(rep ErrorReporter, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}
				err := xerrors.FromPanic(v)
				if rep == nil {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				rep.Report(w, r, apperr.Fault(err))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
