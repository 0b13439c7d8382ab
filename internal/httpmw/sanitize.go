package httpmw

import (
	"net/http"

	"github.com/natours-dev/natours/internal/sanitize"
)

// Sanitize scrubs the parsed body and the query string: operator keys are
// removed and markup is stripped. The cleaned query replaces r.URL.RawQuery
// so later stages and handlers only ever see the scrubbed form. onSanitized,
// if set, is told how much was removed ("operator" or "markup").
func Sanitize(s *sanitize.Sanitizer, onSanitized func(kind string, n int)) func(http.Handler) http.Handler {
	if s == nil {
		s = sanitize.New()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, req := withRequest(r)

			var total sanitize.Report
			if req.Body != nil {
				clean, rep := s.Value(req.Body)
				req.Body = clean
				total.Operators += rep.Operators
				total.Markup += rep.Markup
			}
			if r.URL.RawQuery != "" {
				q, rep := s.Values(r.URL.Query())
				if !rep.Empty() {
					r.URL.RawQuery = q.Encode()
				}
				req.Query = q
				total.Operators += rep.Operators
				total.Markup += rep.Markup
			}
			if onSanitized != nil {
				if total.Operators > 0 {
					onSanitized("operator", total.Operators)
				}
				if total.Markup > 0 {
					onSanitized("markup", total.Markup)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
