package httpmw

import (
	"net/http"
	"time"
)

// RequestTime stamps the request with the time it reached this stage. now
// defaults to time.Now.
func RequestTime(now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, req := withRequest(r)
			req.Time = now()
			next.ServeHTTP(w, r)
		})
	}
}
