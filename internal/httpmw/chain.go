package httpmw

import (
	"net/http"
	"strings"
)

// Chain wraps h so the first middleware runs first (outermost). nil entries
// are skipped, which lets callers switch stages off in place.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// PathPrefix applies mw only to requests whose path is prefix or lies below
// it. Other requests skip mw entirely.
func PathPrefix(prefix string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
