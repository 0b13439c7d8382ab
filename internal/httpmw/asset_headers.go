package httpmw

import "net/http"

// AssetInfo describes the public asset bundle currently being served.
type AssetInfo interface {
	AssetsVersion() string
	AssetsHash() string
}

// AssetHeaders adds X-Assets-Version and a short X-Assets-Hash so clients
// and caches can tell which bundle produced a response.
func AssetHeaders(info AssetInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := info.AssetsVersion(); v != "" {
				w.Header().Set("X-Assets-Version", v)
			}
			if h := info.AssetsHash(); h != "" {
				if len(h) > 12 {
					h = h[:12]
				}
				w.Header().Set("X-Assets-Hash", h)
			}
			next.ServeHTTP(w, r)
		})
	}
}
