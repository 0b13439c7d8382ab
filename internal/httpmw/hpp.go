package httpmw

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultPollutionWhitelist lists the query fields that may legitimately
// repeat (for example price=500&price=1000).
var DefaultPollutionWhitelist = []string{
	"duration",
	"ratingsQuantity",
	"ratingsAverage",
	"maxGroupSize",
	"difficulty",
	"price",
}

// ParameterPollution collapses every repeated query parameter to its last
// value unless its name is whitelisted. Bracketed keys match on the name
// before the first '['. The full value lists of collapsed keys are kept in
// Request.QueryPolluted. URL-encoded bodies get the same treatment for
// their top-level fields.
func ParameterPollution(whitelist []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(whitelist))
	for _, k := range whitelist {
		allowed[k] = true
	}
	keep := func(key string) bool {
		base, _, _ := strings.Cut(key, "[")
		return allowed[base]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, req := withRequest(r)

			q := r.URL.Query()
			var polluted url.Values
			for k, vs := range q {
				if len(vs) < 2 || keep(k) {
					continue
				}
				if polluted == nil {
					polluted = make(url.Values)
				}
				polluted[k] = vs
				q[k] = vs[len(vs)-1:]
			}
			if polluted != nil {
				r.URL.RawQuery = q.Encode()
			}
			req.Query = q
			req.QueryPolluted = polluted

			if body, ok := req.Body.(map[string]any); ok && req.Form {
				for k, v := range body {
					list, isList := v.([]any)
					if !isList || len(list) == 0 || keep(k) {
						continue
					}
					if req.BodyPolluted == nil {
						req.BodyPolluted = make(map[string][]any)
					}
					req.BodyPolluted[k] = list
					body[k] = list[len(list)-1]
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
