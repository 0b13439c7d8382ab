package httpmw

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/sanitize"
)

// DefaultBodyLimit is the largest JSON or form body accepted, 10 KiB.
const DefaultBodyLimit int64 = 10 << 10

// BodyParser decodes JSON and URL-encoded bodies up to limit bytes and
// parses cookies into the request data. An oversized body is answered with
// 413 and a malformed one with 400, both through rep, and the request goes
// no further. Other content types are left unparsed.
//
// After parsing, r.Body is replaced with http.NoBody: handlers must read
// the sanitized copy via RequestFrom or DecodeBody.
func BodyParser(limit int64, rep ErrorReporter) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, req := withRequest(r)

			req.Cookies = make(map[string]string)
			for _, c := range r.Cookies() {
				req.Cookies[c.Name] = c.Value
			}

			kind := bodyKind(r)
			if kind == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				rep.Report(w, r, apperr.Wrap(&http.MaxBytesError{Limit: limit}, "request entity too large", http.StatusRequestEntityTooLarge))
				return
			}

			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			_ = r.Body.Close()
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					rep.Report(w, r, apperr.Wrap(err, "request entity too large", http.StatusRequestEntityTooLarge))
					return
				}
				rep.Report(w, r, apperr.Wrap(err, "Could not read request body", http.StatusBadRequest))
				return
			}
			r.Body = http.NoBody

			switch kind {
			case "json":
				body, err := decodeJSON(data)
				if err != nil {
					rep.Report(w, r, err)
					return
				}
				req.Body = body
			case "form":
				vals, err := url.ParseQuery(string(data))
				if err != nil {
					rep.Report(w, r, apperr.Wrap(err, "Invalid form body", http.StatusBadRequest))
					return
				}
				if len(vals) > 0 {
					req.Body = NestForm(vals)
					req.Form = true
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bodyKind(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mt {
	case "application/json":
		return "json"
	case "application/x-www-form-urlencoded":
		return "form"
	}
	return ""
}

// decodeJSON accepts only an object or an array at the top level. An empty
// body decodes to nil.
func decodeJSON(data []byte) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != '{' && data[0] != '[' {
		return nil, apperr.BadRequest("Invalid JSON body")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Wrap(err, "Invalid JSON body", http.StatusBadRequest)
	}
	if dec.More() {
		return nil, apperr.BadRequest("Invalid JSON body")
	}
	return v, nil
}

// NestForm expands bracketed keys into nested maps: "a[b]=1" becomes
// {"a": {"b": "1"}}, "tags[]=x" appends to a list, and a repeated key
// becomes a list of its values.
func NestForm(vals url.Values) map[string]any {
	root := make(map[string]any)
	for key, vs := range vals {
		segs := sanitize.KeySegments(key)
		for _, v := range vs {
			insert(root, segs, v)
		}
	}
	return root
}

func insert(m map[string]any, segs []string, v string) {
	head := segs[0]
	if len(segs) == 1 {
		appendValue(m, head, v)
		return
	}
	if segs[1] == "" && len(segs) == 2 {
		list, _ := m[head].([]any)
		m[head] = append(list, v)
		return
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[head] = child
	}
	insert(child, segs[1:], v)
}

func appendValue(m map[string]any, key, v string) {
	switch cur := m[key].(type) {
	case nil:
		m[key] = v
	case []any:
		m[key] = append(cur, v)
	default:
		m[key] = []any{cur, v}
	}
}
