// Package sanitize scrubs decoded request input before handlers see it. It
// removes keys that a document store would interpret as query operators and
// strips HTML markup from string values.
package sanitize

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Report counts what a pass removed.
type Report struct {
	// Operators is the number of keys dropped because they start with "$"
	// or contain ".".
	Operators int
	// Markup is the number of string values that contained markup.
	Markup int
}

func (r Report) Empty() bool { return r.Operators == 0 && r.Markup == 0 }

func (r *Report) add(o Report) {
	r.Operators += o.Operators
	r.Markup += o.Markup
}

// Sanitizer is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// IsOperatorKey reports whether a map key must be removed.
func IsOperatorKey(k string) bool {
	return strings.HasPrefix(k, "$") || strings.Contains(k, ".")
}

// String strips markup from s. Strings without a '<' cannot carry markup and
// are returned unchanged, so ordinary text keeps its quotes and ampersands.
func (s *Sanitizer) String(in string) (string, bool) {
	if !strings.Contains(in, "<") {
		return in, false
	}
	out := s.policy.Sanitize(in)
	return out, out != in
}

// Value scrubs a decoded JSON or form value in place where possible and
// returns the cleaned value.
func (s *Sanitizer) Value(v any) (any, Report) {
	var rep Report
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if IsOperatorKey(k) {
				delete(t, k)
				rep.Operators++
				continue
			}
			clean, r := s.Value(child)
			rep.add(r)
			t[k] = clean
		}
		return t, rep
	case []any:
		for i, child := range t {
			clean, r := s.Value(child)
			rep.add(r)
			t[i] = clean
		}
		return t, rep
	case string:
		out, changed := s.String(t)
		if changed {
			rep.Markup++
		}
		return out, rep
	default:
		return v, rep
	}
}

// Values scrubs a flat query. Bracketed keys such as "price[$gte]" are
// checked segment by segment.
func (s *Sanitizer) Values(q url.Values) (url.Values, Report) {
	var rep Report
	out := make(url.Values, len(q))
	for k, vs := range q {
		if operatorSegment(k) {
			rep.Operators++
			continue
		}
		clean := make([]string, 0, len(vs))
		for _, v := range vs {
			cv, changed := s.String(v)
			if changed {
				rep.Markup++
			}
			clean = append(clean, cv)
		}
		out[k] = clean
	}
	return out, rep
}

func operatorSegment(key string) bool {
	for _, seg := range KeySegments(key) {
		if IsOperatorKey(seg) {
			return true
		}
	}
	return false
}

// KeySegments splits "a[b][c]" into ["a", "b", "c"]. "a[]" yields
// ["a", ""]. Keys without brackets yield themselves.
func KeySegments(key string) []string {
	i := strings.IndexByte(key, '[')
	if i <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}
	segs := []string{key[:i]}
	rest := key[i:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	return segs
}
