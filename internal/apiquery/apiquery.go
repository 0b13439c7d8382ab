// Package apiquery implements the list-query features of the JSON API:
// filtering with comparison operators, sorting, field projection and
// pagination. Documents are handled as generic JSON objects so every
// collection shares one implementation.
package apiquery

import (
	"encoding/json"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/xerrors"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// reserved query keys never become filters.
var reserved = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true}

type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Filter matches Field against Values. For OpEq a document matches when
// any value equals; range operators must hold for every value.
type Filter struct {
	Field  string
	Op     Op
	Values []string
}

type SortKey struct {
	Field string
	Desc  bool
}

type Query struct {
	Filters []Filter
	Sort    []SortKey
	Fields  []string
	Page    int
	Limit   int
}

// Parse reads a query from already sanitized, pollution-guarded values.
// Keys use bracket syntax for operators: price[lte]=500.
func Parse(v url.Values) (Query, error) {
	q := Query{Page: 1, Limit: DefaultLimit}

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		vals := v[k]
		if reserved[k] || len(vals) == 0 {
			continue
		}
		field, op, err := splitKey(k)
		if err != nil {
			return Query{}, err
		}
		q.Filters = append(q.Filters, Filter{Field: field, Op: op, Values: vals})
	}

	if s := v.Get("sort"); s != "" {
		q.Sort = ParseSort(s)
	}
	if f := v.Get("fields"); f != "" {
		q.Fields = splitList(f)
	}
	if n, err := strconv.Atoi(v.Get("page")); err == nil && n > 0 {
		q.Page = n
	}
	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		q.Limit = min(n, MaxLimit)
	}
	return q, nil
}

func splitKey(k string) (string, Op, error) {
	field, rest, ok := strings.Cut(k, "[")
	if !ok {
		return k, OpEq, nil
	}
	op := Op(strings.TrimSuffix(rest, "]"))
	switch op {
	case OpGt, OpGte, OpLt, OpLte, OpEq:
		return field, op, nil
	}
	return "", "", apperr.BadRequest("Invalid filter operator: " + k)
}

// ParseSort reads "a,-b" or "a -b".
func ParseSort(s string) []SortKey {
	var out []SortKey
	for _, f := range splitList(s) {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			out = append(out, SortKey{Field: name, Desc: true})
			continue
		}
		out = append(out, SortKey{Field: f})
	}
	return out
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// Doc is one JSON object.
type Doc = map[string]any

// ToDocs converts typed records to generic documents through their JSON
// encoding, so field names match what clients see.
func ToDocs[T any](items []T) ([]Doc, error) {
	b, err := json.Marshal(items)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode documents")
	}
	var docs []Doc
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, xerrors.Wrap(err, "decode documents")
	}
	return docs, nil
}

// Apply filters, sorts, projects and paginates docs. defaultSort is used
// when the query names none.
func Apply(docs []Doc, q Query, defaultSort []SortKey) []Doc {
	out := make([]Doc, 0, len(docs))
	for _, d := range docs {
		if matchesAll(d, q.Filters) {
			out = append(out, d)
		}
	}

	sortKeys := q.Sort
	if len(sortKeys) == 0 {
		sortKeys = defaultSort
	}
	if len(sortKeys) > 0 {
		slices.SortStableFunc(out, func(a, b Doc) int {
			for _, k := range sortKeys {
				c := compareValues(a[k.Field], b[k.Field])
				if k.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	out = paginate(out, q.Page, q.Limit)
	if len(q.Fields) > 0 {
		for i, d := range out {
			out[i] = Project(d, q.Fields)
		}
	}
	return out
}

func paginate(docs []Doc, page, limit int) []Doc {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	// Compare in pages so huge page or limit values cannot overflow.
	if len(docs) == 0 || page-1 > (len(docs)-1)/limit {
		return []Doc{}
	}
	skip := (page - 1) * limit
	return docs[skip : skip+min(limit, len(docs)-skip)]
}

// Project keeps the named fields plus "id". A leading "-" excludes a field
// instead; mixing both forms keeps the inclusions.
func Project(d Doc, fields []string) Doc {
	var include, exclude []string
	for _, f := range fields {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			exclude = append(exclude, name)
		} else {
			include = append(include, f)
		}
	}
	out := make(Doc, len(d))
	if len(include) > 0 {
		if v, ok := d["id"]; ok {
			out["id"] = v
		}
		for _, f := range include {
			if v, ok := d[f]; ok {
				out[f] = v
			}
		}
		return out
	}
	for k, v := range d {
		if !slices.Contains(exclude, k) {
			out[k] = v
		}
	}
	return out
}

func matchesAll(d Doc, filters []Filter) bool {
	for _, f := range filters {
		if !matches(d[f.Field], f) {
			return false
		}
	}
	return true
}

func matches(v any, f Filter) bool {
	// array fields match when any element does
	if arr, ok := v.([]any); ok {
		for _, e := range arr {
			if matches(e, f) {
				return true
			}
		}
		return false
	}
	if f.Op == OpEq {
		for _, want := range f.Values {
			if compareToString(v, want) == 0 {
				return true
			}
		}
		return false
	}
	for _, bound := range f.Values {
		c := compareToString(v, bound)
		var ok bool
		switch f.Op {
		case OpGt:
			ok = c > 0
		case OpGte:
			ok = c >= 0
		case OpLt:
			ok = c < 0
		case OpLte:
			ok = c <= 0
		}
		if !ok || c == incomparable {
			return false
		}
	}
	return true
}

const incomparable = 2

// compareToString compares a document value with a query string, parsing
// the string to the value's type.
func compareToString(v any, s string) int {
	switch x := v.(type) {
	case float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return incomparable
		}
		return cmpOrdered(x, n)
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil || b != x {
			return incomparable
		}
		return 0
	case string:
		return strings.Compare(x, s)
	}
	return incomparable
}

// compareValues orders documents for sorting; missing values sort first.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	if b == nil {
		return 1
	}
	return 0
}

func cmpOrdered[T int | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
