package apiquery

import (
	"net/url"
	"reflect"
	"testing"

	"github.com/natours-dev/natours/internal/apperr"
)

func sampleDocs() []Doc {
	return []Doc{
		{"id": "a", "name": "The Forest Hiker", "price": 397.0, "duration": 5.0, "difficulty": "easy", "ratingsAverage": 4.7, "secretTour": false, "startDates": []any{"2027-04-25", "2027-07-20"}},
		{"id": "b", "name": "The Sea Explorer", "price": 497.0, "duration": 7.0, "difficulty": "medium", "ratingsAverage": 4.8, "secretTour": false, "startDates": []any{"2027-06-19"}},
		{"id": "c", "name": "The Snow Adventurer", "price": 997.0, "duration": 4.0, "difficulty": "difficult", "ratingsAverage": 4.5, "secretTour": false, "startDates": []any{"2027-01-05"}},
		{"id": "d", "name": "The City Wanderer", "price": 1197.0, "duration": 9.0, "difficulty": "easy", "ratingsAverage": 4.6, "secretTour": true},
	}
}

func ids(docs []Doc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d["id"].(string))
	}
	return out
}

func run(t *testing.T, raw string, defaultSort ...SortKey) []Doc {
	t.Helper()
	v, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatal(err)
	}
	q, err := Parse(v)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return Apply(sampleDocs(), q, defaultSort)
}

func TestApply_Filters(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"a", "b", "c", "d"}},
		{"difficulty=easy", []string{"a", "d"}},
		{"difficulty=easy&difficulty=medium", []string{"a", "b", "d"}},
		{"price[lt]=500", []string{"a", "b"}},
		{"price[gte]=497&price[lte]=997", []string{"b", "c"}},
		{"duration[gt]=4&difficulty=easy", []string{"a", "d"}},
		{"ratingsAverage[gte]=4.7", []string{"a", "b"}},
		{"secretTour=true", []string{"d"}},
		{"startDates=2027-06-19", []string{"b"}},
		{"price[gte]=cheap", []string{}},
		{"unknownField=1", []string{}},
		{"page=1&sort=price&limit=10&fields=name", []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := ids(run(t, tt.query)); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_Sort(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"sort=price", []string{"a", "b", "c", "d"}},
		{"sort=-price", []string{"d", "c", "b", "a"}},
		{"sort=difficulty,-price", []string{"c", "d", "a", "b"}},
		{"sort=-ratingsAverage price", []string{"b", "a", "d", "c"}},
	}
	for _, tt := range tests {
		if got := ids(run(t, tt.query)); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: ids = %v, want %v", tt.query, got, tt.want)
		}
	}

	if got := ids(run(t, "", SortKey{Field: "duration", Desc: true})); !reflect.DeepEqual(got, []string{"d", "b", "a", "c"}) {
		t.Fatalf("default sort: %v", got)
	}
}

func TestApply_Pagination(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"sort=price&limit=2", []string{"a", "b"}},
		{"sort=price&limit=2&page=2", []string{"c", "d"}},
		{"sort=price&limit=2&page=3", []string{}},
		{"sort=price&limit=abc&page=-1", []string{"a", "b", "c", "d"}},
		{"sort=price&limit=3&page=2", []string{"d"}},
		{"sort=price&page=100000000000000000", []string{}},
		{"sort=price&limit=100&page=9223372036854775807", []string{}},
		{"sort=price&limit=9223372036854775807", []string{"a", "b", "c", "d"}},
		{"sort=price&limit=9223372036854775807&page=2", []string{}},
	}
	for _, tt := range tests {
		if got := ids(run(t, tt.query)); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: ids = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestApply_Fields(t *testing.T) {
	docs := run(t, "fields=name,price&sort=price&limit=1")
	want := Doc{"id": "a", "name": "The Forest Hiker", "price": 397.0}
	if !reflect.DeepEqual(docs[0], want) {
		t.Fatalf("projected = %v", docs[0])
	}

	docs = run(t, "fields=-startDates,-secretTour&limit=1&sort=price")
	if _, ok := docs[0]["startDates"]; ok {
		t.Fatal("excluded field kept")
	}
	if _, ok := docs[0]["name"]; !ok {
		t.Fatal("exclusion dropped other fields")
	}
}

func TestParse(t *testing.T) {
	q, err := Parse(url.Values{"limit": {"5000"}, "page": {"3"}})
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != MaxLimit || q.Page != 3 {
		t.Fatalf("q = %+v", q)
	}

	_, err = Parse(url.Values{"price[regex]": {".*"}})
	ae, ok := apperr.As(err)
	if !ok || ae.Status != 400 {
		t.Fatalf("err = %v", err)
	}
}

func TestToDocs(t *testing.T) {
	type tour struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	}
	docs, err := ToDocs([]tour{{ID: "x", Price: 10}})
	if err != nil {
		t.Fatal(err)
	}
	if docs[0]["id"] != "x" || docs[0]["price"] != 10.0 {
		t.Fatalf("docs = %v", docs)
	}
}
