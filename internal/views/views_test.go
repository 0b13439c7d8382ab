package views

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/reviews"
	"github.com/natours-dev/natours/internal/tours"
	"github.com/natours-dev/natours/internal/webassets"
)

func newViews(t *testing.T) (*Views, http.Handler) {
	t.Helper()
	data, err := webassets.SeedData("tours")
	if err != nil {
		t.Fatal(err)
	}
	ts := tours.NewStore()
	if err := ts.Seed(data, time.Now()); err != nil {
		t.Fatal(err)
	}
	data, err = webassets.SeedData("reviews")
	if err != nil {
		t.Fatal(err)
	}
	rs := reviews.NewStore()
	if err := rs.Seed(data, time.Now()); err != nil {
		t.Fatal(err)
	}

	rep := httperr.New(httperr.Options{})
	v, err := New(Options{Templates: webassets.TemplatesFS(), Tours: ts, Reviews: rs, Reporter: rep})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep.SetPages(v)

	r := chi.NewRouter()
	v.Routes(r)
	return v, r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func TestPages(t *testing.T) {
	_, h := newViews(t)
	tests := []struct {
		target     string
		wantStatus int
		wantBody   []string
	}{
		{"/", http.StatusOK, []string{"<title>Natours | All Tours</title>", "The Forest Hiker", `href="/tour/the-sports-lover"`}},
		{"/tour/the-forest-hiker", http.StatusOK, []string{"The Forest Hiker tour", "Cras mollis nisi", "4.7"}},
		{"/tour/the-city-wanderer", http.StatusOK, []string{"No reviews yet."}},
		{"/login", http.StatusOK, []string{"Log into your account", `type="password"`}},
		{"/tour/atlantis", http.StatusNotFound, []string{"Something went wrong!", "There is no tour with that name."}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(h, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
				t.Fatalf("Content-Type = %q", ct)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(rec.Body.String(), want) {
					t.Errorf("body missing %q", want)
				}
			}
		})
	}
}

func TestRenderError_Escapes(t *testing.T) {
	v, _ := newViews(t)
	rec := httptest.NewRecorder()
	if err := v.RenderError(rec, nil, http.StatusBadRequest, "Oops", "<script>alert(1)</script>"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rec.Body.String(), "<script>alert") {
		t.Fatal("message not escaped")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNew_BrokenTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"base.html":     {Data: []byte(`{{define "base"}}{{template "content" .}}{{end}}`)},
		"overview.html": {Data: []byte(`{{define "content"}}{{.Nope}`)},
	}
	if _, err := New(Options{Templates: fsys}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRender_ExecFailureIsReported(t *testing.T) {
	fsys := fstest.MapFS{"base.html": {Data: []byte(`{{define "base"}}{{template "content" .}}{{end}}`)}}
	for _, p := range pages {
		fsys[p+".html"] = &fstest.MapFile{Data: []byte(`{{define "content"}}{{.Title.Missing}}{{end}}`)}
	}
	v, err := New(Options{Templates: fsys})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	err = v.login(rec, httptest.NewRequest(http.MethodGet, "/login", http.NoBody))
	if err == nil || rec.Body.Len() != 0 {
		t.Fatalf("err=%v body=%q", err, rec.Body.String())
	}
	if _, ok := apperr.As(err); ok {
		t.Fatal("template failure must be a fault")
	}
}
