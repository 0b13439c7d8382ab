package static

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/natours-dev/natours/internal/assets"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"css/style.css":      {Data: []byte("body{margin:0}")},
		"js/index.js":        {Data: []byte("console.log(1)")},
		"img/logo-white.svg": {Data: []byte("<svg/>")},
		"robots.txt":         {Data: []byte("User-agent: *")},
		"docs/index.html":    {Data: []byte("<h1>docs</h1>")},
		".env":               {Data: []byte("SECRET=1")},
		"img/tours/a.jpg":    {Data: []byte("jpg")},
	}
}

func newTestHandler(served *int) (*Handler, *assets.Manager) {
	mgr := assets.NewManager()
	mgr.Set(assets.FromFS(testFS(), assets.SourceEmbedded))
	h := New(Options{Assets: mgr, OnServe: func(*http.Request) { *served++ }})
	return h, mgr
}

const fellThrough = "next"

func nextHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(fellThrough))
	})
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		wantServe bool
		wantBody  string
		wantCC    string
	}{
		{"css", http.MethodGet, "/css/style.css", true, "body{margin:0}", "public, max-age=86400"},
		{"head", http.MethodHead, "/js/index.js", true, "", "public, max-age=86400"},
		{"txt", http.MethodGet, "/robots.txt", true, "User-agent: *", "public, max-age=3600"},
		{"dir index", http.MethodGet, "/docs/", true, "<h1>docs</h1>", "no-cache"},
		{"root", http.MethodGet, "/", false, fellThrough, ""},
		{"api", http.MethodGet, "/api/v1/tours", false, fellThrough, ""},
		{"missing", http.MethodGet, "/css/nope.css", false, fellThrough, ""},
		{"dir without index", http.MethodGet, "/img/tours", false, fellThrough, ""},
		{"post", http.MethodPost, "/css/style.css", false, fellThrough, ""},
		{"dotfile", http.MethodGet, "/.env", false, fellThrough, ""},
		{"traversal", http.MethodGet, "/img/../.env", false, fellThrough, ""},
		{"encoded backslash", http.MethodGet, "/css\\style.css", false, fellThrough, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			served := 0
			h, _ := newTestHandler(&served)

			req := httptest.NewRequest(tt.method, "/", http.NoBody)
			req.URL.Path = tt.path
			rec := httptest.NewRecorder()
			h.Middleware(nextHandler()).ServeHTTP(rec, req)

			if (served == 1) != tt.wantServe {
				t.Fatalf("served = %d, want %v", served, tt.wantServe)
			}
			if tt.wantServe && rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !tt.wantServe && rec.Code != http.StatusTeapot {
				t.Fatalf("expected fall-through, got %d", rec.Code)
			}
			if tt.method != http.MethodHead && rec.Body.String() != tt.wantBody {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("Cache-Control"); got != tt.wantCC {
				t.Fatalf("Cache-Control = %q, want %q", got, tt.wantCC)
			}
		})
	}
}

func TestMiddleware_NoSnapshotFallsThrough(t *testing.T) {
	h := New(Options{Assets: assets.NewManager()})
	rec := httptest.NewRecorder()
	h.Middleware(nextHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/css/style.css", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	served := 0
	h, _ := newTestHandler(&served)
	rec := httptest.NewRecorder()
	h.Middleware(nextHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/img/logo-white.svg", http.NoBody))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/svg+xml") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestResolve(t *testing.T) {
	fsys := testFS()
	if name, ok := Resolve(fsys, "/css/style.css"); !ok || name != "css/style.css" {
		t.Fatalf("Resolve = %q %v", name, ok)
	}
	for _, p := range []string{"", "/", "css/style.css", "/css/", "/.env", "/a/./b"} {
		if _, ok := Resolve(fsys, p); ok {
			t.Errorf("Resolve(%q) should miss", p)
		}
	}
}
