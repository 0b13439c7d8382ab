package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/log"
)

func TestShouldTrace(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/api/v1/tours", true},
		{"/tour/the-forest-hiker", true},
		{"/css/style.css", false},
		{"/img/logo-white.SVG", false},
		{"/robots.txt", false},
		{"/favicon.ico", false},
	}
	for _, tt := range tests {
		if got := shouldTrace(tt.path); got != tt.want {
			t.Errorf("shouldTrace(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNewServer_Timeouts(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	if srv.ReadHeaderTimeout != DefaultReadHeaderTimeout || srv.WriteTimeout != DefaultWriteTimeout ||
		srv.IdleTimeout != DefaultIdleTimeout || srv.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Fatalf("unexpected server settings: %+v", srv)
	}
}

// echo reports what the handler saw after every stage ran.
type echo struct {
	Body      any               `json:"body"`
	Query     map[string]string `json:"query"`
	RawQuery  string            `json:"rawQuery"`
	Time      string            `json:"time"`
	Cookies   map[string]string `json:"cookies"`
	ClientIP  string            `json:"clientIP"`
	RequestID string            `json:"requestID"`
}

func echoRoutes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		req := httpmw.RequestFrom(r.Context())
		e := echo{
			Body:      req.Body,
			Query:     map[string]string{},
			RawQuery:  r.URL.RawQuery,
			Time:      req.TimeISO(),
			Cookies:   req.Cookies,
			ClientIP:  httpmw.ClientIPFromContext(r.Context()),
			RequestID: httpmw.RequestIDFromContext(r.Context()),
		}
		for k := range req.Query {
			e.Query[k] = req.Query.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e)
	})
	return r
}

func TestNewHandler_StagesReachHandler(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	h := NewHandler(&Options{
		Logger: log.Nop(),
		Now:    func() time.Time { return at },
		Tours:  echoRoutes(),
	})

	body := `{"name":"<em>Hi</em>","filter":{"$ne":null}}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/tours?page=1&page=2&name=%3Cb%3Ex%3C%2Fb%3E", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Request-Id", "req-123")
	r.AddCookie(&http.Cookie{Name: "jwt", Value: "token"})
	r.RemoteAddr = "198.51.100.4:4242"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var got echo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	b, _ := got.Body.(map[string]any)
	if b["name"] != "Hi" {
		t.Errorf("body name = %v", b["name"])
	}
	if f, _ := b["filter"].(map[string]any); len(f) != 0 {
		t.Errorf("operator survived: %v", b["filter"])
	}
	if got.Query["page"] != "2" || got.Query["name"] != "x" {
		t.Errorf("query = %v", got.Query)
	}
	if strings.Contains(got.RawQuery, "page=1") {
		t.Errorf("RawQuery not rewritten: %s", got.RawQuery)
	}
	if got.Time != "2026-10-19T09:30:00.000Z" {
		t.Errorf("time = %s", got.Time)
	}
	if got.Cookies["jwt"] != "token" || got.ClientIP != "198.51.100.4" || got.RequestID != "req-123" {
		t.Errorf("echo = %+v", got)
	}
	if rec.Header().Get("X-Request-Id") != "req-123" {
		t.Error("request id not echoed")
	}
}

func TestNewHandler_MetricsAndPanicHooks(t *testing.T) {
	var wrapped, panics int
	r := chi.NewRouter()
	r.Get("/", func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := NewHandler(&Options{
		Logger: log.Nop(),
		MetricsMW: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				wrapped++
				next.ServeHTTP(w, r)
			})
		},
		OnPanic: func() { panics++ },
		Users:   r,
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", http.NoBody))
	if rec.Code != http.StatusInternalServerError || wrapped != 1 || panics != 1 {
		t.Fatalf("code=%d wrapped=%d panics=%d", rec.Code, wrapped, panics)
	}
}

func TestStart_ServesAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	stop, err := Start(context.Background(), &Options{Logger: log.Nop(), Port: port})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
