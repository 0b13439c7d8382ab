package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	if _, err := sw.Write([]byte("aaa")); err != nil {
		t.Fatal(err)
	}
	sw.WriteHeader(http.StatusTeapot)
	sw.Write([]byte("bbbbb"))

	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, first write should fix 200", sw.status)
	}
	if sw.n != 8 {
		t.Fatalf("bytes = %d, want 8", sw.n)
	}
	if sw.Unwrap() != rec {
		t.Fatal("Unwrap should return the underlying writer")
	}
}

func serve(t *testing.T, h http.Handler, method, path string) {
	t.Helper()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
}

func TestMiddleware_ChiRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Get("/api/v1/tours/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// outside the router, as in the real pipeline
	h := m.Middleware(r)

	serve(t, h, http.MethodGet, "/api/v1/tours/42")

	f := gatherMetric(t, m.reg, "http_requests_total")
	l := labelsOf(f.GetMetric()[0])
	if l["route"] != "/api/v1/tours/{id}" || l["method"] != "GET" || l["status"] != "200" {
		t.Fatalf("labels = %v", l)
	}
}

func TestMiddleware_RouteLabels(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"unmatched", func(w http.ResponseWriter, r *http.Request) {}, Unmatched},
		{"set by handler", func(w http.ResponseWriter, r *http.Request) {
			SetRoute(r.Context(), "static")
			w.Write([]byte("body{}"))
		}, "static"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			serve(t, m.Middleware(tt.handler), http.MethodGet, "/css/style.css")

			f := gatherMetric(t, m.reg, "http_requests_total")
			if got := labelsOf(f.GetMetric()[0])["route"]; got != tt.want {
				t.Fatalf("route = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetRoute_NoMiddlewareIsNoop(t *testing.T) {
	SetRoute(context.Background(), "static")
}

func TestMiddleware_ErrorCounter(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		m := New()
		status := tt.status
		serve(t, m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})), http.MethodGet, "/")

		got := gatherMetric(t, m.reg, "http_errors_total") != nil
		if got != tt.want {
			t.Fatalf("status %d: error counted = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMiddleware_SizeAndDuration(t *testing.T) {
	m := New()
	serve(t, m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})), http.MethodGet, "/")

	size := gatherMetric(t, m.reg, "http_response_size_bytes").GetMetric()[0].GetHistogram()
	if size.GetSampleSum() != 11 {
		t.Fatalf("size sum = %v, want 11", size.GetSampleSum())
	}
	dur := gatherMetric(t, m.reg, "http_request_duration_seconds").GetMetric()[0].GetHistogram()
	if dur.GetSampleCount() != 1 {
		t.Fatalf("duration count = %d", dur.GetSampleCount())
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	serve(t, m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gaugeValue(t, m.reg, "http_inflight_requests")
	})), http.MethodGet, "/")

	if during != 1 {
		t.Fatalf("inflight during request = %v", during)
	}
	if got := gaugeValue(t, m.reg, "http_inflight_requests"); got != 0 {
		t.Fatalf("inflight after = %v", got)
	}
}

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")

	sampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))
	if ex := traceExemplar(sampled); ex["trace_id"] != tid.String() {
		t.Fatalf("exemplar = %v", ex)
	}

	unsampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid,
	}))
	if traceExemplar(unsampled) != nil || traceExemplar(context.Background()) != nil {
		t.Fatal("expected no exemplar")
	}
}
