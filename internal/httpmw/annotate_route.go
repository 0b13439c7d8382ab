package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnnotateRoute names the active span after the matched chi route once the
// handler has run, so traces group by "GET /api/v1/tours/{id}" rather than
// by raw path.
func AnnotateRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		rc := chi.RouteContext(r.Context())
		if rc == nil || rc.RoutePattern() == "" {
			return
		}
		span.SetAttributes(attribute.String("http.route", rc.RoutePattern()))
		span.SetName(r.Method + " " + rc.RoutePattern())
	})
}

// WithRouteContext installs an empty chi routing context ahead of the
// router unless one is already present. chi fills it in while matching,
// which lets stages outside the router (access log, metrics, AnnotateRoute)
// read the matched pattern.
func WithRouteContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.RouteContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
