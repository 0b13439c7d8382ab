package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/natours-dev/natours/internal/assets"
)

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		h        http.Handler
		wantCode int
		wantBody string
	}{
		{"healthz nil probe", HealthzHandler(nil), http.StatusOK, "ok\n"},
		{"healthz passing", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok\n"},
		{"readyz nil probe", ReadyzHandler(nil), http.StatusOK, "ready\n"},
		{"readyz draining", ReadyzHandler(Fixed(false, "draining")), http.StatusServiceUnavailable, "draining\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.h, "/")
			if rec.Code != tt.wantCode || rec.Body.String() != tt.wantBody {
				t.Fatalf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Fatalf("Cache-Control = %q", got)
			}
		})
	}
}

// Readiness as the server composes it: drain gate first, then the asset snapshot.
func TestReadyz_AssetsThenDrain(t *testing.T) {
	var gate ShutdownGate
	mgr := assets.NewManager()
	h := ReadyzHandler(All(gate.Probe(), Named("assets", Func(mgr.ReadyErr))))

	rec := serve(h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "assets: no active snapshot") {
		t.Fatalf("before load: %d %q", rec.Code, rec.Body.String())
	}

	mgr.Set(assets.FromFS(fstest.MapFS{"css/style.css": {Data: []byte("body{}")}}, assets.SourceEmbedded))
	if rec = serve(h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("after load: %d %q", rec.Code, rec.Body.String())
	}

	gate.Set("draining")
	rec = serve(h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable || strings.TrimSpace(rec.Body.String()) != "draining" {
		t.Fatalf("draining: %d %q", rec.Code, rec.Body.String())
	}
	// Liveness stays up through a drain.
	if rec = serve(HealthzHandler(Fixed(true, "")), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz while draining: %d", rec.Code)
	}
}

func TestHandler_PassesRequestContext(t *testing.T) {
	type key struct{}
	var got any
	h := ReadyzHandler(CheckFunc(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}))
	req := httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(context.WithValue(req.Context(), key{}, "v")))
	if got != "v" {
		t.Fatalf("probe saw %v", got)
	}
}
