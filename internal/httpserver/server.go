package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/xerrors"
)

// NewHandler builds the public request pipeline. Stages run in the order
// listed; main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	opts.setDefaults()
	rep := opts.Reporter

	var accessLog, rateLimit, staticFiles, tracing func(http.Handler) http.Handler
	if opts.Mode == ModeDevelopment {
		accessLog = httpmw.AccessLog()
	}
	if opts.Limiter != nil {
		rateLimit = httpmw.PathPrefix("/api", opts.Limiter.Middleware)
	}
	if opts.Static != nil {
		staticFiles = opts.Static.Middleware
	}
	if opts.Tracing {
		tracing = traced
	}

	return httpmw.Chain(newRouter(opts),
		// outermost so every response, errors included, carries them
		httpmw.SecurityHeaders(opts.CSP),
		httpmw.RequestID("X-Request-Id"),
		httpmw.Recover(rep, opts.OnPanic),
		httpmw.ClientIPWithOptions(opts.ClientIP),
		tracing,
		opts.MetricsMW,
		httpmw.WithRouteContext,
		httpmw.AnnotateRoute,
		httpmw.TraceResponseHeaders,
		httpmw.WithLogger(opts.Logger),
		httpmw.AssetHeaders(opts.Assets),
		middleware.Compress(5,
			"text/html",
			"text/css",
			"application/javascript",
			"text/javascript",
			"application/json",
			"image/svg+xml",
		),
		staticFiles,
		accessLog,
		rateLimit,
		httpmw.BodyParser(opts.BodyLimit, rep),
		httpmw.Sanitize(opts.Sanitizer, opts.OnSanitized),
		httpmw.ParameterPollution(opts.PollutionWhitelist),
		httpmw.RequestTime(opts.Now),
	)
}

func newRouter(opts *Options) http.Handler {
	r := chi.NewRouter()

	// set before mounting so sub-routers inherit the fallback
	r.NotFound(opts.Reporter.NotFound)
	r.MethodNotAllowed(opts.Reporter.NotFound)

	if opts.Views != nil {
		opts.Views.Routes(r)
	}
	if opts.Tours != nil {
		r.Mount("/api/v1/tours", opts.Tours)
	}
	if opts.Users != nil {
		r.Mount("/api/v1/users", opts.Users)
	}
	if opts.Reviews != nil {
		r.Mount("/api/v1/reviews", opts.Reviews)
	}
	return r
}

// shouldTrace skips static assets and crawler files.
func shouldTrace(p string) bool {
	if p == "/favicon.ico" || p == "/robots.txt" {
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

func traced(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateRoute renames the span to the matched pattern later
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 3000
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", ln.Addr().String(), "mode", opts.Mode)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
