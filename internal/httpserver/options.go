package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/ratelimit"
	"github.com/natours-dev/natours/internal/sanitize"
	"github.com/natours-dev/natours/internal/static"
)

// DefaultBodyLimit caps JSON and URL-encoded bodies.
const DefaultBodyLimit = 10 << 10

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Options struct {
	Logger log.Logger
	Port   int
	// Mode "development" turns on the access log.
	Mode string

	// CSP is the rendered Content-Security-Policy header value.
	CSP string

	// Reporter writes every failure response. Required.
	Reporter *httperr.Reporter

	// Static serves the public asset directory; nil disables it.
	Static *static.Handler
	Assets httpmw.AssetInfo

	// Limiter guards /api; nil disables rate limiting.
	Limiter *ratelimit.Limiter

	BodyLimit          int64
	Sanitizer          *sanitize.Sanitizer
	OnSanitized        func(kind string, n int)
	PollutionWhitelist []string

	ClientIP  httpmw.ClientIPOptions
	MetricsMW func(http.Handler) http.Handler
	OnPanic   func()
	// Tracing wraps the pipeline in otelhttp.
	Tracing bool
	Now     func() time.Time

	// Views registers the page routes; the API collaborators are mounted
	// under /api/v1.
	Views   interface{ Routes(chi.Router) }
	Tours   http.Handler
	Users   http.Handler
	Reviews http.Handler
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Reporter == nil {
		o.Reporter = httperr.New(httperr.Options{Logger: o.Logger})
	}
	if o.BodyLimit <= 0 {
		o.BodyLimit = DefaultBodyLimit
	}
	if o.PollutionWhitelist == nil {
		o.PollutionWhitelist = httpmw.DefaultPollutionWhitelist
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
