package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natours-dev/natours/internal/version"
)

type ServerMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	errTotal  *prometheus.CounterVec
	buildInfo *prometheus.GaugeVec

	panicTotal             prometheus.Counter
	reportedTotal          *prometheus.CounterVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	sanitizedTotal         *prometheus.CounterVec
	documents              *prometheus.GaugeVec

	profilingActive prometheus.Gauge

	// asset bundle
	assetsSource         *prometheus.GaugeVec
	assetsLoadedTs       prometheus.Gauge
	assetsBundleInfo     *prometheus.GaugeVec
	watcherPollsTotal    prometheus.Counter
	watcherSwapsTotal    prometheus.Counter
	watcherErrorsTotal   *prometheus.CounterVec
	bundleLoadDuration   prometheus.Histogram
	watcherLastSuccessTs prometheus.Gauge
	watcherStale         prometheus.Gauge
}

// New returns a fresh registry with the Go and process collectors plus the
// server's own metrics. HTTP labels are limited to method, route pattern and
// status so raw paths never become label values.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		errTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		panicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		reportedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_reported_total",
			Help: "Errors written by the error handler, by class (operational, fault) and status",
		}, []string{"class", "status"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total API requests rejected by the rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total requests rejected because the limiter's client table was full",
		}),
		sanitizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_sanitized_total",
			Help: "Request values rewritten by the sanitizer, by kind (operator, markup)",
		}, []string{"kind"}),
		documents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "natours_documents",
			Help: "Documents held in memory by collection",
		}, []string{"collection"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		assetsSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "assets_source_info",
			Help: "Current asset source (label carries value, gauge is always 1)",
		}, []string{"source"}),
		assetsLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assets_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current asset bundle was loaded",
		}),
		assetsBundleInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "assets_bundle_info",
			Help: "Currently active asset bundle (label carries identity, value is always 1)",
		}, []string{"sha256"}),
		watcherPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assets_watcher_polls_total",
			Help: "Total number of watcher poll cycles",
		}),
		watcherSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assets_watcher_swaps_total",
			Help: "Total number of successful asset bundle swaps",
		}),
		watcherErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assets_watcher_errors_total",
			Help: "Total watcher errors by type",
		}, []string{"type"}),
		bundleLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assets_bundle_load_duration_seconds",
			Help:    "Time to download, verify, and extract an asset bundle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		watcherLastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assets_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful SSM poll",
		}),
		watcherStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assets_watcher_stale",
			Help: "Whether the asset watcher is stale (1) or healthy (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errTotal,
		m.buildInfo,
		m.panicTotal,
		m.reportedTotal,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.sanitizedTotal,
		m.documents,
		m.profilingActive,
		m.assetsSource,
		m.assetsLoadedTs,
		m.assetsBundleInfo,
		m.watcherPollsTotal,
		m.watcherSwapsTotal,
		m.watcherErrorsTotal,
		m.bundleLoadDuration,
		m.watcherLastSuccessTs,
		m.watcherStale,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic() {
	m.panicTotal.Inc()
}

// ObserveReported counts one response written by the error handler.
func (m *ServerMetrics) ObserveReported(class string, status int) {
	m.reportedTotal.WithLabelValues(class, strconv.Itoa(status)).Inc()
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// AddSanitized counts n values rewritten by the sanitizer.
func (m *ServerMetrics) AddSanitized(kind string, n int) {
	if n > 0 {
		m.sanitizedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *ServerMetrics) SetDocuments(collection string, n int) {
	m.documents.WithLabelValues(collection).Set(float64(n))
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) SetAssetsSource(source string) {
	m.assetsSource.Reset()
	m.assetsSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetAssetsLoadedTimestamp(t time.Time) {
	m.assetsLoadedTs.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetAssetsBundle(sha256 string) {
	m.assetsBundleInfo.Reset()
	m.assetsBundleInfo.WithLabelValues(sha256).Set(1)
}

func (m *ServerMetrics) IncWatcherPolls() {
	m.watcherPollsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherSwaps() {
	m.watcherSwapsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherError(errType string) {
	m.watcherErrorsTotal.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) ObserveBundleLoadDuration(seconds float64) {
	m.bundleLoadDuration.Observe(seconds)
}

func (m *ServerMetrics) SetWatcherLastSuccess(unixSeconds float64) {
	m.watcherLastSuccessTs.Set(unixSeconds)
}

func (m *ServerMetrics) SetWatcherStale(stale bool) {
	if stale {
		m.watcherStale.Set(1)
	} else {
		m.watcherStale.Set(0)
	}
}
