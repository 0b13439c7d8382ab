package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/natours-dev/natours/internal/assets"
	"github.com/natours-dev/natours/internal/cfg"
	"github.com/natours-dev/natours/internal/csp"
	"github.com/natours-dev/natours/internal/health"
	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/httpserver"
	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/metrics"
	"github.com/natours-dev/natours/internal/opshttp"
	"github.com/natours-dev/natours/internal/otelx"
	"github.com/natours-dev/natours/internal/prof"
	"github.com/natours-dev/natours/internal/ratelimit"
	"github.com/natours-dev/natours/internal/reviews"
	"github.com/natours-dev/natours/internal/sanitize"
	"github.com/natours-dev/natours/internal/static"
	"github.com/natours-dev/natours/internal/tours"
	"github.com/natours-dev/natours/internal/users"
	v "github.com/natours-dev/natours/internal/version"
	"github.com/natours-dev/natours/internal/views"
	"github.com/natours-dev/natours/internal/webassets"
)

const (
	appName   = "natours"
	component = "api"

	// production drain: long enough for the load balancer to see /-/ready fail
	drainPeriod = 30 * time.Second
)

func main() {
	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	vi := v.Get()
	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	os.Exit(run(conf, vi))
}

func run(conf cfg.App, vi v.Info) int {
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	lg, err := newLogger(conf, vi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer lg.Sync()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(),
		"mode", conf.Mode,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"public_dir", conf.PublicDir,
		"csp_file", conf.CSPFile,
		"rate_limit_max", conf.RateLimitMax,
		"rate_limit_window", conf.RateLimitWindow.String(),
		"rate_limit_strategy", conf.RateLimitStrategy,
		"body_limit", conf.BodyLimit,
		"trusted_hops", conf.TrustedHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_asset_updates", conf.EnableAssetUpdates,
	)...)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, component, &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName + "." + component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": component,
			"mode":      conf.Mode,
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		Sample:      conf.TraceSample,
		Service:     appName,
		Component:   component,
		Version:     vi.Version,
		Environment: conf.Mode,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	policy, err := csp.LoadOrDefault(conf.CSPFile)
	if err == nil {
		err = policy.Validate()
	}
	if err != nil {
		L.Error(ctx, err, "content security policy", "csp_file", conf.CSPFile)
		return 1
	}
	for _, w := range policy.Warnings() {
		L.Warn(ctx, "content security policy is permissive", "warning", w)
	}

	now := time.Now
	ts, us, rs, err := seedStores(ctx, m, now())
	if err != nil {
		L.Error(ctx, err, "failed to seed collections")
		return 1
	}

	rep := httperr.New(httperr.Options{Logger: L, OnReported: m.ObserveReported})
	pages, err := views.New(views.Options{
		Templates: webassets.TemplatesFS(),
		Tours:     ts,
		Reviews:   rs,
		Reporter:  rep,
	})
	if err != nil {
		L.Error(ctx, err, "failed to parse view templates")
		return 1
	}
	rep.SetPages(pages)

	assetMgr := assets.NewManager()
	if err := loadAssets(ctx, L, conf, m, assetMgr); err != nil {
		L.Error(ctx, err, "failed to load public assets")
		return 1
	}

	strategy, _ := ratelimit.ParseStrategy(conf.RateLimitStrategy)
	limiter := ratelimit.New(ctx,
		ratelimit.WithLimit(conf.RateLimitMax, conf.RateLimitWindow),
		ratelimit.WithStrategy(strategy),
		ratelimit.WithMaxKeys(conf.RateLimitMaxKeys),
		ratelimit.WithReporter(rep),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// once per key until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted")
		}),
	)

	reviewsAPI := reviews.NewHandler(reviews.Options{Store: rs, Tours: ts, Users: us, Reporter: rep, Now: now})
	toursAPI := tours.NewHandler(tours.Options{Store: ts, Reporter: rep, Reviews: reviewsAPI.Routes(), Now: now})

	stopHTTP, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:   L,
		Port:     conf.HTTPPort,
		Mode:     conf.Mode,
		CSP:      policy.Header(),
		Reporter: rep,
		Static: static.New(static.Options{
			Assets:  assetMgr,
			OnServe: func(r *http.Request) { metrics.SetRoute(r.Context(), "static") },
		}),
		Assets:      assetMgr,
		Limiter:     limiter,
		BodyLimit:   conf.BodyLimit,
		Sanitizer:   sanitize.New(),
		OnSanitized: m.AddSanitized,
		ClientIP:    httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		MetricsMW:   m.Middleware,
		OnPanic:     m.IncHttpPanic,
		Tracing:     conf.EnableTracing,
		Now:         now,
		Views:       pages,
		Tours:       toursAPI.Routes(),
		Users:       users.NewHandler(us, rep).Routes(),
		Reviews:     reviewsAPI.Routes(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		return 1
	}
	defer func() { _ = stopHTTP(context.Background()) }()

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("assets", health.Func(assetMgr.ReadyErr)),
	)

	// the ops listener refuses public peers on its own; the security group
	// is the first line
	stopOps, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return 1
	}
	defer func() { _ = stopOps(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stopSignals()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	if !conf.Development() {
		drain(L)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := stopHTTP(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "app http server shutdown")
	}
	if err := stopOps(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return 0
}

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			return nil, err
		}
	}
	return log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Mode:              conf.Mode,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
}

// drain waits for in-flight requests and load balancer health checks. A
// second signal skips the wait.
func drain(L log.Logger) {
	L.Info(context.Background(), "draining", "period", drainPeriod.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

func notifySystemd() error {
	// set when started with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
