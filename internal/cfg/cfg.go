package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/ratelimit"
)

// EnvPrefix is prepended to upper-cased flag names for environment
// overrides: -rate-limit-max reads NATOURS_RATE_LIMIT_MAX.
const EnvPrefix = "NATOURS_"

type App struct {
	Mode              string
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort  int
	AdminPort int

	PublicDir string
	CSPFile   string

	RateLimitMax      int
	RateLimitWindow   time.Duration
	RateLimitStrategy string
	RateLimitMaxKeys  int
	BodyLimit         int64
	TrustedHops       int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	EnableAssetUpdates  bool
	AssetsSSMParam      string
	AssetsS3Bucket      string
	AssetsS3Prefix      string
	AssetsSigningKeyARN string
	AssetsPollInterval  time.Duration
}

func (c App) Development() bool { return c.Mode == "development" }

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.Mode, "mode", "development", "development|production (development enables the access log)")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 3000, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")

	fs.StringVar(&c.PublicDir, "public-dir", "", "serve static files from this directory instead of the built-in set")
	fs.StringVar(&c.CSPFile, "csp-file", "", "YAML content-security-policy file (empty uses the built-in policy)")

	fs.IntVar(&c.RateLimitMax, "rate-limit-max", ratelimit.DefaultMax, "max /api requests per client per window")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", ratelimit.DefaultWindow, "rate limit window")
	fs.StringVar(&c.RateLimitStrategy, "rate-limit-strategy", string(ratelimit.StrategyWindow), "window|bucket")
	fs.IntVar(&c.RateLimitMaxKeys, "rate-limit-max-keys", ratelimit.DefaultMaxKeys, "max tracked clients before the least recently seen is dropped")
	fs.Int64Var(&c.BodyLimit, "body-limit", 10<<10, "max JSON/urlencoded body size in bytes")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "reverse proxies in front of the server (0 ignores X-Forwarded-For)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.BoolVar(&c.EnableAssetUpdates, "enable-asset-updates", false, "Load the public directory from S3 bundles published through SSM")
	fs.StringVar(&c.AssetsSSMParam, "assets-ssm-param", "/app/natours/assets/release/sha256", "ssm parameter holding the active bundle sha256")
	fs.StringVar(&c.AssetsS3Bucket, "assets-s3-bucket", "", "s3 bucket holding asset bundles")
	fs.StringVar(&c.AssetsS3Prefix, "assets-s3-prefix", "natours/assets/bundles", "s3 prefix (key) of asset bundles")
	fs.StringVar(&c.AssetsSigningKeyARN, "assets-signing-key-arn", "", "KMS key ARN for bundle signature verification (empty skips verification)")
	fs.DurationVar(&c.AssetsPollInterval, "assets-poll-interval", 30*time.Second, "how often to check SSM for a new bundle")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.Mode != "development" && c.Mode != "production" {
		errs = append(errs, fmt.Errorf("invalid MODE %q (must be development|production)", c.Mode))
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Request pipeline
	if c.RateLimitMax < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be positive (got %d)", c.RateLimitMax))
	}
	if c.RateLimitWindow < time.Second {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s (got %s)", c.RateLimitWindow))
	}
	if _, ok := ratelimit.ParseStrategy(c.RateLimitStrategy); !ok {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_STRATEGY %q (must be window|bucket)", c.RateLimitStrategy))
	}
	if c.RateLimitMaxKeys < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_KEYS must be positive (got %d)", c.RateLimitMaxKeys))
	}
	if c.BodyLimit < 1 || c.BodyLimit > 10<<20 {
		errs = append(errs, fmt.Errorf("BODY_LIMIT must be 1..%d bytes (got %d)", 10<<20, c.BodyLimit))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..8 (got %d)", c.TrustedHops))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnableAssetUpdates {
		if c.PublicDir != "" {
			errs = append(errs, fmt.Errorf("PUBLIC_DIR and ENABLE_ASSET_UPDATES are mutually exclusive"))
		}
		if c.AssetsSSMParam == "" {
			errs = append(errs, fmt.Errorf("ASSETS_SSM_PARAM is required"))
		}
		if c.AssetsS3Bucket == "" {
			errs = append(errs, fmt.Errorf("ASSETS_S3_BUCKET is required"))
		}
		if c.AssetsS3Prefix == "" {
			errs = append(errs, fmt.Errorf("ASSETS_S3_PREFIX is required"))
		}
		if c.AssetsPollInterval < time.Second {
			errs = append(errs, fmt.Errorf("ASSETS_POLL_INTERVAL must be at least 1s (got %s)", c.AssetsPollInterval))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
