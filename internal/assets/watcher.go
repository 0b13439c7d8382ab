package assets

import (
	"context"
	"fmt"
	"time"

	"github.com/natours-dev/natours/internal/cryptoutil"
	"github.com/natours-dev/natours/internal/log"
)

const (
	DefaultPollInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

type pollResult int

const (
	pollUnchanged pollResult = iota
	pollSwapped
	pollSSMError
	pollLoadError
	pollInvalid
)

// BundleFetcher is the part of *Loader the watcher drives.
type BundleFetcher interface {
	CurrentDigest(ctx context.Context) (string, error)
	LoadDigest(ctx context.Context, digest string) (*Snapshot, error)
}

// WatcherMetrics is satisfied by *metrics.ServerMetrics.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type WatcherOptions struct {
	Logger       log.Logger
	Fetcher      BundleFetcher
	Manager      *Manager
	PollInterval time.Duration
	Validation   *ValidationOptions
	Metrics      WatcherMetrics

	// OnSwap runs on the poll goroutine after each swap.
	OnSwap func(snap *Snapshot)

	// StaleThreshold is how long SSM may fail before the watcher reports
	// itself stale. Defaults to 30 minutes.
	StaleThreshold time.Duration
}

// Watcher polls SSM and swaps new bundles into the manager.
type Watcher struct {
	fetcher    BundleFetcher
	manager    *Manager
	logger     log.Logger
	interval   time.Duration
	validation ValidationOptions
	onSwap     func(*Snapshot)
	metrics    WatcherMetrics

	current     string
	errStreak   int
	staleAfter  time.Duration
	lastSuccess time.Time
	stale       bool
	swaps       int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 30 * time.Minute
	}
	validation := DefaultValidationOptions()
	if opts.Validation != nil {
		validation = *opts.Validation
	}
	w := &Watcher{
		fetcher:     opts.Fetcher,
		manager:     opts.Manager,
		logger:      opts.Logger,
		interval:    opts.PollInterval,
		validation:  validation,
		onSwap:      opts.OnSwap,
		metrics:     opts.Metrics,
		staleAfter:  opts.StaleThreshold,
		lastSuccess: time.Now(),
	}
	// skip re-downloading what startup already loaded
	if snap, ok := opts.Manager.Get(); ok {
		w.current = snap.Meta.SHA256
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "asset watcher starting",
		"poll_interval", w.interval.String(),
		"current", short(w.current),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "asset watcher stopping", "swaps", w.swaps)
			return ctx.Err()
		case <-ticker.C:
			res := w.checkOnce(ctx)
			w.track(ctx, res, ticker)
		}
	}
}

// track adjusts the poll cadence and staleness after one poll.
func (w *Watcher) track(ctx context.Context, res pollResult, ticker *time.Ticker) {
	if res != pollSSMError {
		if w.errStreak > 0 {
			w.logger.Info(ctx, "asset watcher recovered", "failed_polls", w.errStreak)
			w.errStreak = 0
			ticker.Reset(w.interval)
		}
		if w.stale {
			w.stale = false
			w.logger.Info(ctx, "asset watcher no longer stale")
			if w.metrics != nil {
				w.metrics.SetWatcherStale(false)
			}
		}
		return
	}

	w.errStreak++
	backoff := w.backoff()
	w.logger.Warn(ctx, "asset watcher backing off", "failed_polls", w.errStreak, "next_poll_in", backoff.String())
	ticker.Reset(backoff)

	if !w.stale && time.Since(w.lastSuccess) > w.staleAfter {
		w.stale = true
		w.logger.Error(ctx, fmt.Errorf("no successful SSM poll for %s", time.Since(w.lastSuccess).Truncate(time.Second)),
			"asset watcher is stale")
		if w.metrics != nil {
			w.metrics.SetWatcherStale(true)
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	digest, err := w.fetcher.CurrentDigest(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "asset watcher: SSM poll failed")
		w.incError("ssm")
		return pollSSMError
	}
	w.lastSuccess = time.Now()
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(float64(w.lastSuccess.Unix()))
	}
	if cryptoutil.HashEqual(digest, w.current) {
		return pollUnchanged
	}

	w.logger.Info(ctx, "asset watcher: new bundle published", "old", short(w.current), "new", short(digest))
	start := time.Now()
	snap, err := w.fetcher.LoadDigest(ctx, digest)
	if w.metrics != nil {
		w.metrics.ObserveBundleLoadDuration(time.Since(start).Seconds())
	}
	if err != nil {
		w.logger.Error(ctx, err, "asset watcher: bundle load failed", "sha256", short(digest))
		w.incError("load")
		return pollLoadError
	}
	if err := ValidateSnapshot(snap, w.validation); err != nil {
		w.logger.Error(ctx, err, "asset watcher: bundle rejected, keeping current assets", "sha256", short(digest))
		w.incError("validation")
		return pollInvalid
	}

	w.manager.Set(*snap)
	w.current = digest
	w.swaps++
	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}
	w.logger.Info(ctx, "asset watcher: bundle swapped", "sha256", short(digest), "version", snap.Meta.Version)

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r), "asset watcher: OnSwap panicked")
				}
			}()
			w.onSwap(snap)
		}()
	}
	return pollSwapped
}

func (w *Watcher) incError(kind string) {
	if w.metrics != nil {
		w.metrics.IncWatcherError(kind)
	}
}

// backoff doubles the interval per consecutive SSM failure up to maxBackoff.
func (w *Watcher) backoff() time.Duration {
	d := w.interval
	for i := 0; i < w.errStreak && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
