package assets

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/natours-dev/natours/internal/cryptoutil"
)

type countingMetrics struct {
	polls, swaps, errs atomic.Int64
	stale              atomic.Bool
	lastErr            atomic.Value
}

func (m *countingMetrics) IncWatcherPolls() { m.polls.Add(1) }
func (m *countingMetrics) IncWatcherSwaps() { m.swaps.Add(1) }
func (m *countingMetrics) IncWatcherError(kind string) {
	m.errs.Add(1)
	m.lastErr.Store(kind)
}
func (m *countingMetrics) ObserveBundleLoadDuration(float64) {}
func (m *countingMetrics) SetWatcherLastSuccess(float64)     {}
func (m *countingMetrics) SetWatcherStale(s bool)            { m.stale.Store(s) }

func TestWatcher_SwapsNewBundle(t *testing.T) {
	l, s3f, ssmf, first := newTestLoader(t, validBundle(t, "1.0.0"), nil)
	mgr := NewManager()
	snap, err := l.LoadDigest(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}
	mgr.Set(*snap)

	var swapped atomic.Int64
	met := &countingMetrics{}
	w := NewWatcher(WatcherOptions{
		Fetcher: l,
		Manager: mgr,
		Metrics: met,
		OnSwap:  func(*Snapshot) { swapped.Add(1) },
	})

	if res := w.checkOnce(context.Background()); res != pollUnchanged {
		t.Fatalf("first poll = %v, want unchanged", res)
	}

	next := validBundle(t, "1.1.0")
	nextDigest := publish(s3f, next)
	ssmf.set(nextDigest)

	if res := w.checkOnce(context.Background()); res != pollSwapped {
		t.Fatalf("poll = %v, want swapped", res)
	}
	if mgr.AssetsVersion() != "1.1.0" || mgr.AssetsHash() != nextDigest {
		t.Fatalf("manager = %q %q", mgr.AssetsVersion(), mgr.AssetsHash())
	}
	if swapped.Load() != 1 || met.swaps.Load() != 1 || met.polls.Load() != 2 {
		t.Fatalf("swapped=%d swaps=%d polls=%d", swapped.Load(), met.swaps.Load(), met.polls.Load())
	}
}

func publish(s3f *fakeS3, data []byte) string {
	d := cryptoutil.SHA256Hex(data)
	s3f.put(testPrefix+"/"+d+".tar.gz", data)
	return d
}

func TestWatcher_RejectsInvalidBundle(t *testing.T) {
	l, s3f, ssmf, _ := newTestLoader(t, validBundle(t, "1"), nil)
	mgr := NewManager()
	met := &countingMetrics{}
	w := NewWatcher(WatcherOptions{Fetcher: l, Manager: mgr, Metrics: met})

	bad := publish(s3f, makeTarGz(t, map[string]string{"README": "no assets"}))
	ssmf.set(bad)

	if res := w.checkOnce(context.Background()); res != pollInvalid {
		t.Fatalf("poll = %v, want invalid", res)
	}
	if _, ok := mgr.Get(); ok {
		t.Fatal("invalid bundle was swapped in")
	}
	if met.lastErr.Load() != "validation" {
		t.Fatalf("error kind = %v", met.lastErr.Load())
	}
}

func TestWatcher_LoadError(t *testing.T) {
	l, _, ssmf, _ := newTestLoader(t, validBundle(t, "1"), nil)
	met := &countingMetrics{}
	w := NewWatcher(WatcherOptions{Fetcher: l, Manager: NewManager(), Metrics: met})

	ssmf.set(cryptoutil.SHA256Hex([]byte("never uploaded")))
	if res := w.checkOnce(context.Background()); res != pollLoadError {
		t.Fatalf("poll = %v, want load error", res)
	}
	if met.lastErr.Load() != "load" {
		t.Fatalf("error kind = %v", met.lastErr.Load())
	}
}

func TestWatcher_OnSwapPanicContained(t *testing.T) {
	l, _, _, _ := newTestLoader(t, validBundle(t, "1"), nil)
	w := NewWatcher(WatcherOptions{Fetcher: l, Manager: NewManager(), OnSwap: func(*Snapshot) { panic("boom") }})
	if res := w.checkOnce(context.Background()); res != pollSwapped {
		t.Fatalf("poll = %v", res)
	}
}

func TestWatcher_BackoffAndStale(t *testing.T) {
	l, _, ssmf, _ := newTestLoader(t, validBundle(t, "1"), nil)
	met := &countingMetrics{}
	w := NewWatcher(WatcherOptions{
		Fetcher:        l,
		Manager:        NewManager(),
		Metrics:        met,
		PollInterval:   time.Second,
		StaleThreshold: time.Millisecond,
	})
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	ssmf.fail(errors.New("throttled"))
	w.lastSuccess = time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		w.track(context.Background(), w.checkOnce(context.Background()), ticker)
	}
	if w.errStreak != 3 || w.backoff() != 8*time.Second {
		t.Fatalf("streak=%d backoff=%v", w.errStreak, w.backoff())
	}
	if !met.stale.Load() {
		t.Fatal("watcher should be stale")
	}

	ssmf.fail(nil)
	w.track(context.Background(), w.checkOnce(context.Background()), ticker)
	if w.errStreak != 0 || met.stale.Load() {
		t.Fatalf("streak=%d stale=%v after recovery", w.errStreak, met.stale.Load())
	}
}

func TestWatcher_BackoffCapped(t *testing.T) {
	w := &Watcher{interval: time.Minute, errStreak: 20}
	if got := w.backoff(); got != maxBackoff {
		t.Fatalf("backoff = %v", got)
	}
}

func TestWatcher_RunStops(t *testing.T) {
	l, _, _, _ := newTestLoader(t, validBundle(t, "1"), nil)
	w := NewWatcher(WatcherOptions{Fetcher: l, Manager: NewManager(), PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
