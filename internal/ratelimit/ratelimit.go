package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/httpmw"
)

// Strategy selects how a client's budget is tracked.
type Strategy string

const (
	// StrategyWindow allows exactly Max requests per fixed window per client.
	StrategyWindow Strategy = "window"
	// StrategyBucket refills Max tokens evenly across the window.
	StrategyBucket Strategy = "bucket"
)

const (
	DefaultMax     = 100
	DefaultWindow  = time.Hour
	DefaultMaxKeys = 100_000

	DefaultMessage = "Too many requests from this IP, please try again in an hour!"
)

// ParseStrategy accepts "window" or "bucket".
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyWindow, StrategyBucket:
		return Strategy(s), true
	}
	return "", false
}

type client struct {
	// window strategy
	count int
	start time.Time

	// bucket strategy
	bucket *rate.Limiter

	lastSeen time.Time
	// logged is set on the first denial and cleared when the budget resets
	logged bool
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the client next has budget.
	Reset time.Time
}

// Limiter tracks request budgets keyed by client address.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client

	max      int
	window   time.Duration
	strategy Strategy
	maxKeys  int
	message  string
	now      func() time.Time

	rep           httpmw.ErrorReporter
	onDenied      func(key string)
	onFirstDenied func(key string)
	onCapacity    func()
}

type Option func(*Limiter)

// WithLimit allows max requests per window.
func WithLimit(max int, window time.Duration) Option {
	return func(l *Limiter) {
		if max > 0 {
			l.max = max
		}
		if window > 0 {
			l.window = window
		}
	}
}

func WithStrategy(s Strategy) Option {
	return func(l *Limiter) {
		if s != "" {
			l.strategy = s
		}
	}
}

// WithMaxKeys bounds the number of tracked clients. When full, the least
// recently seen client is dropped to make room for a new one.
func WithMaxKeys(n int) Option { return func(l *Limiter) { l.maxKeys = n } }

// WithMessage overrides the rejection message.
func WithMessage(msg string) Option { return func(l *Limiter) { l.message = msg } }

func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

// WithReporter routes rejections through the terminal error stage.
func WithReporter(rep httpmw.ErrorReporter) Option { return func(l *Limiter) { l.rep = rep } }

// WithOnDenied is called on every rejected request.
func WithOnDenied(fn func(key string)) Option { return func(l *Limiter) { l.onDenied = fn } }

// WithOnFirstDenied is called once per client per exhausted budget.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onFirstDenied = fn }
}

// WithOnCapacity is called when a new client displaces the least recently
// seen one because the client table is full.
func WithOnCapacity(fn func()) Option { return func(l *Limiter) { l.onCapacity = fn } }

// New returns a Limiter and starts evicting idle clients until ctx is done.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		clients:  make(map[string]*client),
		max:      DefaultMax,
		window:   DefaultWindow,
		strategy: StrategyWindow,
		maxKeys:  DefaultMaxKeys,
		message:  DefaultMessage,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	go l.evictLoop(ctx)
	return l
}

// Allow charges one request to key. The check and the charge happen under
// one lock, so concurrent requests can never exceed the budget.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	full := false
	c, ok := l.clients[key]
	if !ok {
		if l.maxKeys > 0 && len(l.clients) >= l.maxKeys {
			full = true
			l.evictOldest()
		}
		c = &client{start: now}
		if l.strategy == StrategyBucket {
			c.bucket = rate.NewLimiter(rate.Every(l.window/time.Duration(l.max)), l.max)
		}
		l.clients[key] = c
	}
	c.lastSeen = now

	var d Decision
	if l.strategy == StrategyBucket {
		d = l.takeToken(c, now)
	} else {
		d = l.countInWindow(c, now)
	}

	first := false
	if d.Allowed {
		c.logged = false
	} else if !c.logged {
		c.logged = true
		first = true
	}
	l.mu.Unlock()

	if full && l.onCapacity != nil {
		l.onCapacity()
	}
	if !d.Allowed {
		if first && l.onFirstDenied != nil {
			l.onFirstDenied(key)
		}
		if l.onDenied != nil {
			l.onDenied(key)
		}
	}
	return d
}

func (l *Limiter) countInWindow(c *client, now time.Time) Decision {
	if !now.Before(c.start.Add(l.window)) {
		c.start = now
		c.count = 0
	}
	d := Decision{Limit: l.max, Reset: c.start.Add(l.window)}
	if c.count < l.max {
		c.count++
		d.Allowed = true
		d.Remaining = l.max - c.count
	}
	return d
}

func (l *Limiter) takeToken(c *client, now time.Time) Decision {
	d := Decision{Limit: l.max, Allowed: c.bucket.AllowN(now, 1)}
	tokens := c.bucket.TokensAt(now)
	if tokens > 0 {
		d.Remaining = int(tokens)
	}
	per := l.window / time.Duration(l.max)
	if d.Allowed {
		d.Reset = now.Add(time.Duration(float64(l.max)-tokens) * per)
	} else {
		d.Reset = now.Add(time.Duration((1 - tokens) * float64(per)))
	}
	return d
}

// evictOldest drops the least recently seen client. Callers hold l.mu.
func (l *Limiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for k, c := range l.clients {
		if !found || c.lastSeen.Before(seen) {
			oldest, seen, found = k, c.lastSeen, true
		}
	}
	if found {
		delete(l.clients, oldest)
	}
}

// Len reports the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) evictLoop(ctx context.Context) {
	interval := l.window / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

// evict drops clients idle for a full window; their budget is full again
// by then.
func (l *Limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.window {
			delete(l.clients, key)
		}
	}
}

// Middleware charges each request to its resolved client address. Allowed
// responses carry X-RateLimit-Limit and X-RateLimit-Remaining; rejected
// requests get Retry-After and a 429 written by the error reporter.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := l.Allow(httpmw.ClientIPFromContext(r.Context()))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retry := int(d.Reset.Sub(l.now()).Seconds() + 0.999)
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.Itoa(retry))
		err := apperr.New(l.message, http.StatusTooManyRequests)
		if l.rep == nil {
			http.Error(w, err.Message, err.Status)
			return
		}
		l.rep.Report(w, r, err)
	})
}
