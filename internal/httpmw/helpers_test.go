package httpmw

import (
	"context"
	"net/http"
	"sync"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/log"
)

// stubReporter records reported errors and writes status + message.
type stubReporter struct {
	mu   sync.Mutex
	errs []error
}

func (s *stubReporter) Report(w http.ResponseWriter, _ *http.Request, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()

	status, msg := http.StatusInternalServerError, "fault"
	if ae, ok := apperr.As(err); ok && ae.Operational {
		status, msg = ae.Status, ae.Message
	}
	http.Error(w, msg, status)
}

func (s *stubReporter) last() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[len(s.errs)-1]
}

type captured struct {
	msg    string
	fields []any
}

// flatLogger returns itself from With so every call lands in one place.
type flatLogger struct {
	mu    sync.Mutex
	infos []captured
	withs [][]any
}

func (l *flatLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *flatLogger) Info(_ context.Context, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, captured{msg: msg, fields: kv})
}

func (l *flatLogger) Debug(context.Context, string, ...any)        {}
func (l *flatLogger) Warn(context.Context, string, ...any)         {}
func (l *flatLogger) Error(context.Context, error, string, ...any) {}
func (l *flatLogger) Sync() error                                  { return nil }

func field(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// capture returns a handler that stores the request it received.
func capture(dst **http.Request) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = r
		w.WriteHeader(http.StatusOK)
	})
}
