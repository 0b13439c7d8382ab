package httpmw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/xerrors"
)

func TestRecover_NoPanic(t *testing.T) {
	rep := &stubReporter{}
	h := Recover(rep, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	if rec.Code != http.StatusCreated || rep.last() != nil {
		t.Fatalf("status = %d, reported = %v", rec.Code, rep.last())
	}
}

func TestRecover_ReportsFault(t *testing.T) {
	cause := errors.New("assignment to entry in nil map")
	for _, v := range []any{"something broke", cause} {
		rep := &stubReporter{}
		panics := 0
		h := Recover(rep, func() { panics++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(v)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tours", http.NoBody))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		if panics != 1 {
			t.Fatalf("onPanic called %d times", panics)
		}
		ae, ok := apperr.As(rep.last())
		if !ok || ae.Operational {
			t.Fatalf("reported %v, want a fault", rep.last())
		}
		var pe *xerrors.PanicError
		if !errors.As(rep.last(), &pe) {
			t.Fatal("panic value not preserved")
		}
	}
}

func TestRecover_NilReporter(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(&stubReporter{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
}
