// Package httperr is the terminal error stage of the request pipeline. Every
// failure, whether returned by a handler, raised by a middleware stage, or
// recovered from a panic, is written to the client here and nowhere else.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/validate"
)

const (
	faultMessageAPI  = "Something went very wrong!"
	faultMessagePage = "Please try again later."
	pageTitle        = "Something went wrong!"
)

// PageRenderer renders the HTML error page for non-API requests.
type PageRenderer interface {
	RenderError(w http.ResponseWriter, r *http.Request, status int, title, msg string) error
}

type Options struct {
	// Logger is used when the request context carries no logger.
	Logger log.Logger

	// Pages renders errors for non-API paths. nil falls back to plain text.
	Pages PageRenderer

	// APIPrefix selects JSON responses. Defaults to "/api".
	APIPrefix string

	// OnReported is called once per reported error with "operational" or
	// "fault" and the response status.
	OnReported func(class string, status int)
}

// Reporter converts errors into responses.
type Reporter struct {
	logger     log.Logger
	pages      PageRenderer
	apiPrefix  string
	onReported func(class string, status int)
}

func New(opts Options) *Reporter {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	return &Reporter{
		logger:     opts.Logger,
		pages:      opts.Pages,
		apiPrefix:  opts.APIPrefix,
		onReported: opts.OnReported,
	}
}

// SetPages installs the page renderer after construction, for renderers that
// themselves need the Reporter.
func (rep *Reporter) SetPages(p PageRenderer) { rep.pages = p }

// Classify maps err onto the error taxonomy. The result is Operational when
// the message may be shown to the client; otherwise it is a fault.
func Classify(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.Wrap(err, "request entity too large", http.StatusRequestEntityTooLarge)
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return apperr.Wrap(err, validate.Message(ve), http.StatusBadRequest)
	}
	return apperr.Fault(err)
}

// Report writes the response for err. A nil err is ignored.
func (rep *Reporter) Report(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ae := Classify(err)
	ctx := r.Context()
	L := log.FromContextOr(ctx, rep.logger)

	class := "operational"
	status, msg := ae.Status, ae.Message
	if !ae.Operational {
		class = "fault"
		status = http.StatusInternalServerError
		L.Error(ctx, err, "unhandled error", "http.response.status_code", status)
	} else if status >= 500 {
		L.Warn(ctx, "operational server error", "err", err, "http.response.status_code", status)
	}
	if rep.onReported != nil {
		rep.onReported(class, status)
	}

	if rep.isAPI(r) {
		if !ae.Operational {
			msg = faultMessageAPI
		}
		writeJSON(w, status, ae.StatusText(), msg)
		return
	}

	if !ae.Operational {
		msg = faultMessagePage
	}
	if rep.pages != nil {
		perr := rep.pages.RenderError(w, r, status, pageTitle, msg)
		if perr == nil {
			return
		}
		L.Error(ctx, perr, "render error page")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg + "\n"))
}

// NotFound is the fallback for requests no route matched.
func (rep *Reporter) NotFound(w http.ResponseWriter, r *http.Request) {
	// RequestURI is the target as received, before the query guards rewrote r.URL.
	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}
	rep.Report(w, r, apperr.RouteNotFound(uri))
}

func (rep *Reporter) isAPI(r *http.Request) bool {
	p := r.URL.Path
	return p == rep.apiPrefix || strings.HasPrefix(p, rep.apiPrefix+"/")
}

type body struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, statusText, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{Status: statusText, Message: msg})
}
