package httpmw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/xerrors"
)

type requestKey struct{}

// Request is the parsed view of an incoming request that the pipeline
// stages fill in and handlers read. Method and path stay on *http.Request.
type Request struct {
	// Body is the decoded JSON value (object or array) or the nested form of
	// a URL-encoded body. nil when there was no parseable body.
	Body any
	// Form reports whether Body came from a URL-encoded payload.
	Form bool

	Cookies map[string]string

	// Query is the query string after sanitization and the pollution guard.
	Query url.Values
	// QueryPolluted holds every value of each collapsed query key.
	QueryPolluted url.Values
	// BodyPolluted holds the original arrays of collapsed form fields.
	BodyPolluted map[string][]any

	// Time is when the request entered the pipeline.
	Time time.Time
}

// TimeISO formats Time as RFC 3339 with milliseconds in UTC.
func (req *Request) TimeISO() string {
	return req.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// RequestFrom returns the request data attached by the pipeline. It never
// returns nil.
func RequestFrom(ctx context.Context) *Request {
	if req, ok := ctx.Value(requestKey{}).(*Request); ok {
		return req
	}
	return &Request{}
}

// withRequest returns r carrying a *Request, creating one if needed.
func withRequest(r *http.Request) (*http.Request, *Request) {
	if req, ok := r.Context().Value(requestKey{}).(*Request); ok {
		return r, req
	}
	req := &Request{}
	return r.WithContext(context.WithValue(r.Context(), requestKey{}, req)), req
}

// WithRequestData attaches req to ctx. Handlers under test use it to skip
// the parsing stages.
func WithRequestData(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// DecodeBody copies the sanitized body into dst. A missing body is a client
// error.
func DecodeBody(r *http.Request, dst any) error {
	req := RequestFrom(r.Context())
	if req.Body == nil {
		return apperr.BadRequest("Request body is required")
	}
	raw, err := json.Marshal(req.Body)
	if err != nil {
		return xerrors.Wrap(err, "re-encode body")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return apperr.Wrap(err, "Invalid "+te.Field+": expected "+te.Type.String(), http.StatusBadRequest)
		}
		return apperr.Wrap(err, "Invalid request body", http.StatusBadRequest)
	}
	return nil
}
