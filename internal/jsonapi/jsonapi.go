// Package jsonapi holds the response envelopes and request helpers shared by
// the tours, users and reviews handlers.
package jsonapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"

	"github.com/natours-dev/natours/internal/apiquery"
	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/store"
	"github.com/natours-dev/natours/internal/xerrors"
)

type envelope struct {
	Status  string `json:"status"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data"`
}

type dataField struct {
	Data any `json:"data"`
}

func write(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// List writes {"status":"success","results":n,"data":{"data":[...]}}.
func List[T any](w http.ResponseWriter, docs []T) error {
	if docs == nil {
		docs = []T{}
	}
	n := len(docs)
	return write(w, http.StatusOK, envelope{Status: "success", Results: &n, Data: dataField{docs}})
}

// One writes {"status":"success","data":{"data":doc}}.
func One(w http.ResponseWriter, status int, doc any) error {
	return write(w, status, envelope{Status: "success", Data: dataField{doc}})
}

// Raw writes data without the inner "data" wrapper, for aggregates.
func Raw(w http.ResponseWriter, key string, data any) error {
	return write(w, http.StatusOK, envelope{Status: "success", Data: map[string]any{key: data}})
}

func NoContent(w http.ResponseWriter) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// StoreError maps store failures onto client errors. Other errors pass
// through unchanged.
func StoreError(err error) error {
	var ce *store.ConflictError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(err, "No document found with that ID", http.StatusNotFound)
	case errors.As(err, &ce):
		return apperr.Wrap(err, "Duplicate field value: "+ce.Value+". Please use another value!", http.StatusBadRequest)
	}
	return err
}

// Merge overlays the JSON fields in patch onto cur. Keys listed in
// immutable keep their current value.
func Merge[T any](cur T, patch map[string]any, immutable ...string) (T, error) {
	raw, err := json.Marshal(cur)
	if err != nil {
		return cur, xerrors.Wrap(err, "encode document")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return cur, xerrors.Wrap(err, "decode document")
	}
	for k, v := range patch {
		if !slices.Contains(immutable, k) {
			doc[k] = v
		}
	}
	if raw, err = json.Marshal(doc); err != nil {
		return cur, xerrors.Wrap(err, "encode patch")
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return cur, apperr.Wrap(err, "Invalid "+te.Field+": expected "+te.Type.String(), http.StatusBadRequest)
		}
		return cur, apperr.Wrap(err, "Invalid request body", http.StatusBadRequest)
	}
	return out, nil
}

// Patch reads the sanitized request body as a JSON object.
func Patch(r *http.Request) (map[string]any, error) {
	body, ok := httpmw.RequestFrom(r.Context()).Body.(map[string]any)
	if !ok {
		return nil, apperr.BadRequest("Request body must be a JSON object")
	}
	return body, nil
}

// Query returns the guarded query string, falling back to the raw URL when
// the request did not pass through the pipeline.
func Query(r *http.Request) url.Values {
	if q := httpmw.RequestFrom(r.Context()).Query; q != nil {
		return q
	}
	return r.URL.Query()
}

// ListQuery applies the request's filter, sort, field and page parameters
// to items and writes the list envelope.
func ListQuery[T any](w http.ResponseWriter, r *http.Request, items []T, defaultSort []apiquery.SortKey) error {
	q, err := apiquery.Parse(Query(r))
	if err != nil {
		return err
	}
	docs, err := apiquery.ToDocs(items)
	if err != nil {
		return err
	}
	return List(w, apiquery.Apply(docs, q, defaultSort))
}
