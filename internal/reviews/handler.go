package reviews

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natours-dev/natours/internal/apiquery"
	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/jsonapi"
	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/otelx"
	"github.com/natours-dev/natours/internal/store"
	"github.com/natours-dev/natours/internal/validate"
)

// tourParam is set when the routes are mounted under a tour.
const tourParam = "tourID"

var defaultSort = []apiquery.SortKey{{Field: "createdAt", Desc: true}}

var immutable = []string{"id", "tour", "user", "createdAt"}

type Options struct {
	Store    *Store
	Tours    RatingsSink
	Users    Directory
	Reporter *httperr.Reporter
	Now      func() time.Time
}

type Handler struct {
	store *Store
	tours RatingsSink
	users Directory
	rep   *httperr.Reporter
	now   func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Reporter == nil {
		opts.Reporter = httperr.New(httperr.Options{})
	}
	return &Handler{store: opts.Store, tours: opts.Tours, users: opts.Users, rep: opts.Reporter, now: opts.Now}
}

// Routes serves both /api/v1/reviews and /api/v1/tours/{tourID}/reviews.
// Call it once per mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmw.Scope("reviews"))
	r.Get("/", h.rep.Handle(h.list))
	r.Post("/", h.rep.Handle(h.create))
	r.Get("/{id}", h.rep.Handle(h.get))
	r.Patch("/{id}", h.rep.Handle(h.update))
	r.Delete("/{id}", h.rep.Handle(h.delete))
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	items := h.store.All()
	if tourID := chi.URLParam(r, tourParam); tourID != "" {
		items = h.store.ForTour(tourID)
	}
	return jsonapi.ListQuery(w, r, items, defaultSort)
}

// find scopes lookups to the tour in the path, if any.
func (h *Handler) find(r *http.Request) (Review, error) {
	rv, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		return Review{}, err
	}
	if tourID := chi.URLParam(r, tourParam); tourID != "" && rv.Tour != tourID {
		return Review{}, store.ErrNotFound
	}
	return rv, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	rv, err := h.find(r)
	if err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusOK, rv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) error {
	var rv Review
	if err := httpmw.DecodeBody(r, &rv); err != nil {
		return err
	}
	if tourID := chi.URLParam(r, tourParam); tourID != "" {
		rv.Tour = tourID
	}
	rv.ID = uuid.NewString()
	rv.CreatedAt = h.now().UTC()
	if err := validate.Struct(rv); err != nil {
		return err
	}
	if h.tours != nil && !h.tours.Exists(rv.Tour) {
		return apperr.BadRequest("Invalid tour: " + rv.Tour)
	}
	if h.users != nil && !h.users.Exists(rv.User) {
		return apperr.BadRequest("Invalid user: " + rv.User)
	}
	if err := h.store.Insert(rv); err != nil {
		var ce *store.ConflictError
		if errors.As(err, &ce) && ce.Field == "tour,user" {
			return apperr.Wrap(err, "You have already reviewed this tour", http.StatusBadRequest)
		}
		return jsonapi.StoreError(err)
	}
	h.refresh(r, rv.Tour)
	return jsonapi.One(w, http.StatusCreated, rv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) error {
	cur, err := h.find(r)
	if err != nil {
		return jsonapi.StoreError(err)
	}
	patch, err := jsonapi.Patch(r)
	if err != nil {
		return err
	}
	rv, err := h.store.Update(cur.ID, func(rv *Review) error {
		next, err := jsonapi.Merge(*rv, patch, immutable...)
		if err != nil {
			return err
		}
		if err := validate.Struct(next); err != nil {
			return err
		}
		*rv = next
		return nil
	})
	if err != nil {
		return jsonapi.StoreError(err)
	}
	h.refresh(r, rv.Tour)
	return jsonapi.One(w, http.StatusOK, rv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	cur, err := h.find(r)
	if err != nil {
		return jsonapi.StoreError(err)
	}
	if _, err := h.store.Delete(cur.ID); err != nil {
		return jsonapi.StoreError(err)
	}
	h.refresh(r, cur.Tour)
	return jsonapi.NoContent(w)
}

// refresh pushes the tour's new rating summary. The review write already
// succeeded, so a failure here is logged rather than returned.
func (h *Handler) refresh(r *http.Request, tourID string) {
	if h.tours == nil {
		return
	}
	ctx, span := otelx.Start(r.Context(), "reviews.refresh_ratings", attribute.String("tour.id", tourID))
	defer span.End()
	n, avg := h.store.Summary(tourID)
	span.SetAttributes(attribute.Int("ratings.quantity", n), attribute.Float64("ratings.average", avg))
	if err := h.tours.SetRatings(tourID, n, avg); err != nil {
		otelx.Fail(span, err)
		log.FromContext(ctx).Warn(ctx, "update tour ratings failed", "tour", tourID, "err", err)
	}
}
