package tours

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natours-dev/natours/internal/apiquery"
	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/jsonapi"
	"github.com/natours-dev/natours/internal/otelx"
	"github.com/natours-dev/natours/internal/store"
)

var defaultSort = []apiquery.SortKey{{Field: "createdAt", Desc: true}}

// immutable fields are ignored in PATCH bodies.
var immutable = []string{"id", "slug", "createdAt", "ratingsAverage", "ratingsQuantity"}

type Options struct {
	Store    *Store
	Reporter *httperr.Reporter
	// Reviews serves /{tourID}/reviews when set.
	Reviews http.Handler
	Now     func() time.Time
}

type Handler struct {
	store   *Store
	rep     *httperr.Reporter
	reviews http.Handler
	now     func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Reporter == nil {
		opts.Reporter = httperr.New(httperr.Options{})
	}
	return &Handler{store: opts.Store, rep: opts.Reporter, reviews: opts.Reviews, now: opts.Now}
}

// Routes is mounted at /api/v1/tours.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmw.Scope("tours"))

	r.With(topCheap).Get("/top-5-cheap", h.rep.Handle(h.list))
	r.Get("/tour-stats", h.rep.Handle(h.stats))
	r.Get("/monthly-plan/{year}", h.rep.Handle(h.monthlyPlan))

	if h.reviews != nil {
		r.Mount("/{tourID}/reviews", h.reviews)
	}

	r.Get("/", h.rep.Handle(h.list))
	r.Post("/", h.rep.Handle(h.create))
	r.Get("/{id}", h.rep.Handle(h.get))
	r.Patch("/{id}", h.rep.Handle(h.update))
	r.Delete("/{id}", h.rep.Handle(h.delete))
	return r
}

// topCheap presets the query for the five best rated, cheapest tours.
func topCheap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := url.Values{}
		for k, v := range jsonapi.Query(r) {
			q[k] = v
		}
		q.Set("limit", "5")
		q.Set("sort", "-ratingsAverage,price")
		q.Set("fields", "name,price,ratingsAverage,summary,difficulty")

		req := *httpmw.RequestFrom(r.Context())
		req.Query = q
		r = r.WithContext(httpmw.WithRequestData(r.Context(), &req))
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	return jsonapi.ListQuery(w, r, h.store.Public(), defaultSort)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	t, err := h.visible(chi.URLParam(r, "id"))
	if err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusOK, t)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) error {
	var t Tour
	if err := httpmw.DecodeBody(r, &t); err != nil {
		return err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = h.now().UTC()
	t.RatingsAverage, t.RatingsQuantity = DefaultRating, 0
	if err := prepare(&t); err != nil {
		return err
	}
	if err := h.store.Insert(t); err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusCreated, t)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) error {
	patch, err := jsonapi.Patch(r)
	if err != nil {
		return err
	}
	t, err := h.store.Update(chi.URLParam(r, "id"), func(t *Tour) error {
		if t.SecretTour {
			return store.ErrNotFound
		}
		next, err := jsonapi.Merge(*t, patch, immutable...)
		if err != nil {
			return err
		}
		if err := prepare(&next); err != nil {
			return err
		}
		*t = next
		return nil
	})
	if err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if _, err := h.visible(id); err != nil {
		return jsonapi.StoreError(err)
	}
	if _, err := h.store.Delete(id); err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.NoContent(w)
}

// visible hides secret tours behind the same 404 as missing ones.
func (h *Handler) visible(id string) (Tour, error) {
	t, err := h.store.Get(id)
	if err == nil && t.SecretTour {
		return Tour{}, store.ErrNotFound
	}
	return t, err
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) error {
	public := h.store.Public()
	_, span := otelx.Start(r.Context(), "tours.stats", attribute.Int("tours.count", len(public)))
	stats := Stats(public)
	span.End()
	return jsonapi.Raw(w, "stats", stats)
}

func (h *Handler) monthlyPlan(w http.ResponseWriter, r *http.Request) error {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 || year > 9999 {
		return apperr.BadRequest("Invalid year: " + chi.URLParam(r, "year"))
	}
	public := h.store.Public()
	_, span := otelx.Start(r.Context(), "tours.monthly_plan",
		attribute.Int("tours.count", len(public)),
		attribute.Int("plan.year", year),
	)
	plan := MonthlyPlan(public, year)
	span.SetAttributes(attribute.Int("plan.months", len(plan)))
	span.End()
	return jsonapi.Raw(w, "plan", plan)
}
