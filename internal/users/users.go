// Package users serves /api/v1/users.
package users

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/natours-dev/natours/internal/apiquery"
	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/jsonapi"
	"github.com/natours-dev/natours/internal/store"
	"github.com/natours-dev/natours/internal/validate"
	"github.com/natours-dev/natours/internal/xerrors"
)

const DefaultPhoto = "default.jpg"

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name" validate:"required,max=60"`
	Email  string `json:"email" validate:"required,email"`
	Role   string `json:"role" validate:"oneof=user guide lead-guide admin"`
	Photo  string `json:"photo"`
	Active *bool  `json:"active,omitempty"`
}

// IsActive treats a missing flag as active.
func (u User) IsActive() bool { return u.Active == nil || *u.Active }

func normalize(u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = "user"
	}
	if u.Photo == "" {
		u.Photo = DefaultPhoto
	}
	if u.Active == nil {
		active := true
		u.Active = &active
	}
	return validate.Struct(u)
}

type Store struct {
	*store.Collection[User]
}

func NewStore() *Store {
	c := store.New("users", func(u User) string { return u.ID }).
		WithUnique(func(c, e User) *store.ConflictError {
			if c.Email == e.Email {
				return &store.ConflictError{Field: "email", Value: c.Email}
			}
			return nil
		})
	return &Store{Collection: c}
}

func (s *Store) Seed(data []byte) error {
	seed, err := store.DecodeSeed[User](data)
	if err != nil {
		return err
	}
	for _, u := range seed {
		if err := normalize(&u); err != nil {
			return xerrors.Wrapf(err, "seed user %s", u.Email)
		}
		if err := s.Insert(u); err != nil {
			return xerrors.Wrapf(err, "seed user %s", u.Email)
		}
	}
	return nil
}

// Exists reports whether id names an active user.
func (s *Store) Exists(id string) bool {
	u, err := s.Get(id)
	return err == nil && u.IsActive()
}

func (s *Store) Active() []User {
	all := s.All()
	out := all[:0]
	for _, u := range all {
		if u.IsActive() {
			out = append(out, u)
		}
	}
	return out
}

var defaultSort = []apiquery.SortKey{{Field: "name"}}

var immutable = []string{"id"}

type Handler struct {
	store *Store
	rep   *httperr.Reporter
}

func NewHandler(s *Store, rep *httperr.Reporter) *Handler {
	if rep == nil {
		rep = httperr.New(httperr.Options{})
	}
	return &Handler{store: s, rep: rep}
}

// Routes is mounted at /api/v1/users.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmw.Scope("users"))
	r.Get("/", h.rep.Handle(h.list))
	r.Post("/", h.rep.Handle(h.create))
	r.Get("/{id}", h.rep.Handle(h.get))
	r.Patch("/{id}", h.rep.Handle(h.update))
	r.Delete("/{id}", h.rep.Handle(h.delete))
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	return jsonapi.ListQuery(w, r, h.store.Active(), defaultSort)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	u, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusOK, u)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) error {
	var u User
	if err := httpmw.DecodeBody(r, &u); err != nil {
		return err
	}
	u.ID = uuid.NewString()
	if err := normalize(&u); err != nil {
		return err
	}
	if err := h.store.Insert(u); err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusCreated, u)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) error {
	patch, err := jsonapi.Patch(r)
	if err != nil {
		return err
	}
	u, err := h.store.Update(chi.URLParam(r, "id"), func(u *User) error {
		next, err := jsonapi.Merge(*u, patch, immutable...)
		if err != nil {
			return err
		}
		if err := normalize(&next); err != nil {
			return err
		}
		*u = next
		return nil
	})
	if err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.One(w, http.StatusOK, u)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.store.Delete(chi.URLParam(r, "id")); err != nil {
		return jsonapi.StoreError(err)
	}
	return jsonapi.NoContent(w)
}
