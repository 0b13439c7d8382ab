// Package reviews serves /api/v1/reviews and the nested
// /api/v1/tours/{tourID}/reviews routes. Every write recomputes the
// reviewed tour's rating summary.
package reviews

import (
	"math"
	"time"

	"github.com/natours-dev/natours/internal/store"
	"github.com/natours-dev/natours/internal/validate"
	"github.com/natours-dev/natours/internal/xerrors"
)

type Review struct {
	ID        string    `json:"id"`
	Review    string    `json:"review" validate:"required"`
	Rating    float64   `json:"rating" validate:"required,gte=1,lte=5"`
	Tour      string    `json:"tour" validate:"required"`
	User      string    `json:"user" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// RatingsSink receives the recomputed rating summary of a tour.
type RatingsSink interface {
	Exists(tourID string) bool
	SetRatings(tourID string, quantity int, average float64) error
}

// Directory reports whether a user id is known.
type Directory interface {
	Exists(userID string) bool
}

type Store struct {
	*store.Collection[Review]
}

func NewStore() *Store {
	c := store.New("reviews", func(r Review) string { return r.ID }).
		WithUnique(func(c, e Review) *store.ConflictError {
			if c.Tour == e.Tour && c.User == e.User {
				return &store.ConflictError{Field: "tour,user", Value: c.Tour + "/" + c.User}
			}
			return nil
		})
	return &Store{Collection: c}
}

// Seed loads reviews from a JSON array. Tour ratings are left as seeded.
func (s *Store) Seed(data []byte, now time.Time) error {
	seed, err := store.DecodeSeed[Review](data)
	if err != nil {
		return err
	}
	for _, r := range seed {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if err := validate.Struct(r); err != nil {
			return xerrors.Wrapf(err, "seed review %s", r.ID)
		}
		if err := s.Insert(r); err != nil {
			return xerrors.Wrapf(err, "seed review %s", r.ID)
		}
	}
	return nil
}

func (s *Store) ForTour(tourID string) []Review {
	all := s.All()
	out := all[:0]
	for _, r := range all {
		if r.Tour == tourID {
			out = append(out, r)
		}
	}
	return out
}

// Summary returns the review count and the average rating, rounded to one
// decimal, for tourID.
func (s *Store) Summary(tourID string) (int, float64) {
	rs := s.ForTour(tourID)
	if len(rs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range rs {
		sum += r.Rating
	}
	return len(rs), math.Round(sum/float64(len(rs))*10) / 10
}
