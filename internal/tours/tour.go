// Package tours serves /api/v1/tours and owns the tour collection.
package tours

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/natours-dev/natours/internal/store"
	"github.com/natours-dev/natours/internal/validate"
	"github.com/natours-dev/natours/internal/xerrors"
)

// DefaultRating is the average a tour carries before any review.
const DefaultRating = 4.5

type Tour struct {
	ID              string      `json:"id"`
	Name            string      `json:"name" validate:"required,min=10,max=40"`
	Slug            string      `json:"slug"`
	Duration        int         `json:"duration" validate:"required,gt=0"`
	MaxGroupSize    int         `json:"maxGroupSize" validate:"required,gt=0"`
	Difficulty      string      `json:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64     `json:"ratingsAverage" validate:"gte=1,lte=5"`
	RatingsQuantity int         `json:"ratingsQuantity" validate:"gte=0"`
	Price           float64     `json:"price" validate:"required,gt=0"`
	PriceDiscount   float64     `json:"priceDiscount,omitempty" validate:"omitempty,gte=0,ltfield=Price"`
	Summary         string      `json:"summary" validate:"required"`
	Description     string      `json:"description,omitempty"`
	ImageCover      string      `json:"imageCover" validate:"required"`
	Images          []string    `json:"images"`
	StartDates      []time.Time `json:"startDates"`
	SecretTour      bool        `json:"secretTour,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// DurationWeeks is shown on the tour pages.
func (t Tour) DurationWeeks() float64 {
	return math.Round(float64(t.Duration)/7*10) / 10
}

type Store struct {
	*store.Collection[Tour]
}

func NewStore() *Store {
	c := store.New("tours", func(t Tour) string { return t.ID }).
		WithUnique(func(c, e Tour) *store.ConflictError {
			if strings.EqualFold(c.Name, e.Name) || c.Slug == e.Slug {
				return &store.ConflictError{Field: "name", Value: c.Name}
			}
			return nil
		})
	return &Store{Collection: c}
}

// prepare fills derived fields and validates t.
func prepare(t *Tour) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Slug = slug.Make(t.Name)
	if t.RatingsAverage == 0 {
		t.RatingsAverage = DefaultRating
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	if t.StartDates == nil {
		t.StartDates = []time.Time{}
	}
	return validate.Struct(t)
}

// Seed loads tours from a JSON array, stamping createdAt with now when the
// seed leaves it out.
func (s *Store) Seed(data []byte, now time.Time) error {
	seed, err := store.DecodeSeed[Tour](data)
	if err != nil {
		return err
	}
	for _, t := range seed {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if err := prepare(&t); err != nil {
			return xerrors.Wrapf(err, "seed tour %q", t.Name)
		}
		if err := s.Insert(t); err != nil {
			return xerrors.Wrapf(err, "seed tour %q", t.Name)
		}
	}
	return nil
}

// Public lists the tours visible to clients; secret tours are hidden.
func (s *Store) Public() []Tour {
	all := s.All()
	out := all[:0]
	for _, t := range all {
		if !t.SecretTour {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) BySlug(sl string) (Tour, bool) {
	return s.Find(func(t Tour) bool { return t.Slug == sl && !t.SecretTour })
}

// Exists and SetRatings let the reviews collaborator keep ratings current.
func (s *Store) Exists(id string) bool {
	_, err := s.Get(id)
	return err == nil
}

func (s *Store) SetRatings(id string, quantity int, average float64) error {
	if quantity == 0 {
		average = DefaultRating
	}
	_, err := s.Update(id, func(t *Tour) error {
		t.RatingsQuantity = quantity
		t.RatingsAverage = math.Round(average*10) / 10
		return nil
	})
	return err
}

type DifficultyStats struct {
	Difficulty string  `json:"difficulty"`
	NumTours   int     `json:"numTours"`
	NumRatings int     `json:"numRatings"`
	AvgRating  float64 `json:"avgRating"`
	AvgPrice   float64 `json:"avgPrice"`
	MinPrice   float64 `json:"minPrice"`
	MaxPrice   float64 `json:"maxPrice"`
}

// Stats groups well-rated tours (average >= 4.5) by difficulty, cheapest
// group first.
func Stats(tours []Tour) []DifficultyStats {
	groups := map[string]*DifficultyStats{}
	ratingSum := map[string]float64{}
	priceSum := map[string]float64{}
	for _, t := range tours {
		if t.RatingsAverage < 4.5 {
			continue
		}
		key := strings.ToUpper(t.Difficulty)
		g, ok := groups[key]
		if !ok {
			g = &DifficultyStats{Difficulty: key, MinPrice: t.Price, MaxPrice: t.Price}
			groups[key] = g
		}
		g.NumTours++
		g.NumRatings += t.RatingsQuantity
		g.MinPrice = min(g.MinPrice, t.Price)
		g.MaxPrice = max(g.MaxPrice, t.Price)
		ratingSum[key] += t.RatingsAverage
		priceSum[key] += t.Price
	}

	out := make([]DifficultyStats, 0, len(groups))
	for key, g := range groups {
		g.AvgRating = math.Round(ratingSum[key]/float64(g.NumTours)*100) / 100
		g.AvgPrice = math.Round(priceSum[key]/float64(g.NumTours)*100) / 100
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b DifficultyStats) int {
		return cmp.Or(cmp.Compare(a.AvgPrice, b.AvgPrice), strings.Compare(a.Difficulty, b.Difficulty))
	})
	return out
}

type MonthPlan struct {
	Month         int      `json:"month"`
	NumTourStarts int      `json:"numTourStarts"`
	Tours         []string `json:"tours"`
}

// MonthlyPlan counts tour starts per month of year, busiest month first,
// at most twelve entries.
func MonthlyPlan(tours []Tour, year int) []MonthPlan {
	byMonth := map[int]*MonthPlan{}
	for _, t := range tours {
		for _, d := range t.StartDates {
			d = d.UTC()
			if d.Year() != year {
				continue
			}
			m := int(d.Month())
			p, ok := byMonth[m]
			if !ok {
				p = &MonthPlan{Month: m}
				byMonth[m] = p
			}
			p.NumTourStarts++
			p.Tours = append(p.Tours, t.Name)
		}
	}
	out := make([]MonthPlan, 0, len(byMonth))
	for _, p := range byMonth {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b MonthPlan) int {
		return cmp.Or(cmp.Compare(b.NumTourStarts, a.NumTourStarts), cmp.Compare(a.Month, b.Month))
	})
	if len(out) > 12 {
		out = out[:12]
	}
	return out
}
