// Package views renders the server-side pages: the tour overview, tour
// details, the login form, and the error page used for non-API failures.
package views

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/httperr"
	"github.com/natours-dev/natours/internal/httpmw"
	"github.com/natours-dev/natours/internal/reviews"
	"github.com/natours-dev/natours/internal/tours"
	"github.com/natours-dev/natours/internal/xerrors"
)

var pages = []string{"overview", "tour", "login", "error"}

type TourSource interface {
	Public() []tours.Tour
	BySlug(slug string) (tours.Tour, bool)
}

type ReviewSource interface {
	ForTour(tourID string) []reviews.Review
}

type Options struct {
	// Templates holds base.html plus one file per page.
	Templates fs.FS
	Tours     TourSource
	Reviews   ReviewSource
	Reporter  *httperr.Reporter
}

type Views struct {
	tmpl    map[string]*template.Template
	tours   TourSource
	reviews ReviewSource
	rep     *httperr.Reporter
}

type pageData struct {
	Title   string
	Msg     string
	Tours   []tours.Tour
	Tour    tours.Tour
	Reviews []reviews.Review
}

// New parses every page template up front; a broken template fails
// startup rather than a request.
func New(opts Options) (*Views, error) {
	base, err := template.ParseFS(opts.Templates, "base.html")
	if err != nil {
		return nil, xerrors.Wrap(err, "parse base template")
	}
	v := &Views{
		tmpl:    make(map[string]*template.Template, len(pages)),
		tours:   opts.Tours,
		reviews: opts.Reviews,
		rep:     opts.Reporter,
	}
	for _, name := range pages {
		t, err := template.Must(base.Clone()).ParseFS(opts.Templates, name+".html")
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse %s template", name)
		}
		v.tmpl[name] = t
	}
	if v.rep == nil {
		v.rep = httperr.New(httperr.Options{Pages: v})
	}
	return v, nil
}

// Routes registers the page routes on r.
func (v *Views) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Scope("views"))
		r.Get("/", v.rep.Handle(v.overview))
		r.Get("/tour/{slug}", v.rep.Handle(v.tour))
		r.Get("/login", v.rep.Handle(v.login))
	})
}

func (v *Views) overview(w http.ResponseWriter, r *http.Request) error {
	return v.render(w, http.StatusOK, "overview", pageData{Title: "All Tours", Tours: v.tours.Public()})
}

func (v *Views) tour(w http.ResponseWriter, r *http.Request) error {
	t, ok := v.tours.BySlug(chi.URLParam(r, "slug"))
	if !ok {
		return apperr.NotFound("There is no tour with that name.")
	}
	d := pageData{Title: t.Name + " Tour", Tour: t}
	if v.reviews != nil {
		d.Reviews = v.reviews.ForTour(t.ID)
	}
	return v.render(w, http.StatusOK, "tour", d)
}

func (v *Views) login(w http.ResponseWriter, _ *http.Request) error {
	return v.render(w, http.StatusOK, "login", pageData{Title: "Log into your account"})
}

// RenderError implements httperr.PageRenderer.
func (v *Views) RenderError(w http.ResponseWriter, _ *http.Request, status int, title, msg string) error {
	return v.render(w, status, "error", pageData{Title: title, Msg: msg})
}

// render executes into a buffer so a template failure can still become a
// clean error response.
func (v *Views) render(w http.ResponseWriter, status int, name string, d pageData) error {
	t, ok := v.tmpl[name]
	if !ok {
		return xerrors.Newf("views: unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", d); err != nil {
		return xerrors.Wrapf(err, "render %s", name)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	// the status line is out; a failed body write cannot be reported
	_, _ = buf.WriteTo(w)
	return nil
}
