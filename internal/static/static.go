// Package static serves files from the active asset snapshot ahead of the
// router. A request that does not name a regular file falls through to the
// next handler untouched, so the rest of the pipeline never sees requests
// for assets.
package static

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/natours-dev/natours/internal/assets"
	"github.com/natours-dev/natours/internal/pathutil"
)

type SnapshotProvider interface {
	Get() (*assets.Snapshot, bool)
}

type Options struct {
	Assets SnapshotProvider

	// Cache policies by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=86400"
	OtherCacheControl string // default: "public, max-age=3600"

	// OnServe runs before a file is written, e.g. to label metrics.
	OnServe func(r *http.Request)
}

type Handler struct {
	opts Options
}

func New(opts Options) *Handler {
	if opts.HTMLCacheControl == "" {
		opts.HTMLCacheControl = "no-cache"
	}
	if opts.AssetCacheControl == "" {
		opts.AssetCacheControl = "public, max-age=86400"
	}
	if opts.OtherCacheControl == "" {
		opts.OtherCacheControl = "public, max-age=3600"
	}
	return &Handler{opts: opts}
}

// Middleware serves the file named by the request path when it exists and
// otherwise calls next.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		snap, ok := h.opts.Assets.Get()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		name, ok := Resolve(snap.FS, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if h.opts.OnServe != nil {
			h.opts.OnServe(r)
		}
		if cc := h.cacheControl(name); cc != "" {
			w.Header().Set("Cache-Control", cc)
		}
		http.ServeFileFS(w, r, snap.FS, name)
	})
}

// Resolve maps a URL path to a regular file in fsys. Directories resolve to
// their index.html; the root never does, so "/" stays with the router.
func Resolve(fsys fs.FS, urlPath string) (string, bool) {
	if urlPath == "" || urlPath == "/" || !strings.HasPrefix(urlPath, "/") {
		return "", false
	}
	if pathutil.Unsafe(urlPath) || pathutil.HasHiddenSegments(urlPath) {
		return "", false
	}
	name := strings.TrimPrefix(path.Clean(urlPath), "/")
	if !fs.ValidPath(name) {
		return "", false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return "", false
	}
	if !info.IsDir() {
		return name, true
	}
	index := path.Join(name, "index.html")
	if info, err := fs.Stat(fsys, index); err == nil && !info.IsDir() {
		return index, true
	}
	return "", false
}

func (h *Handler) cacheControl(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".html", "":
		return h.opts.HTMLCacheControl
	case ".css", ".js", ".mjs", ".map",
		".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf":
		return h.opts.AssetCacheControl
	default:
		return h.opts.OtherCacheControl
	}
}
