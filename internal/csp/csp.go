// Package csp loads, validates, and renders the Content-Security-Policy
// header sent on every response.
package csp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/natours-dev/natours/internal/webassets"
	"github.com/natours-dev/natours/internal/xerrors"
)

// baseline directives, in render order. A directive named in the policy
// file replaces the baseline sources for that directive.
var baseline = []struct {
	name    string
	sources []string
}{
	{"default-src", []string{"'self'"}},
	{"base-uri", []string{"'self'"}},
	{"font-src", []string{"'self'", "https:", "data:"}},
	{"form-action", []string{"'self'"}},
	{"frame-ancestors", []string{"'self'"}},
	{"img-src", []string{"'self'", "data:"}},
	{"object-src", []string{"'none'"}},
	{"script-src", []string{"'self'"}},
	{"script-src-attr", []string{"'none'"}},
	{"style-src", []string{"'self'", "https:", "'unsafe-inline'"}},
	{"upgrade-insecure-requests", nil},
}

var known = map[string]bool{
	"default-src": true, "script-src": true, "script-src-elem": true, "script-src-attr": true,
	"style-src": true, "style-src-elem": true, "style-src-attr": true, "img-src": true,
	"font-src": true, "connect-src": true, "media-src": true, "object-src": true,
	"frame-src": true, "child-src": true, "worker-src": true, "manifest-src": true,
	"base-uri": true, "form-action": true, "frame-ancestors": true,
	"upgrade-insecure-requests": true, "block-all-mixed-content": true,
	"report-uri": true, "report-to": true, "sandbox": true,
}

// directives whose value is not a source list
var freeform = map[string]bool{"report-uri": true, "report-to": true, "sandbox": true}

var flagOnly = map[string]bool{"upgrade-insecure-requests": true, "block-all-mixed-content": true}

var keywords = map[string]bool{
	"'self'": true, "'none'": true, "'unsafe-inline'": true, "'unsafe-eval'": true,
	"'strict-dynamic'": true, "'unsafe-hashes'": true, "'wasm-unsafe-eval'": true,
	"'report-sample'": true,
}

var (
	schemeSource = regexp.MustCompile(`^[a-z][a-z0-9+.-]*:$`)
	hashOrNonce  = regexp.MustCompile(`^'(nonce|sha256|sha384|sha512)-[A-Za-z0-9+/_=-]+'$`)
)

// File is the on-disk policy format.
type File struct {
	Directives map[string][]string `yaml:"directives"`
	// Disable removes baseline directives entirely.
	Disable []string `yaml:"disable"`
}

// Policy is a directive name to source list mapping.
type Policy struct {
	directives map[string][]string
	order      []string
}

// Parse builds a Policy from YAML, merged over the baseline.
func Parse(data []byte) (*Policy, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, xerrors.Wrap(err, "parse csp policy")
	}
	return FromFile(f), nil
}

// Load reads a policy file from disk.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read csp policy %s", path)
	}
	return Parse(data)
}

// FromFile merges f over the baseline.
func FromFile(f File) *Policy {
	p := &Policy{directives: make(map[string][]string)}
	for _, d := range baseline {
		if slices.Contains(f.Disable, d.name) {
			continue
		}
		p.directives[d.name] = slices.Clone(d.sources)
		p.order = append(p.order, d.name)
	}

	var extra []string
	for name, sources := range f.Directives {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := p.directives[name]; !ok {
			extra = append(extra, name)
		}
		p.directives[name] = slices.Clone(sources)
	}
	sort.Strings(extra)
	p.order = append(p.order, extra...)
	return p
}

// Sources returns the sources for a directive.
func (p *Policy) Sources(directive string) []string {
	return slices.Clone(p.directives[directive])
}

// Validate reports every malformed directive and source.
func (p *Policy) Validate() error {
	var errs []error
	for _, name := range p.order {
		if !known[name] {
			errs = append(errs, fmt.Errorf("unknown directive %q", name))
			continue
		}
		sources := p.directives[name]
		if flagOnly[name] {
			if len(sources) > 0 {
				errs = append(errs, fmt.Errorf("%s takes no sources", name))
			}
			continue
		}
		if len(sources) == 0 {
			errs = append(errs, fmt.Errorf("%s has no sources", name))
		}
		for _, src := range sources {
			if err := checkSource(name, src); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func checkSource(directive, src string) error {
	if src == "" || strings.ContainsAny(src, " \t\r\n;,") {
		return fmt.Errorf("%s: invalid source %q", directive, src)
	}
	if freeform[directive] {
		return nil
	}
	switch {
	case keywords[src], hashOrNonce.MatchString(src), src == "*", schemeSource.MatchString(src):
		return nil
	case strings.HasPrefix(src, "'"):
		return fmt.Errorf("%s: unknown keyword %s", directive, src)
	case keywords["'"+src+"'"]:
		return fmt.Errorf("%s: keyword %s must be single-quoted", directive, src)
	}

	raw := src
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid source %q: %w", directive, src, err)
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" || strings.ContainsAny(src, "?#") {
		return fmt.Errorf("%s: source %q must not contain a query or fragment", directive, src)
	}
	if u.Host == "" || u.User != nil {
		return fmt.Errorf("%s: source %q has no host", directive, src)
	}
	return nil
}

// Warnings lists entries that are valid but weaken the policy.
func (p *Policy) Warnings() []string {
	var out []string
	scripts := p.directives["script-src"]
	if _, ok := p.directives["script-src"]; !ok {
		scripts = p.directives["default-src"]
	}
	for _, kw := range []string{"'unsafe-inline'", "'unsafe-eval'"} {
		if slices.Contains(scripts, kw) {
			out = append(out, "script-src allows "+kw)
		}
	}
	for _, name := range p.order {
		for _, src := range p.directives[name] {
			switch {
			case src == "*":
				out = append(out, name+" allows any origin")
			case src == "http:" || strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "ws://"):
				out = append(out, fmt.Sprintf("%s allows insecure origin %s", name, src))
			}
		}
	}
	return out
}

// Header renders the policy as a header value.
func (p *Policy) Header() string {
	parts := make([]string, 0, len(p.order))
	for _, name := range p.order {
		if srcs := p.directives[name]; len(srcs) > 0 {
			parts = append(parts, name+" "+strings.Join(srcs, " "))
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "; ")
}

// Default is the policy shipped with the binary.
func Default() (*Policy, error) {
	return Parse(webassets.DefaultCSP())
}

// LoadOrDefault loads path, or the shipped policy when path is empty.
func LoadOrDefault(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}
