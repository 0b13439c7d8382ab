package webassets

import (
	"encoding/json"
	"io/fs"
	"strings"
	"testing"
)

func TestPublicFS(t *testing.T) {
	for _, name := range []string{"css/style.css", "js/index.js", "img/logo-white.svg", "robots.txt"} {
		info, err := fs.Stat(PublicFS(), name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if info.IsDir() || info.Size() == 0 {
			t.Fatalf("%s: unexpected dir or empty file", name)
		}
	}
}

func TestTemplatesFS(t *testing.T) {
	for _, name := range []string{"base.html", "overview.html", "tour.html", "login.html", "error.html"} {
		b, err := fs.ReadFile(TemplatesFS(), name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(string(b), "{{define") {
			t.Fatalf("%s does not define a template", name)
		}
	}
}

func TestDefaultCSP(t *testing.T) {
	if !strings.Contains(string(DefaultCSP()), "directives:") {
		t.Fatal("default policy missing directives")
	}
}

func TestSeedData(t *testing.T) {
	for _, name := range []string{"tours", "users", "reviews"} {
		b, err := SeedData(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		var v []map[string]any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(v) == 0 {
			t.Fatalf("%s: empty", name)
		}
	}
	if _, err := SeedData("bookings"); err == nil {
		t.Fatal("expected error for unknown collection")
	}
}
