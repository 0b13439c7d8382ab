// Package webassets holds everything compiled into the binary: the default
// public directory, page templates, the shipped CSP policy, and seed data.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed public templates csp data
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// PublicFS is the built-in public directory, served when no other asset
// source is configured.
func PublicFS() fs.FS { return sub("public") }

// TemplatesFS holds the page templates.
func TemplatesFS() fs.FS { return sub("templates") }

// DefaultCSP returns the shipped policy file.
func DefaultCSP() []byte {
	b, err := embedded.ReadFile("csp/default.yaml")
	if err != nil {
		panic(fmt.Errorf("webassets: default csp: %w", err))
	}
	return b
}

// SeedData returns one of the embedded JSON collections (tours, users,
// reviews).
func SeedData(name string) ([]byte, error) {
	return embedded.ReadFile("data/" + name + ".json")
}
