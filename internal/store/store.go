// Package store keeps a collection of documents in memory, keyed by id and
// listed in insertion order. It is the backing store for the API
// collaborators; nothing is persisted.
package store

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/natours-dev/natours/internal/xerrors"
)

var (
	ErrNotFound = errors.New("store: document not found")
	ErrConflict = errors.New("store: unique constraint violated")
)

// ConflictError names the field that clashed.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string { return "duplicate " + e.Field + ": " + e.Value }
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Unique reports a clash between a candidate and an existing document.
type Unique[T any] func(candidate, existing T) *ConflictError

type Collection[T any] struct {
	name   string
	idOf   func(T) string
	unique Unique[T]

	mu    sync.RWMutex
	items map[string]T
	order []string

	onChange func(name string, n int)
}

func New[T any](name string, idOf func(T) string) *Collection[T] {
	return &Collection[T]{name: name, idOf: idOf, items: make(map[string]T)}
}

// WithUnique installs a uniqueness check run on every insert and update.
func (c *Collection[T]) WithUnique(u Unique[T]) *Collection[T] {
	c.unique = u
	return c
}

// OnChange is called with the new size after every write.
func (c *Collection[T]) OnChange(fn func(name string, n int)) { c.onChange = fn }

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// All returns a copy of the documents in insertion order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Collection[T]) Get(id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

// Find returns the first document matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		if v := c.items[id]; pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Insert(v T) error {
	id := c.idOf(v)
	c.mu.Lock()
	if _, ok := c.items[id]; ok {
		c.mu.Unlock()
		return &ConflictError{Field: "id", Value: id}
	}
	if err := c.checkUnique(v, ""); err != nil {
		c.mu.Unlock()
		return err
	}
	c.items[id] = v
	c.order = append(c.order, id)
	n := len(c.items)
	c.mu.Unlock()
	c.changed(n)
	return nil
}

// Update applies fn to a copy of the document and stores the result. fn
// runs under the write lock and must not call back into the collection.
func (c *Collection[T]) Update(id string, fn func(*T) error) (T, error) {
	var zero T
	c.mu.Lock()
	cur, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return zero, ErrNotFound
	}
	if err := fn(&cur); err != nil {
		c.mu.Unlock()
		return zero, err
	}
	if c.idOf(cur) != id {
		c.mu.Unlock()
		return zero, xerrors.Newf("store: update changed %s id %s", c.name, id)
	}
	if err := c.checkUnique(cur, id); err != nil {
		c.mu.Unlock()
		return zero, err
	}
	c.items[id] = cur
	n := len(c.items)
	c.mu.Unlock()
	c.changed(n)
	return cur, nil
}

func (c *Collection[T]) Delete(id string) (T, error) {
	c.mu.Lock()
	v, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		var zero T
		return zero, ErrNotFound
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	n := len(c.items)
	c.mu.Unlock()
	c.changed(n)
	return v, nil
}

// checkUnique must be called with the write lock held. skip is the id of
// the document being replaced.
func (c *Collection[T]) checkUnique(v T, skip string) error {
	if c.unique == nil {
		return nil
	}
	for id, existing := range c.items {
		if id == skip {
			continue
		}
		if ce := c.unique(v, existing); ce != nil {
			return ce
		}
	}
	return nil
}

func (c *Collection[T]) changed(n int) {
	if c.onChange != nil {
		c.onChange(c.name, n)
	}
}

// DecodeSeed parses a JSON array of documents.
func DecodeSeed[T any](data []byte) ([]T, error) {
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, xerrors.Wrap(err, "decode seed documents")
	}
	return out, nil
}
