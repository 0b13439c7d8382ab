package assets

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set replaces the active snapshot.
func (m *Manager) Set(s Snapshot) {
	cp := s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(&cp)
}

func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

// ReadyErr fails until a snapshot is set.
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return errors.New("no active snapshot")
	}
	return nil
}

// AssetsVersion and AssetsHash feed the X-Assets-* response headers.
func (m *Manager) AssetsVersion() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.Version
	}
	return ""
}

func (m *Manager) AssetsHash() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.SHA256
	}
	return ""
}

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

// FromFS builds a snapshot over fsys, reading the optional VERSION file.
func FromFS(fsys fs.FS, src Source) Snapshot {
	snap := Snapshot{FS: fsys, Meta: Meta{Source: src}}
	if b, err := fs.ReadFile(fsys, VersionFile); err == nil {
		snap.Meta.Version = strings.TrimSpace(string(b))
	}
	return snap
}

// FromDir snapshots a local directory.
func FromDir(dir string) (Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Snapshot{}, err
	}
	if !info.IsDir() {
		return Snapshot{}, &fs.PathError{Op: "open", Path: dir, Err: errors.New("not a directory")}
	}
	return FromFS(os.DirFS(dir), SourceDisk), nil
}
