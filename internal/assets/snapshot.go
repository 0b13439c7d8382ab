package assets

import (
	"io/fs"
	"time"
)

type Source string

const (
	SourceUnknown  Source = "unknown"
	SourceEmbedded Source = "embedded"
	SourceDisk     Source = "disk"
	SourceS3       Source = "s3"
)

// VersionFile, when present at the bundle root, names the asset release.
const VersionFile = "VERSION"

type Meta struct {
	Version    string    `json:"version,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	Source     Source    `json:"source"`
	Signed     bool      `json:"signed"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
}

// Snapshot is an immutable view of the public files.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	LoadedAt time.Time
}
