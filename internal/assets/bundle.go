package assets

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"
)

// Limits bounds bundle download and extraction.
type Limits struct {
	MaxBundle int64
	MaxFile   int64
	MaxTotal  int64
}

var DefaultLimits = Limits{
	MaxBundle: 50 << 20,
	MaxFile:   10 << 20,
	MaxTotal:  100 << 20,
}

// readWithHash reads r up to max bytes, hashing as it goes.
func readWithHash(r io.Reader, max int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, max+1), h))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > max {
		return nil, "", fmt.Errorf("bundle exceeds %d bytes", max)
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// extractTarGz unpacks a gzip tarball into memory.
func extractTarGz(data []byte, lim Limits) (fs.FS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gr.Close()

	mfs := make(fstest.MapFS)
	tr := tar.NewReader(gr)
	var total int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return mfs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		name, err := cleanEntryName(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
		default:
			return nil, fmt.Errorf("unsupported entry type %d for %s", hdr.Typeflag, name)
		}

		if hdr.Size > lim.MaxFile {
			return nil, fmt.Errorf("%s exceeds per-file limit (%d > %d)", name, hdr.Size, lim.MaxFile)
		}
		body, err := io.ReadAll(io.LimitReader(tr, lim.MaxFile+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if int64(len(body)) > lim.MaxFile {
			return nil, fmt.Errorf("%s exceeds per-file limit", name)
		}
		total += int64(len(body))
		if total > lim.MaxTotal {
			return nil, fmt.Errorf("bundle expands beyond %d bytes", lim.MaxTotal)
		}
		mfs[name] = &fstest.MapFile{Data: body, Mode: hdr.FileInfo().Mode().Perm()}
	}
}

// cleanEntryName returns "" for the archive root.
func cleanEntryName(raw string) (string, error) {
	if strings.Contains(raw, "\\") {
		return "", fmt.Errorf("backslash in entry %q", raw)
	}
	if path.IsAbs(raw) {
		return "", fmt.Errorf("absolute path in bundle: %s", raw)
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path traversal in bundle: %s", raw)
		}
	}
	name := path.Clean(raw)
	if name == "." {
		return "", nil
	}
	return name, nil
}
