package assets

import (
	"archive/tar"
	"io/fs"
	"strings"
	"testing"
)

func TestExtractTarGz(t *testing.T) {
	fsys, err := extractTarGz(validBundle(t, "2.1.0"), DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fs.ReadFile(fsys, "css/style.css")
	if err != nil || string(b) != "body{margin:0}" {
		t.Fatalf("css = %q, %v", b, err)
	}
}

func TestExtractTarGz_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		lim     Limits
		wantErr string
	}{
		{"traversal", func(t *testing.T) []byte {
			return makeTarGz(t, map[string]string{"../etc/passwd": "x"})
		}, DefaultLimits, "path traversal"},
		{"nested traversal", func(t *testing.T) []byte {
			return makeTarGz(t, map[string]string{"css/../../x": "x"})
		}, DefaultLimits, "path traversal"},
		{"absolute", func(t *testing.T) []byte {
			return makeTarGz(t, map[string]string{"/etc/passwd": "x"})
		}, DefaultLimits, "absolute path"},
		{"symlink", func(t *testing.T) []byte {
			return makeTarGzEntry(t, &tar.Header{Name: "link", Linkname: "/etc/passwd", Typeflag: tar.TypeSymlink}, "")
		}, DefaultLimits, "unsupported entry type"},
		{"file too large", func(t *testing.T) []byte {
			return makeTarGz(t, map[string]string{"big.js": strings.Repeat("a", 64)})
		}, Limits{MaxBundle: 1 << 20, MaxFile: 32, MaxTotal: 1 << 20}, "per-file limit"},
		{"total too large", func(t *testing.T) []byte {
			return makeTarGz(t, map[string]string{"a.js": strings.Repeat("a", 40), "b.js": strings.Repeat("b", 40)})
		}, Limits{MaxBundle: 1 << 20, MaxFile: 64, MaxTotal: 64}, "expands beyond"},
		{"not gzip", func(*testing.T) []byte { return []byte("plain text") }, DefaultLimits, "open gzip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractTarGz(tt.data(t), tt.lim)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestExtractTarGz_SkipsDirsAndRoot(t *testing.T) {
	data := makeTarGzEntry(t, &tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0o755}, "")
	fsys, err := extractTarGz(data, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	entries, _ := fs.ReadDir(fsys, ".")
	if len(entries) != 0 {
		t.Fatalf("entries = %v", entries)
	}
}

func TestReadWithHash(t *testing.T) {
	data, sum, err := readWithHash(strings.NewReader("natours"), 16)
	if err != nil || string(data) != "natours" || len(sum) != 64 {
		t.Fatalf("got %q %q %v", data, sum, err)
	}
	if _, _, err := readWithHash(strings.NewReader("natours"), 3); err == nil {
		t.Fatal("expected size error")
	}
}
