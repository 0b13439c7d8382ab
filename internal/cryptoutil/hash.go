package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/natours-dev/natours/internal/xerrors"
)

// HashEqual compares two hex digests in constant time.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ParseDigest accepts "sha256:<hex>" or a bare sha256 hex string and returns
// the lowercase hex digest.
func ParseDigest(s string) (string, error) {
	s = strings.TrimSpace(s)
	if algo, hexDigest, ok := strings.Cut(s, ":"); ok {
		if !strings.EqualFold(algo, "sha256") {
			return "", xerrors.Newf("unsupported digest algorithm %q", algo)
		}
		s = hexDigest
	}
	s = strings.ToLower(s)
	if len(s) != sha256.Size*2 {
		return "", xerrors.Newf("sha256 digest must be %d hex characters, got %d", sha256.Size*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", xerrors.Wrap(err, "decode sha256 digest")
	}
	return s, nil
}
