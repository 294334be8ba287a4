package table

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the CSV serialization of t. Two tables share a
// fingerprint iff Write would emit the same bytes for both.
func Fingerprint(t *Table) (uint64, error) {
	h := xxh3.New()
	if err := Write(h, t); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// FingerprintFile hashes a file's raw bytes.
func FingerprintFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// FormatFingerprint renders a fingerprint the way manifests store it.
func FormatFingerprint(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
