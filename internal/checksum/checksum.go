// Package checksum fingerprints dataset report files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/starford/bc2as/internal/storage"
)

// Files returns the hex-encoded SHA-256 digest over the named files of store,
// in order. A missing file contributes only its name, so a report appearing
// later changes the digest.
func Files(store storage.Provider, paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(h, "%s\x00", p)
		ok, err := store.Exists(p)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		f, err := store.Open(p)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("checksum: read %s: %w", p, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
