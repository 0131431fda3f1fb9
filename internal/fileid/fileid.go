// Package fileid provides the deterministic hashes used as identities in the archive:
// a hash of a source path and a hash of a file's full byte content.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// chunkSize is the read size used when hashing file content.
const chunkSize = 64 * 1024

// PathHash returns a stable hash for the given absolute path.
// Same path always yields the same hash; the path is cleaned first so
// "/a/./b" and "/a/b" match.
func PathHash(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

// ContentHash returns the hex SHA-256 of everything read from r.
// The reader is consumed in fixed-size chunks so large files are never held in memory.
func ContentHash(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileHash returns the content hash of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ContentHash(f)
}
