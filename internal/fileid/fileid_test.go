package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathHash(t *testing.T) {
	// Deterministic: same path gives same hash
	h1 := PathHash("/foo/bar.html")
	h2 := PathHash("/foo/bar.html")
	if h1 != h2 {
		t.Errorf("same path should give same hash: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash should be 64 hex chars: got %q", h1)
	}
}

func TestPathHash_differentPaths(t *testing.T) {
	h1 := PathHash("/foo/bar.html")
	h2 := PathHash("/foo/baz.html")
	if h1 == h2 {
		t.Errorf("different paths should give different hashes: %q", h1)
	}
}

func TestPathHash_normalized(t *testing.T) {
	h1 := PathHash("/foo/bar")
	h2 := PathHash("/foo/bar/")
	h3 := PathHash("/foo/./bar")
	h4 := PathHash("/foo/baz/../bar")
	if h1 != h2 || h1 != h3 || h1 != h4 {
		t.Errorf("equivalent paths should match: %q %q %q %q", h1, h2, h3, h4)
	}
}

func TestContentHash(t *testing.T) {
	h1, err := ContentHash(strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if h1 != want {
		t.Errorf("ContentHash = %s, want %s", h1, want)
	}
}

func TestFileHash_identicalBytesMatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "sub", "b.gif")
	if err := os.MkdirAll(filepath.Dir(b), 0755); err != nil {
		t.Fatal(err)
	}
	// larger than one chunk so the streaming path is exercised
	payload := []byte(strings.Repeat("lotus", chunkSize))
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, payload, 0600); err != nil {
			t.Fatal(err)
		}
	}
	ha, err := FileHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := FileHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("identical bytes should hash equal: %s vs %s", ha, hb)
	}
	if ha == PathHash(a) {
		t.Error("content hash must not depend on the path")
	}
}

func TestFileHash_missing(t *testing.T) {
	if _, err := FileHash(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}
