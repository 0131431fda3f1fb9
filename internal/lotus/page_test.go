package lotus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/lotuswxr/internal/models"
)

func testPage(path, title string, authors ...string) *Page {
	p := newPage(path)
	p.Title = title
	p.Authors = authors
	p.Categories = []string{"Lab"}
	p.CreatedAt = time.Date(2008, 1, 5, 0, 0, 0, 0, time.UTC)
	return p
}

func TestPageIdentityKey(t *testing.T) {
	a := testPage("/a.html", "Run", "Alice", "Bob")
	a.PageNumber = "1"
	b := testPage("/b.html", "Run", "Bob", "Alice", "Bob")
	b.PageNumber = "2"
	if !a.Equal(b) {
		t.Error("pages differing only in path, page number and author order should be equal")
	}
	c := testPage("/c.html", "Run", "Alice")
	if a.Equal(c) {
		t.Error("pages with different authors should differ")
	}
	d := testPage("/d.html", "Run", "Alice", "Bob")
	d.CreatedAt = d.CreatedAt.Add(time.Second)
	if a.Equal(d) {
		t.Error("pages with different creation times should differ")
	}
}

func TestPageRecordRequiresResolution(t *testing.T) {
	p := testPage("/x/a.html", "A", "Alice")
	p.CrossReferences["h1"] = "/x/b.html"

	if _, err := p.Record(); !errors.Is(err, ErrUnresolvedReference) {
		t.Fatalf("Record() error = %v, want unresolved reference", err)
	}

	target := testPage("/x/b.html", "B", "Bob")
	err := p.ResolveCrossReferences(func(path string) (*Page, bool) {
		if path == target.Path {
			return target, true
		}
		return nil, false
	})
	if err != nil {
		t.Fatalf("ResolveCrossReferences() error = %v", err)
	}
	rec, err := p.Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(rec.URLs.Items) != 1 || rec.URLs.Items[0].Path != target.Key()+models.PageExt || rec.URLs.Items[0].Hash != "h1" {
		t.Errorf("unexpected urls %+v", rec.URLs.Items)
	}
	if rec.Created != p.CreatedAt.Unix() {
		t.Errorf("Created = %d", rec.Created)
	}
}

func TestResolveCrossReferencesMissing(t *testing.T) {
	p := testPage("/x/a.html", "A", "Alice")
	p.CrossReferences["h1"] = "/x/missing.html"
	err := p.ResolveCrossReferences(func(string) (*Page, bool) { return nil, false })
	var ure *UnresolvedReferenceError
	if !errors.As(err, &ure) {
		t.Fatalf("error = %v, want *UnresolvedReferenceError", err)
	}
	if ure.Target != "/x/missing.html" {
		t.Errorf("Target = %q", ure.Target)
	}
}

func TestReferencesMergeParentWins(t *testing.T) {
	parentMedia := &Media{ContentHash: "m", Name: "parent.png"}
	childMedia := &Media{ContentHash: "m", Name: "child.png"}
	parent := newReferences()
	parent.Images["m"] = parentMedia
	parent.CrossReferences["x"] = "/parent"
	child := newReferences()
	child.Images["m"] = childMedia
	child.CrossReferences["x"] = "/child"
	child.CrossReferences["y"] = "/only-child"
	child.Unmatched = []string{"u"}

	got := parent.Merge(child)
	if got.Images["m"] != parentMedia {
		t.Error("parent image should win")
	}
	if got.CrossReferences["x"] != "/parent" || got.CrossReferences["y"] != "/only-child" {
		t.Errorf("cross references = %v", got.CrossReferences)
	}
	if len(got.Unmatched) != 1 {
		t.Errorf("unmatched = %v", got.Unmatched)
	}
	if len(parent.CrossReferences) != 1 {
		t.Error("merge must not mutate the receiver")
	}
}

func TestMediaClassification(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewMedia(dir); !errors.Is(err, ErrNotMedia) {
		t.Errorf("directory: error = %v, want ErrNotMedia", err)
	}
	if _, err := NewMedia(filepath.Join(dir, "nope.png")); !errors.Is(err, ErrNotMedia) {
		t.Errorf("missing: error = %v, want ErrNotMedia", err)
	}
}

func TestMediaArchiveKeepsModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Plot File.PNG")
	if err := os.WriteFile(src, []byte("\x89PNG\r\n\x1a\nbytes"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2009, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	m, err := NewMedia(src)
	if err != nil {
		t.Fatalf("NewMedia() error = %v", err)
	}
	if m.Name != "Plot-File.PNG" || m.Ext() != ".png" {
		t.Errorf("Name = %q, Ext = %q", m.Name, m.Ext())
	}
	root := filepath.Join(dir, "archive")
	if err := m.Archive(root); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := m.Archive(root); err != nil {
		t.Fatalf("second Archive() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(root, models.PagesDir, models.MediaDir, m.ContentHash+".png"))
	if err != nil {
		t.Fatalf("archived copy missing: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
}
