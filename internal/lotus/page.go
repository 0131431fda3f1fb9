// Package lotus parses scraped Lotus Notes logbook documents into pages and media.
package lotus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/lotuswxr/internal/fileid"
	"github.com/hyperjump/lotuswxr/internal/models"
)

// Object is the capability shared by Page and Media: both are read from one source file
// and archived to one file under an archive root.
type Object interface {
	SourcePath() string
	ArchiveDir(root string) string
	ArchivePath(root string) string
	Archive(root string) error
}

var (
	_ Object = (*Page)(nil)
	_ Object = (*Media)(nil)
)

// Page is one parsed logbook entry.
type Page struct {
	Path       string
	Title      string
	PageNumber string
	Authors    []string
	Categories []string
	CreatedAt  time.Time
	// Content is the HTML fragment with references replaced by hashes.
	Content string

	// CrossReferences maps a hash in Content to the absolute path of the target document.
	CrossReferences map[string]string
	Attachments     map[string]*Media
	Images          map[string]*Media
	// Unmatched lists links to documents on the source server that were never scraped.
	Unmatched []string

	Responses []*Page

	targets map[string]*Page
}

func newPage(path string) *Page {
	return &Page{
		Path:            path,
		CrossReferences: make(map[string]string),
		Attachments:     make(map[string]*Media),
		Images:          make(map[string]*Media),
	}
}

func (p *Page) String() string {
	return fmt.Sprintf("%q (p%s, %s)", p.Title, p.PageNumber, p.CreatedAt.Format("2006-01-02"))
}

// IdentityKey is equal for two pages iff they have the same title, the same set of authors,
// the same set of categories and the same creation time.
func (p *Page) IdentityKey() string {
	h := sha256.New()
	h.Write([]byte(p.Title))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(distinctSorted(p.Authors), "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(distinctSorted(p.Categories), "\x1f")))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", p.CreatedAt.Unix())
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports business identity, not path identity.
func (p *Page) Equal(other *Page) bool {
	return other != nil && p.IdentityKey() == other.IdentityKey()
}

func distinctSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// References returns the references discovered in this page and its responses.
func (p *Page) References() References {
	return References{
		CrossReferences: p.CrossReferences,
		Attachments:     p.Attachments,
		Images:          p.Images,
		Unmatched:       p.Unmatched,
	}
}

// ResolveCrossReferences binds every cross-reference path to a canonical page.
// It fails with an *UnresolvedReferenceError for the first path lookup cannot resolve.
func (p *Page) ResolveCrossReferences(lookup func(path string) (*Page, bool)) error {
	targets := make(map[string]*Page, len(p.CrossReferences))
	for _, hash := range sortedKeys(p.CrossReferences) {
		path := p.CrossReferences[hash]
		target, ok := lookup(path)
		if !ok {
			return &UnresolvedReferenceError{Page: p.Path, Key: hash, Target: path}
		}
		targets[hash] = target
	}
	p.targets = targets
	return nil
}

// Target returns the resolved page for a cross-reference hash.
func (p *Page) Target(hash string) (*Page, bool) {
	t, ok := p.targets[hash]
	return t, ok
}

// Key is the archive key of the page: the hash of its source path.
func (p *Page) Key() string {
	return fileid.PathHash(p.Path)
}

func (p *Page) SourcePath() string { return p.Path }

func (p *Page) ArchiveDir(root string) string {
	return models.PagesPath(root)
}

func (p *Page) ArchivePath(root string) string {
	return models.PageFile(root, p.Key())
}

// Record converts the page into its archive record. Cross-references must be resolved.
func (p *Page) Record() (*models.PageRecord, error) {
	rec := &models.PageRecord{
		Title:      p.Title,
		Page:       p.PageNumber,
		Created:    p.CreatedAt.Unix(),
		Authors:    models.AuthorList{Items: p.Authors},
		Categories: models.CategoryList{Items: p.Categories},
		Content:    p.Content,
	}
	for _, hash := range sortedKeys(p.CrossReferences) {
		target, ok := p.targets[hash]
		if !ok {
			return nil, &UnresolvedReferenceError{Page: p.Path, Key: hash, Target: p.CrossReferences[hash]}
		}
		rec.URLs.Items = append(rec.URLs.Items, models.URLRef{Path: target.Key() + models.PageExt, Hash: hash})
	}
	for _, hash := range sortedKeys(p.Attachments) {
		rec.Attachments.Items = append(rec.Attachments.Items, mediaRef(hash, p.Attachments[hash]))
	}
	for _, hash := range sortedKeys(p.Images) {
		rec.Images.Items = append(rec.Images.Items, mediaRef(hash, p.Images[hash]))
	}
	for _, r := range p.Responses {
		rec.Responses.Items = append(rec.Responses.Items, models.ResponseRecord{
			Created: r.CreatedAt.Unix(),
			Authors: models.AuthorList{Items: r.Authors},
			Content: r.Content,
		})
	}
	return rec, nil
}

func mediaRef(hash string, m *Media) models.MediaRef {
	return models.MediaRef{
		Path:    m.ArchiveRelPath(),
		Name:    m.Name,
		Mime:    m.MimeType,
		Created: m.CreatedAt.Unix(),
		Hash:    hash,
	}
}

// Archive writes the page record to pages/<key>.xml under root.
func (p *Page) Archive(root string) error {
	rec, err := p.Record()
	if err != nil {
		return err
	}
	if err := models.WritePage(p.ArchivePath(root), rec); err != nil {
		return fmt.Errorf("archive page %s: %w", filepath.Base(p.Path), err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
