// Package archiver walks a scraped Lotus tree, deduplicates pages and media, and writes the
// intermediate XML archive.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/lotuswxr/internal/lotus"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/pkg/metrics"
	"go.uber.org/zap"
)

const pipeline = "archive"

// Archiver builds an archive from a source tree. Find must complete before Archive.
type Archiver struct {
	root         string
	contentsPage string
	noticePrefix string
	parser       *lotus.Parser
	logger       *zap.Logger
	metrics      *metrics.Metrics

	pages      []*lotus.Page
	orphans    int
	duplicates int
	skipped    int
	byIdentity map[string]*lotus.Page
	byPath     map[string]*lotus.Page
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets a logger for discovery and archive progress.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records run outcomes and object counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Archiver) { a.metrics = m }
}

// WithContentsPage makes Find read page order and responses from a Lotus contents view.
func WithContentsPage(path string) Option {
	return func(a *Archiver) { a.contentsPage = path }
}

// WithNoticePrefix prepends to every page a notice linking to prefix + the page's path
// relative to the source root.
func WithNoticePrefix(prefix string) Option {
	return func(a *Archiver) { a.noticePrefix = prefix }
}

// New returns an archiver for the source tree at root.
func New(root string, parser *lotus.Parser, opts ...Option) *Archiver {
	a := &Archiver{
		root:   root,
		parser: parser,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.reset()
	return a
}

func (a *Archiver) reset() {
	a.pages = nil
	a.orphans = 0
	a.duplicates = 0
	a.skipped = 0
	a.byIdentity = make(map[string]*lotus.Page)
	a.byPath = make(map[string]*lotus.Page)
	a.parser.Reset()
}

// Pages returns the canonical pages in archive order.
func (a *Archiver) Pages() []*lotus.Page {
	return a.pages
}

// Lookup returns the canonical page for a source path, including duplicate and response paths.
func (a *Archiver) Lookup(path string) (*lotus.Page, bool) {
	p, ok := a.byPath[filepath.Clean(path)]
	return p, ok
}

// Run finds all pages and archives them into dir.
func (a *Archiver) Run(ctx context.Context, dir string) (*Summary, error) {
	started := time.Now()
	summary, err := a.run(ctx, dir)
	a.metrics.ObserveRun(pipeline, started, err)
	if err == nil {
		a.metrics.SetObjects(pipeline, summary.Counts())
	}
	return summary, err
}

func (a *Archiver) run(ctx context.Context, dir string) (*Summary, error) {
	if err := a.Find(ctx); err != nil {
		return nil, err
	}
	return a.Archive(ctx, dir)
}

// Find parses the source tree. Without a contents page every file is tried in lexical order;
// files that are not pages are skipped. A page equal to one already found is recorded as a
// duplicate: its path maps to the first page but it is not archived again.
func (a *Archiver) Find(ctx context.Context) error {
	a.reset()
	root, err := filepath.Abs(a.root)
	if err != nil {
		return fmt.Errorf("source root: %w", err)
	}
	a.root = root
	if a.contentsPage != "" {
		return a.findFromContents(ctx)
	}
	return a.walk(ctx, func(path string) bool { return true }, false)
}

func (a *Archiver) findFromContents(ctx context.Context) error {
	contents, err := filepath.Abs(a.contentsPage)
	if err != nil {
		return fmt.Errorf("contents page: %w", err)
	}
	entries, err := a.parser.ParseContents(contents)
	if err != nil {
		return fmt.Errorf("read contents page: %w", err)
	}
	seen := map[string]bool{contents: true}
	for _, e := range entries {
		seen[e.Path] = true
		for _, r := range e.Responses {
			seen[r] = true
		}
	}

	// listed newest first
	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := entries[i]
		a.logger.Info("reading page",
			zap.Int("n", len(entries)-i), zap.Int("total", len(entries)),
			zap.String("title", e.Title), zap.Int("responses", len(e.Responses)))
		page, err := a.parser.ParsePage(e.Path, e.Responses)
		if errors.Is(err, lotus.ErrNotPage) {
			a.logger.Warn("listed document is not a page", zap.Error(err))
			a.skipped++
			continue
		}
		if err != nil {
			return err
		}
		canonical, _ := a.add(page)
		for _, r := range page.Responses {
			if _, taken := a.byPath[r.Path]; taken {
				return fmt.Errorf("response %s has the same path as a page", r.Path)
			}
			a.byPath[r.Path] = canonical
		}
	}

	before := len(a.pages)
	isExtra := func(path string) bool {
		return !seen[path] && strings.HasSuffix(path, "OpenDocument.html")
	}
	if err := a.walk(ctx, isExtra, true); err != nil {
		return err
	}
	a.orphans = len(a.pages) - before
	return nil
}

// walk parses every regular file under root accepted by include.
func (a *Archiver) walk(ctx context.Context, include func(path string) bool, extra bool) error {
	return filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || !include(path) {
			return nil
		}
		page, err := a.parser.ParsePage(path, nil)
		if errors.Is(err, lotus.ErrNotPage) {
			a.logger.Debug("not a page", zap.Error(err))
			a.skipped++
			return nil
		}
		if err != nil {
			return err
		}
		if _, added := a.add(page); added && extra {
			a.logger.Info("adding page not found on contents page", zap.Stringer("page", page))
		}
		return nil
	})
}

// add registers page, or maps it to an equal page found earlier. It returns the canonical
// page and whether page itself became canonical.
func (a *Archiver) add(page *lotus.Page) (*lotus.Page, bool) {
	key := page.IdentityKey()
	if original, ok := a.byIdentity[key]; ok {
		a.logger.Warn("duplicate page", zap.String("path", page.Path), zap.String("original", original.Path))
		a.duplicates++
		a.byPath[page.Path] = original
		return original, false
	}
	a.logger.Info("parsed page", zap.Stringer("page", page))
	a.byIdentity[key] = page
	a.byPath[page.Path] = page
	a.addNotice(page)
	a.pages = append(a.pages, page)
	return page, true
}

func (a *Archiver) addNotice(page *lotus.Page) {
	if a.noticePrefix == "" {
		return
	}
	rel, err := filepath.Rel(a.root, page.Path)
	if err != nil {
		rel = filepath.Base(page.Path)
	}
	link := html.EscapeString(a.noticePrefix + filepath.ToSlash(rel))
	page.Content = "<pre>\nThis post was imported from Lotus Notes.\n" +
		`To view the original, click <a href="` + link + `">here</a>.` + "\n</pre>\n" + page.Content
}

// Archive writes the found pages into dir, replacing anything already there. Cross-references
// must all resolve to found pages. Media with equal content are stored once, owned by the
// first page that references them.
func (a *Archiver) Archive(ctx context.Context, dir string) (*Summary, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear archive: %w", err)
	}
	if err := os.MkdirAll(models.MediaPath(dir), 0755); err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	if err := os.MkdirAll(models.MetaPath(dir), 0755); err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	s := &Summary{
		Orphans:    a.orphans,
		Duplicates: a.duplicates,
		Skipped:    a.skipped,
	}
	owners := make(map[string]*lotus.Media)
	var media []*lotus.Media
	dedup := func(page *lotus.Page, refs map[string]*lotus.Media, kind string) {
		for _, hash := range sortedKeys(refs) {
			if owner, ok := owners[hash]; ok {
				if owner != refs[hash] {
					a.logger.Debug("duplicate media", zap.String("kind", kind),
						zap.String("path", refs[hash].Path), zap.String("original", owner.Path), zap.String("page", page.Path))
				}
				refs[hash] = owner
				continue
			}
			owners[hash] = refs[hash]
			media = append(media, refs[hash])
		}
	}

	authors := newOrderedSet()
	categories := newOrderedSet()
	for _, page := range a.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.logger.Debug("archiving page", zap.Stringer("page", page))
		if err := page.ResolveCrossReferences(a.Lookup); err != nil {
			return nil, err
		}
		dedup(page, page.Attachments, "attachment")
		dedup(page, page.Images, "image")
		if err := page.Archive(dir); err != nil {
			return nil, err
		}

		s.Pages++
		s.URLs += len(page.CrossReferences)
		s.Attachments += len(page.Attachments)
		s.Images += len(page.Images)
		s.Unmatched += len(page.Unmatched)
		authors.add(page.Authors...)
		categories.add(page.Categories...)
		for _, r := range page.Responses {
			authors.add(r.Authors...)
			categories.add(r.Categories...)
		}
	}

	for _, m := range media {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.Archive(dir); err != nil {
			return nil, err
		}
	}
	s.Media = len(media)

	if err := models.WriteAuthors(dir, authors.items); err != nil {
		return nil, fmt.Errorf("write authors: %w", err)
	}
	if err := models.WriteCategories(dir, categories.items); err != nil {
		return nil, fmt.Errorf("write categories: %w", err)
	}
	s.Authors = len(authors.items)
	s.Categories = len(categories.items)

	a.logger.Info("archived",
		zap.Int("pages", s.Pages), zap.Int("orphans", s.Orphans), zap.Int("duplicates", s.Duplicates),
		zap.Int("media", s.Media), zap.Int("images", s.Images), zap.Int("attachments", s.Attachments),
		zap.Int("urls", s.URLs), zap.Int("authors", s.Authors), zap.Int("categories", s.Categories))
	return s, nil
}
