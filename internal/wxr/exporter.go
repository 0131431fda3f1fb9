// Package wxr turns an intermediate archive into a WordPress eXtended RSS import file.
package wxr

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/lotuswxr/internal/extract"
	"github.com/hyperjump/lotuswxr/internal/lotus"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/pkg/metrics"
	"go.uber.org/zap"
)

const (
	pipeline      = "export"
	excerptLength = 300
)

// Site describes the target WordPress site. URLs must end with a slash.
type Site struct {
	Title      string
	ID         int
	NetworkURL string
	SiteURL    string
	// MediaURL is where the archived media files are served from during import.
	MediaURL string
	Location *time.Location
}

func (s Site) permalink(postID int) string {
	return s.SiteURL + "?p=" + strconv.Itoa(postID)
}

func (s Site) uploadsURL() string {
	return s.SiteURL + "wp-content/uploads/sites/" + strconv.Itoa(s.ID) + "/"
}

// Exporter reads an archive and writes one WXR document.
type Exporter struct {
	archiveDir string
	site       Site
	logger     *zap.Logger
	metrics    *metrics.Metrics
	extractor  *extract.Extractor
	now        func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets a logger for ID assignment and emission progress.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records run outcomes and object counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// WithExtractor enables text excerpts for attachments the extractor supports.
func WithExtractor(x *extract.Extractor) Option {
	return func(e *Exporter) { e.extractor = x }
}

// WithClock overrides the time used for the channel publication date.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New returns an exporter for the archive at archiveDir.
func New(archiveDir string, site Site, opts ...Option) *Exporter {
	if site.Location == nil {
		site.Location = time.UTC
	}
	e := &Exporter{
		archiveDir: archiveDir,
		site:       site,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// post is an archived page with its assigned ID.
type post struct {
	key string
	rec *models.PageRecord
	id  int
}

// ExportFile writes the export to path, replacing it only when the export succeeds.
func (e *Exporter) ExportFile(ctx context.Context, path string) (*Summary, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	s, err := e.Export(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("replace export file: %w", err)
	}
	return s, nil
}

// Export writes the WXR document for the archive to w. Post IDs for every page are assigned
// before anything is emitted.
func (e *Exporter) Export(ctx context.Context, w io.Writer) (*Summary, error) {
	started := time.Now()
	s, err := e.export(ctx, w)
	e.metrics.ObserveRun(pipeline, started, err)
	if err == nil {
		e.metrics.SetObjects(pipeline, s.Counts())
	}
	return s, err
}

func (e *Exporter) export(ctx context.Context, w io.Writer) (*Summary, error) {
	session := NewSession()
	e.logger.Info("starting export", zap.String("run", session.RunID), zap.String("archive", e.archiveDir))

	posts, skipped, clashes, err := e.assignPostIDs(session)
	if err != nil {
		return nil, err
	}
	authors, err := models.ReadAuthors(e.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("read authors: %w", err)
	}
	categories, err := models.ReadCategories(e.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	fmt.Fprintf(bw, "<!-- generated by %s run %s -->\n", generator, session.RunID)
	em := &emitter{
		Exporter: e,
		session:  session,
		enc:      xml.NewEncoder(bw),
		ids:      make(map[string]int, len(posts)),
		skipped:  skipped,
		authors:  make(map[string]int, len(authors)),
		emitted:  make(map[string]bool),
		summary:  &Summary{Clashes: clashes, SkippedPosts: len(skipped)},
	}
	for _, p := range posts {
		em.ids[p.key] = p.id
	}
	em.enc.Indent("", "  ")
	if err := em.run(ctx, posts, authors, categories); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	s := em.summary
	e.logger.Info("exported",
		zap.String("run", session.RunID),
		zap.Int("posts", s.Posts), zap.Int("comments", s.Comments),
		zap.Int("media", s.Images+s.Attachments), zap.Int("images", s.Images), zap.Int("attachments", s.Attachments),
		zap.Int("urls", s.URLs), zap.Int("authors", s.Authors), zap.Int("categories", s.Categories),
		zap.Int("clashes", s.Clashes), zap.Int("skipped_posts", s.SkippedPosts), zap.Int("skipped_comments", s.SkippedComments))
	return s, nil
}

// assignPostIDs keeps each numeric legacy page number that is still free and gives every
// other page the next free ID above all kept ones, in key order. Pages without an author get
// no ID. The result is sorted by ID.
func (e *Exporter) assignPostIDs(session *Session) ([]*post, map[string]bool, int, error) {
	keys, err := models.PageKeys(e.archiveDir)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list pages: %w", err)
	}
	var posts, clashing []*post
	skipped := make(map[string]bool)
	for _, key := range keys {
		rec, err := models.ReadPage(models.PageFile(e.archiveDir, key))
		if err != nil {
			return nil, nil, 0, fmt.Errorf("read page %s: %w", key, err)
		}
		if rec.Authors.FirstAuthor() == "" {
			e.logger.Warn("skipping post without author",
				zap.String("title", rec.Title), zap.String("page", rec.Page), zap.String("key", key))
			skipped[key] = true
			continue
		}
		p := &post{key: key, rec: rec}
		posts = append(posts, p)
		n, err := strconv.Atoi(strings.TrimSpace(rec.Page))
		if err != nil || !session.ReservePostID(n) {
			clashing = append(clashing, p)
			continue
		}
		p.id = n
	}
	for _, p := range clashing {
		p.id = session.NextPostID()
		e.logger.Warn("assigned clashing page number",
			zap.String("page", p.rec.Page), zap.String("title", p.rec.Title), zap.Int("post_id", p.id))
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].id < posts[j].id })
	return posts, skipped, len(clashing), nil
}

// emitter holds the state of pass 2.
type emitter struct {
	*Exporter
	session *Session
	enc     *xml.Encoder
	ids     map[string]int
	skipped map[string]bool
	authors map[string]int
	// emitted is keyed by content hash across attachments and images.
	emitted map[string]bool
	summary *Summary
}

func (em *emitter) run(ctx context.Context, posts []*post, authors, categories []string) error {
	root := rssStart()
	channel := xml.StartElement{Name: xml.Name{Local: "channel"}}
	if err := em.enc.EncodeToken(root); err != nil {
		return err
	}
	if err := em.enc.EncodeToken(channel); err != nil {
		return err
	}
	if err := em.channelMeta(); err != nil {
		return err
	}
	if err := em.emitAuthors(authors); err != nil {
		return err
	}
	if err := em.emitCategories(categories); err != nil {
		return err
	}
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := em.emitPost(p); err != nil {
			return err
		}
	}
	if err := em.enc.EncodeToken(channel.End()); err != nil {
		return err
	}
	if err := em.enc.EncodeToken(root.End()); err != nil {
		return err
	}
	return em.enc.Flush()
}

func (em *emitter) channelMeta() error {
	fields := []struct{ name, value string }{
		{"title", em.site.Title},
		{"link", em.site.SiteURL},
		{"description", em.site.Title},
		{"pubDate", em.now().In(em.site.Location).Format(pubDateLayout)},
		{"language", language},
		{"wp:wxr_version", wxrVersion},
		{"wp:base_site_url", em.site.NetworkURL},
		{"wp:base_blog_url", em.site.SiteURL},
		{"generator", generator},
	}
	for _, f := range fields {
		if err := em.enc.EncodeElement(f.value, xml.StartElement{Name: xml.Name{Local: f.name}}); err != nil {
			return err
		}
	}
	return nil
}

func (em *emitter) emitAuthors(authors []string) error {
	logins := make(map[string]string, len(authors))
	for _, name := range authors {
		id := em.session.NextAuthorID()
		login := lotus.SanitizeTitle(name)
		if other, ok := logins[login]; ok {
			em.logger.Warn("authors share a login", zap.String("login", login), zap.String("author", name), zap.String("other", other))
		}
		logins[login] = name
		em.authors[name] = id
		author := wpAuthor{
			ID:          cdata{strconv.Itoa(id)},
			Login:       cdata{login},
			DisplayName: cdata{name},
		}
		term := wpTerm{
			ID:       cdata{strconv.Itoa(em.session.NextTermID())},
			Taxonomy: cdata{coauthorTaxonomy},
			Slug:     cdata{coauthorSlugPrefix + login},
			Name:     cdata{name},
		}
		if err := em.enc.Encode(author); err != nil {
			return err
		}
		if err := em.enc.Encode(term); err != nil {
			return err
		}
		em.summary.Authors++
	}
	return nil
}

func (em *emitter) emitCategories(categories []string) error {
	for _, name := range categories {
		c := wpCategory{
			TermID:   em.session.NextTermID(),
			Nicename: cdata{lotus.SanitizeTitle(name)},
			Name:     cdata{name},
		}
		if err := em.enc.Encode(c); err != nil {
			return err
		}
		em.summary.Categories++
	}
	return nil
}

func (em *emitter) emitPost(p *post) error {
	rec := p.rec
	created := time.Unix(rec.Created, 0)
	creator := lotus.SanitizeTitle(rec.Authors.FirstAuthor())
	em.logger.Info("adding post", zap.String("title", rec.Title), zap.String("page", rec.Page), zap.Int("post_id", p.id))

	content, err := em.rewriteURLs(p.key, rec, rec.Content)
	if err != nil {
		return err
	}
	var media []item
	content, media, err = em.rewriteMedia(p, creator, content, media)
	if err != nil {
		return err
	}

	it := item{
		Title:         cdata{rec.Title},
		PubDate:       created.In(em.site.Location).Format(pubDateLayout),
		Creator:       cdata{creator},
		GUID:          guid{IsPermaLink: "false", Value: em.site.permalink(p.id)},
		Content:       cdata{content},
		PostID:        p.id,
		PostDate:      cdata{created.In(em.site.Location).Format(postDateLayout)},
		PostDateGMT:   cdata{created.UTC().Format(postDateLayout)},
		CommentStatus: cdata{"open"},
		PingStatus:    cdata{"closed"},
		PostName:      cdata{lotus.SanitizeTitle(rec.Title)},
		Status:        cdata{"publish"},
		PostType:      cdata{"post"},
	}
	for _, c := range rec.Categories.Items {
		it.Categories = append(it.Categories, itemCategory{Domain: "category", Nicename: lotus.SanitizeTitle(c), Name: c})
	}
	for _, a := range rec.Authors.Items {
		it.Categories = append(it.Categories, itemCategory{
			Domain:   coauthorTaxonomy,
			Nicename: coauthorSlugPrefix + lotus.SanitizeTitle(a),
			Name:     a,
		})
	}
	for _, r := range rec.Responses.Items {
		c, more, err := em.comment(p, r, rec.Title)
		if err != nil {
			return err
		}
		media = append(media, more...)
		if c != nil {
			it.Comments = append(it.Comments, *c)
		}
	}

	if err := em.enc.Encode(it); err != nil {
		return fmt.Errorf("encode post %d: %w", p.id, err)
	}
	em.summary.Posts++
	for _, m := range media {
		if err := em.enc.Encode(m); err != nil {
			return fmt.Errorf("encode media %d: %w", m.PostID, err)
		}
	}
	return nil
}

// comment builds the comment for a response, or nil when the response has no author.
func (em *emitter) comment(p *post, r models.ResponseRecord, title string) (*wpComment, []item, error) {
	created := time.Unix(r.Created, 0)
	first := r.Authors.FirstAuthor()
	if first == "" {
		em.logger.Info("skipping response without author", zap.String("post", title), zap.Time("created", created))
		em.summary.SkippedComments++
		return nil, nil, nil
	}
	userID, ok := em.authors[first]
	if !ok {
		return nil, nil, &lotus.UnresolvedReferenceError{Page: p.key, Key: first}
	}
	content, err := em.rewriteURLs(p.key, p.rec, r.Content)
	if err != nil {
		return nil, nil, err
	}
	content, media, err := em.rewriteMedia(p, lotus.SanitizeTitle(first), content, nil)
	if err != nil {
		return nil, nil, err
	}
	if len(r.Authors.Items) > 1 {
		content = "[Authors: " + strings.Join(r.Authors.Items, ", ") + "]\n\n" + content
	}
	em.logger.Info("adding response", zap.String("author", first), zap.String("post", title))
	em.summary.Comments++
	return &wpComment{
		ID:       em.session.NextCommentID(),
		Author:   cdata{first},
		Date:     cdata{created.In(em.site.Location).Format(postDateLayout)},
		DateGMT:  cdata{created.UTC().Format(postDateLayout)},
		Content:  cdata{content},
		Approved: "1",
		UserID:   userID,
	}, media, nil
}

// rewriteURLs replaces each cross-reference hash in anchor openings with the target's permalink.
func (em *emitter) rewriteURLs(key string, rec *models.PageRecord, content string) (string, error) {
	for _, u := range rec.URLs.Items {
		target := u.TargetKey()
		link := ""
		if id, ok := em.ids[target]; ok {
			link = em.site.permalink(id)
		} else if em.skipped[target] {
			// not fatal unlike other missing targets: the page exists but has no post
			em.logger.Warn("cross-reference to skipped post", zap.String("page", key), zap.String("target", target))
			link = em.site.SiteURL
		} else {
			return "", &lotus.UnresolvedReferenceError{Page: key, Key: u.Hash, Target: u.Path}
		}
		content = strings.ReplaceAll(content, `<a href="`+u.Hash+`"`, `<a href="`+link+`"`)
		if strings.Contains(content, u.Hash) {
			// only anchors whose first attribute is href are rewritten
			em.logger.Warn("cross-reference left unrewritten", zap.String("page", key), zap.String("hash", u.Hash))
		}
		em.summary.URLs++
	}
	return content, nil
}

// rewriteMedia points href and src attributes holding a media hash at the media's upload URL
// and appends an attachment item for every media file not emitted before.
func (em *emitter) rewriteMedia(p *post, creator, content string, out []item) (string, []item, error) {
	kinds := []struct {
		refs    []models.MediaRef
		counter *int
	}{
		{p.rec.Attachments.Items, &em.summary.Attachments},
		{p.rec.Images.Items, &em.summary.Images},
	}
	for _, kind := range kinds {
		for _, m := range kind.refs {
			local := filepath.Join(models.PagesPath(em.archiveDir), filepath.FromSlash(m.Path))
			if _, err := os.Stat(local); err != nil {
				return "", nil, &lotus.UnresolvedReferenceError{Page: p.key, Key: m.Hash, Target: m.Path}
			}
			created := time.Unix(m.Created, 0).In(em.site.Location)
			wpPath := created.Format("2006/01/") + m.FileName()
			url := em.site.uploadsURL() + wpPath
			content = strings.ReplaceAll(content, `href="`+m.Hash+`"`, `href="`+url+`"`)
			content = strings.ReplaceAll(content, `src="`+m.Hash+`"`, `src="`+url+`"`)
			if em.emitted[m.Hash] {
				continue
			}
			em.emitted[m.Hash] = true
			*kind.counter++
			out = append(out, em.mediaItem(p.id, creator, m, local, created, wpPath))
		}
	}
	return content, out, nil
}

func (em *emitter) mediaItem(parent int, creator string, m models.MediaRef, local string, created time.Time, wpPath string) item {
	title := m.Name
	if title == "" {
		title = m.FileName()
	}
	slug := lotus.SanitizeTitle(title)
	source := em.site.MediaURL + m.FileName()
	it := item{
		Title:         cdata{title},
		Link:          em.site.SiteURL + slug,
		PubDate:       created.Format(pubDateLayout),
		Creator:       cdata{creator},
		GUID:          guid{IsPermaLink: "false", Value: source},
		Excerpt:       cdata{em.excerpt(local, m.Mime)},
		PostID:        em.session.NextPostID(),
		PostDate:      cdata{created.Format(postDateLayout)},
		PostDateGMT:   cdata{created.UTC().Format(postDateLayout)},
		CommentStatus: cdata{"closed"},
		PingStatus:    cdata{"closed"},
		PostName:      cdata{slug},
		Status:        cdata{"inherit"},
		PostParent:    parent,
		PostType:      cdata{"attachment"},
		AttachmentURL: &cdata{source},
		PostMeta:      []postMeta{{Key: cdata{"_wp_attached_file"}, Value: cdata{wpPath}}},
	}
	return it
}

func (em *emitter) excerpt(path, mimeType string) string {
	if em.extractor == nil || !em.extractor.Supports(mimeType) {
		return ""
	}
	text, err := em.extractor.Excerpt(path, mimeType, excerptLength)
	if err != nil {
		em.logger.Debug("no excerpt", zap.String("path", path), zap.Error(err))
		return ""
	}
	return text
}
