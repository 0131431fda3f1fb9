package wxr

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/lotuswxr/internal/extract"
	"github.com/hyperjump/lotuswxr/internal/lotus"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testRSS struct {
	Channel struct {
		Title   string `xml:"title"`
		Version string `xml:"http://wordpress.org/export/1.2/ wxr_version"`
		Authors []struct {
			ID      int    `xml:"http://wordpress.org/export/1.2/ author_id"`
			Login   string `xml:"http://wordpress.org/export/1.2/ author_login"`
			Display string `xml:"http://wordpress.org/export/1.2/ author_display_name"`
		} `xml:"http://wordpress.org/export/1.2/ author"`
		Terms []struct {
			ID       int    `xml:"http://wordpress.org/export/1.2/ term_id"`
			Taxonomy string `xml:"http://wordpress.org/export/1.2/ term_taxonomy"`
			Slug     string `xml:"http://wordpress.org/export/1.2/ term_slug"`
		} `xml:"http://wordpress.org/export/1.2/ term"`
		Categories []struct {
			TermID   int    `xml:"http://wordpress.org/export/1.2/ term_id"`
			Nicename string `xml:"http://wordpress.org/export/1.2/ category_nicename"`
			Name     string `xml:"http://wordpress.org/export/1.2/ cat_name"`
		} `xml:"http://wordpress.org/export/1.2/ category"`
		Items []testItem `xml:"item"`
	} `xml:"channel"`
}

type testItem struct {
	Title      string `xml:"title"`
	Creator    string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	GUID       string `xml:"guid"`
	Content    string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	Excerpt    string `xml:"http://wordpress.org/export/1.2/excerpt/ encoded"`
	PostID     int    `xml:"http://wordpress.org/export/1.2/ post_id"`
	PostDate   string `xml:"http://wordpress.org/export/1.2/ post_date"`
	PostParent int    `xml:"http://wordpress.org/export/1.2/ post_parent"`
	PostType   string `xml:"http://wordpress.org/export/1.2/ post_type"`
	Attachment string `xml:"http://wordpress.org/export/1.2/ attachment_url"`
	MetaValue  string `xml:"http://wordpress.org/export/1.2/ postmeta>meta_value"`
	Categories []struct {
		Domain   string `xml:"domain,attr"`
		Nicename string `xml:"nicename,attr"`
		Name     string `xml:",chardata"`
	} `xml:"category"`
	Comments []struct {
		ID      int    `xml:"http://wordpress.org/export/1.2/ comment_id"`
		Author  string `xml:"http://wordpress.org/export/1.2/ comment_author"`
		Content string `xml:"http://wordpress.org/export/1.2/ comment_content"`
		UserID  int    `xml:"http://wordpress.org/export/1.2/ comment_user_id"`
	} `xml:"http://wordpress.org/export/1.2/ comment"`
}

func (r *testRSS) posts() []testItem {
	var out []testItem
	for _, it := range r.Channel.Items {
		if it.PostType == "post" {
			out = append(out, it)
		}
	}
	return out
}

func (r *testRSS) attachments() []testItem {
	var out []testItem
	for _, it := range r.Channel.Items {
		if it.PostType == "attachment" {
			out = append(out, it)
		}
	}
	return out
}

func (r *testRSS) post(t *testing.T, title string) testItem {
	t.Helper()
	for _, it := range r.posts() {
		if it.Title == title {
			return it
		}
	}
	t.Fatalf("no post titled %q", title)
	return testItem{}
}

var site = Site{
	Title:      "Logbook",
	ID:         3,
	NetworkURL: "https://x/",
	SiteURL:    "https://x/",
	MediaURL:   "https://media.x/lotus/",
}

type archive struct {
	t   *testing.T
	dir string
}

func newArchive(t *testing.T, authors, categories []string) *archive {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(models.MediaPath(dir), 0755))
	require.NoError(t, models.WriteAuthors(dir, authors))
	require.NoError(t, models.WriteCategories(dir, categories))
	return &archive{t: t, dir: dir}
}

func (a *archive) page(key string, rec *models.PageRecord) {
	require.NoError(a.t, models.WritePage(models.PageFile(a.dir, key), rec))
}

func (a *archive) media(name string, content []byte) {
	require.NoError(a.t, os.WriteFile(filepath.Join(models.MediaPath(a.dir), name), content, 0644))
}

func record(title, page string, authors ...string) *models.PageRecord {
	return &models.PageRecord{
		Title:      title,
		Page:       page,
		Created:    time.Date(2008, 1, 5, 0, 0, 0, 0, time.UTC).Unix(),
		Authors:    models.AuthorList{Items: authors},
		Categories: models.CategoryList{Items: []string{"Lab"}},
	}
}

func export(t *testing.T, dir string, opts ...Option) (*testRSS, string, *Summary) {
	t.Helper()
	var buf bytes.Buffer
	opts = append(opts, WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
	s, err := New(dir, site, opts...).Export(context.Background(), &buf)
	require.NoError(t, err)
	var rss testRSS
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &rss), buf.String())
	return &rss, buf.String(), s
}

func TestExport_CrossReferenceRewrite(t *testing.T) {
	a := newArchive(t, []string{"Alice", "Bob"}, []string{"Lab"})
	a.page("aaaa", record("Target", "42", "Alice"))
	linker := record("Linker", "7", "Bob")
	linker.Content = `<p>see <a href="deadbeef">target</a></p>`
	linker.URLs.Items = []models.URLRef{{Path: "aaaa.xml", Hash: "deadbeef"}}
	a.page("bbbb", linker)

	rss, _, s := export(t, a.dir)
	assert.Contains(t, rss.post(t, "Linker").Content, `<a href="https://x/?p=42"`)
	assert.Equal(t, 42, rss.post(t, "Target").PostID)
	assert.Equal(t, 7, rss.post(t, "Linker").PostID)
	assert.Equal(t, "https://x/?p=42", rss.post(t, "Target").GUID)
	assert.Equal(t, 1, s.URLs)
	assert.Equal(t, 0, s.Clashes)
}

func TestExport_CrossReferenceNotFirstAttribute(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	a.page("aaaa", record("Target", "42", "Alice"))
	linker := record("Linker", "7", "Alice")
	linker.Content = `<p><a name="x" href="deadbeef">target</a> and <a href="deadbeef">again</a></p>`
	linker.URLs.Items = []models.URLRef{{Path: "aaaa.xml", Hash: "deadbeef"}}
	a.page("bbbb", linker)

	core, logs := observer.New(zap.WarnLevel)
	rss, _, _ := export(t, a.dir, WithLogger(zap.New(core)))
	content := rss.post(t, "Linker").Content
	assert.Contains(t, content, `<a href="https://x/?p=42">again</a>`)
	assert.Contains(t, content, `<a name="x" href="deadbeef">`)

	warned := logs.FilterMessage("cross-reference left unrewritten").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "deadbeef", warned[0].ContextMap()["hash"])
}

func TestExport_ClashingPageNumbers(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	a.page("a1", record("First", "5", "Alice"))
	a.page("a2", record("Second", "5", "Alice"))
	a.page("a3", record("Third", "1.5", "Alice"))
	a.page("a4", record("Fourth", "40", "Alice"))
	a.page("a5", record("Fifth", "-3", "Alice"))

	rss, _, s := export(t, a.dir)
	assert.Equal(t, 3, s.Clashes)
	assert.Equal(t, 5, rss.post(t, "First").PostID)
	assert.Equal(t, 40, rss.post(t, "Fourth").PostID)
	// reassigned in key order above every kept number
	assert.Equal(t, 41, rss.post(t, "Second").PostID)
	assert.Equal(t, 42, rss.post(t, "Third").PostID)
	assert.Equal(t, 43, rss.post(t, "Fifth").PostID)

	seen := map[int]bool{}
	for _, it := range rss.Channel.Items {
		assert.False(t, seen[it.PostID], "duplicate post id %d", it.PostID)
		seen[it.PostID] = true
	}
	// emitted in ID order
	posts := rss.posts()
	for i := 1; i < len(posts); i++ {
		assert.Less(t, posts[i-1].PostID, posts[i].PostID)
	}
}

func TestExport_SkipsPostsWithoutAuthor(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	a.page("a1", record("Orphaned", "1"))
	a.page("a2", record("Clash", "2", "Alice"))
	linker := record("Linker", "2", "Alice")
	linker.Content = `<a href="cafe">gone</a>`
	linker.URLs.Items = []models.URLRef{{Path: "a1.xml", Hash: "cafe"}}
	a.page("a3", linker)

	rss, _, s := export(t, a.dir)
	require.Len(t, rss.posts(), 2)
	assert.Equal(t, 1, s.SkippedPosts)
	assert.Equal(t, 2, rss.post(t, "Clash").PostID)
	// the skipped page's number 1 was never claimed
	assert.Equal(t, 3, rss.post(t, "Linker").PostID)
	assert.Contains(t, rss.post(t, "Linker").Content, `<a href="https://x/"`)
	require.Len(t, rss.Channel.Authors, 1)
	assert.Equal(t, 1, rss.Channel.Authors[0].ID)
}

func TestExport_Comments(t *testing.T) {
	a := newArchive(t, []string{"Alice", "Bob", "Carol"}, []string{"Lab"})
	rec := record("Discussed", "1", "Alice")
	rec.Responses.Items = []models.ResponseRecord{
		{Created: rec.Created + 3600, Authors: models.AuthorList{Items: []string{"Bob"}}, Content: "<p>ok</p>"},
		{Created: rec.Created + 7200, Content: "<p>nobody</p>"},
		{Created: rec.Created + 9000, Authors: models.AuthorList{Items: []string{"Carol", "Alice"}}, Content: "<p>both</p>"},
	}
	a.page("a1", rec)

	rss, _, s := export(t, a.dir)
	p := rss.post(t, "Discussed")
	require.Len(t, p.Comments, 2)
	assert.Equal(t, "Bob", p.Comments[0].Author)
	assert.Equal(t, 2, p.Comments[0].UserID)
	assert.Equal(t, "<p>ok</p>", p.Comments[0].Content)
	assert.Equal(t, "Carol", p.Comments[1].Author)
	assert.Equal(t, 3, p.Comments[1].UserID)
	assert.Equal(t, "[Authors: Carol, Alice]\n\n<p>both</p>", p.Comments[1].Content)
	assert.NotEqual(t, p.Comments[0].ID, p.Comments[1].ID)
	assert.Equal(t, 2, s.Comments)
	assert.Equal(t, 1, s.SkippedComments)
}

func TestExport_AuthorsAndCategories(t *testing.T) {
	a := newArchive(t, []string{"Alice Smith", "Bob"}, []string{"Laser Optics", "Lab"})
	rec := record("Tagged", "1", "Alice Smith", "Bob")
	rec.Categories.Items = []string{"Laser Optics"}
	a.page("a1", rec)

	rss, _, _ := export(t, a.dir)
	require.Len(t, rss.Channel.Authors, 2)
	assert.Equal(t, "alice-smith", rss.Channel.Authors[0].Login)
	assert.Equal(t, "Alice Smith", rss.Channel.Authors[0].Display)
	require.Len(t, rss.Channel.Terms, 2)
	assert.Equal(t, "ssl-alp-coauthor-alice-smith", rss.Channel.Terms[0].Slug)
	assert.Equal(t, "ssl_alp_coauthor", rss.Channel.Terms[0].Taxonomy)
	require.Len(t, rss.Channel.Categories, 2)
	assert.Equal(t, "laser-optics", rss.Channel.Categories[0].Nicename)

	termIDs := map[int]bool{}
	for _, term := range rss.Channel.Terms {
		termIDs[term.ID] = true
	}
	for _, c := range rss.Channel.Categories {
		assert.False(t, termIDs[c.TermID], "term id %d reused", c.TermID)
		termIDs[c.TermID] = true
	}

	p := rss.post(t, "Tagged")
	assert.Equal(t, "alice-smith", p.Creator)
	require.Len(t, p.Categories, 3)
	assert.Equal(t, "category", p.Categories[0].Domain)
	assert.Equal(t, "Laser Optics", p.Categories[0].Name)
	assert.Equal(t, "ssl_alp_coauthor", p.Categories[2].Domain)
	assert.Equal(t, "ssl-alp-coauthor-bob", p.Categories[2].Nicename)
	assert.Equal(t, "2008-01-05 00:00:00", p.PostDate)
	assert.Equal(t, "1.2", rss.Channel.Version)
}

func TestExport_MediaEmittedOnce(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	created := time.Date(2009, 3, 14, 12, 0, 0, 0, time.UTC).Unix()
	a.media("f00d.png", []byte("\x89PNG\r\n\x1a\n\x00img"))
	a.media("beef.txt", []byte("  Calibration   notes for run 12 "))
	img := models.MediaRef{Path: "media/f00d.png", Name: "plot.png", Mime: "image/png", Created: created, Hash: "f00d"}
	txt := models.MediaRef{Path: "media/beef.txt", Name: "notes.txt", Mime: "text/plain; charset=utf-8", Created: created, Hash: "beef"}

	first := record("First", "1", "Alice")
	first.Content = `<img src="f00d"><a href="beef">notes</a>`
	first.Images.Items = []models.MediaRef{img}
	first.Attachments.Items = []models.MediaRef{txt}
	a.page("a1", first)
	second := record("Second", "2", "Alice")
	second.Content = `<a href="f00d">same picture</a>`
	second.Attachments.Items = []models.MediaRef{img}
	a.page("a2", second)

	rss, _, s := export(t, a.dir, WithExtractor(extract.NewExtractor()))
	media := rss.attachments()
	require.Len(t, media, 2)
	assert.Equal(t, 1, s.Images)
	assert.Equal(t, 1, s.Attachments)

	upload := "https://x/wp-content/uploads/sites/3/2009/03/"
	assert.Contains(t, rss.post(t, "First").Content, `src="`+upload+`f00d.png"`)
	assert.Contains(t, rss.post(t, "First").Content, `href="`+upload+`beef.txt"`)
	assert.Contains(t, rss.post(t, "Second").Content, `href="`+upload+`f00d.png"`)

	byTitle := map[string]testItem{}
	for _, m := range media {
		byTitle[m.Title] = m
		assert.Equal(t, 1, m.PostParent)
		assert.Greater(t, m.PostID, 2)
	}
	assert.Equal(t, "https://media.x/lotus/f00d.png", byTitle["plot.png"].Attachment)
	assert.Equal(t, "2009/03/f00d.png", byTitle["plot.png"].MetaValue)
	assert.Equal(t, "Calibration notes for run 12", byTitle["notes.txt"].Excerpt)
	assert.Empty(t, byTitle["plot.png"].Excerpt)
}

func TestExport_UnresolvedCrossReference(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	rec := record("Broken", "1", "Alice")
	rec.URLs.Items = []models.URLRef{{Path: "missing.xml", Hash: "abc"}}
	a.page("a1", rec)

	_, err := New(a.dir, site).Export(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lotus.ErrUnresolvedReference))
}

func TestExport_MissingMediaFile(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	rec := record("Broken", "1", "Alice")
	rec.Images.Items = []models.MediaRef{{Path: "media/gone.png", Hash: "gone"}}
	a.page("a1", rec)

	_, err := New(a.dir, site).Export(context.Background(), &bytes.Buffer{})
	assert.True(t, errors.Is(err, lotus.ErrUnresolvedReference), "got %v", err)
}

func TestExportFile(t *testing.T) {
	a := newArchive(t, []string{"Alice"}, []string{"Lab"})
	a.page("a1", record("Only", "1", "Alice"))
	path := filepath.Join(t.TempDir(), "out", "export.xml")

	s, err := New(a.dir, site).ExportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Posts)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), xml.Header))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSession(t *testing.T) {
	s := NewSession()
	assert.NotEmpty(t, s.RunID)
	assert.True(t, s.ReservePostID(3))
	assert.False(t, s.ReservePostID(3))
	assert.False(t, s.ReservePostID(0))
	assert.True(t, s.ReservePostID(5))
	assert.Equal(t, 6, s.NextPostID())
	assert.Equal(t, 7, s.NextPostID())
	assert.Equal(t, 1, s.NextAuthorID())
	assert.Equal(t, 1, s.NextTermID())
	assert.Equal(t, 2, s.NextTermID())
	assert.Equal(t, 1, s.NextCommentID())
	assert.NotEqual(t, s.RunID, NewSession().RunID)
}
