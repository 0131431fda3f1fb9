package e2e

import (
	"bytes"
	"context"
	"encoding/xml"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/hyperjump/lotuswxr/internal/archiver"
	"github.com/hyperjump/lotuswxr/internal/extract"
	"github.com/hyperjump/lotuswxr/internal/fileid"
	"github.com/hyperjump/lotuswxr/internal/keyword"
	"github.com/hyperjump/lotuswxr/internal/lotus"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/internal/wxr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpusSize = 12

var site = wxr.Site{
	Title:      "Logbook",
	ID:         4,
	NetworkURL: "https://wp.example.org/",
	SiteURL:    "https://wp.example.org/logbook/",
	MediaURL:   "http://localhost:8080/media/",
}

type exported struct {
	Items []struct {
		Title    string `xml:"title"`
		Content  string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
		PostID   int    `xml:"http://wordpress.org/export/1.2/ post_id"`
		Parent   int    `xml:"http://wordpress.org/export/1.2/ post_parent"`
		PostType string `xml:"http://wordpress.org/export/1.2/ post_type"`
		Comments []struct {
			Author  string `xml:"http://wordpress.org/export/1.2/ comment_author"`
			Content string `xml:"http://wordpress.org/export/1.2/ comment_content"`
		} `xml:"http://wordpress.org/export/1.2/ comment"`
	} `xml:"channel>item"`
}

type pipeline struct {
	corpus  *Corpus
	archive string
}

func setup(t *testing.T) *pipeline {
	t.Helper()
	c, err := BuildCorpus(t.TempDir(), corpusSize)
	require.NoError(t, err)
	p := &pipeline{corpus: c, archive: filepath.Join(t.TempDir(), "archive")}
	p.run(t, p.archive)
	return p
}

func (p *pipeline) run(t *testing.T, dir string) *archiver.Summary {
	t.Helper()
	parser := lotus.NewParser(lotus.WithLocation(time.UTC))
	s, err := archiver.New(p.corpus.Root, parser, archiver.WithContentsPage(p.corpus.ContentsPage)).Run(context.Background(), dir)
	require.NoError(t, err)
	return s
}

func (p *pipeline) export(t *testing.T) ([]byte, *wxr.Summary) {
	t.Helper()
	var buf bytes.Buffer
	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	s, err := wxr.New(p.archive, site, wxr.WithExtractor(extract.NewExtractor()), wxr.WithClock(clock)).Export(context.Background(), &buf)
	require.NoError(t, err)
	return buf.Bytes(), s
}

func snapshot(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		out[rel] = data
		return err
	})
	require.NoError(t, err)
	return out
}

func TestE2E_ArchiveIsDeterministic(t *testing.T) {
	p := setup(t)
	second := filepath.Join(t.TempDir(), "again")
	s := p.run(t, second)

	assert.Equal(t, p.corpus.Pages, s.Pages)
	assert.Zero(t, s.Orphans)
	assert.Equal(t, 2, s.Media)
	assert.Equal(t, snapshot(t, p.archive), snapshot(t, second))
}

func TestE2E_ArchiveLayout(t *testing.T) {
	p := setup(t)
	keys, err := models.PageKeys(p.archive)
	require.NoError(t, err)
	assert.Len(t, keys, p.corpus.Pages)
	for _, e := range p.corpus.Entries {
		key := fileid.PathHash(filepath.Join(p.corpus.Root, e.File))
		rec, err := models.ReadPage(models.PageFile(p.archive, key))
		require.NoError(t, err, e.File)
		assert.Equal(t, e.Title, rec.Title)
		assert.Equal(t, e.Number, rec.Page)
		assert.Len(t, rec.Responses.Items, len(e.Responses))
		assert.NotContains(t, rec.Content, "#top")
	}
	authors, err := models.ReadAuthors(p.archive)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alice Smith", "Bob", "Carol", "Dave"}, authors)
	categories, err := models.ReadCategories(p.archive)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Lab", "Optics"}, categories)
}

func TestE2E_Export(t *testing.T) {
	p := setup(t)
	out, s := p.export(t)
	c := p.corpus

	assert.Equal(t, c.Posts, s.Posts)
	assert.Equal(t, c.Skipped, s.SkippedPosts)
	assert.Equal(t, c.Clashes, s.Clashes)
	assert.Equal(t, c.Comments, s.Comments)
	assert.Equal(t, c.SkippedResp, s.SkippedComments)
	assert.Equal(t, c.Images, s.Images)
	assert.Equal(t, c.Attachments, s.Attachments)

	var doc exported
	require.NoError(t, xml.Unmarshal(out, &doc))

	ids := make(map[int]bool)
	posts := 0
	comments := 0
	var clashIDs []int
	hashHref := regexp.MustCompile(`(?:href|src)="[0-9a-f]{64}"`)
	for _, it := range doc.Items {
		assert.False(t, ids[it.PostID], "post id %d reused", it.PostID)
		ids[it.PostID] = true
		switch it.PostType {
		case "post":
			posts++
			comments += len(it.Comments)
			assert.False(t, hashHref.MatchString(it.Content), "unrewritten reference in %q", it.Title)
			if it.PostID > c.MaxNumber {
				clashIDs = append(clashIDs, it.PostID)
			}
		case "attachment":
			assert.True(t, ids[it.Parent], "attachment %q emitted before its parent", it.Title)
		}
	}
	assert.Equal(t, c.Posts, posts)
	assert.Equal(t, c.Comments, comments)
	assert.ElementsMatch(t, []int{c.MaxNumber + 1, c.MaxNumber + 2}, clashIDs)

	text := string(out)
	// links to the authorless entry fall back to the site URL
	assert.Contains(t, text, `<a href="`+site.SiteURL+`">the previous shift</a>`)
	assert.Contains(t, text, `<a href="`+site.SiteURL+`?p=1">the previous shift</a>`)
	assert.Contains(t, text, site.SiteURL+"wp-content/uploads/sites/4/")
	assert.Contains(t, text, "Calibration notes: offset 0.3 mrad, gain nominal.")
}

func TestE2E_ExportIsDeterministic(t *testing.T) {
	p := setup(t)
	first, _ := p.export(t)
	second, _ := p.export(t)
	runComment := regexp.MustCompile(`<!-- generated by lotuswxr run [0-9a-f-]+ -->`)
	assert.Equal(t,
		runComment.ReplaceAllString(string(first), ""),
		runComment.ReplaceAllString(string(second), ""))
	assert.NotEqual(t, string(first), string(second), "each export carries its own run id")
}

func TestE2E_Search(t *testing.T) {
	p := setup(t)
	idx, err := keyword.Rebuild(context.Background(), filepath.Join(t.TempDir(), "index"), p.archive, nil)
	require.NoError(t, err)
	defer idx.Close()

	for _, i := range []int{0, 5, 11} {
		e := p.corpus.Entries[i]
		resp, err := idx.Search(context.Background(), &models.SearchQuery{Query: e.Marker}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, resp.Hits, e.Marker)
		assert.Equal(t, fileid.PathHash(filepath.Join(p.corpus.Root, e.File)), resp.Hits[0].Key)
		assert.Equal(t, e.Title, resp.Hits[0].Title)
	}

	// each signed response is by Dave and lives on its own page
	resp, err := idx.Search(context.Background(), &models.SearchQuery{Query: "dave"}, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, p.corpus.Comments)
}
