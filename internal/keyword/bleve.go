package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/lotuswxr/internal/models"
	"go.uber.org/zap"
)

const (
	defaultTitleBoost = 3.0
	metaBoost         = 2.0
	batchSize         = 200
)

// BleveIndex is a bleve index keyed by archive page key.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	// standard analyzer: no stemming, so "laser" does not also match "lase"
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("authors", text)
	doc.AddFieldMappingsAt("categories", text)

	page := bleve.NewTextFieldMapping()
	page.Analyzer = keywordanalyzer.Name
	doc.AddFieldMappingsAt("page", page)
	doc.AddFieldMappingsAt("created", bleve.NewNumericFieldMapping())

	im.DefaultMapping = doc
	return im
}

// Open opens the index at path, creating it when it does not exist.
func Open(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Rebuild replaces the index at path with one holding every page of the archive.
func Rebuild(ctx context.Context, path, archiveDir string, logger *zap.Logger) (*BleveIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove index: %w", err)
	}
	idx, err := Open(path)
	if err != nil {
		return nil, err
	}
	n, err := idx.IndexArchive(ctx, archiveDir)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	logger.Info("indexed archive", zap.String("index", path), zap.Int("pages", n))
	return idx, nil
}

// IndexArchive indexes every page file under archiveDir and returns the number indexed.
func (b *BleveIndex) IndexArchive(ctx context.Context, archiveDir string) (int, error) {
	keys, err := models.PageKeys(archiveDir)
	if err != nil {
		return 0, fmt.Errorf("list pages: %w", err)
	}
	batch := b.index.NewBatch()
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		rec, err := models.ReadPage(models.PageFile(archiveDir, key))
		if err != nil {
			return i, fmt.Errorf("read page %s: %w", key, err)
		}
		if err := batch.Index(key, NewDocument(rec)); err != nil {
			return i, fmt.Errorf("index page %s: %w", key, err)
		}
		if batch.Size() >= batchSize {
			if err := b.index.Batch(batch); err != nil {
				return i, fmt.Errorf("write batch: %w", err)
			}
			batch.Reset()
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return len(keys), fmt.Errorf("write batch: %w", err)
	}
	return len(keys), nil
}

// Index adds or replaces one document.
func (b *BleveIndex) Index(ctx context.Context, key string, doc *Document) error {
	return b.index.Index(key, doc)
}

// Delete removes a document.
func (b *BleveIndex) Delete(ctx context.Context, key string) error {
	return b.index.Delete(key)
}

// DocCount returns the number of indexed pages.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// Search runs q over title, authors, categories and content. q is validated first.
func (b *BleveIndex) Search(ctx context.Context, q *models.SearchQuery, opts *SearchOptions) (*models.SearchResponse, error) {
	if q == nil {
		return nil, errors.New("nil query")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	req := bleve.NewSearchRequestOptions(buildQuery(q.Query, opts), q.Limit, q.Offset, false)
	req.Fields = []string{"title", "page", "authors", "categories", "created"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("title")
	req.Highlight.AddField("content")
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	resp := &models.SearchResponse{
		Hits:  make([]*models.SearchHit, 0, len(res.Hits)),
		Total: res.Total,
		Query: q.Query,
	}
	for i, h := range res.Hits {
		hit := &models.SearchHit{
			Key:        h.ID,
			Title:      stringField(h.Fields["title"]),
			Page:       stringField(h.Fields["page"]),
			Authors:    listField(h.Fields["authors"]),
			Categories: listField(h.Fields["categories"]),
			Score:      h.Score,
			Rank:       q.Offset + i + 1,
		}
		if created, ok := h.Fields["created"].(float64); ok {
			hit.Created = int64(created)
		}
		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, frags := range h.Fragments {
				if len(frags) > 0 {
					hit.Highlights[field] = frags[0]
				}
			}
		}
		resp.Hits = append(resp.Hits, hit)
	}
	resp.QueryTime = time.Since(started).Milliseconds()
	return resp, nil
}

// buildQuery ORs a per-field query for every searchable field, boosting title and metadata.
func buildQuery(text string, opts *SearchOptions) blevequery.Query {
	titleBoost := defaultTitleBoost
	fuzziness := 0
	if opts != nil {
		if opts.TitleBoost >= 1 {
			titleBoost = opts.TitleBoost
		}
		fuzziness = opts.Fuzziness
	}
	fields := []struct {
		name  string
		boost float64
	}{
		{"title", titleBoost},
		{"authors", metaBoost},
		{"categories", metaBoost},
		{"content", 1},
	}
	queries := make([]blevequery.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(f.name)
		mq.SetBoost(f.boost)
		if fuzziness > 0 {
			mq.SetFuzziness(fuzziness)
		}
		queries = append(queries, mq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return s
}

// listField reads a stored array field; bleve returns a bare value for one-element arrays.
func listField(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
