// Package keyword keeps a full-text index over the archived pages.
package keyword

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/pkg/utils"
)

// Document is the indexed form of an archived page. Response text is folded into Content.
type Document struct {
	Title      string   `json:"title"`
	Page       string   `json:"page"`
	Authors    []string `json:"authors"`
	Categories []string `json:"categories"`
	Content    string   `json:"content"`
	Created    int64    `json:"created"`
}

// SearchOptions tunes ranking. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the title. Values below 1 are ignored.
	TitleBoost float64
	// Fuzziness enables fuzzy term matching with the given edit distance (1 or 2).
	Fuzziness int
}

// NewDocument builds the index document for a page record.
func NewDocument(rec *models.PageRecord) *Document {
	parts := []string{plainText(rec.Content)}
	for _, r := range rec.Responses.Items {
		parts = append(parts, strings.Join(r.Authors.Items, " "), plainText(r.Content))
	}
	return &Document{
		Title:      rec.Title,
		Page:       rec.Page,
		Authors:    rec.Authors.Items,
		Categories: rec.Categories.Items,
		Content:    utils.CollapseSpace(strings.Join(parts, " ")),
		Created:    rec.Created,
	}
}

// plainText strips markup from archived content.
func plainText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script, style").Remove()
	// keep words in adjacent blocks apart
	doc.Find("br, p, div, td, li, pre").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return utils.CollapseSpace(doc.Text())
}
