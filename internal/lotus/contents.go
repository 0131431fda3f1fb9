package lotus

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ContentsEntry is one page listed on the Lotus contents view, with its responses.
type ContentsEntry struct {
	Title     string
	Path      string
	Responses []string
}

// ParseContents reads the contents view at path. Links targeting the "NotesView" frame list
// pages; a link titled "---------- Respond: ..." is a response to the page listed before it.
// Entries are returned in listing order.
func (p *Parser) ParseContents(path string) ([]ContentsEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	doc, err := p.readDocument(abs)
	if err != nil {
		return nil, err
	}
	var entries []ContentsEntry
	current := -1
	doc.Find(`a[target="NotesView"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		target := resolvePath(abs, unescape(href))
		title := s.Text()
		if strings.HasPrefix(title, respondPrefix) {
			if current < 0 {
				p.logger.Warn("response listed before any page", zap.String("href", href))
				return
			}
			entries[current].Responses = append(entries[current].Responses, target)
			return
		}
		entries = append(entries, ContentsEntry{Title: strings.TrimSpace(title), Path: target})
		current = len(entries) - 1
	})
	return entries, nil
}
