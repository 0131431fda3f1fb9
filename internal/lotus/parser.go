package lotus

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperjump/lotuswxr/internal/fileid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

const (
	logbookMarker = "Logbook Entry"
	dateLayout    = "1/2/2006"
	respondPrefix = "---------- Respond:"
)

// Backend selects how the HTML tree is built.
type Backend string

const (
	// BackendHTML5 parses with scripting enabled, as a browser would.
	BackendHTML5 Backend = "html5"
	// BackendNoScript parses with scripting disabled, so <noscript> content becomes markup.
	BackendNoScript Backend = "noscript"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == BackendHTML5 || b == BackendNoScript
}

// Parser turns scraped documents into pages. It caches media classification by path
// and is safe for concurrent use.
type Parser struct {
	location *time.Location
	backend  Backend
	logger   *zap.Logger

	mu    sync.Mutex
	media map[string]*Media
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets a logger for classification warnings and debug output.
func WithLogger(l *zap.Logger) ParserOption {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLocation sets the timezone attached to parsed dates.
func WithLocation(loc *time.Location) ParserOption {
	return func(p *Parser) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithBackend selects the HTML parser backend.
func WithBackend(b Backend) ParserOption {
	return func(p *Parser) {
		if b != "" {
			p.backend = b
		}
	}
}

// NewParser returns a parser using UTC and the html5 backend unless configured otherwise.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		location: time.UTC,
		backend:  BackendHTML5,
		logger:   zap.NewNop(),
		media:    make(map[string]*Media),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParsePage parses the document at path as a page. Each response path is parsed as a
// nested page whose references are merged into the result.
// A document that is not a logbook page yields a *PageClassificationError.
func (p *Parser) ParsePage(path string, responsePaths []string) (*Page, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	doc, err := p.readDocument(abs)
	if err != nil {
		return nil, err
	}
	if err := checkMarker(abs, doc); err != nil {
		return nil, err
	}
	table := doc.Find(`table[width="100%"][border="1"]`).First()
	if table.Length() == 0 {
		return nil, notPage(abs, "missing metadata table", nil)
	}
	page := newPage(abs)
	if err := p.parseMeta(page, table); err != nil {
		return nil, err
	}
	refs, err := p.parseContent(page, table.Nodes[0])
	if err != nil {
		return nil, err
	}
	for _, rp := range responsePaths {
		response, err := p.ParsePage(rp, nil)
		if errors.Is(err, ErrNotPage) {
			p.logger.Warn("skipping unparseable response", zap.String("page", abs), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		page.Responses = append(page.Responses, response)
		refs = refs.Merge(response.References())
	}
	page.CrossReferences = refs.CrossReferences
	page.Attachments = refs.Attachments
	page.Images = refs.Images
	page.Unmatched = refs.Unmatched
	return page, nil
}

// Reset forgets every classified media path, so files changed or created since the last
// run are hashed again.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media = make(map[string]*Media)
}

func (p *Parser) readDocument(path string) (*goquery.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	decoded, err := decode(raw)
	if err != nil {
		return nil, notPage(path, "undecodable content", err)
	}
	root, err := html.ParseWithOptions(bytes.NewReader(decoded), html.ParseOptionEnableScripting(p.backend != BackendNoScript))
	if err != nil {
		return nil, notPage(path, "invalid html", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

var errBinary = errors.New("binary content")

// decode returns raw as UTF-8. Documents without a declared charset that are not valid
// UTF-8 are read as Windows-1252, the legacy exporter's codepage.
func decode(raw []byte) ([]byte, error) {
	if bytes.IndexByte(raw, 0) >= 0 {
		return nil, errBinary
	}
	if utf8.Valid(raw) {
		return raw, nil
	}
	enc, _, certain := charset.DetermineEncoding(raw, "text/html")
	if !certain {
		enc = charmap.Windows1252
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkMarker(path string, doc *goquery.Document) error {
	block := doc.Find(`div[align="center"]`).First()
	if block.Length() == 0 {
		return notPage(path, "missing logbook description", nil)
	}
	field := block.Find("b").First().Find("font").First()
	if field.Length() == 0 {
		return notPage(path, "missing logbook description field", nil)
	}
	if text := field.Text(); text != logbookMarker {
		return notPage(path, fmt.Sprintf("description reads %q", text), nil)
	}
	return nil
}

func (p *Parser) parseMeta(page *Page, table *goquery.Selection) error {
	first := table.Find("tr").First().Find(`td[bgcolor="#EFEFEF"][width="1%"]`).First()
	if first.Length() == 0 {
		return notPage(page.Path, "missing page number column", nil)
	}
	numberField := first.Find(`font[size="2"]`).First()
	if numberField.Length() == 0 || numberField.Nodes[0].NextSibling == nil {
		return notPage(page.Path, "missing page number", nil)
	}
	// not necessarily an integer
	page.PageNumber = strings.TrimSpace(nodeText(numberField.Nodes[0].NextSibling))

	fields := first.Next().Find(`font[size="2"]`)
	if fields.Length() < 8 {
		return notPage(page.Path, fmt.Sprintf("metadata column has %d fields", fields.Length()), nil)
	}
	page.Title = strings.TrimSpace(fields.Eq(1).Text())
	page.Authors = SplitList(fields.Eq(3).Text())
	page.Categories = SplitList(fields.Eq(5).Text())

	dateStr := strings.TrimSpace(fields.Eq(7).Text())
	created, err := time.ParseInLocation(dateLayout, dateStr, p.location)
	if err != nil {
		return notPage(page.Path, "malformed date", err)
	}
	page.CreatedAt = created
	return nil
}

// SplitList splits a comma separated field, trimming whitespace and dropping empty tokens.
func SplitList(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	if w, ok := Wrap(n).(TagNode); ok {
		return w.Text()
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	return ""
}

// parseContent renders every sibling after the metadata table as the page content,
// rewriting references in place.
func (p *Parser) parseContent(page *Page, table *html.Node) (References, error) {
	refs := newReferences()
	var b strings.Builder
	for n := table.NextSibling; n != nil; n = n.NextSibling {
		node := Wrap(n)
		if node == nil {
			continue
		}
		if tag, ok := node.(TagNode); ok {
			if skipContent(tag) {
				continue
			}
			p.walk(page, tag, &refs)
		}
		s, err := Render(node)
		if err != nil {
			return refs, fmt.Errorf("render content: %w", err)
		}
		b.WriteString(s)
	}
	page.Content = strings.TrimSpace(b.String())
	return refs, nil
}

func skipContent(tag TagNode) bool {
	switch tag.Name() {
	case "script":
		return true
	case "a":
		if href, ok := tag.Attr("href"); ok && strings.TrimSpace(tag.Text()) == "top" && strings.HasSuffix(href, "#top") {
			return true
		}
		if name, ok := tag.Attr("name"); ok && name == "top" {
			return true
		}
	}
	return false
}

func (p *Parser) walk(page *Page, node Node, refs *References) {
	tag, ok := node.(TagNode)
	if !ok {
		return
	}
	switch tag.Name() {
	case "a":
		p.anchor(page, tag, refs)
	case "img":
		p.image(page, tag, refs)
	}
	for _, child := range tag.Children() {
		p.walk(page, child, refs)
	}
}

func (p *Parser) anchor(page *Page, tag TagNode, refs *References) {
	href, ok := tag.Attr("href")
	if !ok {
		return
	}
	decoded := unescape(href)
	switch {
	case strings.HasSuffix(decoded, "OpenDocument.html"):
		target := resolvePath(page.Path, decoded)
		hash := fileid.PathHash(target)
		tag.SetAttr("href", hash)
		refs.CrossReferences[hash] = target
	case strings.HasSuffix(decoded, "OpenDocument"):
		// referenced on the source server but never scraped
		p.logger.Warn("unmatched cross-reference", zap.String("page", page.Path), zap.String("href", href))
		refs.Unmatched = append(refs.Unmatched, href)
	case strings.Contains(decoded, "$FILE"):
		if m, ok := p.classifyMedia(page, decoded); ok {
			tag.SetAttr("href", m.ContentHash)
			refs.Attachments[m.ContentHash] = m
		}
	}
}

func (p *Parser) image(page *Page, tag TagNode, refs *References) {
	src, ok := tag.Attr("src")
	if !ok {
		return
	}
	if m, ok := p.classifyMedia(page, unescape(src)); ok {
		tag.SetAttr("src", m.ContentHash)
		refs.Images[m.ContentHash] = m
	}
}

func (p *Parser) classifyMedia(page *Page, ref string) (*Media, bool) {
	path := resolvePath(page.Path, ref)
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.media[path]; ok {
		return m, m != nil
	}
	m, err := NewMedia(path)
	if err != nil {
		p.logger.Debug("reference left unrewritten", zap.String("page", page.Path), zap.Error(err))
		p.media[path] = nil
		return nil, false
	}
	p.media[path] = m
	return m, true
}

func unescape(ref string) string {
	if u, err := url.PathUnescape(ref); err == nil {
		return u
	}
	return ref
}

// resolvePath resolves ref relative to the directory of the document at docPath.
func resolvePath(docPath, ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(filepath.Dir(docPath), filepath.FromSlash(ref))
}
