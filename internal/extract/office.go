package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultMainPath = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	odfContentPath      = "content.xml"
)

// extractDOCX collects every w:t run of the main document part. The part name comes from
// [Content_Types].xml when present.
func extractDOCX(content []byte, limit int) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	mainPath := docxDefaultMainPath
	if f := findEntry(zr, contentTypesPath); f != nil {
		if p := docxMainPart(f); p != "" {
			mainPath = p
		}
	}
	f := findEntry(zr, mainPath)
	if f == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", mainPath)
	}
	b := textBuilder{limit: limit}
	if err := collectRuns(f, &b, "t"); err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return b.String(), nil
}

func docxMainPart(f *zip.File) string {
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	var types struct {
		Overrides []struct {
			PartName    string `xml:"PartName,attr"`
			ContentType string `xml:"ContentType,attr"`
		} `xml:"Override"`
	}
	if err := xml.NewDecoder(rc).Decode(&types); err != nil {
		return ""
	}
	for _, o := range types.Overrides {
		if o.ContentType == docxMainContentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return ""
}

// extractPPTX collects every a:t run of every slide, in archive order.
func extractPPTX(content []byte, limit int) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	b := textBuilder{limit: limit}
	for _, f := range zr.File {
		if b.full() {
			break
		}
		if !strings.HasPrefix(f.Name, pptxSlidePrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		if err := collectRuns(f, &b, "t"); err != nil {
			return "", fmt.Errorf("extract PPTX: %s: %w", f.Name, err)
		}
	}
	return b.String(), nil
}

// extractODF collects text:p, text:span and text:h content from an OpenDocument
// text, presentation or spreadsheet.
func extractODF(content []byte, limit int) (string, error) {
	zr, err := openZip(content, "ODF")
	if err != nil {
		return "", err
	}
	f := findEntry(zr, odfContentPath)
	if f == nil {
		return "", fmt.Errorf("extract ODF: %s not found", odfContentPath)
	}
	b := textBuilder{limit: limit}
	if err := collectRuns(f, &b, "p", "span", "h"); err != nil {
		return "", fmt.Errorf("extract ODF: %w", err)
	}
	return b.String(), nil
}

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// collectRuns streams the XML entry and appends the character data found directly inside
// elements with one of the given local names, until the builder is full.
func collectRuns(f *zip.File, b *textBuilder, locals ...string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	wanted := make(map[string]bool, len(locals))
	for _, l := range locals {
		wanted[l] = true
	}
	dec := xml.NewDecoder(rc)
	dec.Strict = false
	var stack []bool
	for !b.full() {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, wanted[t.Name.Local])
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 && stack[len(stack)-1] {
				b.add(string(t))
			}
		}
	}
	return nil
}

// textBuilder joins trimmed, non-empty runs with single spaces. A positive limit marks it
// full once that many bytes are held.
type textBuilder struct {
	sb    strings.Builder
	limit int
}

func (b *textBuilder) full() bool { return b.limit > 0 && b.sb.Len() >= b.limit }

func (b *textBuilder) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteByte(' ')
	}
	b.sb.WriteString(s)
}

func (b *textBuilder) String() string { return b.sb.String() }
