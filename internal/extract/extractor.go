// Package extract pulls plain text out of attachment files so the export can carry an excerpt.
package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/lotuswxr/pkg/utils"
)

// ErrUnsupported is returned for media types the extractor has no reader for.
var ErrUnsupported = errors.New("unsupported media type")

// Extractor extracts plain text from attachment files, selected by sniffed MIME type.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// readerFunc extracts text from content. A positive limit lets the reader stop once it
// holds at least that many characters.
type readerFunc func(content []byte, limit int) (string, error)

var readers = map[string]readerFunc{
	"application/pdf": extractPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   extractDOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": extractPPTX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         extractSpreadsheet,
	"application/vnd.oasis.opendocument.text":                                   extractODF,
	"application/vnd.oasis.opendocument.presentation":                           extractODF,
	"application/vnd.oasis.opendocument.spreadsheet":                            extractODF,
	"text/plain": extractPlain,
	"text/csv":   extractPlain,
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(mimeType string) string {
	t, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

// Supports reports whether mimeType has a text reader.
func (e *Extractor) Supports(mimeType string) bool {
	_, ok := readers[baseType(mimeType)]
	return ok
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path, mimeType string) (string, error) {
	return e.extractFile(path, mimeType, 0)
}

// ExtractBytes extracts text from content of the given MIME type.
func (e *Extractor) ExtractBytes(content []byte, mimeType string) (string, error) {
	return e.extract(content, mimeType, 0)
}

// Excerpt returns at most n characters of the file's text with whitespace collapsed.
func (e *Extractor) Excerpt(path, mimeType string, n int) (string, error) {
	// collapsing shrinks the text, so read past n before truncating
	text, err := e.extractFile(path, mimeType, 2*n)
	if err != nil {
		return "", err
	}
	return utils.Truncate(utils.CollapseSpace(text), n), nil
}

func (e *Extractor) extractFile(path, mimeType string, limit int) (string, error) {
	if !e.Supports(mimeType) {
		return "", fmt.Errorf("%s: %w", mimeType, ErrUnsupported)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.extract(content, mimeType, limit)
}

func (e *Extractor) extract(content []byte, mimeType string, limit int) (string, error) {
	read, ok := readers[baseType(mimeType)]
	if !ok {
		return "", fmt.Errorf("%s: %w", mimeType, ErrUnsupported)
	}
	return read(content, limit)
}
