package models

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Archive layout.
const (
	MetaDir        = "meta"
	PagesDir       = "pages"
	MediaDir       = "media"
	AuthorsFile    = "authors.xml"
	CategoriesFile = "categories.xml"
	PageExt        = ".xml"
)

// AuthorsRecord is meta/authors.xml.
type AuthorsRecord struct {
	XMLName xml.Name `xml:"authors"`
	Items   []string `xml:"author"`
}

// CategoriesRecord is meta/categories.xml.
type CategoriesRecord struct {
	XMLName xml.Name `xml:"categories"`
	Items   []string `xml:"category"`
}

// PagesPath returns the pages directory of the archive at root.
func PagesPath(root string) string { return filepath.Join(root, PagesDir) }

// MediaPath returns the media directory of the archive at root.
func MediaPath(root string) string { return filepath.Join(root, PagesDir, MediaDir) }

// MetaPath returns the meta directory of the archive at root.
func MetaPath(root string) string { return filepath.Join(root, MetaDir) }

// PageKeys lists the archive keys (filenames without extension) of every page, sorted.
func PageKeys(root string) ([]string, error) {
	entries, err := os.ReadDir(PagesPath(root))
	if err != nil {
		return nil, fmt.Errorf("read pages dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), PageExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), PageExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// PageFile returns the path of the page with the given key.
func PageFile(root, key string) string {
	return filepath.Join(PagesPath(root), key+PageExt)
}

// WritePage writes rec to path. List entries are sorted so output is deterministic.
func WritePage(path string, rec *PageRecord) error {
	sort.Slice(rec.Attachments.Items, func(i, j int) bool { return rec.Attachments.Items[i].Hash < rec.Attachments.Items[j].Hash })
	sort.Slice(rec.Images.Items, func(i, j int) bool { return rec.Images.Items[i].Hash < rec.Images.Items[j].Hash })
	sort.Slice(rec.URLs.Items, func(i, j int) bool { return rec.URLs.Items[i].Hash < rec.URLs.Items[j].Hash })
	return writeXML(path, rec)
}

// ReadPage reads the page record at path.
func ReadPage(path string) (*PageRecord, error) {
	var rec PageRecord
	if err := readXML(path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// WriteAuthors writes the author list to the archive's meta directory.
func WriteAuthors(root string, authors []string) error {
	return writeXML(filepath.Join(MetaPath(root), AuthorsFile), &AuthorsRecord{Items: authors})
}

// ReadAuthors reads the author list from the archive's meta directory.
func ReadAuthors(root string) ([]string, error) {
	var rec AuthorsRecord
	if err := readXML(filepath.Join(MetaPath(root), AuthorsFile), &rec); err != nil {
		return nil, err
	}
	return rec.Items, nil
}

// WriteCategories writes the category list to the archive's meta directory.
func WriteCategories(root string, categories []string) error {
	return writeXML(filepath.Join(MetaPath(root), CategoriesFile), &CategoriesRecord{Items: categories})
}

// ReadCategories reads the category list from the archive's meta directory.
func ReadCategories(root string) ([]string, error) {
	var rec CategoriesRecord
	if err := readXML(filepath.Join(MetaPath(root), CategoriesFile), &rec); err != nil {
		return nil, err
	}
	return rec.Items, nil
}

func writeXML(path string, v any) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	buf.WriteByte('\n')
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readXML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
