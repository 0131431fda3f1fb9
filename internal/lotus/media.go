package lotus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hyperjump/lotuswxr/internal/fileid"
	"github.com/hyperjump/lotuswxr/internal/models"
)

// Media is an attachment or embedded image. Two Media with the same ContentHash are the
// same file regardless of path or name.
type Media struct {
	Path        string
	MimeType    string
	ContentHash string
	// CreatedAt is the source modification time; the export has no better timestamp.
	CreatedAt time.Time
	// Name is the sanitized filename derived from the source filename.
	Name string
}

// NewMedia classifies the file at path as media. It fails with a *MediaClassificationError
// when the path is not a readable regular file.
func NewMedia(path string) (*Media, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, notMedia(path, "stat", err)
	}
	if !info.Mode().IsRegular() {
		return nil, notMedia(path, "not a regular file", nil)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, notMedia(path, "detect type", err)
	}
	hash, err := fileid.FileHash(path)
	if err != nil {
		return nil, notMedia(path, "hash content", err)
	}
	return &Media{
		Path:        path,
		MimeType:    mt.String(),
		ContentHash: hash,
		CreatedAt:   info.ModTime(),
		Name:        SanitizeFileName(filepath.Base(path)),
	}, nil
}

// Equal reports whether both media have identical content.
func (m *Media) Equal(other *Media) bool {
	return other != nil && m.ContentHash == other.ContentHash
}

// Ext returns the lowercase extension of the sanitized name, including the dot.
func (m *Media) Ext() string {
	return strings.ToLower(filepath.Ext(m.Name))
}

// ArchiveName is the stored filename: the content hash plus the lowercased extension.
func (m *Media) ArchiveName() string {
	return m.ContentHash + m.Ext()
}

// ArchiveRelPath is the stored path relative to the archive's pages directory.
func (m *Media) ArchiveRelPath() string {
	return models.MediaDir + "/" + m.ArchiveName()
}

func (m *Media) SourcePath() string { return m.Path }

func (m *Media) ArchiveDir(root string) string {
	return filepath.Join(root, models.PagesDir, models.MediaDir)
}

func (m *Media) ArchivePath(root string) string {
	return filepath.Join(m.ArchiveDir(root), m.ArchiveName())
}

// Archive copies the media bytes into the archive under root, keeping the source
// modification time. An existing copy is left as is.
func (m *Media) Archive(root string) error {
	dst := m.ArchivePath(root)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(m.ArchiveDir(root), 0755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	src, err := os.Open(m.Path)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer src.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create media copy: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy media: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close media copy: %w", err)
	}
	if err := os.Chtimes(dst, m.CreatedAt, m.CreatedAt); err != nil {
		return fmt.Errorf("set media times: %w", err)
	}
	return nil
}
