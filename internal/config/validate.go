package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig is matched by every *ConfigurationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError lists every problem found in a configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

func (e *ConfigurationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Requirement selects which parts of a configuration a command depends on.
type Requirement int

const (
	// NeedSource requires an existing source root.
	NeedSource Requirement = 1 << iota
	// NeedArchive requires an existing archive directory.
	NeedArchive
	// NeedExport requires valid export settings.
	NeedExport
	// NeedPublish requires an S3 bucket.
	NeedPublish
)

// Validate checks cfg for the given requirements and returns a *ConfigurationError
// listing all problems, or nil.
func Validate(cfg *Config, need Requirement) error {
	e := &ConfigurationError{}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		e.add("timezone %q: %v", cfg.Timezone, err)
	}
	if cfg.Source.Parser != "html5" && cfg.Source.Parser != "noscript" {
		e.add("source.parser %q: must be html5 or noscript", cfg.Source.Parser)
	}
	if need&NeedSource != 0 {
		checkDir(e, "source.root", cfg.Source.Root)
		if p := cfg.Source.ContentsPath(); p != "" {
			if info, err := os.Stat(p); err != nil || !info.Mode().IsRegular() {
				e.add("source.contents_page %q: not a readable file", p)
			}
		}
		checkSeparate(e, cfg.Source.Root, cfg.Archive.Dir)
	}
	if need&NeedArchive != 0 {
		checkDir(e, "archive.dir", cfg.Archive.Dir)
	}
	if need&NeedExport != 0 {
		if cfg.Export.SiteID <= 0 {
			e.add("export.site_id %d: must be positive", cfg.Export.SiteID)
		}
		checkURL(e, "export.network_url", cfg.Export.NetworkURL)
		checkURL(e, "export.site_url", cfg.Export.SiteURL)
		checkURL(e, "export.media_url", cfg.Export.MediaURL)
	}
	if need&NeedPublish != 0 && cfg.Publish.Bucket == "" {
		e.add("publish.bucket: required")
	}
	if len(e.Problems) > 0 {
		return e
	}
	return nil
}

func checkDir(e *ConfigurationError, field, path string) {
	info, err := os.Stat(path)
	if err != nil {
		e.add("%s %q: %v", field, path, err)
		return
	}
	if !info.IsDir() {
		e.add("%s %q: not a directory", field, path)
	}
}

// checkSeparate rejects an archive directory that is, or contains, the source root:
// archiving clears the archive directory first.
func checkSeparate(e *ConfigurationError, source, archive string) {
	if source == "" || archive == "" {
		return
	}
	src, err := filepath.Abs(source)
	if err != nil {
		return
	}
	dst, err := filepath.Abs(archive)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(dst, src)
	if err != nil {
		return
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		e.add("archive.dir %q: must not contain source.root %q", archive, source)
	}
}

func checkURL(e *ConfigurationError, field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		e.add("%s %q: must be an absolute http(s) URL", field, raw)
	}
}
