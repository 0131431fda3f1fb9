package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "lotuswxr.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
timezone: "Europe/Berlin"
source:
  root: "./scrape"
  parser: noscript
export:
  site_id: 4
  network_url: "https://example.org"
  site_url: "https://example.org/logbook"
  media_url: "https://media.example.org/lotus/"
watch:
  debounce: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Root != filepath.Join(dir, "scrape") {
		t.Errorf("source.root = %s", cfg.Source.Root)
	}
	if cfg.Source.Parser != "noscript" {
		t.Errorf("source.parser = %s", cfg.Source.Parser)
	}
	if cfg.Export.SiteID != 4 {
		t.Errorf("site_id = %d", cfg.Export.SiteID)
	}
	if cfg.Export.NetworkURL != "https://example.org/" || cfg.Export.SiteURL != "https://example.org/logbook/" {
		t.Errorf("urls not normalized: %+v", cfg.Export)
	}
	if cfg.Export.MediaURL != "https://media.example.org/lotus/" {
		t.Errorf("media_url = %s", cfg.Export.MediaURL)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.LogFile != "" {
		t.Errorf("log_file should stay empty, got %q", cfg.LogFile)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
log_file: "./logs/debug.log"
archive:
  dir: "./out/archive"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "logs", "debug.log"); cfg.LogFile != want {
		t.Errorf("log_file = %s, want %s", cfg.LogFile, want)
	}
	if want := filepath.Join(dir, "out", "archive"); cfg.Archive.Dir != want {
		t.Errorf("archive.dir = %s, want %s", cfg.Archive.Dir, want)
	}
	if want := filepath.Join(dir, "export.xml"); cfg.Export.File != want {
		t.Errorf("default export.file = %s, want %s", cfg.Export.File, want)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Timezone != "UTC" {
		t.Errorf("default timezone: got %s", cfg.Timezone)
	}
	if cfg.Source.Parser != "html5" {
		t.Errorf("default parser: got %s", cfg.Source.Parser)
	}
	if cfg.Export.SiteID != 1 {
		t.Errorf("default site_id: got %d", cfg.Export.SiteID)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("default limit: got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("default debounce: got %v", cfg.Watch.Debounce)
	}
}

func TestContentsPath(t *testing.T) {
	s := SourceConfig{Root: "/data/scrape"}
	if got := s.ContentsPath(); got != "" {
		t.Errorf("ContentsPath() = %q, want empty", got)
	}
	s.ContentsPage = "db/contents.html"
	if got := s.ContentsPath(); got != "/data/scrape/db/contents.html" {
		t.Errorf("ContentsPath() = %q", got)
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Source:  SourceConfig{Root: t.TempDir()},
		Archive: ArchiveConfig{Dir: t.TempDir()},
		Export: ExportConfig{
			NetworkURL: "https://example.org/",
			SiteURL:    "https://example.org/logbook/",
			MediaURL:   "https://media.example.org/",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	all := NeedSource | NeedArchive | NeedExport
	tests := []struct {
		name    string
		mutate  func(*Config)
		need    Requirement
		wantErr string
	}{
		{"valid", func(*Config) {}, all, ""},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, 0, "timezone"},
		{"bad parser", func(c *Config) { c.Source.Parser = "lxml" }, 0, "source.parser"},
		{"missing source", func(c *Config) { c.Source.Root = "/does/not/exist" }, NeedSource, "source.root"},
		{"missing source not needed", func(c *Config) { c.Source.Root = "/does/not/exist" }, NeedArchive, ""},
		{"missing archive", func(c *Config) { c.Archive.Dir = "/does/not/exist" }, NeedArchive, "archive.dir"},
		{"bad site id", func(c *Config) { c.Export.SiteID = -1 }, NeedExport, "export.site_id"},
		{"relative url", func(c *Config) { c.Export.SiteURL = "/logbook/" }, NeedExport, "export.site_url"},
		{"missing contents page", func(c *Config) { c.Source.ContentsPage = "nope.html" }, NeedSource, "contents_page"},
		{"missing bucket", func(*Config) {}, NeedPublish, "publish.bucket"},
		{"archive is source", func(c *Config) { c.Archive.Dir = c.Source.Root }, NeedSource, "must not contain source.root"},
		{"archive contains source", func(c *Config) { c.Archive.Dir = filepath.Dir(c.Source.Root) }, NeedSource, "must not contain source.root"},
		{"archive with trailing dot", func(c *Config) { c.Archive.Dir = c.Source.Root + "/." }, NeedSource, "must not contain source.root"},
		{"archive inside source", func(c *Config) { c.Archive.Dir = filepath.Join(c.Source.Root, "archive") }, NeedSource, ""},
		{"archive beside source", func(c *Config) { c.Archive.Dir = c.Source.Root + "-archive" }, NeedSource, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg, tt.need)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
		Watch:  WatchConfig{Debounce: 3 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Watch.Debounce != 3*time.Second {
		t.Errorf("loaded debounce: got %v", loaded.Watch.Debounce)
	}
}
