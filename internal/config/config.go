// Package config provides configuration loading and structs for the lotuswxr commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool          `yaml:"debug"`
	LogFile  string        `yaml:"log_file"`
	Timezone string        `yaml:"timezone"`
	Source   SourceConfig  `yaml:"source"`
	Archive  ArchiveConfig `yaml:"archive"`
	Export   ExportConfig  `yaml:"export"`
	Server   ServerConfig  `yaml:"server"`
	Search   SearchConfig  `yaml:"search"`
	Watch    WatchConfig   `yaml:"watch"`
	Publish  PublishConfig `yaml:"publish"`
}

// SourceConfig describes the scraped Lotus tree.
type SourceConfig struct {
	Root string `yaml:"root"`
	// ContentsPage is the Lotus contents view, relative to Root. Empty walks the tree instead.
	ContentsPage string `yaml:"contents_page"`
	// Parser is the HTML parser backend: html5 or noscript.
	Parser string `yaml:"parser"`
	// OriginalURLPrefix, when set, adds a notice linking each page to its original location.
	OriginalURLPrefix string `yaml:"original_url_prefix"`
}

// ContentsPath returns the absolute contents page path, or "" when none is configured.
func (s *SourceConfig) ContentsPath() string {
	if s.ContentsPage == "" {
		return ""
	}
	if filepath.IsAbs(s.ContentsPage) {
		return s.ContentsPage
	}
	return filepath.Join(s.Root, s.ContentsPage)
}

// ArchiveConfig holds the intermediate archive location.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// ExportConfig holds WXR export settings.
type ExportConfig struct {
	File       string `yaml:"file"`
	Title      string `yaml:"title"`
	SiteID     int    `yaml:"site_id"`
	NetworkURL string `yaml:"network_url"`
	SiteURL    string `yaml:"site_url"`
	MediaURL   string `yaml:"media_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SearchConfig holds archive search settings.
type SearchConfig struct {
	IndexPath    string `yaml:"index_path"`
	DefaultLimit int    `yaml:"default_limit"`
}

// WatchConfig holds source watch settings.
type WatchConfig struct {
	// Debounce is how long the source must be quiet before a rebuild.
	Debounce time.Duration `yaml:"debounce"`
}

// PublishConfig holds the S3 destination for archived media.
type PublishConfig struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load reads and parses the config file at path, expands paths, applies defaults and
// normalizes base URLs. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	Normalize(&cfg)

	configDir := filepath.Dir(path)
	cfg.LogFile = expandPath(cfg.LogFile, configDir)
	cfg.Source.Root = expandPath(cfg.Source.Root, configDir)
	cfg.Archive.Dir = expandPath(cfg.Archive.Dir, configDir)
	cfg.Export.File = expandPath(cfg.Export.File, configDir)
	cfg.Search.IndexPath = expandPath(cfg.Search.IndexPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Normalize ensures every base URL ends with a trailing slash.
func Normalize(cfg *Config) {
	cfg.Export.NetworkURL = withSlash(cfg.Export.NetworkURL)
	cfg.Export.SiteURL = withSlash(cfg.Export.SiteURL)
	cfg.Export.MediaURL = withSlash(cfg.Export.MediaURL)
}

func withSlash(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
