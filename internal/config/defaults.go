package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.Source.Root == "" {
		cfg.Source.Root = "./scrape"
	}
	if cfg.Source.Parser == "" {
		cfg.Source.Parser = "html5"
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "./archive"
	}
	if cfg.Export.File == "" {
		cfg.Export.File = "./export.xml"
	}
	if cfg.Export.Title == "" {
		cfg.Export.Title = "Logbook"
	}
	if cfg.Export.SiteID == 0 {
		cfg.Export.SiteID = 1
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Search.IndexPath == "" {
		cfg.Search.IndexPath = "./archive-index"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
