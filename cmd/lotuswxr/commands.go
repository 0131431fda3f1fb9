package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/lotuswxr/internal/archiver"
	"github.com/hyperjump/lotuswxr/internal/cli"
	"github.com/hyperjump/lotuswxr/internal/config"
	"github.com/hyperjump/lotuswxr/internal/extract"
	"github.com/hyperjump/lotuswxr/internal/keyword"
	"github.com/hyperjump/lotuswxr/internal/lotus"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/internal/publish"
	"github.com/hyperjump/lotuswxr/internal/server"
	"github.com/hyperjump/lotuswxr/internal/watcher"
	"github.com/hyperjump/lotuswxr/internal/wxr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func outputFormat(asJSON bool) cli.OutputFormat {
	if asJSON {
		return cli.OutputJSON
	}
	return cli.OutputText
}

// newArchiver wires a parser and archiver from the configuration.
func (a *app) newArchiver() (*archiver.Archiver, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	parser := lotus.NewParser(
		lotus.WithLogger(a.logger),
		lotus.WithLocation(loc),
		lotus.WithBackend(lotus.Backend(a.cfg.Source.Parser)),
	)
	return archiver.New(a.cfg.Source.Root, parser,
		archiver.WithLogger(a.logger),
		archiver.WithMetrics(a.metrics),
		archiver.WithContentsPage(a.cfg.Source.ContentsPath()),
		archiver.WithNoticePrefix(a.cfg.Source.OriginalURLPrefix),
	), nil
}

// newExporter wires an exporter from the configuration. Excerpts need the extractor.
func (a *app) newExporter(excerpts bool) (*wxr.Exporter, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	site := wxr.Site{
		Title:      a.cfg.Export.Title,
		ID:         a.cfg.Export.SiteID,
		NetworkURL: a.cfg.Export.NetworkURL,
		SiteURL:    a.cfg.Export.SiteURL,
		MediaURL:   a.cfg.Export.MediaURL,
		Location:   loc,
	}
	opts := []wxr.Option{wxr.WithLogger(a.logger), wxr.WithMetrics(a.metrics)}
	if excerpts {
		opts = append(opts, wxr.WithExtractor(extract.NewExtractor()))
	}
	return wxr.New(a.cfg.Archive.Dir, site, opts...), nil
}

func newArchiveCommand(g *globalFlags) *cobra.Command {
	var source, archiveDir, contents, parser string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Parse the scraped Lotus tree into the intermediate archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd, config.NeedSource, func(cfg *config.Config) {
				setIf(&cfg.Source.Root, source)
				setIf(&cfg.Archive.Dir, archiveDir)
				setIf(&cfg.Source.ContentsPage, contents)
				setIf(&cfg.Source.Parser, parser)
			})
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			arc, err := a.newArchiver()
			if err != nil {
				return err
			}
			s, err := arc.Run(ctx, a.cfg.Archive.Dir)
			if err != nil {
				return err
			}
			return cli.WriteSummary(cmd.OutOrStdout(), "Archived "+a.cfg.Archive.Dir, s, outputFormat(asJSON))
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "", "source root (overrides source.root)")
	f.StringVar(&archiveDir, "archive", "", "archive directory (overrides archive.dir)")
	f.StringVar(&contents, "contents-page", "", "contents view relative to the source root")
	f.StringVar(&parser, "parser", "", "HTML parser backend: html5 or noscript")
	f.BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func newExportCommand(g *globalFlags) *cobra.Command {
	var archiveDir, output string
	var noExcerpts, asJSON bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the archive as a WordPress eXtended RSS file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd, config.NeedArchive|config.NeedExport, func(cfg *config.Config) {
				setIf(&cfg.Archive.Dir, archiveDir)
				setIf(&cfg.Export.File, output)
			})
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			exp, err := a.newExporter(!noExcerpts)
			if err != nil {
				return err
			}
			s, err := exp.ExportFile(ctx, a.cfg.Export.File)
			if err != nil {
				return err
			}
			return cli.WriteSummary(cmd.OutOrStdout(), "Exported "+a.cfg.Export.File, s, outputFormat(asJSON))
		},
	}
	f := cmd.Flags()
	f.StringVar(&archiveDir, "archive", "", "archive directory (overrides archive.dir)")
	f.StringVarP(&output, "output", "o", "", "export file (overrides export.file)")
	f.BoolVar(&noExcerpts, "no-excerpts", false, "do not extract attachment text for excerpts")
	f.BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func newWatchCommand(g *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Archive, then re-archive whenever the source tree changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd, config.NeedSource, func(cfg *config.Config) {
				if debounce > 0 {
					cfg.Watch.Debounce = debounce
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			arc, err := a.newArchiver()
			if err != nil {
				return err
			}
			rebuild := func(ctx context.Context) error {
				s, err := arc.Run(ctx, a.cfg.Archive.Dir)
				if err != nil {
					return err
				}
				return cli.WriteSummary(cmd.OutOrStdout(), "Archived "+a.cfg.Archive.Dir, s, cli.OutputText)
			}
			if err := rebuild(ctx); err != nil {
				return err
			}
			w := watcher.New(a.cfg.Source.Root, rebuild,
				watcher.WithLogger(a.logger),
				watcher.WithDebounce(a.cfg.Watch.Debounce),
				watcher.WithIgnore(a.cfg.Archive.Dir, a.cfg.Search.IndexPath, a.cfg.Export.File, a.cfg.LogFile),
			)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			<-ctx.Done()
			w.Stop()
			a.logger.Info("stopped watching", zap.Int("rebuilds", w.Runs()))
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a rebuild (overrides watch.debounce)")
	return cmd
}

func newServeCommand(g *globalFlags) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve archived media, the export, search and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd, config.NeedArchive|config.NeedExport, func(cfg *config.Config) {
				setIf(&cfg.Server.Host, host)
				if port > 0 {
					cfg.Server.Port = port
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			exp, err := a.newExporter(true)
			if err != nil {
				return err
			}
			idx, err := keyword.Rebuild(ctx, a.cfg.Search.IndexPath, a.cfg.Archive.Dir, a.logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			srv := server.NewServer(a.cfg.Archive.Dir, &a.cfg.Server, a.logger,
				server.WithExporter(exp),
				server.WithSearcher(idx),
				server.WithMetrics(a.metrics),
				server.WithDefaultLimit(a.cfg.Search.DefaultLimit),
			)
			errc := make(chan error, 1)
			go func() { errc <- srv.Start() }()
			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdown)
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "", "listen host (overrides server.host)")
	f.IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func newSearchCommand(g *globalFlags) *cobra.Command {
	var limit, offset, fuzzy int
	var asJSON, reindex bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the archived pages",
		Long:  "Search titles, authors, categories and text of the archived pages. The query is all arguments joined by spaces.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildSearchQuery(args)
			if query == "" {
				return errors.New("query cannot be empty")
			}
			a, err := g.setup(cmd, config.NeedArchive, nil)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			idx, err := openIndex(ctx, a, reindex)
			if err != nil {
				return err
			}
			defer idx.Close()

			if limit <= 0 {
				limit = a.cfg.Search.DefaultLimit
			}
			resp, err := idx.Search(ctx, &models.SearchQuery{Query: query, Limit: limit, Offset: offset}, &keyword.SearchOptions{Fuzziness: fuzzy})
			if err != nil {
				return err
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, outputFormat(asJSON), loc)
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 0, "maximum number of hits (default search.default_limit)")
	f.IntVar(&offset, "offset", 0, "number of hits to skip")
	f.IntVar(&fuzzy, "fuzzy", 0, "edit distance for typo tolerant matching (0 disables)")
	f.BoolVar(&asJSON, "json", false, "print results as JSON")
	f.BoolVar(&reindex, "reindex", false, "rebuild the index from the archive first")
	return cmd
}

// openIndex reuses the search index unless it is missing or a rebuild is requested.
func openIndex(ctx context.Context, a *app, reindex bool) (*keyword.BleveIndex, error) {
	if _, err := os.Stat(a.cfg.Search.IndexPath); err != nil || reindex {
		return keyword.Rebuild(ctx, a.cfg.Search.IndexPath, a.cfg.Archive.Dir, a.logger)
	}
	return keyword.Open(a.cfg.Search.IndexPath)
}

func newPublishCommand(g *globalFlags) *cobra.Command {
	var bucket, prefix string
	var force, asJSON bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload archived media to S3 so the importer can sideload it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd, config.NeedArchive|config.NeedPublish, func(cfg *config.Config) {
				setIf(&cfg.Publish.Bucket, bucket)
				setIf(&cfg.Publish.Prefix, prefix)
			})
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			client, err := publish.NewClient(a.cfg.Publish)
			if err != nil {
				return err
			}
			p := publish.New(client, a.cfg.Publish.Bucket, a.cfg.Publish.Prefix,
				publish.WithLogger(a.logger),
				publish.WithMetrics(a.metrics),
				publish.WithForce(force),
			)
			s, err := p.Publish(ctx, a.cfg.Archive.Dir)
			if err != nil {
				return err
			}
			return cli.WriteSummary(cmd.OutOrStdout(), "Published to s3://"+a.cfg.Publish.Bucket+"/"+p.Key(""), s, outputFormat(asJSON))
		},
	}
	f := cmd.Flags()
	f.StringVar(&bucket, "bucket", "", "destination bucket (overrides publish.bucket)")
	f.StringVar(&prefix, "prefix", "", "key prefix (overrides publish.prefix)")
	f.BoolVar(&force, "force", false, "upload files even when the object exists")
	f.BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
