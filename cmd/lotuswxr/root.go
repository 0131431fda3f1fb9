package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/hyperjump/lotuswxr/internal/config"
	"github.com/hyperjump/lotuswxr/pkg/metrics"
	"github.com/hyperjump/lotuswxr/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "lotuswxr.yaml"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	logFile    string
	timezone   string
}

// app is what a subcommand needs after startup.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "lotuswxr",
		Short:         "Convert a scraped Lotus Notes logbook into a WordPress import file",
		Long:          "lotuswxr parses a scraped Lotus Notes web view into an intermediate XML archive and renders that archive as a WordPress eXtended RSS file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	pf.BoolVar(&g.debug, "debug", false, "enable debug logging")
	pf.StringVar(&g.logFile, "log-file", "", "also write a debug log to this file")
	pf.StringVar(&g.timezone, "timezone", "", "IANA timezone of the logbook dates")

	root.AddCommand(
		newInitCommand(g),
		newArchiveCommand(g),
		newExportCommand(g),
		newWatchCommand(g),
		newServeCommand(g),
		newSearchCommand(g),
		newPublishCommand(g),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads the config file. A missing file is only an error when the path was given
// explicitly; otherwise defaults are used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		config.Normalize(cfg)
		return cfg, nil
	}
	return nil, &config.ConfigurationError{Problems: []string{err.Error()}}
}

// setup loads and validates the configuration, applying overrides before validation, and
// builds the logger.
func (g *globalFlags) setup(cmd *cobra.Command, need config.Requirement, override func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(g.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if g.debug {
		cfg.Debug = true
	}
	if g.logFile != "" {
		cfg.LogFile = g.logFile
	}
	if g.timezone != "" {
		cfg.Timezone = g.timezone
	}
	if override != nil {
		override(cfg)
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg, need); err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(cfg.Debug, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", g.configPath), zap.Bool("debug", cfg.Debug))
	return &app{cfg: cfg, logger: logger, metrics: metrics.New()}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func newInitCommand(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(g.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", g.configPath)
			}
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			cfg.Export.NetworkURL = "https://example.org/"
			cfg.Export.SiteURL = "https://example.org/logbook/"
			cfg.Export.MediaURL = "http://localhost:8080/media/"
			if err := config.Save(g.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", g.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lotuswxr version %s\n", version)
		},
	}
}

// buildSearchQuery joins the positional arguments into one query.
func buildSearchQuery(args []string) string {
	return strings.Join(strings.Fields(strings.Join(args, " ")), " ")
}
