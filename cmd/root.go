package cmd

import (
	"fmt"
	"strings"

	"github.com/phumblot-gs/gs-stream-digest-sub000/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the configuration loaded for every command
type RootOptions struct {
	LogLevel  string
	LogFormat string

	cfg *config.Config
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the digest service
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "gs-stream-digest",
		Short:         "Scheduled email digests of event bus activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := configureLogging(cfg, opts); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides LOG_FORMAT")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewPauseCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))

	return cmd
}

// NewServeCommand runs the scheduler and admin API until interrupted
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the digest scheduler and admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), opts.cfg)
		},
	}
}

func configureLogging(cfg *config.Config, opts *RootOptions) error {
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)

	format := strings.ToLower(cfg.LogFormat)
	if opts.LogFormat != "" {
		format = strings.ToLower(opts.LogFormat)
	}
	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q: must be one of %v", format, ValidLogFormats)
	}
	return nil
}
