package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
	"github.com/MeKo-Tech/evalocr/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the state shared by every command of one invocation.
type app struct {
	cfgFile string
	loader  *config.Loader
	config  *config.Config
	logger  *slog.Logger

	// buildPipeline constructs the recognition pipeline from the loaded
	// configuration.
	buildPipeline func(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error)
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand returns a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{buildPipeline: defaultPipeline})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evalocr",
		Short: "Multi-strategy OCR with engine lifecycle management",
		Long: `evalocr recognizes text in images with the Tesseract engine. Each request
runs a cascade of language-set strategies (Chinese+English first, then
English fallbacks) until one produces text, and every engine it acquires
is released again, even on failure or timeout.

This tool provides:
- Recognition of PNG, JPEG, GIF and BMP images, from files, stdin or data URIs
- Normalized progress reporting and text clean-up for mixed CJK/Latin text
- Capability diagnostics for the runtime and the language assets
- An HTTP/WebSocket server with Prometheus metrics

Examples:
  evalocr recognize scan.png
  evalocr recognize scans/ --recursive --format json
  evalocr probe
  evalocr serve --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/evalocr, /etc/evalocr)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("profiles-file", "", "YAML file with additional language sets and profiles")
	rootCmd.Flags().Bool("version", false, "print version information and exit")

	rootCmd.AddCommand(
		newRecognizeCmd(a),
		newValidateCmd(a),
		newProbeCmd(a),
		newStrategiesCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// init loads the configuration and sets up structured logging.
func (a *app) init(cmd *cobra.Command) error {
	v := viper.New()
	root := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"verbose":       "verbose",
		"log_level":     "log-level",
		"profiles_file": "profiles-file",
	} {
		if f := root.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	a.loader = config.NewLoader(v)
	var err error
	a.config, err = a.loader.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	a.logger = newLogger(cmd.ErrOrStderr(), a.config)
	slog.SetDefault(a.logger)
	return nil
}

// newLogger writes JSON logs to w; stdout is kept for results.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printVersion(w io.Writer) {
	v, commit, date := version.Info()
	_, _ = fmt.Fprintf(w, "evalocr version %s\n", v)
	_, _ = fmt.Fprintf(w, "Commit: %s\n", commit)
	_, _ = fmt.Fprintf(w, "Date: %s\n", date)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
