package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
	"github.com/spf13/cobra"
)

// defaultPipeline builds a pipeline on the Tesseract engine.
func defaultPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithLogger(logger).
		Build()
}

// addRecognitionFlags adds the flags shared by the commands that run recognitions.
func addRecognitionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("strategies", nil, "comma-separated strategy IDs to try in order (overrides --profile)")
	cmd.Flags().String("profile", "", "named strategy profile (default from config)")
	cmd.Flags().Duration("timeout", 0, "recognition timeout (default from config)")
	cmd.Flags().String("deadline-mode", "", "timeout scope: per_attempt or global")
	cmd.Flags().Bool("require-text", false, "treat an empty result as a failed attempt")
	cmd.Flags().String("spacing", "", "CJK spacing policy: preserve or insert")
	cmd.Flags().String("asset-source", "", "language asset source: http, dir or s3")
	cmd.Flags().String("assets-dir", "", "directory served by the dir asset source")
	cmd.Flags().String("tessdata-dir", "", "directory with traineddata files for the local profile")
}

// applyRecognitionFlags copies changed recognition flags into cfg and
// re-validates it.
func applyRecognitionFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("profile") {
		cfg.Recognition.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("timeout") {
		cfg.Recognition.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("deadline-mode") {
		cfg.Recognition.DeadlineMode, _ = flags.GetString("deadline-mode")
	}
	if flags.Changed("require-text") {
		cfg.Recognition.RequireText, _ = flags.GetBool("require-text")
	}
	if flags.Changed("spacing") {
		cfg.Recognition.Spacing, _ = flags.GetString("spacing")
	}
	if flags.Changed("asset-source") {
		cfg.Assets.Source, _ = flags.GetString("asset-source")
	}
	if flags.Changed("assets-dir") {
		cfg.Assets.Dir, _ = flags.GetString("assets-dir")
	}
	if flags.Changed("tessdata-dir") {
		cfg.Engine.TessdataDir, _ = flags.GetString("tessdata-dir")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// pipelineFor builds a pipeline from the loaded configuration with the
// command's flag overrides applied.
func (a *app) pipelineFor(cmd *cobra.Command, overrides ...func(*cobra.Command, *config.Config)) (*config.Config, *pipeline.Pipeline, error) {
	cfg := *a.config
	for _, apply := range overrides {
		apply(cmd, &cfg)
	}
	if cmd.Flags().Lookup("profile") != nil {
		if err := applyRecognitionFlags(cmd, &cfg); err != nil {
			return nil, nil, err
		}
	}
	p, err := a.buildPipeline(&cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build OCR pipeline: %w", err)
	}
	return &cfg, p, nil
}
