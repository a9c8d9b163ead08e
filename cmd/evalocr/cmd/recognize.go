package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/batch"
	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
	"github.com/MeKo-Tech/evalocr/internal/progress"
	"github.com/spf13/cobra"
)

func newRecognizeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recognize [files or directories...]",
		Aliases: []string{"image"},
		Short:   "Recognize text in images",
		Long: `Recognize text in one or more images. Each image runs through the strategy
cascade until one strategy produces text.

Inputs can be image files, directories (expanded to the images they
contain), "-" for an image on stdin, or a data URI.

Supported formats: PNG, JPEG, GIF, BMP

Examples:
  evalocr recognize scan.png
  evalocr recognize scans/ --recursive --format json --output results.json
  evalocr recognize receipt.jpg --profile simple --timeout 30s
  cat scan.png | evalocr recognize - --progress`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, err := a.pipelineFor(cmd, applyOutputFlags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			strategies, _ := cmd.Flags().GetStringSlice("strategies")
			if len(args) == 1 && (args[0] == "-" || strings.HasPrefix(args[0], "data:")) {
				return recognizeSingle(ctx, cmd, p, cfg, args[0], strategies)
			}

			bcfg := &batch.Config{
				Strategies:          strategies,
				Profile:             cfg.Recognition.Profile,
				Timeout:             cfg.Recognition.Timeout,
				Format:              cfg.Output.Format,
				OutputFile:          cfg.Output.File,
				ConfidencePrecision: cfg.Output.ConfidencePrecision,
				Workers:             cfg.Batch.Workers,
				ContinueOnError:     cfg.Batch.ContinueOnError,
				ShowProgress:        cfg.Output.Progress,
			}
			bcfg.Recursive, _ = cmd.Flags().GetBool("recursive")
			bcfg.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
			bcfg.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
			bcfg.Quiet, _ = cmd.Flags().GetBool("quiet")

			res, runErr := batch.ProcessBatch(ctx, p, args, bcfg, cmd.ErrOrStderr())
			if res == nil {
				return runErr
			}
			if err := res.SaveResults(cmd.OutOrStdout(), bcfg.Format, bcfg.OutputFile, bcfg.ConfidencePrecision, bcfg.Quiet); err != nil {
				return err
			}
			if stats, _ := cmd.Flags().GetBool("stats"); stats && !bcfg.Quiet {
				res.PrintStats(cmd.ErrOrStderr())
			}
			if runErr == nil && res.Failed() > 0 {
				runErr = fmt.Errorf("%d of %d images failed", res.Failed(), len(res.Items))
			}
			return runErr
		},
	}

	addRecognitionFlags(cmd)
	cmd.Flags().StringP("format", "f", "", "output format: text, json or csv (default from config)")
	cmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	cmd.Flags().Int("precision", 0, "decimal places for confidence values (default from config)")
	cmd.Flags().Bool("progress", false, "show progress on stderr")
	cmd.Flags().IntP("workers", "w", 0, "number of images recognized concurrently (default from config)")
	cmd.Flags().Bool("continue-on-error", false, "exit successfully when some images fail")
	cmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringSlice("include", nil, "file patterns to include from directories (default: image extensions)")
	cmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")
	cmd.Flags().BoolP("quiet", "q", false, "suppress progress and status messages")
	cmd.Flags().Bool("stats", false, "print processing statistics on stderr")
	return cmd
}

func applyOutputFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output") {
		cfg.Output.File, _ = flags.GetString("output")
	}
	if flags.Changed("precision") {
		cfg.Output.ConfidencePrecision, _ = flags.GetInt("precision")
	}
	if flags.Changed("progress") {
		cfg.Output.Progress, _ = flags.GetBool("progress")
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("continue-on-error") {
		cfg.Batch.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}
}

// recognizeSingle handles stdin and data URI input, with a progress bar
// for the one request.
func recognizeSingle(ctx context.Context, cmd *cobra.Command, p *pipeline.Pipeline, cfg *config.Config, arg string, strategies []string) error {
	var (
		img imageinput.Image
		err error
	)
	if arg == "-" {
		// One byte over the ceiling lets the validator report the size.
		img, err = imageinput.FromReader(cmd.InOrStdin(), "stdin", "", cfg.Validation.MaxBytes)
	} else {
		img, err = imageinput.FromDataURI(arg)
	}
	if err != nil {
		return err
	}

	req := pipeline.Request{
		Image:      img,
		Strategies: strategies,
		Profile:    cfg.Recognition.Profile,
		Timeout:    cfg.Recognition.Timeout,
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	if cfg.Output.Progress && !quiet {
		bar := progress.NewConsoleBar(cmd.ErrOrStderr(), "Recognizing: ")
		req.OnProgress = progress.Throttle(bar.Func(), 100*time.Millisecond)
	}

	start := time.Now()
	res, recErr := p.Recognize(ctx, req)
	out := &batch.Result{
		Items:       []batch.Item{{File: img.Name, Result: res, Err: recErr}},
		Duration:    time.Since(start),
		WorkerCount: 1,
	}
	if err := out.SaveResults(cmd.OutOrStdout(), cfg.Output.Format, cfg.Output.File, cfg.Output.ConfidencePrecision, quiet); err != nil {
		return errors.Join(recErr, err)
	}
	return recErr
}
