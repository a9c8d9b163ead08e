package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/MeKo-Tech/evalocr/internal/diagnostics"
	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/spf13/cobra"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFlag(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case outputFormatText, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (must be one of: %s, %s)", format, outputFormatText, outputFormatJSON)
	}
}

type validationEntry struct {
	File string `json:"file"`
	imageinput.ValidationResult
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Check images without running recognition",
		Long: `Check that images are in an accepted format, decodable and within the
size limit. No engine is started.

Examples:
  evalocr validate scan.png photo.jpg
  evalocr validate scan.png --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatFlag(cmd)
			if err != nil {
				return err
			}
			_, p, err := a.pipelineFor(cmd, func(cmd *cobra.Command, cfg *config.Config) {
				if cmd.Flags().Changed("max-bytes") {
					cfg.Validation.MaxBytes, _ = cmd.Flags().GetInt64("max-bytes")
				}
				if cmd.Flags().Changed("max-pixels") {
					cfg.Validation.MaxPixels, _ = cmd.Flags().GetInt64("max-pixels")
				}
			})
			if err != nil {
				return err
			}

			entries := make([]validationEntry, 0, len(args))
			invalid := 0
			for _, path := range args {
				entry := validationEntry{File: path}
				img, err := imageinput.FromFile(path)
				if err != nil {
					entry.Error = err.Error()
				} else {
					entry.ValidationResult = p.ValidateImage(img)
					if entry.Err != nil {
						entry.Error = ocrerr.UserMessage(entry.Err)
						entry.Kind = string(ocrerr.KindOf(entry.Err))
					}
				}
				if !entry.Valid {
					invalid++
				}
				entries = append(entries, entry)
			}

			out := cmd.OutOrStdout()
			if format == outputFormatJSON {
				if err := writeJSON(out, entries); err != nil {
					return err
				}
			} else {
				for _, e := range entries {
					if e.Valid {
						_, _ = fmt.Fprintf(out, "%s: ok (%s, %dx%d, %d bytes)\n", e.File, e.Format, e.Width, e.Height, e.Size)
					} else {
						_, _ = fmt.Fprintf(out, "%s: invalid: %s\n", e.File, e.Error)
					}
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d images are invalid", invalid, len(entries))
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", outputFormatText, "output format: text or json")
	cmd.Flags().Int64("max-bytes", 0, "size limit in bytes (default from config)")
	cmd.Flags().Int64("max-pixels", 0, "limit on width*height (default from config)")
	return cmd
}

func newProbeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "probe",
		Aliases: []string{"diagnostics"},
		Short:   "Check runtime capabilities and language asset availability",
		Long: `Run the capability diagnostics: whether the engine can run concurrent
workers, whether the WebAssembly runtime works, and whether the language
assets of the default profile are reachable. Recommendations explain how to
fix each failed check.

Examples:
  evalocr probe
  evalocr probe --format json --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatFlag(cmd)
			if err != nil {
				return err
			}
			_, p, err := a.pipelineFor(cmd, func(cmd *cobra.Command, cfg *config.Config) {
				if cmd.Flags().Changed("check-timeout") {
					cfg.Diagnostics.Timeout, _ = cmd.Flags().GetDuration("check-timeout")
				}
			})
			if err != nil {
				return err
			}

			report := p.ProbeEnvironment(cmd.Context())
			out := cmd.OutOrStdout()
			if format == outputFormatJSON {
				if err := writeJSON(out, struct {
					Healthy bool `json:"healthy"`
					diagnostics.Report
				}{report.Healthy(), report}); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}

			if strict, _ := cmd.Flags().GetBool("strict"); strict && !report.Healthy() {
				return errors.New("environment checks failed")
			}
			return nil
		},
	}
	addRecognitionFlags(cmd)
	cmd.Flags().StringP("format", "f", outputFormatText, "output format: text or json")
	cmd.Flags().Duration("check-timeout", 0, "timeout for each check (default from config)")
	cmd.Flags().Bool("strict", false, "exit with an error when a check fails")
	return cmd
}

func printReport(w io.Writer, r diagnostics.Report) {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "FAILED"
	}
	_, _ = fmt.Fprintf(w, "Engine: %s\n", r.EngineVersion)
	_, _ = fmt.Fprintf(w, "Asset source: %s\n", r.AssetSource)
	_, _ = fmt.Fprintf(w, "Worker support: %s\n", mark(r.WorkerSupported))
	_, _ = fmt.Fprintf(w, "WebAssembly support: %s\n", mark(r.WasmSupported))

	locations := make([]string, 0, len(r.AssetReachability))
	for loc := range r.AssetReachability {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	for _, loc := range locations {
		_, _ = fmt.Fprintf(w, "Asset %s: %s\n", loc, mark(r.AssetReachability[loc]))
	}

	if len(r.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			_, _ = fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	status := "healthy"
	if !r.Healthy() {
		status = "degraded"
	}
	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", status)
}

func newStrategiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "strategies",
		Aliases: []string{"models"},
		Short:   "List the language-set strategies and profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatFlag(cmd)
			if err != nil {
				return err
			}
			cfg, p, err := a.pipelineFor(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == outputFormatJSON {
				return writeJSON(out, map[string]any{
					"strategies":      p.Strategies(),
					"profiles":        p.Profiles(),
					"default_profile": cfg.Recognition.Profile,
				})
			}

			_, _ = fmt.Fprintln(out, "Strategies:")
			for _, s := range p.Strategies() {
				_, _ = fmt.Fprintf(out, "  %-16s %-12s %-9s %s\n", s.ID, s.Model(), s.Variant, s.Description)
			}
			_, _ = fmt.Fprintln(out, "\nProfiles:")
			for _, pr := range p.Profiles() {
				def := ""
				if pr.Name == cfg.Recognition.Profile {
					def = " (default)"
				}
				_, _ = fmt.Fprintf(out, "  %-16s %s%s\n", pr.Name, strings.Join(pr.Strategies, " -> "), def)
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", outputFormatText, "output format: text or json")
	return cmd
}
