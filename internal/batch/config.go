package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

// Config holds all configuration for recognizing several files.
type Config struct {
	// Recognition settings shared by every file
	Strategies []string
	Profile    string
	Timeout    time.Duration

	// Output settings
	Format              string
	OutputFile          string
	ConfidencePrecision int

	// Parallel processing settings
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress bool
	Quiet        bool
}

// Item is the outcome for one file.
type Item struct {
	File   string
	Result *pipeline.Result
	Err    error
}

// Result holds the result of a batch run.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Failed returns the number of files that did not produce a result.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// FormatResults formats the batch results in the specified format.
func (r *Result) FormatResults(format string, precision int) (string, error) {
	return formatBatchResults(r.Items, format, precision)
}

// SaveResults writes the formatted results to outputFile, or to w when
// no file is given.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, precision int, quiet bool) error {
	output, err := r.FormatResults(format, precision)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, err = fmt.Fprint(w, output)
	return err
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	total := len(r.Items)
	failed := r.Failed()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", total)
	_, _ = fmt.Fprintf(w, "  Recognized: %d\n", total-failed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if total > 0 {
		avg := r.Duration / time.Duration(total)
		_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", avg.Round(time.Millisecond))
		if secs := r.Duration.Seconds(); secs > 0 {
			_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", float64(total)/secs)
		}
	}
}
