// Package batch recognizes several image files concurrently and formats
// the results for the command line.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

// Recognizer runs recognition requests in bulk.
type Recognizer interface {
	RecognizeBatch(ctx context.Context, reqs []pipeline.Request, cfg pipeline.BatchConfig) ([]pipeline.BatchItem, error)
}

// Discover expands the given files and directories into image paths.
func Discover(args []string, config *Config) ([]string, error) {
	files, err := discoverImageFiles(args, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}
	return files, nil
}

// ProcessBatch recognizes every image found under paths. Files that
// cannot be read are reported as failed items. Unless ContinueOnError is
// set, the first failure is also returned as the error.
func ProcessBatch(ctx context.Context, r Recognizer, paths []string, config *Config, progressOut io.Writer) (*Result, error) {
	files, err := Discover(paths, config)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(files))
	reqs := make([]pipeline.Request, 0, len(files))
	index := make([]int, 0, len(files))
	for i, file := range files {
		items[i].File = file
		img, err := imageinput.FromFile(file)
		if err != nil {
			items[i].Err = err
			continue
		}
		reqs = append(reqs, pipeline.Request{
			Image:      img,
			Strategies: config.Strategies,
			Profile:    config.Profile,
			Timeout:    config.Timeout,
		})
		index = append(index, i)
	}

	bcfg := pipeline.DefaultBatchConfig()
	if config.Workers > 0 {
		bcfg.MaxWorkers = config.Workers
	}
	if config.ShowProgress && !config.Quiet && progressOut != nil {
		bcfg.ProgressCallback = NewConsoleProgress(progressOut, "Recognizing: ")
	}

	start := time.Now()
	if len(reqs) > 0 {
		results, _ := r.RecognizeBatch(ctx, reqs, bcfg)
		for _, res := range results {
			slot := &items[index[res.Index]]
			slot.Result = res.Result
			slot.Err = res.Err
		}
	}

	result := &Result{Items: items, Duration: time.Since(start), WorkerCount: bcfg.MaxWorkers}
	if !config.ContinueOnError {
		for _, it := range items {
			if it.Err != nil {
				return result, fmt.Errorf("%s: %w", it.File, it.Err)
			}
		}
	}
	return result, nil
}

// ConsoleProgress prints a "done/total" counter on one line.
type ConsoleProgress struct {
	writer io.Writer
	prefix string
	mu     sync.Mutex
	failed int
}

// NewConsoleProgress creates a counter writing to w.
func NewConsoleProgress(w io.Writer, prefix string) *ConsoleProgress {
	return &ConsoleProgress{writer: w, prefix: prefix}
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\r%s0/%d", c.prefix, total)
}

func (c *ConsoleProgress) OnProgress(done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\r%s%d/%d", c.prefix, done, total)
	if c.failed > 0 {
		_, _ = fmt.Fprintf(c.writer, " (%d failed)", c.failed)
	}
}

func (c *ConsoleProgress) OnError(int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

func (c *ConsoleProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.writer)
}
