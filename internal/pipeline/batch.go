package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProgressCallback receives batch-level progress.
type ProgressCallback interface {
	// OnStart is called once with the number of requests.
	OnStart(total int)
	// OnProgress is called after each finished request.
	OnProgress(done, total int)
	// OnError is called for each failed request.
	OnError(index int, err error)
	// OnComplete is called when the batch is finished.
	OnComplete()
}

// NoOpProgressCallback implements ProgressCallback and does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(_, _ int) {}
func (NoOpProgressCallback) OnError(int, error)  {}
func (NoOpProgressCallback) OnComplete()         {}

// BatchConfig holds configuration for batch recognition.
type BatchConfig struct {
	MaxWorkers       int // concurrent requests (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback
}

// DefaultBatchConfig returns sensible defaults for batch recognition.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{MaxWorkers: runtime.NumCPU()}
}

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	Index  int
	Name   string
	Result *Result
	Err    error
}

// RecognizeBatch runs several requests with bounded concurrency. Items
// are returned in input order; one failing request does not stop the
// others. The error is the first failure in input order.
func (p *Pipeline) RecognizeBatch(ctx context.Context, reqs []Request, cfg BatchConfig) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, errors.New("no requests provided")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	cb := cfg.ProgressCallback
	if cb == nil {
		cb = NoOpProgressCallback{}
	}
	cb.OnStart(len(reqs))
	defer cb.OnComplete()

	items := make([]BatchItem, len(reqs))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := p.Recognize(gctx, req)
			items[i] = BatchItem{Index: i, Name: req.Image.Name, Result: res, Err: err}

			mu.Lock()
			done++
			if err != nil {
				cb.OnError(i, err)
			}
			cb.OnProgress(done, len(reqs))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range items {
		if it.Err != nil {
			return items, fmt.Errorf("image %d: %w", it.Index, it.Err)
		}
	}
	return items, nil
}
