package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/progress"
)

// DefaultReleaseGrace bounds how long Release waits for Close.
const DefaultReleaseGrace = 5 * time.Second

// Manager acquires and releases handles from a Factory.
type Manager struct {
	factory Factory
	logger  *slog.Logger
	grace   time.Duration
	active  atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReleaseGrace sets the Close budget used by Release.
func WithReleaseGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

// NewManager creates a manager for factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{factory: factory, logger: slog.Default(), grace: DefaultReleaseGrace}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Factory returns the underlying factory.
func (m *Manager) Factory() Factory {
	return m.factory
}

// Active returns the number of handles acquired and not yet released.
func (m *Manager) Active() int64 {
	return m.active.Load()
}

// Lease is an acquired handle. Release it through the manager.
type Lease struct {
	set    models.LanguageSet
	handle Handle
	once   sync.Once
}

// Set returns the language set the handle was created for.
func (l *Lease) Set() models.LanguageSet { return l.set }

// Handle returns the engine handle.
func (l *Lease) Handle() Handle { return l.handle }

// Acquire creates a handle for set and runs Load and Initialize. On any
// failure the partially acquired handle is released before returning.
func (m *Manager) Acquire(ctx context.Context, set models.LanguageSet, emit progress.Emitter) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, interruption(ctx, set.ID, ocrerr.PhaseLoad)
	}

	h, err := m.factory.New(set)
	if err != nil {
		return nil, ocrerr.AcquisitionFailed(set.ID, ocrerr.PhaseLoad, err)
	}
	lease := &Lease{set: set, handle: h}
	m.active.Add(1)
	m.logger.Debug("engine handle created", "strategy", set.ID, "engine", m.factory.Name())

	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{ocrerr.PhaseLoad, func(ctx context.Context) error { return h.Load(ctx, emit) }},
		{ocrerr.PhaseInitialize, func(ctx context.Context) error { return h.Initialize(ctx, emit) }},
	}
	for _, p := range phases {
		_, err := race(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.run(ctx)
		})
		if err != nil {
			m.Release(lease)
			if ctx.Err() != nil {
				return nil, interruption(ctx, set.ID, p.name)
			}
			return nil, ocrerr.AcquisitionFailed(set.ID, p.name, err)
		}
	}
	return lease, nil
}

// Recognize runs recognition on lease, raced against ctx. A result that
// arrives after ctx is done is discarded.
func (m *Manager) Recognize(ctx context.Context, lease *Lease, img []byte, emit progress.Emitter) (Output, error) {
	id := lease.set.ID
	out, err := race(ctx, func(ctx context.Context) (Output, error) {
		return lease.handle.Recognize(ctx, img, emit)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, interruption(ctx, id, ocrerr.PhaseRecognize)
		}
		return Output{}, ocrerr.RecognitionFailed(id, err)
	}
	return out, nil
}

// Release closes the lease's handle exactly once. Close failures are
// logged and never returned.
func (m *Manager) Release(lease *Lease) {
	if lease == nil {
		return
	}
	lease.once.Do(func() {
		defer m.active.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), m.grace)
		defer cancel()

		start := time.Now()
		_, err := race(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, lease.handle.Close(ctx)
		})
		if err != nil {
			cerr := ocrerr.CleanupFailed(lease.set.ID, err)
			m.logger.Warn("engine release failed",
				"strategy", lease.set.ID,
				"kind", cerr.Kind,
				"error", cerr.Error(),
			)
			return
		}
		m.logger.Debug("engine handle released",
			"strategy", lease.set.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// With acquires a handle for set, runs fn and releases the handle on
// every exit path.
func (m *Manager) With(ctx context.Context, set models.LanguageSet, emit progress.Emitter, fn func(context.Context, *Lease) error) error {
	lease, err := m.Acquire(ctx, set, emit)
	if err != nil {
		return err
	}
	defer m.Release(lease)
	return fn(ctx, lease)
}

// race runs fn on its own goroutine and returns its result, or ctx.Err()
// as soon as ctx is done. A late result lands in the buffered channel and
// is dropped.
func race[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result{zero, panicError{r}}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type panicError struct {
	v any
}

func (p panicError) Error() string {
	return "engine panicked: " + errorString(p.v)
}

func errorString(v any) string {
	switch t := v.(type) {
	case error:
		return t.Error()
	case string:
		return t
	}
	return "unknown panic"
}

// interruption converts a done context into a timeout or cancellation.
func interruption(ctx context.Context, strategy, phase string) *ocrerr.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		budget, _ := BudgetFrom(ctx)
		return ocrerr.Timeout(strategy, phase, budget)
	}
	return ocrerr.Canceled(strategy, phase, context.Cause(ctx))
}
