// Package enginetest provides a scriptable in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/progress"
)

// Phases that can be made to hang.
const (
	HangLoad       = "load"
	HangInitialize = "initialize"
	HangRecognize  = "recognize"
)

// Behavior scripts one strategy.
type Behavior struct {
	NewErr       error
	LoadErr      error
	InitErr      error
	RecognizeErr error
	CloseErr     error
	// Hang blocks the named phase until the handle is closed, ignoring
	// the context like an uninterruptible native call.
	Hang string
	// Delay is added to every phase.
	Delay      time.Duration
	Text       string
	Confidence *float64
	// Panic makes Recognize panic.
	Panic bool
}

// Factory is a fake engine.Factory that records every lifecycle call.
type Factory struct {
	mu        sync.Mutex
	behaviors map[string]Behavior
	fallback  Behavior
	events    []string
	source    assets.Source
	probeErr  error
	version   string
}

// NewFactory creates a factory whose unscripted strategies return text.
func NewFactory(text string) *Factory {
	return &Factory{
		behaviors: make(map[string]Behavior),
		fallback:  Behavior{Text: text},
		version:   "fake-1.0",
	}
}

// Script sets the behavior of strategy id.
func (f *Factory) Script(id string, b Behavior) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[id] = b
	return f
}

// WithAssets makes Load download every language data file of the set
// from src, so missing assets fail the load like a real engine.
func (f *Factory) WithAssets(src assets.Source) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = src
	return f
}

// FailProbe makes Probe return err.
func (f *Factory) FailProbe(err error) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
	return f
}

// Name implements engine.Factory.
func (f *Factory) Name() string { return "fake" }

// Probe implements engine.Prober.
func (f *Factory) Probe(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.probeErr != nil {
		return "", f.probeErr
	}
	return f.version, nil
}

// New implements engine.Factory.
func (f *Factory) New(set models.LanguageSet) (engine.Handle, error) {
	f.mu.Lock()
	b, ok := f.behaviors[set.ID]
	if !ok {
		b = f.fallback
	}
	src := f.source
	f.mu.Unlock()

	if b.NewErr != nil {
		f.record("new-failed", set.ID)
		return nil, b.NewErr
	}
	f.record("acquire", set.ID)
	return &handle{f: f, set: set, b: b, src: src, closed: make(chan struct{})}, nil
}

func (f *Factory) record(event, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event+":"+id)
}

// Events returns the recorded "event:strategy" entries in order.
func (f *Factory) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Count returns how many times event was recorded.
func (f *Factory) Count(event string) int {
	n := 0
	for _, e := range f.Events() {
		if len(e) > len(event) && e[:len(event)+1] == event+":" {
			n++
		}
	}
	return n
}

// Acquires returns the number of handles created.
func (f *Factory) Acquires() int { return f.Count("acquire") }

// Releases returns the number of handles closed.
func (f *Factory) Releases() int { return f.Count("release") }

type handle struct {
	f         *Factory
	set       models.LanguageSet
	b         Behavior
	src       assets.Source
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	dir       string
}

func (h *handle) wait(ctx context.Context, phase string) error {
	if h.b.Hang == phase {
		<-h.closed
		return errors.New("handle closed while " + phase + " was running")
	}
	if h.b.Delay > 0 {
		select {
		case <-time.After(h.b.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *handle) Load(ctx context.Context, emit progress.Emitter) error {
	h.f.record("load", h.set.ID)
	emit.Emit(engine.StatusLoadingCore, 0.5)
	if err := h.wait(ctx, HangLoad); err != nil {
		return err
	}
	if h.b.LoadErr != nil {
		return h.b.LoadErr
	}
	if h.src != nil {
		dir, err := h.scratch()
		if err != nil {
			return err
		}
		for _, a := range h.set.Assets() {
			if _, err := assets.Download(ctx, h.src, a, dir, emit); err != nil {
				return fmt.Errorf("fetch %s: %w", a.FileName(), err)
			}
		}
	}
	emit.Emit(engine.StatusLoadedLanguage, 1)
	return nil
}

func (h *handle) scratch() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closed:
		return "", errors.New("handle closed")
	default:
	}
	dir, err := os.MkdirTemp("", "enginetest-*")
	if err != nil {
		return "", err
	}
	h.dir = dir
	return dir, nil
}

func (h *handle) Initialize(ctx context.Context, emit progress.Emitter) error {
	h.f.record("initialize", h.set.ID)
	emit.Emit(engine.StatusInitializing, 0)
	if err := h.wait(ctx, HangInitialize); err != nil {
		return err
	}
	if h.b.InitErr != nil {
		return h.b.InitErr
	}
	emit.Emit(engine.StatusInitializing, 1)
	return nil
}

func (h *handle) Recognize(ctx context.Context, img []byte, emit progress.Emitter) (engine.Output, error) {
	h.f.record("recognize", h.set.ID)
	emit.Emit(engine.StatusRecognizing, 0)
	if err := h.wait(ctx, HangRecognize); err != nil {
		return engine.Output{}, err
	}
	if h.b.Panic {
		panic("fake engine exploded")
	}
	if h.b.RecognizeErr != nil {
		return engine.Output{}, h.b.RecognizeErr
	}
	if len(img) == 0 {
		return engine.Output{}, errors.New("no image")
	}
	emit.Emit(engine.StatusRecognizing, 1)
	return engine.Output{Text: h.b.Text, Confidence: h.b.Confidence, Words: len(h.b.Text)}, nil
}

func (h *handle) Close(context.Context) error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		close(h.closed)
		if h.dir != "" {
			_ = os.RemoveAll(h.dir)
		}
	})
	h.f.record("release", h.set.ID)
	return h.b.CloseErr
}
