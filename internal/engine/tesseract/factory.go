// Package tesseract is the gosseract-backed recognition engine. Each
// handle owns a worker goroutine locked to its OS thread; every call
// into libtesseract runs on that worker.
//
// Build with the notesseract tag to compile without libtesseract; the
// factory then reports the engine as unavailable.
package tesseract

import (
	"log/slog"

	"github.com/MeKo-Tech/evalocr/internal/assets"
)

// Name is the engine name.
const Name = "tesseract"

// Factory creates tesseract handles that fetch language data from a
// Source into a per-handle scratch directory.
type Factory struct {
	source  assets.Source
	logger  *slog.Logger
	tempDir string
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithTempDir sets the parent of the per-handle scratch directories.
func WithTempDir(dir string) Option {
	return func(f *Factory) { f.tempDir = dir }
}

// NewFactory creates a factory reading language data from source.
func NewFactory(source assets.Source, opts ...Option) *Factory {
	f := &Factory{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements engine.Factory.
func (f *Factory) Name() string { return Name }
