//go:build notesseract

package tesseract

import (
	"context"

	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/progress"
)

// Available reports whether libtesseract is compiled in.
const Available = false

// New implements engine.Factory.
func (f *Factory) New(models.LanguageSet) (engine.Handle, error) {
	return unavailable{}, nil
}

// Probe implements engine.Prober.
func (f *Factory) Probe(context.Context) (string, error) {
	return "", ocrerr.ErrEngineUnavailable
}

type unavailable struct{}

func (unavailable) Load(context.Context, progress.Emitter) error {
	return ocrerr.ErrEngineUnavailable
}

func (unavailable) Initialize(context.Context, progress.Emitter) error {
	return ocrerr.ErrEngineUnavailable
}

func (unavailable) Recognize(context.Context, []byte, progress.Emitter) (engine.Output, error) {
	return engine.Output{}, ocrerr.ErrEngineUnavailable
}

func (unavailable) Close(context.Context) error { return nil }
