// Package engine manages the lifecycle of recognition engine handles.
//
// A Factory turns a language set into a Handle. The Manager drives the
// handle through Load and Initialize, races every phase against the
// caller's context and guarantees the handle is closed exactly once.
package engine

import (
	"context"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/progress"
)

// Raw statuses reported by engines. Backends may report others; the
// progress normalizer maps them by keyword.
const (
	StatusStarting       = "starting worker"
	StatusLoadingCore    = "loading engine core"
	StatusInitializing   = "initializing api"
	StatusLoadedLanguage = "language data loaded"
	StatusWarmingUp      = "warming up"
	StatusRecognizing    = "recognizing text"
	StatusTerminated     = "worker terminated"
)

// Output is the raw result of one recognition.
type Output struct {
	Text string
	// Confidence is the mean word confidence in [0, 1], nil when the
	// engine does not report one.
	Confidence *float64
	Words      int
}

// Handle is one engine instance bound to a language set. It is used by a
// single attempt and is not safe for concurrent use.
type Handle interface {
	// Load brings up the engine core and fetches language data.
	Load(ctx context.Context, emit progress.Emitter) error
	// Initialize applies language and configuration and warms up.
	Initialize(ctx context.Context, emit progress.Emitter) error
	// Recognize extracts text from an encoded image.
	Recognize(ctx context.Context, img []byte, emit progress.Emitter) (Output, error)
	// Close releases every resource. It may be called while another call
	// is still running on an abandoned attempt.
	Close(ctx context.Context) error
}

// Factory creates handles. New must be cheap; the handle owns resources
// from the moment it is returned.
type Factory interface {
	Name() string
	New(set models.LanguageSet) (Handle, error)
}

// Prober is implemented by factories that can check their backend
// without loading language data.
type Prober interface {
	// Probe runs a version query on the backend's worker and returns
	// the engine version.
	Probe(ctx context.Context) (string, error)
}

type budgetKey struct{}

// WithBudget bounds ctx by d and records d for timeout errors.
func WithBudget(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithValue(parent, budgetKey{}, d), d)
}

// BudgetFrom returns the budget recorded by WithBudget.
func BudgetFrom(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(budgetKey{}).(time.Duration)
	return d, ok
}
