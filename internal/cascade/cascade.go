// Package cascade runs a recognition request through an ordered list of
// language-set strategies until one produces text.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/progress"
	"github.com/MeKo-Tech/evalocr/internal/textnorm"
	"github.com/google/uuid"
)

// DeadlineMode selects how the timeout applies across attempts.
type DeadlineMode string

const (
	// PerAttempt gives every attempt the full timeout.
	PerAttempt DeadlineMode = "per_attempt"
	// Global bounds the whole cascade by one deadline.
	Global DeadlineMode = "global"
)

// ParseDeadlineMode parses a mode name; "" means PerAttempt.
func ParseDeadlineMode(s string) (DeadlineMode, error) {
	switch DeadlineMode(s) {
	case "", PerAttempt:
		return PerAttempt, nil
	case Global:
		return Global, nil
	}
	return "", fmt.Errorf("unknown deadline mode %q (want %s or %s)", s, PerAttempt, Global)
}

// DefaultTimeout is used when neither the request nor the config sets one.
const DefaultTimeout = 60 * time.Second

// Raw statuses reported by the controller itself.
const (
	statusValidating = "validating image"
	statusDone       = "done"
)

// Request is one recognition request.
type Request struct {
	Image imageinput.Image
	// Strategies are language set IDs in order; empty uses the profile.
	Strategies []string
	// Profile names the strategy order when Strategies is empty.
	Profile string
	// Timeout is the attempt budget (or the cascade budget in global
	// mode); zero uses the configured default.
	Timeout    time.Duration
	OnProgress progress.Func
}

func (r Request) clone() Request {
	r.Strategies = append([]string(nil), r.Strategies...)
	return r
}

// AttemptReport describes one strategy attempt.
type AttemptReport struct {
	Strategy  string        `json:"strategy"`
	Outcome   string        `json:"outcome"`
	Phase     string        `json:"phase,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsed_ms"`
}

// OutcomeSuccess is the outcome of the winning attempt.
const OutcomeSuccess = "success"

// Result is a successful recognition.
type Result struct {
	RequestID    string          `json:"request_id"`
	Text         string          `json:"text"`
	Confidence   *float64        `json:"confidence,omitempty"`
	StrategyUsed string          `json:"strategy_used"`
	Elapsed      time.Duration   `json:"-"`
	ElapsedMS    int64           `json:"elapsed_ms"`
	Attempts     []AttemptReport `json:"attempts"`
}

// Config holds controller settings.
type Config struct {
	DefaultTimeout time.Duration
	DeadlineMode   DeadlineMode
	// RequireText makes an empty cleaned result a failed attempt.
	RequireText    bool
	DefaultProfile string
	// MaxImageSide downscales larger images before recognition; 0 keeps
	// the original size.
	MaxImageSide int
}

// Controller runs the strategy cascade.
type Controller struct {
	catalog    *models.Catalog
	managers   map[string]*engine.Manager
	validator  *imageinput.Validator
	normalizer *textnorm.Normalizer
	cfg        Config
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Controller.
type Option func(*Controller)

// WithCatalog sets the language set catalog.
func WithCatalog(c *models.Catalog) Option {
	return func(ctl *Controller) {
		if c != nil {
			ctl.catalog = c
		}
	}
}

// WithManagerFor routes profiles with the given asset source to m.
func WithManagerFor(assetSource string, m *engine.Manager) Option {
	return func(ctl *Controller) { ctl.managers[assetSource] = m }
}

// WithValidator sets the image validator.
func WithValidator(v *imageinput.Validator) Option {
	return func(ctl *Controller) {
		if v != nil {
			ctl.validator = v
		}
	}
}

// WithTextNormalizer sets the text normalizer.
func WithTextNormalizer(n *textnorm.Normalizer) Option {
	return func(ctl *Controller) {
		if n != nil {
			ctl.normalizer = n
		}
	}
}

// WithConfig sets the controller configuration.
func WithConfig(cfg Config) Option {
	return func(ctl *Controller) { ctl.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) {
		if l != nil {
			ctl.logger = l
		}
	}
}

// WithObserver registers a state transition observer.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.observer = o }
}

// New creates a controller whose default engine manager is m.
func New(m *engine.Manager, opts ...Option) *Controller {
	c := &Controller{
		catalog:    models.DefaultCatalog(),
		managers:   map[string]*engine.Manager{"": m},
		validator:  imageinput.NewValidator(0),
		normalizer: textnorm.New(textnorm.DefaultOptions()),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.DeadlineMode == "" {
		c.cfg.DeadlineMode = PerAttempt
	}
	if c.cfg.DefaultTimeout <= 0 {
		c.cfg.DefaultTimeout = DefaultTimeout
	}
	if c.cfg.DefaultProfile == "" {
		c.cfg.DefaultProfile = models.ProfileDefault
	}
	return c
}

// Catalog returns the controller's catalog.
func (c *Controller) Catalog() *models.Catalog { return c.catalog }

// Validator returns the controller's validator.
func (c *Controller) Validator() *imageinput.Validator { return c.validator }

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

type plan struct {
	sets    []models.LanguageSet
	manager *engine.Manager
	timeout time.Duration
}

func (c *Controller) plan(req Request) (plan, error) {
	var p plan
	switch {
	case req.Timeout < 0:
		return p, ocrerr.InvalidRequest("timeout must be positive, got %v", req.Timeout)
	case req.Timeout == 0:
		p.timeout = c.cfg.DefaultTimeout
	default:
		p.timeout = req.Timeout
	}

	ids := req.Strategies
	source := ""
	if len(ids) == 0 {
		name := req.Profile
		if name == "" {
			name = c.cfg.DefaultProfile
		}
		prof, ok := c.catalog.Profile(name)
		if !ok {
			return p, ocrerr.InvalidRequest("unknown profile %q", name)
		}
		ids = prof.Strategies
		source = prof.AssetSource
	}

	sets, err := c.catalog.Resolve(ids)
	if err != nil {
		return p, err
	}
	p.sets = sets

	m, ok := c.managers[source]
	if !ok || m == nil {
		return p, ocrerr.InvalidRequest("no engine configured for asset source %q", source)
	}
	p.manager = m
	return p, nil
}

// Run executes the cascade. Invalid requests and images fail before any
// engine is acquired. Every acquired engine is released before Run
// returns.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	req = req.clone()
	id := uuid.NewString()
	logger := c.logger.With("request_id", id)
	start := time.Now()
	sm := newMachine(id, c.observer)
	reporter := progress.NewReporter(req.OnProgress, logger)

	finish := func(state State, attempt int, strategy string, err error) {
		sm.to(state, attempt, strategy, err)
		requestsTotal.WithLabelValues(state.String()).Inc()
		requestDuration.Observe(time.Since(start).Seconds())
	}

	sm.to(StateValidating, 0, "", nil)
	reporter.Report("", progress.RawEvent{Status: statusValidating, Progress: 0.5})

	p, err := c.plan(req)
	if err == nil {
		err = c.validator.Check(req.Image)
	}
	var img []byte
	if err == nil {
		img, err = imageinput.Prepare(req.Image, imageinput.PrepareOptions{MaxSide: c.cfg.MaxImageSide})
		if err != nil {
			err = ocrerr.InvalidImage("image could not be prepared for recognition", err)
		}
	}
	if err != nil {
		logger.Info("recognition request rejected", "kind", ocrerr.KindOf(err), "error", err)
		finish(StateRejected, 0, "", err)
		return nil, err
	}

	runCtx := ctx
	if c.cfg.DeadlineMode == Global {
		var cancel context.CancelFunc
		runCtx, cancel = engine.WithBudget(ctx, p.timeout)
		defer cancel()
	}

	failures := make([]*ocrerr.Error, 0, len(p.sets))
	reports := make([]AttemptReport, 0, len(p.sets))

	for i, set := range p.sets {
		sm.to(StateAttempting, i, set.ID, nil)
		logger.Debug("strategy attempt started", "strategy", set.ID, "attempt", i+1, "of", len(p.sets))

		attemptStart := time.Now()
		out, text, err := c.attempt(runCtx, p, set, img, reporter)
		elapsed := time.Since(attemptStart)
		attemptDuration.WithLabelValues(set.ID).Observe(elapsed.Seconds())

		if err == nil {
			attemptsTotal.WithLabelValues(set.ID, OutcomeSuccess).Inc()
			reports = append(reports, AttemptReport{
				Strategy:  set.ID,
				Outcome:   OutcomeSuccess,
				Elapsed:   elapsed,
				ElapsedMS: elapsed.Milliseconds(),
			})
			reporter.Report(set.ID, progress.RawEvent{Status: statusDone, Progress: 1})

			total := time.Since(start)
			textLength.Observe(float64(utf8.RuneCountInString(text)))
			logger.Info("recognition succeeded",
				"strategy", set.ID,
				"attempts", i+1,
				"elapsed_ms", total.Milliseconds(),
			)
			finish(StateSucceeded, i, set.ID, nil)
			return &Result{
				RequestID:    id,
				Text:         text,
				Confidence:   out.Confidence,
				StrategyUsed: set.ID,
				Elapsed:      total,
				ElapsedMS:    total.Milliseconds(),
				Attempts:     reports,
			}, nil
		}

		e := asPipelineError(set.ID, err)
		attemptsTotal.WithLabelValues(set.ID, string(e.Kind)).Inc()
		reports = append(reports, AttemptReport{
			Strategy:  set.ID,
			Outcome:   string(e.Kind),
			Phase:     e.Phase,
			Reason:    string(e.Reason),
			Error:     e.Error(),
			Elapsed:   elapsed,
			ElapsedMS: elapsed.Milliseconds(),
		})

		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) && e.Kind != ocrerr.KindCanceled {
				e = ocrerr.Canceled(set.ID, e.Phase, context.Cause(ctx))
			}
			logger.Info("recognition stopped by caller", "strategy", set.ID, "kind", e.Kind)
			finish(StateCanceled, i, set.ID, e)
			return nil, e
		}

		logger.Warn("strategy attempt failed",
			"strategy", set.ID,
			"kind", e.Kind,
			"reason", e.Reason,
			"phase", e.Phase,
			"error", e.Error(),
		)
		failures = append(failures, e)
	}

	exhausted := ocrerr.Exhausted(failures)
	logger.Warn("all strategies exhausted", "attempts", len(failures), "reason", exhausted.Reason)
	finish(StateExhausted, len(p.sets)-1, "", exhausted)
	return nil, exhausted
}

// attempt runs one strategy inside a scoped engine acquisition.
func (c *Controller) attempt(ctx context.Context, p plan, set models.LanguageSet, img []byte, reporter *progress.Reporter) (engine.Output, string, error) {
	if c.cfg.DeadlineMode == PerAttempt {
		var cancel context.CancelFunc
		ctx, cancel = engine.WithBudget(ctx, p.timeout)
		defer cancel()
	}

	events := reporter.Begin(set.ID)
	defer events.Detach()
	emit := events.Emitter()

	var out engine.Output
	err := p.manager.With(ctx, set, emit, func(ctx context.Context, lease *engine.Lease) error {
		var err error
		out, err = p.manager.Recognize(ctx, lease, img, emit)
		return err
	})
	if err != nil {
		return out, "", err
	}

	text := c.normalizer.Clean(out.Text)
	if text == "" && c.cfg.RequireText {
		return out, "", ocrerr.EmptyResult(set.ID)
	}
	return out, text, nil
}

func asPipelineError(strategy string, err error) *ocrerr.Error {
	var e *ocrerr.Error
	if errors.As(err, &e) {
		return e
	}
	return ocrerr.RecognitionFailed(strategy, err)
}
