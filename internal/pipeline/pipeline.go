// Package pipeline wires the validator, engine manager, strategy cascade,
// text normalizer and diagnostics into one entry point.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/cascade"
	"github.com/MeKo-Tech/evalocr/internal/diagnostics"
	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/engine/tesseract"
	"github.com/MeKo-Tech/evalocr/internal/imageinput"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/textnorm"
)

// Request and Result are the cascade's request and result types.
type (
	Request = cascade.Request
	Result  = cascade.Result
)

// Config holds configuration for the OCR pipeline.
type Config struct {
	Assets       assets.Config
	TessdataDir  string // directory used by profiles with the local asset source
	ProfilesFile string // optional YAML file with extra language sets and profiles
	TempDir      string // parent of per-handle scratch directories

	MaxImageBytes  int64
	MaxImagePixels int64
	MaxImageSide   int

	Timeout      time.Duration
	DeadlineMode cascade.DeadlineMode
	RequireText  bool
	Profile      string
	ReleaseGrace time.Duration

	Spacing       string // "preserve" or "insert"
	NormalizeForm string

	DiagnosticsTimeout     time.Duration
	DiagnosticsConcurrency int
}

// DefaultConfig returns a default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Assets:                 assets.Config{Source: assets.KindHTTP},
		MaxImageBytes:          imageinput.DefaultMaxBytes,
		MaxImagePixels:         imageinput.DefaultMaxPixels,
		Timeout:                cascade.DefaultTimeout,
		DeadlineMode:           cascade.PerAttempt,
		Profile:                models.ProfileDefault,
		ReleaseGrace:           engine.DefaultReleaseGrace,
		Spacing:                textnorm.PreserveSpacing{}.Name(),
		NormalizeForm:          "NFC",
		DiagnosticsTimeout:     diagnostics.DefaultCheckTimeout,
		DiagnosticsConcurrency: diagnostics.DefaultConcurrency,
	}
}

// Builder provides a fluent API to configure and build the pipeline.
type Builder struct {
	cfg          Config
	factory      engine.Factory
	localFactory engine.Factory
	source       assets.Source
	catalog      *models.Catalog
	logger       *slog.Logger
	observer     cascade.Observer
}

// NewBuilder creates a new builder with defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithAssetsConfig configures the language data source.
func (b *Builder) WithAssetsConfig(cfg assets.Config) *Builder {
	b.cfg.Assets = cfg
	return b
}

// WithAssetSource overrides the configured language data source.
func (b *Builder) WithAssetSource(src assets.Source) *Builder {
	if src != nil {
		b.source = src
	}
	return b
}

// WithFactory overrides the engine backend. Unless WithLocalFactory is
// also used, the local profile shares it.
func (b *Builder) WithFactory(f engine.Factory) *Builder {
	if f != nil {
		b.factory = f
	}
	return b
}

// WithLocalFactory overrides the backend used by local-source profiles.
func (b *Builder) WithLocalFactory(f engine.Factory) *Builder {
	if f != nil {
		b.localFactory = f
	}
	return b
}

// WithCatalog sets the language set catalog.
func (b *Builder) WithCatalog(c *models.Catalog) *Builder {
	if c != nil {
		b.catalog = c
	}
	return b
}

// WithProfilesFile loads extra language sets and profiles from YAML.
func (b *Builder) WithProfilesFile(path string) *Builder {
	b.cfg.ProfilesFile = path
	return b
}

// WithTessdataDir sets the directory for local-source profiles.
func (b *Builder) WithTessdataDir(dir string) *Builder {
	if dir != "" {
		b.cfg.TessdataDir = dir
	}
	return b
}

// WithTempDir sets the parent of engine scratch directories.
func (b *Builder) WithTempDir(dir string) *Builder {
	if dir != "" {
		b.cfg.TempDir = dir
	}
	return b
}

// WithMaxImageBytes sets the payload ceiling.
func (b *Builder) WithMaxImageBytes(n int64) *Builder {
	if n > 0 {
		b.cfg.MaxImageBytes = n
	}
	return b
}

// WithMaxImagePixels sets the decoded size ceiling.
func (b *Builder) WithMaxImagePixels(n int64) *Builder {
	if n > 0 {
		b.cfg.MaxImagePixels = n
	}
	return b
}

// WithMaxImageSide downscales images whose longest side exceeds n.
func (b *Builder) WithMaxImageSide(n int) *Builder {
	if n >= 0 {
		b.cfg.MaxImageSide = n
	}
	return b
}

// WithTimeout sets the default recognition timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.Timeout = d
	}
	return b
}

// WithDeadlineMode selects per-attempt or global deadlines.
func (b *Builder) WithDeadlineMode(m cascade.DeadlineMode) *Builder {
	if m != "" {
		b.cfg.DeadlineMode = m
	}
	return b
}

// WithRequireText makes empty results fall through to the next strategy.
func (b *Builder) WithRequireText(v bool) *Builder {
	b.cfg.RequireText = v
	return b
}

// WithProfile sets the default profile.
func (b *Builder) WithProfile(name string) *Builder {
	if name != "" {
		b.cfg.Profile = name
	}
	return b
}

// WithReleaseGrace bounds how long engine teardown may take.
func (b *Builder) WithReleaseGrace(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.ReleaseGrace = d
	}
	return b
}

// WithSpacingPolicy selects the CJK spacing policy by name.
func (b *Builder) WithSpacingPolicy(name string) *Builder {
	if name != "" {
		b.cfg.Spacing = name
	}
	return b
}

// WithDiagnostics configures the capability checks.
func (b *Builder) WithDiagnostics(timeout time.Duration, concurrency int) *Builder {
	if timeout > 0 {
		b.cfg.DiagnosticsTimeout = timeout
	}
	if concurrency > 0 {
		b.cfg.DiagnosticsConcurrency = concurrency
	}
	return b
}

// WithLogger sets the logger passed to every component.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// WithObserver registers a cascade state observer.
func (b *Builder) WithObserver(o cascade.Observer) *Builder {
	b.observer = o
	return b
}

// Config returns the current configuration.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration.
func (b *Builder) Validate() error {
	c := b.cfg
	if c.MaxImageBytes <= 0 {
		return errors.New("max image bytes must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if _, err := cascade.ParseDeadlineMode(string(c.DeadlineMode)); err != nil {
		return err
	}
	if _, ok := textnorm.SpacingPolicyByName(c.Spacing); !ok {
		return fmt.Errorf("unknown spacing policy %q", c.Spacing)
	}
	if c.MaxImageSide < 0 {
		return errors.New("max image side must not be negative")
	}
	return nil
}

// Pipeline is a configured OCR entry point. It is safe for concurrent
// use; requests share no engine state.
type Pipeline struct {
	cfg        Config
	controller *cascade.Controller
	prober     *diagnostics.Prober
	manager    *engine.Manager
	local      *engine.Manager
	source     assets.Source
	logger     *slog.Logger
}

// Build assembles the pipeline. No engine is created until a request
// runs.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := b.catalog
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	catalog, err := catalog.ExtendFile(b.cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	if _, ok := catalog.Profile(b.cfg.Profile); !ok {
		return nil, fmt.Errorf("unknown profile %q", b.cfg.Profile)
	}

	source := b.source
	if source == nil {
		if source, err = assets.New(b.cfg.Assets); err != nil {
			return nil, fmt.Errorf("init asset source: %w", err)
		}
	}

	factory := b.factory
	localFactory := b.localFactory
	if factory == nil {
		factory = tesseract.NewFactory(source,
			tesseract.WithLogger(logger),
			tesseract.WithTempDir(b.cfg.TempDir))
	}
	if localFactory == nil {
		if b.factory != nil {
			localFactory = b.factory
		} else {
			localFactory = tesseract.NewFactory(assets.NewDirSource(b.cfg.TessdataDir),
				tesseract.WithLogger(logger),
				tesseract.WithTempDir(b.cfg.TempDir))
		}
	}

	grace := engine.WithReleaseGrace(b.cfg.ReleaseGrace)
	manager := engine.NewManager(factory, engine.WithLogger(logger), grace)
	localManager := engine.NewManager(localFactory, engine.WithLogger(logger), grace)

	spacing, _ := textnorm.SpacingPolicyByName(b.cfg.Spacing)
	normOpts := textnorm.DefaultOptions()
	normOpts.Spacing = spacing
	if b.cfg.NormalizeForm != "" {
		normOpts.NormalizeForm = b.cfg.NormalizeForm
	}

	controller := cascade.New(manager,
		cascade.WithCatalog(catalog),
		cascade.WithManagerFor(models.AssetSourceLocal, localManager),
		cascade.WithValidator(imageinput.NewValidator(b.cfg.MaxImageBytes).WithMaxPixels(b.cfg.MaxImagePixels)),
		cascade.WithTextNormalizer(textnorm.New(normOpts)),
		cascade.WithConfig(cascade.Config{
			DefaultTimeout: b.cfg.Timeout,
			DeadlineMode:   b.cfg.DeadlineMode,
			RequireText:    b.cfg.RequireText,
			DefaultProfile: b.cfg.Profile,
			MaxImageSide:   b.cfg.MaxImageSide,
		}),
		cascade.WithLogger(logger),
		cascade.WithObserver(b.observer),
	)

	prober := diagnostics.NewProber(factory, source, probeSets(catalog, b.cfg.Profile),
		diagnostics.WithTimeout(b.cfg.DiagnosticsTimeout),
		diagnostics.WithConcurrency(b.cfg.DiagnosticsConcurrency),
		diagnostics.WithLogger(logger),
	)

	logger.Debug("pipeline built",
		"engine", factory.Name(),
		"asset_source", source.Name(),
		"profile", b.cfg.Profile,
		"deadline_mode", b.cfg.DeadlineMode,
	)
	return &Pipeline{
		cfg:        b.cfg,
		controller: controller,
		prober:     prober,
		manager:    manager,
		local:      localManager,
		source:     source,
		logger:     logger,
	}, nil
}

// probeSets returns the sets whose assets diagnostics should check: the
// default profile's when it resolves, otherwise the whole catalog.
func probeSets(c *models.Catalog, profile string) []models.LanguageSet {
	if p, ok := c.Profile(profile); ok && p.AssetSource == "" {
		if sets, err := c.Resolve(p.Strategies); err == nil {
			return sets
		}
	}
	return c.Sets()
}

// Recognize runs one request through the strategy cascade.
func (p *Pipeline) Recognize(ctx context.Context, req Request) (*Result, error) {
	return p.controller.Run(ctx, req)
}

// ProbeEnvironment returns a fresh capability report.
func (p *Pipeline) ProbeEnvironment(ctx context.Context) diagnostics.Report {
	return p.prober.Probe(ctx)
}

// ValidateImage checks an image without touching any engine.
func (p *Pipeline) ValidateImage(img imageinput.Image) imageinput.ValidationResult {
	return p.controller.Validator().Validate(img)
}

// Strategies returns every known language set in catalog order.
func (p *Pipeline) Strategies() []models.LanguageSet {
	return p.controller.Catalog().Sets()
}

// Profiles returns every known profile.
func (p *Pipeline) Profiles() []models.Profile {
	return p.controller.Catalog().Profiles()
}

// Catalog returns the pipeline's catalog.
func (p *Pipeline) Catalog() *models.Catalog { return p.controller.Catalog() }

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// ActiveEngines reports how many engine handles are currently held by
// remote and local profiles together.
func (p *Pipeline) ActiveEngines() int64 { return p.manager.Active() + p.local.Active() }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	return map[string]interface{}{
		"engine":         p.manager.Factory().Name(),
		"asset_source":   p.source.Name(),
		"profile":        p.cfg.Profile,
		"deadline_mode":  string(p.cfg.DeadlineMode),
		"timeout_ms":     p.cfg.Timeout.Milliseconds(),
		"require_text":   p.cfg.RequireText,
		"max_image_size": p.cfg.MaxImageBytes,
		"max_pixels":     p.cfg.MaxImagePixels,
		"spacing":        p.cfg.Spacing,
		"strategies":     len(p.Strategies()),
	}
}
