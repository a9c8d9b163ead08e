// Package diagnostics reports what the current environment can do:
// whether the engine backend answers on its worker, whether WebAssembly
// modules can run and which language data assets are reachable.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/tetratelabs/wazero"
	"golang.org/x/sync/errgroup"
)

// Report is a point-in-time capability snapshot.
type Report struct {
	WorkerSupported   bool            `json:"worker_supported"`
	WasmSupported     bool            `json:"wasm_supported"`
	AssetReachability map[string]bool `json:"asset_reachability"`
	Recommendations   []string        `json:"recommendations"`
	EngineVersion     string          `json:"engine_version,omitempty"`
	AssetSource       string          `json:"asset_source,omitempty"`
	CheckedAt         time.Time       `json:"checked_at"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	if !r.WorkerSupported || !r.WasmSupported {
		return false
	}
	for _, ok := range r.AssetReachability {
		if !ok {
			return false
		}
	}
	return true
}

// minimalWasm is the smallest valid module: magic and version only.
var minimalWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Default limits.
const (
	DefaultCheckTimeout = 10 * time.Second
	DefaultConcurrency  = 4
)

// Prober runs capability checks.
type Prober struct {
	factory     engine.Factory
	source      assets.Source
	assets      []models.Asset
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	wasmCheck   func(context.Context) error
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout bounds every individual check.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithConcurrency bounds concurrent asset probes.
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a prober for the engine factory and the assets of
// the given language sets as served by source.
func NewProber(factory engine.Factory, source assets.Source, sets []models.LanguageSet, opts ...Option) *Prober {
	p := &Prober{
		factory:     factory,
		source:      source,
		assets:      models.Assets(sets),
		timeout:     DefaultCheckTimeout,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		wasmCheck:   checkWasm,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe runs every check and returns a fresh report. It never fails: a
// check that errors or panics counts as unsupported.
func (p *Prober) Probe(ctx context.Context) Report {
	r := Report{
		AssetReachability: make(map[string]bool, len(p.assets)),
		Recommendations:   []string{},
		CheckedAt:         time.Now().UTC(),
	}
	if p.source != nil {
		r.AssetSource = p.source.Name()
	}

	version, err := p.checkWorker(ctx)
	r.WorkerSupported = err == nil
	r.EngineVersion = version
	if err != nil {
		r.Recommendations = append(r.Recommendations, workerAdvice(err))
	}

	if err := p.guard(ctx, "wasm", p.wasmCheck); err != nil {
		r.Recommendations = append(r.Recommendations,
			"WebAssembly modules cannot run on this host; WASM-based engines are unavailable.")
	} else {
		r.WasmSupported = true
	}

	reach := p.checkAssets(ctx)
	for _, a := range p.assets {
		ok := reach[a.Key()]
		r.AssetReachability[p.location(a)] = ok
		if !ok {
			r.Recommendations = append(r.Recommendations, p.assetAdvice(a))
		}
	}

	p.logger.Debug("environment probed",
		"worker", r.WorkerSupported,
		"wasm", r.WasmSupported,
		"assets", len(r.AssetReachability),
		"recommendations", len(r.Recommendations),
	)
	return r
}

func (p *Prober) checkWorker(ctx context.Context) (string, error) {
	prober, ok := p.factory.(engine.Prober)
	if !ok {
		return "", errors.New("engine backend cannot be probed")
	}
	var version string
	err := p.guard(ctx, "worker", func(ctx context.Context) error {
		v, err := prober.Probe(ctx)
		version = v
		return err
	})
	if err != nil {
		return "", err
	}
	return version, nil
}

func (p *Prober) checkAssets(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(p.assets))
	if p.source == nil {
		return out
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, a := range p.assets {
		g.Go(func() error {
			err := p.guard(gctx, "asset "+a.Key(), func(ctx context.Context) error {
				return p.source.Probe(ctx, a)
			})
			mu.Lock()
			out[a.Key()] = err == nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// guard runs check with the per-check timeout and turns panics into
// errors.
func (p *Prober) guard(ctx context.Context, name string, check func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s check panicked: %v", name, r)
		}
		if err != nil {
			p.logger.Debug("capability check failed", "check", name, "error", err)
		}
	}()
	return check(ctx)
}

func checkWasm(ctx context.Context) error {
	rt := wazero.NewRuntime(ctx)
	defer func() { _ = rt.Close(ctx) }()

	compiled, err := rt.CompileModule(ctx, minimalWasm)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("evalocr-probe"))
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	return mod.Close(ctx)
}

func workerAdvice(err error) string {
	if errors.Is(err, ocrerr.ErrEngineUnavailable) {
		return "This build has no recognition engine; install libtesseract and rebuild without the notesseract tag."
	}
	return fmt.Sprintf("The recognition engine failed its self-check (%v); verify the libtesseract installation.", err)
}

// location is the URL or path an asset is fetched from.
func (p *Prober) location(a models.Asset) string {
	if p.source == nil {
		return a.Key()
	}
	return p.source.Location(a)
}

func (p *Prober) assetAdvice(a models.Asset) string {
	where := p.location(a)
	if p.source != nil && p.source.Name() == assets.KindDir {
		return fmt.Sprintf("Language data %s is missing at %s; copy %s into the tessdata directory.", a.Language, where, a.FileName())
	}
	return fmt.Sprintf("Language data %s is unreachable at %s; check the network connection or use the local profile with a tessdata directory.", a.Language, where)
}
