//go:build !notesseract

package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/engine"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/progress"
	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Available reports whether libtesseract is compiled in.
const Available = true

const configName = "evalocr.config"

var errClosed = errors.New("tesseract handle closed")

// warmupImage is a blank page used to force API initialization.
var warmupImage = func() []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(32, 32, color.White), imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// New implements engine.Factory. It starts the handle's worker.
func (f *Factory) New(set models.LanguageSet) (engine.Handle, error) {
	if f.source == nil {
		return nil, errors.New("tesseract: no language data source configured")
	}
	dir, err := os.MkdirTemp(f.tempDir, "evalocr-tessdata-*")
	if err != nil {
		return nil, fmt.Errorf("create tessdata dir: %w", err)
	}
	h := &handle{
		set:    set,
		source: f.source,
		logger: f.logger.With("strategy", set.ID),
		dir:    dir,
		jobs:   make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run()
	return h, nil
}

// Probe implements engine.Prober by asking libtesseract for its version
// on a dedicated locked thread.
func (f *Factory) Probe(ctx context.Context) (string, error) {
	ch := make(chan string, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		ch <- gosseract.Version()
	}()
	select {
	case v := <-ch:
		if v == "" {
			return "", errors.New("tesseract returned an empty version")
		}
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type handle struct {
	set    models.LanguageSet
	source assets.Source
	logger *slog.Logger
	dir    string

	jobs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once

	// client is owned by the worker goroutine.
	client *gosseract.Client
}

func (h *handle) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)
	defer h.teardown()

	for {
		select {
		case <-h.quit:
			return
		case job := <-h.jobs:
			select {
			case <-h.quit:
				return
			default:
			}
			job()
		}
	}
}

func (h *handle) teardown() {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			h.logger.Warn("tesseract client close failed", "error", err)
		}
		h.client = nil
	}
	if err := os.RemoveAll(h.dir); err != nil {
		h.logger.Warn("tessdata cleanup failed", "dir", h.dir, "error", err)
	}
}

// do runs fn on the worker and waits for it or for ctx.
func (h *handle) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	job := func() { res <- fn() }

	select {
	case h.jobs <- job:
	case <-h.quit:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handle) Load(ctx context.Context, emit progress.Emitter) error {
	emit.Emit(engine.StatusStarting, 0)
	err := h.do(ctx, func() error {
		emit.Emit(engine.StatusLoadingCore, 0.5)
		h.client = gosseract.NewClient()
		emit.Emit(engine.StatusLoadingCore, 1)
		return nil
	})
	if err != nil {
		return err
	}

	for _, a := range h.set.Assets() {
		if _, err := assets.Download(ctx, h.source, a, h.dir, emit); err != nil {
			return fmt.Errorf("fetch %s: %w", a.FileName(), err)
		}
	}
	emit.Emit(engine.StatusLoadedLanguage, 1)

	cfg := "tessedit_ocr_engine_mode " + strconv.Itoa(h.set.EngineMode) + "\n"
	if err := os.WriteFile(filepath.Join(h.dir, configName), []byte(cfg), 0o600); err != nil {
		return fmt.Errorf("write engine config: %w", err)
	}
	return nil
}

func (h *handle) Initialize(ctx context.Context, emit progress.Emitter) error {
	return h.do(ctx, func() error {
		c := h.client
		if c == nil {
			return errors.New("tesseract: initialize before load")
		}
		emit.Emit(engine.StatusInitializing, 0)
		if err := c.SetTessdataPrefix(h.dir); err != nil {
			return err
		}
		if err := c.SetLanguage(h.set.Languages...); err != nil {
			return err
		}
		if err := c.SetConfigFile(filepath.Join(h.dir, configName)); err != nil {
			return err
		}

		emit.Emit(engine.StatusWarmingUp, 0.5)
		if err := c.SetImageFromBytes(warmupImage); err != nil {
			return err
		}
		if _, err := c.Text(); err != nil {
			return fmt.Errorf("initialize %s: %w", h.set.Model(), err)
		}
		if err := c.SetPageSegMode(gosseract.PageSegMode(h.set.PageSegMode)); err != nil {
			return err
		}
		emit.Emit(engine.StatusInitializing, 1)
		return nil
	})
}

func (h *handle) Recognize(ctx context.Context, img []byte, emit progress.Emitter) (engine.Output, error) {
	var out engine.Output
	err := h.do(ctx, func() error {
		c := h.client
		if c == nil {
			return errors.New("tesseract: recognize before load")
		}
		emit.Emit(engine.StatusRecognizing, 0)
		if err := c.SetImageFromBytes(img); err != nil {
			return err
		}
		text, err := c.Text()
		if err != nil {
			return err
		}
		out.Text = text
		emit.Emit(engine.StatusRecognizing, 0.8)

		if text != "" {
			boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
			if err != nil {
				h.logger.Debug("word confidences unavailable", "error", err)
			} else {
				out.Confidence, out.Words = meanConfidence(boxes)
			}
		}
		emit.Emit(engine.StatusRecognizing, 1)
		return nil
	})
	return out, err
}

// Close stops the worker. A call still running on the worker finishes
// first; Close waits for teardown until ctx is done.
func (h *handle) Close(ctx context.Context) error {
	h.once.Do(func() { close(h.quit) })
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tesseract worker still busy: %w", ctx.Err())
	}
}

// meanConfidence averages word confidences, scaled to [0, 1].
func meanConfidence(boxes []gosseract.BoundingBox) (*float64, int) {
	var sum float64
	n := 0
	for _, b := range boxes {
		if b.Confidence < 0 || b.Word == "" {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return nil, 0
	}
	mean := sum / float64(n) / 100
	return &mean, n
}
