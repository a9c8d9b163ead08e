// Package assets fetches and probes language data files from HTTP(S)
// mirrors, a local directory or an S3-compatible bucket.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/progress"
)

// ErrNotFound marks an asset that does not exist at its source.
var ErrNotFound = errors.New("language data not found")

// Source provides language data files.
type Source interface {
	// Name identifies the source kind ("http", "dir", "s3").
	Name() string
	// Location describes where the asset is read from.
	Location(asset models.Asset) string
	// Open returns the asset content and its size (-1 when unknown).
	Open(ctx context.Context, asset models.Asset) (io.ReadCloser, int64, error)
	// Probe returns nil when the asset looks reachable.
	Probe(ctx context.Context, asset models.Asset) error
}

// DownloadStatus is the raw status reported while fetching.
const DownloadStatus = "downloading language data"

// Download copies asset from src into dir as <lang>.traineddata and
// reports the byte progress through emit.
func Download(ctx context.Context, src Source, asset models.Asset, dir string, emit progress.Emitter) (string, error) {
	rc, size, err := src.Open(ctx, asset)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	dst := filepath.Join(dir, asset.FileName())
	tmp, err := os.CreateTemp(dir, asset.Language+"-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	emit.Emit(DownloadStatus, 0)
	w := &progressWriter{total: size, emit: emit}
	n, copyErr := io.Copy(io.MultiWriter(tmp, w), rc)
	closeErr := tmp.Close()
	if copyErr != nil {
		return "", ocrerr.Network(fmt.Errorf("download %s: %w", src.Location(asset), copyErr))
	}
	if closeErr != nil {
		return "", fmt.Errorf("write %s: %w", tmpName, closeErr)
	}
	if n == 0 {
		return "", ocrerr.Network(fmt.Errorf("download %s: empty response", src.Location(asset)))
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("install %s: %w", dst, err)
	}
	emit.Emit(DownloadStatus, 1)
	return dst, nil
}

type progressWriter struct {
	total   int64
	written int64
	last    float64
	emit    progress.Emitter
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.total > 0 {
		f := float64(w.written) / float64(w.total)
		if f-w.last >= 0.05 {
			w.last = f
			w.emit.Emit(DownloadStatus, f)
		}
	}
	return len(p), nil
}
