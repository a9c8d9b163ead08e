package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/MeKo-Tech/evalocr/internal/models"
)

// DirSource reads assets from a local tessdata directory.
type DirSource struct {
	dir string
}

// NewDirSource creates a source rooted at models.GetTessdataDir(dir).
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: models.GetTessdataDir(dir)}
}

// Name implements Source.
func (s *DirSource) Name() string { return "dir" }

// Dir returns the resolved directory.
func (s *DirSource) Dir() string { return s.dir }

// Location implements Source.
func (s *DirSource) Location(asset models.Asset) string {
	return models.ResolveAssetPath(s.dir, asset)
}

// Open implements Source.
func (s *DirSource) Open(_ context.Context, asset models.Asset) (io.ReadCloser, int64, error) {
	path := s.Location(asset)
	f, err := os.Open(path) //nolint:gosec // G304: path is built from a validated language code
	if err != nil {
		return nil, 0, s.wrap(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// Probe implements Source.
func (s *DirSource) Probe(_ context.Context, asset models.Asset) error {
	path := s.Location(asset)
	info, err := os.Stat(path)
	if err != nil {
		return s.wrap(path, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("%s: not a language data file: %w", path, ErrNotFound)
	}
	return nil
}

func (s *DirSource) wrap(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return fmt.Errorf("open %s: %w", path, err)
}
