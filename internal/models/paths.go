package models

import (
	"errors"
	"os"
	"path/filepath"
)

// Default tessdata directory relative to the project root.
const DefaultTessdataDir = "tessdata"

// Environment variables for the tessdata directory override, in priority order.
const (
	EnvTessdataDir    = "EVALOCR_TESSDATA_DIR"
	EnvTessdataPrefix = "TESSDATA_PREFIX"
)

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// GetTessdataDir returns the local language data directory.
// Priority: 1. Explicit dir, 2. EVALOCR_TESSDATA_DIR, 3. TESSDATA_PREFIX,
// 4. Project root + default.
func GetTessdataDir(dir string) string {
	if dir != "" {
		return dir
	}

	for _, key := range []string{EnvTessdataDir, EnvTessdataPrefix} {
		if env := os.Getenv(key); env != "" {
			return env
		}
	}

	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultTessdataDir)
	}

	return DefaultTessdataDir
}

// ResolveAssetPath resolves an asset to a file under dir. A
// variant-specific subdirectory (dir/fast/eng.traineddata) is preferred
// over the flat layout (dir/eng.traineddata).
func ResolveAssetPath(dir string, asset Asset) string {
	base := GetTessdataDir(dir)

	organized := filepath.Join(base, string(asset.Variant), asset.FileName())
	if _, err := os.Stat(organized); err == nil {
		return organized
	}

	return filepath.Join(base, asset.FileName())
}
