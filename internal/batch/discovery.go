package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultIncludePatterns matches the extensions of accepted image formats.
// Patterns match file base names case-insensitively.
var DefaultIncludePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp"}

// fileFilter selects files by base name.
type fileFilter struct {
	include []string
	exclude []string
}

func newFileFilter(include, exclude []string) fileFilter {
	return fileFilter{include: lowered(include), exclude: lowered(exclude)}
}

func lowered(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ToLower(p)
	}
	return out
}

func (f fileFilter) excluded(path string) bool {
	return matchAny(path, f.exclude)
}

// accepts reports whether a file found in a directory walk is selected.
// An empty include list selects everything not excluded.
func (f fileFilter) accepts(path string) bool {
	if f.excluded(path) {
		return false
	}
	return len(f.include) == 0 || matchAny(path, f.include)
}

func matchAny(path string, patterns []string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// discoverImageFiles expands directories into the images they contain.
// Files named explicitly are kept unless excluded, so the validator can
// report unsupported formats instead of silently skipping them. Each path
// appears once, in argument order; directory contents are sorted.
func discoverImageFiles(args []string, recursive bool, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	filter := newFileFilter(include, exclude)

	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		key := filepath.Clean(path)
		if !seen[key] {
			seen[key] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if !filter.excluded(arg) {
				add(arg)
			}
			continue
		}
		found, err := walkImages(arg, recursive, filter)
		if err != nil {
			return nil, err
		}
		for _, path := range found {
			add(path)
		}
	}
	return files, nil
}

// walkImages lists the accepted files under dir. Hidden entries are
// skipped; subdirectories are entered only when recursive is set.
func walkImages(dir string, recursive bool, filter fileFilter) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if filter.accepts(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	slices.Sort(found)
	return found, nil
}
