// Package registry manages the on-disk model library: the directory that
// holds downloaded GGUF artifacts and path resolution into it.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pocketllm/internal/common/fsutil"
	"pocketllm/pkg/types"
)

// Library is the models directory on disk.
type Library struct {
	dir string
}

// New resolves dir (expanding a leading '~') into a Library. The directory
// is not created until EnsureDir is called.
func New(dir string) (*Library, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return &Library{dir: abs}, nil
}

// Dir returns the absolute models directory.
func (l *Library) Dir() string { return l.dir }

// EnsureDir creates the models directory if missing.
func (l *Library) EnsureDir() error {
	return fsutil.EnsureDir(l.dir)
}

// PathFor resolves an artifact filename to its absolute path.
func (l *Library) PathFor(filename string) string {
	return filepath.Join(l.dir, filename)
}

// Exists reports whether the artifact file is present on disk.
func (l *Library) Exists(filename string) bool {
	return fsutil.PathExists(l.PathFor(filename))
}

// Delete removes an artifact file. Deleting a missing file is not an error.
func (l *Library) Delete(filename string) error {
	p := l.PathFor(filename)
	if !fsutil.PathExists(p) {
		return nil
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete model %s: %w", filename, err)
	}
	return nil
}

// TotalSize sums the on-disk sizes of the given artifact filenames,
// skipping any that cannot be stat'ed.
func (l *Library) TotalSize(filenames []string) int64 {
	var total int64
	for _, name := range filenames {
		total += fsutil.FileSize(l.PathFor(name))
	}
	return total
}

// ClearAll deletes the entire models directory and recreates it empty.
func (l *Library) ClearAll() error {
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("clear models dir: %w", err)
	}
	return l.EnsureDir()
}

// ScanLocal lists *.gguf files present in the library as minimal
// descriptors (id = filename). Useful for models downloaded out of band.
func (l *Library) ScanLocal() ([]types.Model, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{
			ID:       name,
			Name:     name,
			Filename: name,
			Size:     fsutil.FileSize(l.PathFor(name)),
		})
	}
	return models, nil
}
