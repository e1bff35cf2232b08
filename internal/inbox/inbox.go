// Package inbox confines file access to the configured invoice directory.
package inbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyPath is returned for an empty path argument
	ErrEmptyPath = errors.New("path cannot be empty")
	// ErrOutsideInbox is returned for paths that escape the inbox directory
	ErrOutsideInbox = errors.New("path is outside the inbox directory")
)

// Inbox is the directory invoices are read from
type Inbox struct {
	dir string
}

// New creates an inbox rooted at dir. The directory may not exist yet.
func New(dir string) (*Inbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory: %w", ErrEmptyPath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox directory: %w", err)
	}
	return &Inbox{dir: filepath.Clean(abs)}, nil
}

// Dir returns the absolute inbox directory
func (b *Inbox) Dir() string {
	return b.dir
}

// Resolve turns path into a clean absolute path inside the inbox. Relative
// paths are taken relative to the inbox; symlinks are followed before the
// containment check.
func (b *Inbox) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.dir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	ok, err := b.contains(abs)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrOutsideInbox, path)
	}
	return abs, nil
}

// ResolveDir is Resolve for directories; an empty argument means the inbox itself
func (b *Inbox) ResolveDir(dir string) (string, error) {
	if dir == "" {
		return b.dir, nil
	}
	abs, err := b.Resolve(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", dir)
	}
	return abs, nil
}

func (b *Inbox) contains(abs string) (bool, error) {
	realDir := b.dir
	if resolved, err := filepath.EvalSymlinks(b.dir); err == nil {
		realDir = resolved
	}

	realPath := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		realPath = resolved
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to evaluate symlinks: %w", err)
	}

	return within(abs, b.dir, realDir) && within(realPath, b.dir, realDir), nil
}

func within(path string, dirs ...string) bool {
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
