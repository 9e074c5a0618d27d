package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes root directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// tmpSuffix marks a half-written file. Readers never see it under the
// final name.
const tmpSuffix = ".tmp"

// PathValidator provides path validation and file operations confined to
// a root directory using the os.Root API.
type PathValidator struct {
	root     *os.Root
	rootPath string
}

// New creates a PathValidator for the directory at dir, creating it if
// needed.
func New(dir string, perm os.FileMode) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, perm); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory: %w", err)
	}

	return &PathValidator{
		root:     root,
		rootPath: absPath,
	}, nil
}

// Close releases the root directory handle
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Path returns the absolute root directory
func (pv *PathValidator) Path() string {
	return pv.rootPath
}

// ValidateAndNormalize validates a relative path and returns it in
// forward-slash form. It rejects:
//   - Empty paths
//   - Absolute paths
//   - Paths that escape the root (using ..)
//   - Windows reserved names (CON, NUL, etc.)
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	cleanPath := filepath.Clean(userPath)
	relPath, err := filepath.Rel(pv.rootPath, filepath.Join(pv.rootPath, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	return filepath.ToSlash(relPath), nil
}

func (pv *PathValidator) platformPath(path string) (string, error) {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return platformPath, nil
}

// MkdirAllInRoot creates directories within the root
func (pv *PathValidator) MkdirAllInRoot(path string, perm os.FileMode) error {
	platformPath, err := pv.platformPath(path)
	if err != nil {
		return err
	}
	return pv.root.MkdirAll(platformPath, perm)
}

// ReadFileInRoot reads a file within the root
func (pv *PathValidator) ReadFileInRoot(path string) ([]byte, error) {
	platformPath, err := pv.platformPath(path)
	if err != nil {
		return nil, err
	}
	return pv.root.ReadFile(platformPath)
}

// WriteFileInRoot replaces a file within the root. The data is written to a
// temporary sibling, synced, and renamed over the target so readers see
// either the old or the new content.
func (pv *PathValidator) WriteFileInRoot(path string, data []byte, perm os.FileMode) error {
	platformPath, err := pv.platformPath(path)
	if err != nil {
		return err
	}
	tmpPath := platformPath + tmpSuffix

	f, err := pv.root.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		pv.root.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		pv.root.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		pv.root.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := pv.root.Rename(tmpPath, platformPath); err != nil {
		pv.root.Remove(tmpPath)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// RemoveInRoot removes a file within the root. A missing file is not an
// error.
func (pv *PathValidator) RemoveInRoot(path string) error {
	platformPath, err := pv.platformPath(path)
	if err != nil {
		return err
	}
	if err := pv.root.Remove(platformPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
