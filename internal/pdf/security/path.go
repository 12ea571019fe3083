// Package security keeps file access inside the configured template and
// output directories.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
)

// PathValidator resolves paths against a root directory and rejects any path
// that escapes it, including through symlinks.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dir. The directory does not
// have to exist yet.
func NewPathValidator(dir string) (*PathValidator, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve turns path into an absolute path inside the root. Relative paths
// are taken relative to the root, not to the working directory.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	abs := filepath.Clean(path)

	within, err := v.Contains(abs)
	if err != nil {
		return "", pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, "path validation failed", err)
	}
	if !within {
		return "", pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "path is outside %s", v.root).
			WithContext(path)
	}
	return abs, nil
}

// Contains reports whether an absolute path lies inside the root. Existing
// paths are compared after resolving symlinks on both sides.
func (v *PathValidator) Contains(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	abs = filepath.Clean(abs)
	if !within(abs, v.root) {
		return false, nil
	}

	realRoot := v.root
	if resolved, err := filepath.EvalSymlinks(v.root); err == nil {
		realRoot = resolved
	}
	realPath, err := evalExisting(abs)
	if err != nil {
		return false, err
	}
	return within(realPath, realRoot) || within(realPath, v.root), nil
}

// Rel returns path relative to the root, with forward slashes
func (v *PathValidator) Rel(path string) string {
	rel, err := filepath.Rel(v.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}

// evalExisting resolves symlinks in the longest existing prefix of path
func evalExisting(path string) (string, error) {
	rest := ""
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				return "", fmt.Errorf("failed to evaluate symlinks: %w", err)
			}
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		rest = filepath.Join(filepath.Base(current), rest)
		current = parent
	}
}
