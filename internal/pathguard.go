package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSandboxViolation is returned when a caller-supplied path resolves outside
// the allow-listed root directory. The path is reported but never rewritten.
var ErrSandboxViolation = errors.New("path escapes the allowed directory")

// PathGuard confines file reads to a single administrator-designated root
// directory. Every path handed to the pipeline from an untrusted caller must
// pass through Resolve before it is opened.
type PathGuard struct {
	root string // absolute, symlink-resolved
}

// NewPathGuard creates a guard rooted at dir. The root itself is resolved
// through symlinks once, at construction time, so later comparisons are
// against its real location.
func NewPathGuard(dir string) (*PathGuard, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving guard root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving guard root: %w", err)
	}
	return &PathGuard{root: real}, nil
}

// Root returns the resolved allow-listed root directory.
func (g *PathGuard) Root() string {
	return g.root
}

// Resolve validates a caller-supplied path and returns its absolute,
// symlink-resolved form. Relative paths are interpreted relative to the guard
// root. The resolved path must equal the root or be a descendant of it.
// Traversal segments, absolute paths elsewhere, and symlinks pointing out of
// the root all return ErrSandboxViolation.
func (g *PathGuard) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrSandboxViolation)
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	// Walk symlinks on the longest existing prefix so a link inside the root
	// cannot smuggle the read elsewhere. EvalSymlinks fails on nonexistent
	// paths, so resolve the deepest existing ancestor and re-join the rest.
	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}

	if !withinRoot(g.root, resolved) {
		return "", fmt.Errorf("%w: %q", ErrSandboxViolation, path)
	}
	return resolved, nil
}

// ReadFile resolves the path through the guard and reads it.
func (g *PathGuard) ReadFile(path string) ([]byte, error) {
	resolved, err := g.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", resolved, err)
	}
	return data, nil
}

// resolveExisting resolves symlinks for the deepest existing ancestor of path
// and joins the nonexistent remainder back on. The remainder cannot contain
// traversal segments because the input was cleaned first.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

// withinRoot reports whether path equals root or is a descendant of it.
func withinRoot(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
