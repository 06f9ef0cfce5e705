// Package sandbox confines filesystem access to a single watched folder.
//
// Every path the agent supplies passes through Contain before any tool
// touches the filesystem. Contain resolves the path against the folder root
// and rejects anything whose relative form escapes it, so a crafted argument
// like "../../etc/passwd" can never reach the OS layer.
package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxReadBytes is the hard cap for whole-file reads performed on behalf of
// the agent (read_file, grep, sed, head, tail).
const MaxReadBytes = 256 * 1024

var (
	// ErrPathEscape means a path resolved outside its folder root.
	ErrPathEscape = errors.New("path escapes folder")
	// ErrSizeExceeded means a file is larger than the read cap.
	ErrSizeExceeded = errors.New("file exceeds size limit")
	// ErrNotRegular means the target exists but is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
	// ErrExists means a create-style operation found its target present.
	ErrExists = errors.New("target already exists")
	// ErrMissing means an operation's source path does not exist.
	ErrMissing = errors.New("path does not exist")
)

// Contain resolves p relative to root and returns the absolute path, or
// ErrPathEscape when the resolved path is not inside root. Absolute p is
// accepted only when it already lies inside root. Symlinks in the existing
// portion of the path are followed for the check, so a link inside the folder
// cannot route an operation outside it.
func Contain(root, p string) (string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	if !within(root, abs) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = filepath.Clean(root)
	}
	real, err := resolveExisting(abs)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", abs, err)
	}
	if !within(realRoot, real) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return abs, nil
}

// within is the path-arithmetic containment check: abs relative to root must
// not climb out or change roots.
func within(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// resolveExisting evaluates symlinks in the deepest existing ancestor of abs
// and rejoins the not-yet-created remainder.
func resolveExisting(abs string) (string, error) {
	suffix := ""
	cur := abs
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(real, suffix), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Join(cur, suffix), nil
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}

// EnsureParentDir creates the parent directory of abs if it does not exist.
func EnsureParentDir(abs string) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	return nil
}

// AssertExists fails with ErrMissing when abs does not exist.
func AssertExists(abs string) error {
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissing, abs)
		}
		return fmt.Errorf("stat %s: %w", abs, err)
	}
	return nil
}

// AssertNotExists fails with ErrExists when abs is already present.
func AssertNotExists(abs string) error {
	if _, err := os.Lstat(abs); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, abs)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", abs, err)
	}
	return nil
}

// ReadCapped reads abs in full, refusing non-regular files and files larger
// than maxBytes. A maxBytes of zero means MaxReadBytes.
func ReadCapped(abs string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = MaxReadBytes
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, abs)
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, abs)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrSizeExceeded, abs, info.Size(), maxBytes)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()

	// The size could have grown between stat and read; LimitReader keeps the
	// cap honest.
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s grew past %d bytes", ErrSizeExceeded, abs, maxBytes)
	}
	return data, nil
}
