// Package security validates file paths supplied over the radio before the
// services touch the filesystem.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathNotAllowed is returned when a path falls outside every allowed
// directory.
var ErrPathNotAllowed = errors.New("path not allowed")

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't escape
// the specified safe directory, including through symlinks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	canonicalPath, err := canonicalize(filePath)
	if err != nil {
		return err
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonicalize returns the absolute, symlink-free form of path. A path that
// does not exist yet is resolved through its deepest existing parent, so
// /tmp/link/new.txt with link -> /etc resolves to /etc/new.txt.
func canonicalize(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, absPath)
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return absPath, nil
		}
	}
}

// ValidatePathWithinAllowedDirs checks if a file path is within any of the allowed directories.
// Returns nil if the path is valid, or an error describing why it was rejected.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("%w: no allowed directories configured", ErrPathNotAllowed)
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be within one of %v", ErrPathNotAllowed, filePath, allowedDirs)
}

// ResolveTransferPath validates a path received in a file transfer or
// command request. It must be absolute and inside one of allowedDirs; the
// cleaned path is returned.
func ResolveTransferPath(path string, allowedDirs []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("no file path specified")
	}
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s is not absolute", ErrPathNotAllowed, path)
	}
	if err := ValidatePathWithinAllowedDirs(path, allowedDirs); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
