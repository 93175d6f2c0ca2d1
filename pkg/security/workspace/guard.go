// Package workspace keeps file system writes inside a designated root
// directory. snare uses it to make sure a captured download, whatever name the
// server gave it, is only ever written below the configured downloads folder.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard enforces that resolved paths stay within a root directory.
type Guard struct {
	rootDir string // Absolute, symlink-free path of the root
}

// NewGuard creates a guard for the given directory, creating the directory if
// it does not exist yet. The path is made absolute, cleaned and has its
// symlinks evaluated.
func NewGuard(rootDir string) (*Guard, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}

	expanded, err := ExpandHome(rootDir)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate root directory symlinks: %w", err)
	}

	return &Guard{rootDir: evalPath}, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand ~: %w", err)
	}
	if path == "~" {
		return homeDir, nil
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// RootDir returns the absolute path of the guarded directory.
func (g *Guard) RootDir() string {
	return g.rootDir
}

// ValidatePath checks that path, relative to the root or absolute, resolves
// to a location inside the root.
func (g *Guard) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if !g.IsWithinRoot(g.ResolvePath(path)) {
		return fmt.Errorf("path '%s' is outside %s", path, g.rootDir)
	}

	return nil
}

// ResolvePath converts a relative or absolute path into a cleaned absolute
// path with symlinks resolved as far as the path exists.
func (g *Guard) ResolvePath(path string) string {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(g.rootDir, cleanPath)
	}
	return resolveSymlinks(cleanPath)
}

// Join joins elements below the root and returns the resulting absolute path,
// or an error if the result would escape the root.
func (g *Guard) Join(elem ...string) (string, error) {
	rel := filepath.Join(elem...)
	if err := g.ValidatePath(rel); err != nil {
		return "", err
	}
	return filepath.Join(g.rootDir, rel), nil
}

// IsWithinRoot reports whether absPath is the root itself or a descendant of it.
func (g *Guard) IsWithinRoot(absPath string) bool {
	// /var -> /private/var on macOS
	evalPath := resolveSymlinks(absPath)

	sep := string(filepath.Separator)
	return evalPath == g.rootDir || strings.HasPrefix(evalPath+sep, g.rootDir+sep)
}

// resolveSymlinks resolves symlinks in a path, handling non-existent paths
// by resolving the deepest existing ancestor and re-appending the rest.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath || dir == "." || dir == "/" {
			return path
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
