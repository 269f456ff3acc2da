// Package workspace contains the path guard that confines all file
// operations to a single repository root.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// ErrUnsafePath is returned when a path resolves outside the workspace root.
var ErrUnsafePath = errors.New("path escapes workspace root")

// driveLetter matches Windows drive-prefixed paths such as C:\ or d:/.
var driveLetter = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// Guard validates that paths stay inside a fixed root directory.
// The zero value is not usable; construct with NewGuard.
type Guard struct {
	root            string // canonicalized absolute root
	caseInsensitive bool
}

// NewGuard creates a Guard for the given root. The root is made absolute
// and symlink-resolved once so later comparisons are against its
// canonical form.
func NewGuard(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Guard{
		root:            filepath.Clean(abs),
		caseInsensitive: runtime.GOOS == "windows" || runtime.GOOS == "darwin",
	}, nil
}

// Root returns the canonicalized workspace root.
func (g *Guard) Root() string { return g.root }

// Resolve maps a user-supplied relative path to an absolute path inside
// the root. Empty, absolute, UNC, and drive-letter inputs are refused, as
// is any path that canonicalizes outside the root.
func (g *Guard) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrUnsafePath
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\\`) || strings.HasPrefix(rel, `\`) {
		return "", ErrUnsafePath
	}
	if driveLetter.MatchString(rel) {
		return "", ErrUnsafePath
	}

	abs := filepath.Clean(filepath.Join(g.root, filepath.FromSlash(rel)))
	if !g.IsSafe(abs) {
		return "", ErrUnsafePath
	}
	return abs, nil
}

// IsSafe reports whether the absolute path is contained in the root.
// Containment is lexical (root prefix plus separator, or the root
// itself) and physical: every existing segment between the root and the
// target that is a symlink must have a final target that is itself safe.
// Non-existent tail segments are permitted so new files can be created.
// Any I/O error during checking collapses to unsafe.
func (g *Guard) IsSafe(abs string) bool {
	abs = filepath.Clean(abs)
	if !g.hasRootPrefix(abs) {
		return false
	}

	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}

	current := g.root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, seg)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return true // remaining segments do not exist yet
			}
			return false
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(current)
			if err != nil {
				return false
			}
			if !g.hasRootPrefix(filepath.Clean(target)) {
				return false
			}
		}
	}
	return true
}

// hasRootPrefix reports whether abs equals the root or begins with the
// root followed by a separator.
func (g *Guard) hasRootPrefix(abs string) bool {
	root, candidate := g.root, abs
	if g.caseInsensitive {
		root, candidate = strings.ToLower(root), strings.ToLower(candidate)
	}
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}
