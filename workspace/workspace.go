// Package workspace implements the sandboxing capability that every file
// operation in patchkit must pass through: a Guard canonicalizes a path
// and rejects anything that escapes the workspace root or falls under a
// forbidden ancestor (dependency caches, toolchain roots, the workspace's
// .patchkit-cache directory).
package workspace

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"patchkit.dev/patcherr"
)

// Guard is the sole gateway for resolving a path into one that is safe to
// read or write. After construction it changes only through AddForbidden.
type Guard struct {
	root      string   // canonical workspace root
	forbidden []string // canonical forbidden ancestor directories
}

// NewGuard constructs a Guard rooted at root. root must exist and be a
// directory. The default forbidden ancestors (module cache, GOROOT, and
// the workspace's own .patchkit-cache directory) are added automatically.
func NewGuard(root string) (*Guard, error) {
	canonRoot, err := canonicalize(root)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.OutsideWorkspace, "resolving workspace root", err)
	}
	info, err := os.Stat(canonRoot)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.IO, "stat workspace root", err)
	}
	if !info.IsDir() {
		return nil, patcherr.New(patcherr.OutsideWorkspace, "workspace root is not a directory: "+canonRoot)
	}

	g := &Guard{root: canonRoot}
	for _, dir := range defaultForbiddenRoots(canonRoot) {
		if c, err := canonicalize(dir); err == nil {
			g.forbidden = append(g.forbidden, c)
		}
	}
	return g, nil
}

// AddForbidden registers an additional forbidden ancestor directory. It is
// intended for callers (e.g. tests) that need extra sandboxing beyond the
// defaults; it is a no-op if dir cannot be canonicalized (e.g. it doesn't
// exist yet).
func (g *Guard) AddForbidden(dir string) {
	if c, err := canonicalize(dir); err == nil {
		g.forbidden = append(g.forbidden, c)
	}
}

// Root returns the canonical workspace root.
func (g *Guard) Root() string { return g.root }

// Validate canonicalizes path and ensures it is a descendant of the
// workspace root and not under any forbidden ancestor. path may be
// relative (resolved against the workspace root) or absolute.
func (g *Guard) Validate(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.root, path)
	}
	canon, err := canonicalizeLenient(path)
	if err != nil {
		return "", patcherr.Wrap(patcherr.IO, "resolving path", err)
	}
	if !isDescendant(g.root, canon) {
		return "", patcherr.New(patcherr.OutsideWorkspace, "path escapes workspace root: "+canon)
	}
	for _, f := range g.forbidden {
		if isDescendant(f, canon) {
			return "", patcherr.New(patcherr.OutsideWorkspace, "path is under a forbidden root: "+canon)
		}
	}
	return canon, nil
}

// isDescendant reports whether target is root itself or a descendant of it.
func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

// canonicalize resolves symlinks for a path that must already exist.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// canonicalizeLenient resolves symlinks as far as possible, tolerating a
// final path component that does not exist yet (the common case for a
// file about to be created by an InsertSection/overwrite operation): it
// walks up to the nearest existing ancestor, canonicalizes that, then
// rejoins the remaining (non-existent) suffix.
func canonicalizeLenient(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	dir := filepath.Dir(abs)
	var suffix []string
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		if dir == filepath.Dir(dir) {
			return "", os.ErrNotExist
		}
		suffix = append(suffix, filepath.Base(dir))
		dir = filepath.Dir(dir)
	}
}

// defaultForbiddenRoots returns the minimum set of ancestor directories
// that must never be written to, regardless of what the caller asks for.
func defaultForbiddenRoots(workspaceRoot string) []string {
	var roots []string
	if gomodcache := os.Getenv("GOMODCACHE"); gomodcache != "" {
		roots = append(roots, gomodcache)
	} else if gopath := os.Getenv("GOPATH"); gopath != "" {
		roots = append(roots, filepath.Join(gopath, "pkg", "mod"))
	}
	if goroot := runtime.GOROOT(); goroot != "" {
		roots = append(roots, goroot)
	}
	roots = append(roots, filepath.Join(workspaceRoot, ".patchkit-cache"))
	return roots
}
