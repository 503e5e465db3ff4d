// Package paths maps the catalog's logical source paths onto the template
// checkout and validates archive destinations. Every resolution is checked
// against its declared root before any I/O happens; anything that lands
// outside is an EscapeError.
package paths

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// EscapeError reports a logical path that resolved outside its declared root.
type EscapeError struct {
	Path string
	Root string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("paths: %q escapes root %q", e.Path, e.Root)
}

// Resolver anchors logical paths to the two filesystem roots every
// generation reads from. ProjectRoot holds the template checkout with its
// modules/ and core/ subtrees; CoreBase is the directory legacy mappings are
// relative to (usually <ProjectRoot>/core).
type Resolver struct {
	ProjectRoot string
	CoreBase    string
}

// NewResolver absolutizes and cleans both roots.
func NewResolver(projectRoot, coreBase string) (*Resolver, error) {
	if projectRoot == "" {
		return nil, fmt.Errorf("paths: project root is required")
	}
	absProject, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("paths: project root: %w", err)
	}
	if coreBase == "" {
		coreBase = filepath.Join(absProject, "core")
	}
	absCore, err := filepath.Abs(coreBase)
	if err != nil {
		return nil, fmt.Errorf("paths: core base: %w", err)
	}
	return &Resolver{ProjectRoot: absProject, CoreBase: absCore}, nil
}

// ResolveSource maps a logical mapping source to an absolute filesystem
// path. Sources under modules/ or core/ resolve against the project root;
// everything else is legacy and resolves against the core base. The result
// must stay at or below its root.
func (r *Resolver) ResolveSource(source string) (string, error) {
	if source == "" {
		return "", &EscapeError{Path: source, Root: r.ProjectRoot}
	}
	logical := strings.TrimPrefix(strings.ReplaceAll(source, "\\", "/"), "/")

	root := r.CoreBase
	if logical == "modules" || logical == "core" ||
		strings.HasPrefix(logical, "modules/") || strings.HasPrefix(logical, "core/") {
		root = r.ProjectRoot
	}

	abs := filepath.Join(root, filepath.FromSlash(logical))
	if !within(root, abs) {
		return "", &EscapeError{Path: source, Root: root}
	}
	return abs, nil
}

// ResolveDestination maps a mapping destination to its archive entry name
// under the project directory. The result always uses forward slashes and
// must be strictly below projectName/.
func (r *Resolver) ResolveDestination(projectName, destination string) (string, error) {
	if projectName == "" || destination == "" {
		return "", &EscapeError{Path: destination, Root: projectName}
	}
	entry := path.Join(projectName, normalize(destination))
	if entry == projectName || !strings.HasPrefix(entry, projectName+"/") {
		return "", &EscapeError{Path: destination, Root: projectName}
	}
	return entry, nil
}

// normalize collapses separators and dot segments using slash semantics so
// catalog rows authored on any platform behave the same.
func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "/")
}

// within reports whether abs equals root or sits below it.
func within(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../"))
}
