package fs

import (
	"fmt"
	"strings"

	"deskfs/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// VirtualPath is a normalized absolute path in the virtual filesystem:
// it starts with "/", has no empty, "." or ".." segments and no trailing
// separator unless it is the root.
type VirtualPath struct {
	path string
}

// RootPath is the root directory.
var RootPath = VirtualPath{path: "/"}

// NormalizePath trims surrounding whitespace, maps an empty path to the
// root, anchors relative input at the root, collapses repeated separators
// and drops a trailing separator. It does not resolve "." or ".."; such
// segments make the path invalid, since resolving them is the caller's job.
func NormalizePath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "/", nil
	}
	if strings.IndexByte(trimmed, 0) >= 0 {
		return "", fmt.Errorf("%w: path contains NUL byte", ErrInvalidPath)
	}

	var b strings.Builder
	b.Grow(len(trimmed) + 1)
	for _, seg := range strings.Split(trimmed, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", fmt.Errorf("%w: unresolved %q segment in %q", ErrInvalidPath, seg, p)
		}
		b.WriteByte('/')
		b.WriteString(seg)
	}

	if b.Len() == 0 {
		return "/", nil
	}
	normalized := b.String()
	pathLogger.Trace("Normalized path: %q -> %q", p, normalized)
	return normalized, nil
}

// NewVirtualPath normalizes p.
func NewVirtualPath(p string) (VirtualPath, error) {
	normalized, err := NormalizePath(p)
	if err != nil {
		return VirtualPath{}, err
	}
	return VirtualPath{path: normalized}, nil
}

// String returns the string representation of the path
func (vp VirtualPath) String() string {
	if vp.path == "" {
		return "/"
	}
	return vp.path
}

// IsRoot returns true if this is the root virtual path "/"
func (vp VirtualPath) IsRoot() bool {
	return vp.String() == "/"
}

// Parent returns the containing directory. The root is its own parent.
func (vp VirtualPath) Parent() VirtualPath {
	s := vp.String()
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return RootPath
	}
	return VirtualPath{path: s[:i]}
}

// Base returns the last element of the path, or "/" for the root.
func (vp VirtualPath) Base() string {
	s := vp.String()
	if s == "/" {
		return "/"
	}
	return s[strings.LastIndexByte(s, '/')+1:]
}

// Child joins a single name onto vp.
func (vp VirtualPath) Child(name string) (VirtualPath, error) {
	if name == "" || strings.Contains(name, "/") {
		return VirtualPath{}, fmt.Errorf("%w: bad entry name %q", ErrInvalidPath, name)
	}
	return NewVirtualPath(vp.childPrefix() + name)
}

// childPrefix is the prefix every strict descendant of vp starts with.
func (vp VirtualPath) childPrefix() string {
	if vp.IsRoot() {
		return "/"
	}
	return vp.String() + "/"
}

// Contains reports whether other is a strict descendant of vp.
func (vp VirtualPath) Contains(other VirtualPath) bool {
	return other.String() != vp.String() && strings.HasPrefix(other.String(), vp.childPrefix())
}

// isDirectChild reports whether key names an entry exactly one level
// below the directory whose childPrefix is prefix.
func isDirectChild(key, prefix string) bool {
	if len(key) <= len(prefix) || !strings.HasPrefix(key, prefix) {
		return false
	}
	return !strings.Contains(key[len(prefix):], "/")
}
