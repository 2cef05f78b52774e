package identity

import (
	"path"
	"path/filepath"
	"strings"
)

// Resolve returns the identity of the image at p. When root is non-empty and
// p lies beneath it, the identity is the root-relative path without its
// extension, using "/" separators. Otherwise it is the base name without
// extension.
func Resolve(p, root string) string {
	if root != "" {
		if rel, ok := Relative(p, root); ok {
			return stripExt(rel)
		}
	}
	return stripExt(filepath.Base(p))
}

// Relative returns p relative to root with "/" separators. ok is false when p
// is not strictly beneath root.
func Relative(p, root string) (rel string, ok bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}

	r, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", false
	}
	if r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func stripExt(p string) string {
	p = filepath.ToSlash(p)
	return strings.TrimSuffix(p, path.Ext(p))
}
