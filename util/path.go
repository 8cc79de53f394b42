package util

import (
	"path/filepath"
)

// CanonicalPath returns the absolute, slash-normalized form of a path. File
// nodes are keyed by this form so the same file always maps to one node.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(abs)
}
