package util

import (
	"os"
	"path/filepath"
)

// FindProjectRoot walks upward from dir looking for a .git directory and
// returns its parent. Returns dir unchanged when no repository is found.
func FindProjectRoot(dir string) string {
	current := dir
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root
			return dir
		}
		current = parent
	}
}
