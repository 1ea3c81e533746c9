package utils

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path by first writing to a sibling
// "<path>.tmp" file and renaming it into place, so a reader never observes
// a partially-written file and a crash mid-write leaves the previous
// contents intact.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureParent(path); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Clean(path))
}
