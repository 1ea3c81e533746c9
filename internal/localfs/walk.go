// Package localfs enumerates and hashes the local Markdown file set the
// reconciler diffs against the manifest.
package localfs

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
)

// FileInfo is one local Markdown file: its absolute path, its
// POSIX-style path relative to root, and its content hash.
type FileInfo struct {
	FullPath string
	RelPath  string
	Hash     string
}

// Walk returns every ".md" file under root (excluding ".remote.md"
// files, ".git", "node_modules", and the manifest file), each paired
// with its SHA-256 content hash. Traversal order is depth-first but not
// otherwise meaningful to callers.
func Walk(root string, ignore *IgnoreList) (map[string]FileInfo, error) {
	files := make(map[string]FileInfo)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if ignore.ShouldIgnore(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !isTrackedMarkdown(d.Name()) {
			return nil
		}

		hash, err := utils.HashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = utils.ToSlash(rel)

		files[rel] = FileInfo{FullPath: path, RelPath: rel, Hash: hash}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func isTrackedMarkdown(name string) bool {
	ok, _ := doublestar.Match("*.md", name)
	if !ok {
		return false
	}
	conflict, _ := doublestar.Match("*.remote.md", name)
	return !conflict
}
