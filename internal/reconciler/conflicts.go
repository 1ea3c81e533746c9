package reconciler

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

// LogStaleConflicts walks the workspace for "*.remote.md" conflict
// artifacts (written by saveConflict) whose paired file was edited
// after the artifact was written, meaning the user already resolved
// the conflict by hand. It only logs a cleanup hint; it never deletes
// anything, since conflict resolution itself stays out of scope here.
func LogStaleConflicts(ws *workspace.Workspace) (int, error) {
	stale := 0
	err := filepath.WalkDir(ws.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".remote.md") {
			return nil
		}

		conflictInfo, err := d.Info()
		if err != nil {
			return nil
		}

		pairedPath := strings.TrimSuffix(path, ".remote.md") + ".md"
		pairedInfo, err := os.Stat(pairedPath)
		if err != nil {
			return nil
		}

		if !pairedInfo.ModTime().After(conflictInfo.ModTime()) {
			return nil
		}

		rel, relErr := ws.RelPath(path)
		if relErr != nil {
			rel = path
		}
		slog.Warn("stale conflict artifact, safe to delete", "file", rel, "resolvedAt", pairedInfo.ModTime())
		stale++
		return nil
	})
	return stale, err
}
