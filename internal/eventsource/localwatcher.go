package eventsource

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/tmbmode/feishu-wiki-sync/internal/localfs"
)

const watchEventBufferSize = 256

// LocalChangeHandler receives a manifest-relative path and the mtime
// observed at the time of the event; C7's debounce owns coalescing
// bursts, so this layer only filters and forwards.
type LocalChangeHandler func(relPath string, modTime time.Time)

// LocalWatcher recursively watches rootDir for writes, filtering out the
// same names C5's walker ignores (manifest file, .git, conflict
// artifacts, custom ignore rules).
type LocalWatcher struct {
	root    string
	ignore  *localfs.IgnoreList
	handler LocalChangeHandler
}

func NewLocalWatcher(root string, ignore *localfs.IgnoreList, handler LocalChangeHandler) *LocalWatcher {
	return &LocalWatcher{root: root, ignore: ignore, handler: handler}
}

// Run watches until ctx is cancelled. It falls back to a slow poll loop
// if the platform's notify backend can't establish a recursive watch
// (sandboxed/headless environments, notably).
func (w *LocalWatcher) Run(ctx context.Context) {
	events := make(chan notify.EventInfo, watchEventBufferSize)

	recursive := filepath.Join(w.root, "...")
	if err := notify.Watch(recursive, events, notify.Write, notify.Create, notify.Rename); err != nil {
		slog.Warn("recursive watch unavailable, falling back to polling", "dir", w.root, "error", err)
		w.pollLoop(ctx)
		return
	}
	defer notify.Stop(events)

	slog.Info("local watcher started", "dir", w.root)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			w.handle(ev.Path())
		}
	}
}

func (w *LocalWatcher) handle(absPath string) {
	if w.ignore.ShouldIgnore(absPath) {
		return
	}

	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		// Deleted files still matter (the reconciler's next pass picks
		// up the delete), but a live watcher can't report a useful
		// mtime for a path that no longer exists.
		w.handler(filepath.ToSlash(rel), time.Time{})
		return
	}

	w.handler(filepath.ToSlash(rel), info.ModTime())
}

func (w *LocalWatcher) pollLoop(ctx context.Context) {
	const interval = 2 * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]time.Time)
	scan := func() {
		_ = filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if w.ignore.ShouldIgnore(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if prev, ok := seen[path]; !ok || !prev.Equal(info.ModTime()) {
				seen[path] = info.ModTime()
				w.handle(path)
			}
			return nil
		})
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan()
		}
	}
}
