// Package workspace resolves the local root directory this daemon syncs
// and guards it with an advisory lock so two instances never fight over
// the same manifest.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
)

const (
	internalDirName = ".feishu-sync"
	lockFileName    = "daemon.lock"
	logsDirName     = "logs"
	manifestName    = ".feishu-sync.json"
	ignoreFileName  = ".feishusyncignore"
	lastSyncName    = "last-sync.json"
)

var ErrWorkspaceLocked = errors.New("workspace: rootDir is locked by another process")

// Workspace pins down every path the engine reads or writes, derived once
// from the configured root directory.
type Workspace struct {
	Root         string
	InternalDir  string
	LogsDir      string
	ManifestPath string
	IgnoreFile   string
	LastSyncPath string

	flock *flock.Flock
}

// New resolves rootDir (expanding "~") and computes the workspace's fixed
// paths. It does not touch the filesystem.
func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root dir %q: %w", rootDir, err)
	}

	internalDir := filepath.Join(root, internalDirName)

	return &Workspace{
		Root:         root,
		InternalDir:  internalDir,
		LogsDir:      filepath.Join(internalDir, logsDirName),
		ManifestPath: filepath.Join(root, manifestName),
		IgnoreFile:   filepath.Join(root, ignoreFileName),
		LastSyncPath: filepath.Join(internalDir, lastSyncName),
		flock:        flock.New(filepath.Join(internalDir, lockFileName)),
	}, nil
}

// Setup ensures the root and internal directories exist and acquires the
// workspace lock. It is safe to call once at startup.
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("create root dir: %w", err)
	}
	if err := utils.EnsureDir(w.InternalDir); err != nil {
		return fmt.Errorf("create internal dir: %w", err)
	}
	if err := utils.EnsureDir(w.LogsDir); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	return w.Lock()
}

// Lock acquires the exclusive workspace lock, failing fast with
// ErrWorkspaceLocked if another process already holds it.
func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

// Unlock releases the workspace lock and removes the lock file if this
// process was the one holding it.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// AbsPath joins a manifest-style relative (POSIX) path onto the root.
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath converts an absolute path under Root into a POSIX-style relative
// path suitable for storage in the manifest.
func (w *Workspace) RelPath(absPath string) (string, error) {
	rel, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	return utils.ToSlash(rel), nil
}
