package changeproc

import (
	"sync/atomic"
	"time"
)

// AtomicEchoGuard is the orchestrator-owned implementation of EchoGuard:
// it tracks whether an engine-driven write is currently in flight and
// when the last one completed, so the local watcher's own echo of that
// write gets dropped instead of round-tripping back into C7.
type AtomicEchoGuard struct {
	ignoring               atomic.Bool
	lastProcessCompletedAt atomic.Int64 // unix nano
	window                 time.Duration
}

// NewAtomicEchoGuard builds a guard using window as the echo-suppression
// period (§4.7's localIgnoreWindowMs).
func NewAtomicEchoGuard(window time.Duration) *AtomicEchoGuard {
	return &AtomicEchoGuard{window: window}
}

// BeginWrite must be called immediately before the engine writes a file
// it owns (reconciler downloads, single-doc refreshes).
func (g *AtomicEchoGuard) BeginWrite() {
	g.ignoring.Store(true)
}

// EndWrite must be called immediately after, recording the completion
// time the echo window is measured from.
func (g *AtomicEchoGuard) EndWrite() {
	g.lastProcessCompletedAt.Store(time.Now().UnixNano())
	g.ignoring.Store(false)
}

// ShouldIgnoreLocal implements EchoGuard: drop the event outright while
// an engine write is in flight, or if the file's own mtime falls within
// the echo window measured from the last completed write (§4.7
// handleLocalChange).
func (g *AtomicEchoGuard) ShouldIgnoreLocal(_ string, modTime time.Time) bool {
	if g.ignoring.Load() {
		return true
	}
	last := g.lastProcessCompletedAt.Load()
	if last == 0 || modTime.IsZero() {
		return false
	}
	delta := modTime.UnixNano() - last
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta) < g.window
}
