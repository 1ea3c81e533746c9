// Package changeproc implements the change processor (C7): a
// single-goroutine actor that guarantees at-most-one in-flight action
// per document, debouncing bursts of remote events and local file
// writes into a single dispatched action.
package changeproc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmbmode/feishu-wiki-sync/internal/reconciler"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
)

// Built-in timing defaults (§4.7's "Built-in defaults, not
// configurable" — fixed system-wide, but exposed as struct fields so
// tests can shrink them rather than waiting out real wall-clock delays).
const (
	DefaultDebounceDelay     = 3 * time.Second
	DefaultDedupeWindow      = 10 * time.Minute
	DefaultLocalIgnoreWindow = 2 * time.Second

	inboxSize = 256

	actionFullSync = "fullSync"
	actionRefresh  = "refresh"
	actionUpload   = "upload"

	fullSyncKey = "__fullsync__"
)

// RunFullSync performs a complete reconciliation pass. It's the
// fallback path when a single-document action can't find its pairing.
type RunFullSync func(ctx context.Context, reason string) error

// EchoGuard reports whether a local filesystem event for relPath should
// be dropped as an echo of the engine's own write (§5 "Shared
// resources": the orchestrator owns ignoreLocalChanges and the last
// completed-write clock; C7 consults them, and brackets its own
// single-doc refresh writes when the guard also offers
// BeginWrite/EndWrite).
type EchoGuard interface {
	ShouldIgnoreLocal(relPath string, modTime time.Time) bool
}

type pendingDoc struct {
	lastEventAt time.Time
	lastAction  string
	timer       *time.Timer
}

type readyAction struct {
	documentID    string
	fileType      string
	action        string
	correlationID string
}

// Processor owns per-document debounce state and the single goroutine
// that dispatches the debounced actions. It must be started with Run
// before any events are accepted.
type Processor struct {
	rec      *reconciler.Reconciler
	fullSync RunFullSync
	guard    EchoGuard
	spaceID  string

	debounceDelay time.Duration
	dedupeWindow  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingDoc

	inbox chan rawEvent
	ready chan readyAction
	done  chan struct{}
}

type rawEvent struct {
	kind       string // "remote" or "local"
	documentID string
	fileType   string
	eventType  string
	relPath    string
	modTime    time.Time
}

// New builds a processor. fullSync is invoked for deletions,
// folder-level creations, and fallback-on-not-found; guard answers the
// local echo-suppression question the watcher can't answer on its own.
func New(rec *reconciler.Reconciler, spaceID string, fullSync RunFullSync, guard EchoGuard) *Processor {
	return &Processor{
		rec:           rec,
		fullSync:      fullSync,
		guard:         guard,
		spaceID:       spaceID,
		debounceDelay: DefaultDebounceDelay,
		dedupeWindow:  DefaultDedupeWindow,
		pending:       make(map[string]*pendingDoc),
		inbox:         make(chan rawEvent, inboxSize),
		ready:         make(chan readyAction, inboxSize),
		done:          make(chan struct{}),
	}
}

// SetTimings overrides the debounce and dedupe windows; only tests need
// this, since production always runs with the fixed defaults above.
func (p *Processor) SetTimings(debounceDelay, dedupeWindow time.Duration) {
	p.debounceDelay = debounceDelay
	p.dedupeWindow = dedupeWindow
}

// Run processes events until ctx is cancelled. It must run in its own
// goroutine; all dispatch happens serially on this goroutine so no
// additional locking is needed around the reconciler's manifest access.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drainTimers()
			return
		case ev := <-p.inbox:
			p.handleRaw(ctx, ev)
		case act := <-p.ready:
			p.dispatch(ctx, act)
		}
	}
}

// Wait blocks until Run has returned (ctx cancelled and cleanup done).
func (p *Processor) Wait() {
	<-p.done
}

// HandleEvent is the entry point for remote event-stream notifications
// (§4.7 handleEvent). eventType examples: "created_in_folder",
// "edit", "title_updated", "trashed".
func (p *Processor) HandleEvent(eventType, documentID, fileType string) {
	select {
	case p.inbox <- rawEvent{kind: "remote", documentID: documentID, fileType: fileType, eventType: eventType}:
	default:
		slog.Warn("change processor inbox full, dropping remote event", "documentId", documentID, "eventType", eventType)
	}
}

// HandleLocalChange is the entry point for filesystem watcher
// notifications (§4.7 handleLocalChange).
func (p *Processor) HandleLocalChange(relPath string, modTime time.Time) {
	select {
	case p.inbox <- rawEvent{kind: "local", relPath: relPath, modTime: modTime}:
	default:
		slog.Warn("change processor inbox full, dropping local event", "file", relPath)
	}
}

func (p *Processor) handleRaw(ctx context.Context, ev rawEvent) {
	switch ev.kind {
	case "remote":
		p.handleRemoteEvent(ev)
	case "local":
		p.handleLocalEvent(ev)
	}
}

func (p *Processor) handleRemoteEvent(ev rawEvent) {
	if isDeletionEvent(ev.eventType) || isFolderCreationEvent(ev.eventType) {
		p.arm(fullSyncKey, "", actionFullSync)
		return
	}
	if ev.documentID == "" {
		return
	}
	p.arm(ev.documentID, ev.fileType, actionRefresh)
}

func (p *Processor) handleLocalEvent(ev rawEvent) {
	if p.guard != nil && p.guard.ShouldIgnoreLocal(ev.relPath, ev.modTime) {
		return
	}
	documentID, ok := p.rec.LookupDocumentByFile(ev.relPath)
	if !ok {
		slog.Debug("local change has no manifest pairing, ignoring", "file", ev.relPath)
		return
	}
	p.arm(documentID, "", actionUpload)
}

// arm deduplicates and (re)arms the debounce timer for (key, action):
// an identical pending action within DedupeWindow is not queued again
// but resets the existing timer, anything else replaces it with a fresh
// DebounceDelay timer, so a burst collapses into one dispatched action
// DebounceDelay after the last event.
func (p *Processor) arm(key, fileType, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	state, exists := p.pending[key]
	if exists && state.lastAction == action && now.Sub(state.lastEventAt) < p.dedupeWindow && state.timer != nil {
		state.lastEventAt = now
		state.timer.Reset(p.debounceDelay)
		return
	}

	if !exists {
		state = &pendingDoc{}
		p.pending[key] = state
	}
	state.lastEventAt = now
	state.lastAction = action

	if state.timer != nil {
		state.timer.Stop()
	}

	correlationID := uuid.NewString()
	state.timer = time.AfterFunc(p.debounceDelay, func() {
		p.ready <- readyAction{documentID: key, fileType: fileType, action: action, correlationID: correlationID}
	})
}

func (p *Processor) dispatch(ctx context.Context, act readyAction) {
	p.mu.Lock()
	delete(p.pending, act.documentID)
	p.mu.Unlock()

	log := slog.With("correlationId", act.correlationID, "documentId", act.documentID, "action", act.action)

	var err error
	switch act.action {
	case actionFullSync:
		err = p.fullSync(ctx, "event")
	case actionRefresh:
		scope, scoped := p.guard.(interface {
			BeginWrite()
			EndWrite()
		})
		if scoped {
			scope.BeginWrite()
		}
		_, err = p.rec.RefreshDocument(ctx, act.documentID)
		if scoped {
			scope.EndWrite()
		}
	case actionUpload:
		err = p.rec.UploadDocument(ctx, act.documentID)
	}

	if err == nil {
		log.Info("change processor action completed")
		return
	}

	if errors.Is(err, wikiapi.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		log.Warn("pairing unknown or missing, falling back to full sync", "error", err)
		if fsErr := p.fullSync(ctx, "fallback"); fsErr != nil {
			log.Error("fallback full sync failed", "error", fsErr)
		}
		return
	}

	log.Error("change processor action failed", "error", err)
}

func (p *Processor) drainTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, state := range p.pending {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
}

func isDeletionEvent(eventType string) bool {
	return eventType == "trashed"
}

func isFolderCreationEvent(eventType string) bool {
	return eventType == "created_in_folder"
}
