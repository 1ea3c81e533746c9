package eventsource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tmbmode/feishu-wiki-sync/internal/reconciler"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiwalker"
)

// IgnoreScope lets the poller bracket its own wiki walk with the same
// engine-write guard C7's echo suppression consults, so the downloads it
// triggers don't re-enter the change processor via the local watcher.
type IgnoreScope interface {
	BeginWrite()
	EndWrite()
}

// Poller walks the wiki space on a fixed interval, subscribing any
// document not yet in the manifest. A run already in flight causes the
// next tick to be skipped rather than queued, per §4.8.
type Poller struct {
	client   *wikiapi.Client
	walker   *wikiwalker.Walker
	rec      *reconciler.Reconciler
	spaceID  string
	interval time.Duration
	scope    IgnoreScope

	mu sync.Mutex
}

// NewPoller builds a poller; interval <= 0 means the caller should not
// start it at all (§ "disabled if 0 or false").
func NewPoller(client *wikiapi.Client, rec *reconciler.Reconciler, spaceID string, interval time.Duration, scope IgnoreScope) *Poller {
	return &Poller{
		client:   client,
		walker:   wikiwalker.New(client),
		rec:      rec,
		spaceID:  spaceID,
		interval: interval,
		scope:    scope,
	}
}

// Run ticks on a timer (not a ticker, so a slow pass never queues a
// backlog of pending fires) until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.interval)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.mu.TryLock() {
		slog.Debug("poller tick skipped, previous pass still in flight")
		return
	}
	defer p.mu.Unlock()

	if p.scope != nil {
		p.scope.BeginWrite()
		defer p.scope.EndWrite()
	}

	docs, err := p.walker.Walk(ctx, p.spaceID)
	if err != nil {
		slog.Error("poller walk failed", "error", err)
		return
	}

	known := make(map[string]bool)
	for _, id := range p.rec.ManifestedDocuments() {
		known[id] = true
	}

	for _, doc := range docs {
		if known[doc.DocumentID] {
			continue
		}
		if err := p.rec.SeedDocument(ctx, doc.DocumentID, doc.ObjType, doc.Title); err != nil {
			slog.Warn("poller could not seed new document, deferring to next full sync", "documentId", doc.DocumentID, "error", err)
			continue
		}
		if err := p.client.SubscribeDocument(ctx, doc.ObjType, doc.DocumentID); err != nil {
			slog.Warn("subscribe failed for newly discovered document", "documentId", doc.DocumentID, "error", err)
		}
	}
}
