// Package orchestrator wires the change processor and the three event
// sources together and owns the shared echo-suppression clock C7
// consults (C9).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tmbmode/feishu-wiki-sync/internal/changeproc"
	"github.com/tmbmode/feishu-wiki-sync/internal/eventsource"
	"github.com/tmbmode/feishu-wiki-sync/internal/localfs"
	"github.com/tmbmode/feishu-wiki-sync/internal/reconciler"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

// Config holds the startup parameters §4.9's sequence needs.
type Config struct {
	SpaceID                    string
	WebSocketURL               string
	Token                      string
	InitialSync                bool
	PollIntervalSeconds        int
	DeleteRemoteOnLocalMissing bool
}

// Orchestrator runs the daemon's startup sequence and supervises every
// long-lived component for the process's lifetime.
type Orchestrator struct {
	cfg    Config
	client *wikiapi.Client
	ws     *workspace.Workspace
	rec    *reconciler.Reconciler
	proc   *changeproc.Processor
	guard  *changeproc.AtomicEchoGuard
}

// New builds an orchestrator; it does not touch the network or
// filesystem until Start is called.
func New(cfg Config, client *wikiapi.Client, ws *workspace.Workspace) *Orchestrator {
	rec := reconciler.New(client, ws, reconciler.Options{DeleteRemoteOnLocalMissing: cfg.DeleteRemoteOnLocalMissing})
	guard := changeproc.NewAtomicEchoGuard(changeproc.DefaultLocalIgnoreWindow)

	o := &Orchestrator{
		cfg:    cfg,
		client: client,
		ws:     ws,
		rec:    rec,
		guard:  guard,
	}
	o.proc = changeproc.New(rec, cfg.SpaceID, o.runFullSync, guard)
	return o
}

// Start performs the §4.9 sequence and then blocks, supervising every
// component, until ctx is cancelled or a component fails fatally.
func (o *Orchestrator) Start(ctx context.Context) error {
	slog.Info("orchestrator starting", "spaceId", o.cfg.SpaceID)

	if o.cfg.InitialSync {
		slog.Info("running initial reconciliation pass")
		if err := o.runFullSync(ctx, "startup"); err != nil {
			slog.Error("initial sync failed, continuing with daemon startup", "error", err)
		}
	}

	for _, id := range o.rec.ManifestedDocuments() {
		fileType, _ := o.rec.FileTypeOf(id)
		if err := o.client.SubscribeDocument(ctx, fileType, id); err != nil {
			slog.Warn("subscribe failed for manifested document", "documentId", id, "error", err)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		o.proc.Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		poller := eventsource.NewPoller(o.client, o.rec, o.cfg.SpaceID, time.Duration(o.cfg.PollIntervalSeconds)*time.Second, o.guard)
		poller.Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		ignore := localfs.NewIgnoreList(o.ws.Root, o.ws.IgnoreFile)
		watcher := eventsource.NewLocalWatcher(o.ws.Root, ignore, o.proc.HandleLocalChange)
		watcher.Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		stream := eventsource.NewWebSocketStream(o.cfg.WebSocketURL, o.cfg.Token, o.proc.HandleEvent)
		stream.Run(egCtx)
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("orchestrator: %w", err)
	}

	o.proc.Wait()
	slog.Info("orchestrator stopped")
	return nil
}

// runFullSync brackets a reconciler pass with the echo guard so the
// local watcher doesn't re-enter C7 over the reconciler's own writes.
func (o *Orchestrator) runFullSync(ctx context.Context, reason string) error {
	o.guard.BeginWrite()
	defer o.guard.EndWrite()

	result, err := o.rec.Run(ctx, o.cfg.SpaceID)
	if err != nil {
		return err
	}
	slog.Info("full sync complete", "reason", reason, "summary", reconciler.Summary(result))

	if err := reconciler.WriteLastSyncStatus(o.ws, reason, result); err != nil {
		slog.Warn("failed to record last-sync status", "error", err)
	}
	if n, err := reconciler.LogStaleConflicts(o.ws); err != nil {
		slog.Warn("failed to scan for stale conflict artifacts", "error", err)
	} else if n > 0 {
		slog.Info("stale conflict artifacts found, see warnings above", "count", n)
	}
	return nil
}
