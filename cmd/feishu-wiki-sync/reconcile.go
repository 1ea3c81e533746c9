package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tmbmode/feishu-wiki-sync/internal/reconciler"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

func init() {
	rootCmd.AddCommand(newReconcileCmd())
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, logFile, err := loadConfig()
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}

			token, err := cfg.ReadToken()
			if err != nil {
				return err
			}

			ws, err := workspace.New(cfg.Sync.FolderPath)
			if err != nil {
				return err
			}
			if err := ws.Setup(); err != nil {
				return err
			}
			defer ws.Unlock()

			client := wikiapi.NewClient(token)
			rec := reconciler.New(client, ws, reconciler.Options{DeleteRemoteOnLocalMissing: cfg.Sync.DeleteRemoteOnLocalMissing})

			result, err := rec.Run(cmd.Context(), cfg.WikiSpaceID)
			if err != nil {
				slog.Error("reconciliation failed", "error", err)
				return err
			}

			if err := reconciler.WriteLastSyncStatus(ws, "manual", result); err != nil {
				slog.Warn("failed to record last-sync status", "error", err)
			}
			if n, err := reconciler.LogStaleConflicts(ws); err != nil {
				slog.Warn("failed to scan for stale conflict artifacts", "error", err)
			} else if n > 0 {
				slog.Info("stale conflict artifacts found, see warnings above", "count", n)
			}

			fmt.Fprintln(cmd.OutOrStdout(), reconciler.Summary(result))
			return nil
		},
	}
}
