package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tmbmode/feishu-wiki-sync/internal/orchestrator"
	"github.com/tmbmode/feishu-wiki-sync/internal/wikiapi"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run the sync engine in the foreground (event stream, poller, local watcher)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, logFile, err := loadConfig()
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}

			slog.Info("feishu-wiki-sync starting", "version", version, "config", cfg)

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

			o := orchestrator.New(orchestrator.Config{
				SpaceID:                    cfg.WikiSpaceID,
				WebSocketURL:               cfg.WebSocketURL,
				Token:                      token,
				InitialSync:                cfg.Sync.InitialSync,
				PollIntervalSeconds:        cfg.Sync.PollIntervalSeconds,
				DeleteRemoteOnLocalMissing: cfg.Sync.DeleteRemoteOnLocalMissing,
			}, client, ws)

			defer slog.Info("feishu-wiki-sync stopped")
			if err := o.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
