package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmbmode/feishu-wiki-sync/internal/reconciler"
	"github.com/tmbmode/feishu-wiki-sync/internal/supervisor"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

func init() {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the sync engine as a detached background process",
	}
	daemonCmd.AddCommand(newDaemonStartCmd(), newDaemonStopCmd(), newDaemonStatusCmd())
	rootCmd.AddCommand(daemonCmd)
}

func supervisorForConfig() (*supervisor.Supervisor, *workspace.Workspace, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.New(cfg.Sync.FolderPath)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(ws.InternalDir, 0o755); err != nil {
		return nil, nil, err
	}
	return supervisor.New(ws.InternalDir), ws, nil
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Spawn the sync engine as a detached process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sup, ws, err := supervisorForConfig()
			if err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return err
			}

			args2 := []string{"sync"}
			if configPath != "" {
				args2 = append(args2, "--config", configPath)
			}

			pid, err := sup.Start(self, args2, filepath.Join(ws.LogsDir, "daemon-stdout.log"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon started, pid %d\n", pid)
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the detached sync engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sup, _, err := supervisorForConfig()
			if err != nil {
				return err
			}
			if err := sup.Stop(10 * time.Second); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the sync engine daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sup, ws, err := supervisorForConfig()
			if err != nil {
				return err
			}
			status := sup.Status()
			if status.Running {
				fmt.Fprintf(cmd.OutOrStdout(), "running, pid %d\n", status.PID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "not running")
			}

			if last, err := reconciler.ReadLastSyncStatus(ws); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "last sync: %s (%s): %s\n",
					last.Timestamp.Format(time.RFC3339), last.Reason, last.Summary)
			}
			return nil
		},
	}
}
