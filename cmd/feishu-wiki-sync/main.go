package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tmbmode/feishu-wiki-sync/internal/config"
	"github.com/tmbmode/feishu-wiki-sync/internal/logging"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "feishu-wiki-sync",
	Short:   "Bidirectional sync between a Feishu wiki space and a local Markdown folder",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default "+config.DefaultConfigPath+")")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "error loading .env file:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config (or the default
// path) and wires up process-wide logging alongside it.
func loadConfig() (*config.Config, *os.File, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logDir := filepath.Join(cfg.Sync.FolderPath, ".feishu-sync", "logs")
	logFile, err := logging.Setup(logging.Options{LogDir: logDir})
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}

	return cfg, logFile, nil
}
