package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "dev"

const defaultStorageFile = "./config/data/storage.json"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	file     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Inspect and change synchronized stores",
		Long: `syncctl reads and writes the keys of a file storage shared with
go_syncstore servers. Values are JSON documents; every running server
holding a key picks up the change through its file watcher.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel != "" && !logger.SetLevel(opts.logLevel) {
				return fmt.Errorf("invalid log level %q", opts.logLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.file, "file", "f", envOrDefault("GO_SYNCSTORE_STORAGE_FILE_PATH", defaultStorageFile), "storage file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		getCmd(opts),
		setCmd(opts),
		rmCmd(opts),
		keysCmd(opts),
		watchCmd(opts),
	)
	return rootCmd
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
