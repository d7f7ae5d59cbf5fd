// Package cmd provides the CLI commands for ragpipe.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/logging"
	"github.com/ragpipe-dev/ragpipe/pkg/version"
)

var (
	flagDir     string
	flagDataDir string
	flagDebug   bool

	loggingCleanup func()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragpipe",
		Short: "Local document indexing and semantic search",
		Long: `Ragpipe chunks and embeds a directory of documents into a local
vector index and serves hybrid semantic + metadata queries over it.

Run 'ragpipe index' in a directory of .md or .txt files to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragpipe version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", ".", "Project directory (config and default source root)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the index data directory")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	lcfg := logging.DefaultConfig()
	if flagDebug {
		lcfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(lcfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	// Command output goes through the output writer; slog is for
	// diagnostics only.
	slog.SetDefault(logger)
	return nil
}

// Execute runs the CLI, cancelling on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(err)
		return err
	}
	return nil
}
