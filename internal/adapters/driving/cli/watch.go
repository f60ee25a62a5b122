package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cosmica-labs/cosmica-cli/internal/connectors/filesystem"
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Keep a directory in sync with the knowledge base",
	Long: `Ingests the directory's supported files and then watches it for changes.
New and modified files are re-ingested, deleted files are removed. Runs
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil || documentService == nil {
		return errors.New("ingest service not configured")
	}

	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", dir)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The watcher runs indefinitely; background compaction keeps the
	// index healthy while documents churn.
	if scheduler != nil {
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "scheduler stopped: %v\n", err)
			}
		}()
		defer scheduler.Stop() //nolint:errcheck
	}

	cmd.Printf("Watching %s (ctrl-c to stop)\n", dir)

	watcher := filesystem.NewWatcher(ingestService, documentService, registry)
	if err := watcher.Watch(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
