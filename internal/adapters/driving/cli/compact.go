package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var compactCheck bool

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rebuild the index without removed documents",
	Long: `Rebuilds the vector index, physically dropping the entries left behind by
removed documents. Runs automatically in the background when enough of the
index is stale; this command forces it.`,
	RunE: runCompact,
}

func init() {
	compactCmd.Flags().BoolVar(&compactCheck, "check", false, "report the stale fraction without compacting")
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, _ []string) error {
	if maintenanceService == nil {
		return errors.New("maintenance service not configured")
	}

	ctx := context.Background()

	ratio, err := maintenanceService.TombstoneRatio(ctx)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	cmd.Printf("Stale entries: %.1f%% of index\n", ratio*100)

	if compactCheck {
		return nil
	}
	if ratio == 0 {
		cmd.Println("Nothing to compact.")
		return nil
	}

	if err := maintenanceService.Compact(ctx); err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}

	cmd.Println("Compaction complete.")
	return nil
}
