package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// settingsStore is injected separately from Services: settings edits go
// straight to the config file, not through the core.
var settingsStore driven.SettingsStore

// SetSettingsStore injects the settings store for the settings commands.
func SetSettingsStore(store driven.SettingsStore) {
	settingsStore = store
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage engine settings",
	Long: `View and change the engine's tunable parameters.

Changes take effect the next time the engine starts. Index parameters
(m, ef_construction, dimension) only apply to indexes built after the
change.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change a setting",
	Long: `Change a single setting. Keys:

  chunking.size         target chunk length in characters
  chunking.overlap      overlap between consecutive chunks
  chunking.min_size     smallest chunk kept
  retrieval.top_k       passages retrieved per question
  retrieval.floor       minimum similarity kept (0-1)
  retrieval.max_context passages merged into one answer context
  memory.near_window    verbatim turns kept per conversation
  index.ef_search       search candidate-list width
  index.rebuild_threshold  stale fraction that triggers compaction`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}

	settings, err := settingsStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cmd.Printf("Settings (%s)\n\n", settingsStore.Path())
	cmd.Println("[Chunking]")
	cmd.Printf("  Size:     %d characters\n", settings.ChunkSize)
	cmd.Printf("  Overlap:  %d characters\n", settings.ChunkOverlap)
	cmd.Printf("  Min size: %d characters\n", settings.MinChunkSize)
	cmd.Println()
	cmd.Println("[Retrieval]")
	cmd.Printf("  Top K:            %d\n", settings.TopK)
	cmd.Printf("  Similarity floor: %.2f\n", settings.SimilarityFloor)
	cmd.Printf("  Max context:      %d chunks\n", settings.MaxContextChunks)
	cmd.Println()
	cmd.Println("[Memory]")
	cmd.Printf("  Near window: %d turns\n", settings.NearWindow)
	cmd.Println()
	cmd.Println("[Index]")
	cmd.Printf("  M:                 %d\n", settings.HNSWM)
	cmd.Printf("  EF construction:   %d\n", settings.EFConstruction)
	cmd.Printf("  EF search:         %d\n", settings.EFSearch)
	cmd.Printf("  Rebuild threshold: %.2f\n", settings.RebuildThreshold)
	cmd.Printf("  Dimension:         %d\n", settings.Dimension)

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}

	settings, err := settingsStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if err := applySetting(&settings, args[0], args[1]); err != nil {
		return err
	}

	if err := settingsStore.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}

// applySetting writes one dotted-key value into the settings.
func applySetting(settings *domain.Settings, key, value string) error {
	intFields := map[string]*int{
		"chunking.size":         &settings.ChunkSize,
		"chunking.overlap":      &settings.ChunkOverlap,
		"chunking.min_size":     &settings.MinChunkSize,
		"retrieval.top_k":       &settings.TopK,
		"retrieval.max_context": &settings.MaxContextChunks,
		"memory.near_window":    &settings.NearWindow,
		"index.ef_search":       &settings.EFSearch,
	}
	floatFields := map[string]*float64{
		"retrieval.floor":         &settings.SimilarityFloor,
		"index.rebuild_threshold": &settings.RebuildThreshold,
	}

	if field, ok := intFields[key]; ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		*field = n
		return nil
	}
	if field, ok := floatFields[key]; ok {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s expects a number: %w", key, err)
		}
		*field = f
		return nil
	}
	return fmt.Errorf("unknown setting: %s", key)
}
