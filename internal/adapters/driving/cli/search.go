package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find relevant passages without generating an answer",
	Long: `Performs semantic similarity search across all indexed documents and
prints the matching passages ranked by similarity.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 = default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	ctx := context.Background()
	results, err := queryService.Retrieve(ctx, args[0], domain.QueryOptions{TopK: searchLimit})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No matching passages found.")
		return nil
	}

	for i, r := range results {
		cmd.Printf("%d. [%.0f%%] %s (part %d)\n", i+1, r.Similarity*100, r.DocumentID, r.Sequence+1)
		cmd.Printf("   %s\n\n", snippet(r.Text, 200))
	}
	cmd.Printf("Total: %d passage(s)\n", len(results))
	return nil
}

// snippet truncates text for terminal display.
func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
