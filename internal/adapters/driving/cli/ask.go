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
	askConversation string
	askTopK         int
	askDocuments    []string
	askJSON         bool
	askNoStream     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question of the knowledge base",
	Long: `Retrieves the passages most relevant to the question and generates a
grounded answer. Without a configured language model the matching passages
are printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "conversation id for follow-up context")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "n", 0, "number of passages to retrieve (0 = default)")
	askCmd.Flags().StringSliceVarP(&askDocuments, "document", "d", nil, "restrict retrieval to the given document ids")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the full answer instead of streaming")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	ctx := context.Background()
	opts := domain.QueryOptions{
		TopK:        askTopK,
		DocumentIDs: askDocuments,
	}

	var answer *domain.Answer
	var err error
	if askJSON || askNoStream {
		answer, err = queryService.Ask(ctx, askConversation, args[0], opts)
	} else {
		answer, err = queryService.AskStream(ctx, askConversation, args[0], opts, func(token string) {
			cmd.Print(token)
		})
		cmd.Println()
	}
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}

	if askNoStream {
		cmd.Println(answer.Text)
	}

	if len(answer.Sources) > 0 {
		cmd.Println("\nSources:")
		for _, src := range answer.Sources {
			cmd.Printf("  %s (part %d, %.0f%% match)\n", src.DocumentID, src.Sequence+1, src.Similarity*100)
		}
	}

	return nil
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
