package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage indexed documents",
	Long:  `List, inspect, or remove documents from the knowledge base.`,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all documents",
	RunE:  runDocsList,
}

var docsGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsGet,
}

var docsRemoveCmd = &cobra.Command{
	Use:   "remove [doc-id]",
	Short: "Remove a document",
	Long: `Removes a document from the knowledge base. Its passages stop appearing
in results immediately; the index space is reclaimed at the next compaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocsRemove,
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsGetCmd)
	docsCmd.AddCommand(docsRemoveCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := context.Background()
	docs, err := documentService.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed yet. Run 'cosmica ingest' to add some.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    File:   %s\n", docs[i].Filename)
		cmd.Printf("    Status: %s\n", docs[i].Status)
		cmd.Printf("    Chunks: %d\n", docs[i].ChunkCount)
		cmd.Println()
	}

	cmd.Printf("Total: %d document(s)\n", len(docs))
	return nil
}

func runDocsGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := context.Background()
	doc, err := documentService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  File:     %s\n", doc.Filename)
	cmd.Printf("  Status:   %s\n", doc.Status)
	cmd.Printf("  Chunks:   %d\n", doc.ChunkCount)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	if doc.FailureReason != "" {
		cmd.Printf("  Failure:  %s\n", doc.FailureReason)
	}

	return nil
}

func runDocsRemove(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := context.Background()
	if err := documentService.Remove(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}

	cmd.Printf("Removed document: %s\n", args[0])
	return nil
}
