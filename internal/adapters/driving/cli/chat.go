package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driving/tui"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your documents interactively",
	Long: `Launch the interactive chat interface.

Answers stream in as they are generated and cite the passages they were
grounded on. Follow-up questions see the conversation so far.

Controls:
  Enter - Ask
  Esc   - Quit`,
	RunE: runChat,
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runConversationsList,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete [conversation-id]",
	Short: "Delete a conversation and its memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "resume an existing conversation")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func runChat(_ *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	// Surface panics with a stack trace instead of a corrupted terminal.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in chat: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
		}
	}()

	return tui.Run(context.Background(), queryService, chatConversation)
}

func runConversationsList(cmd *cobra.Command, _ []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}

	ctx := context.Background()
	convs, err := conversationService.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	if len(convs) == 0 {
		cmd.Println("No conversations yet. Run 'cosmica chat' to start one.")
		return nil
	}

	for i := range convs {
		cmd.Printf("  %s\n", convs[i].ID)
		cmd.Printf("    Turns: %d", len(convs[i].Turns))
		if convs[i].Summary != "" {
			cmd.Printf(" (plus summarised history)")
		}
		cmd.Println()
	}

	cmd.Printf("\nTotal: %d conversation(s)\n", len(convs))
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}

	if err := conversationService.Delete(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	cmd.Printf("Deleted conversation: %s\n", args[0])
	return nil
}
