package driving

import (
	"context"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// ConversationService manages chat sessions and their memory.
type ConversationService interface {
	// Get returns the conversation with the given ID, or an empty
	// conversation if it has never been seen.
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// List returns all stored conversations, most recently updated first.
	List(ctx context.Context) ([]domain.Conversation, error)

	// Delete removes a conversation and its memory.
	Delete(ctx context.Context, conversationID string) error
}
