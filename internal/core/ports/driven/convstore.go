package driven

import (
	"context"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// ConversationStore persists conversation turns, the rolling summary, and
// the retry queue of turns whose condensation has not yet succeeded.
type ConversationStore interface {
	// GetConversation retrieves a conversation. An unknown id returns an
	// empty conversation, not an error: conversations come into being
	// with their first turn.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// SaveConversation stores the conversation's verbatim window,
	// summary, and pending queue in one transaction. The verbatim
	// window is replaced wholesale so turn eviction and summary
	// replacement are atomic.
	SaveConversation(ctx context.Context, conv *domain.Conversation) error

	// ListConversations returns all conversation ids, most recent first.
	ListConversations(ctx context.Context) ([]string, error)

	// DeleteConversation removes a conversation entirely.
	DeleteConversation(ctx context.Context, id string) error
}
