package memory

import (
	"context"
	"sync"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is an in-memory implementation of
// driven.ConversationStore.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
	order         []string
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]domain.Conversation),
	}
}

// GetConversation retrieves a conversation. An unknown id returns an
// empty conversation, not an error.
func (s *ConversationStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return &domain.Conversation{ID: id}, nil
	}
	clone := conv
	clone.Turns = append([]domain.Turn(nil), conv.Turns...)
	clone.Pending = append([]domain.Turn(nil), conv.Pending...)
	return &clone, nil
}

// SaveConversation stores the conversation wholesale.
func (s *ConversationStore) SaveConversation(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		s.order = append(s.order, conv.ID)
	}
	clone := *conv
	clone.Turns = append([]domain.Turn(nil), conv.Turns...)
	clone.Pending = append([]domain.Turn(nil), conv.Pending...)
	s.conversations[conv.ID] = clone
	return nil
}

// ListConversations returns all conversation ids, most recent first.
func (s *ConversationStore) ListConversations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]string, 0, len(s.conversations))
	for i := len(s.order) - 1; i >= 0; i-- {
		if _, ok := s.conversations[s.order[i]]; ok {
			result = append(result, s.order[i])
		}
	}
	return result, nil
}

// DeleteConversation removes a conversation entirely.
func (s *ConversationStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}
