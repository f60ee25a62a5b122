package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
)

// Ensure MemoryService implements the interface.
var _ driving.ConversationService = (*MemoryService)(nil)

// MemoryService keeps per-conversation memory: a bounded window of verbatim
// turns plus a rolling summary of everything older.
type MemoryService struct {
	convStore driven.ConversationStore
	llm       driven.LLMService
	settings  domain.Settings

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryService creates a new conversation memory service.
// The llm parameter is optional; without it evicted turns accumulate in the
// pending queue until a model becomes available.
func NewMemoryService(convStore driven.ConversationStore, llm driven.LLMService, settings domain.Settings) *MemoryService {
	return &MemoryService{
		convStore: convStore,
		llm:       llm,
		settings:  settings,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Get returns the conversation with the given ID.
func (s *MemoryService) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.convStore.GetConversation(ctx, conversationID)
}

// List returns all stored conversations, most recently updated first.
func (s *MemoryService) List(ctx context.Context) ([]domain.Conversation, error) {
	ids, err := s.convStore.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	convs := make([]domain.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.convStore.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, nil
}

// Delete removes a conversation and its memory.
func (s *MemoryService) Delete(ctx context.Context, conversationID string) error {
	return s.convStore.DeleteConversation(ctx, conversationID)
}

// Record appends a user/assistant exchange to the conversation and evicts
// past the near window. Evicted turns are folded into the rolling summary;
// if condensation fails they wait in the pending queue and are retried at
// the next turn boundary, so no turn is ever dropped unsummarised.
func (s *MemoryService) Record(ctx context.Context, conversationID, question, answer string) error {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.convStore.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	now := time.Now().UTC()
	conv.Turns = append(conv.Turns,
		domain.Turn{Role: domain.RoleUser, Content: question, CreatedAt: now},
		domain.Turn{Role: domain.RoleAssistant, Content: answer, CreatedAt: now},
	)

	s.evict(ctx, conv)

	if err := s.convStore.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// evict trims the verbatim window and condenses what falls out. The window
// invariant holds even when condensation fails: trimmed turns move to
// Pending rather than back into Turns.
func (s *MemoryService) evict(ctx context.Context, conv *domain.Conversation) {
	if len(conv.Turns) <= s.settings.NearWindow {
		// Still retry previously failed condensations.
		if len(conv.Pending) > 0 {
			s.condense(ctx, conv, nil)
		}
		return
	}

	cut := len(conv.Turns) - s.settings.NearWindow
	evicted := conv.Turns[:cut]
	conv.Turns = append([]domain.Turn(nil), conv.Turns[cut:]...)

	s.condense(ctx, conv, evicted)
}

// condense folds pending plus newly evicted turns into the summary.
func (s *MemoryService) condense(ctx context.Context, conv *domain.Conversation, evicted []domain.Turn) {
	backlog := make([]domain.Turn, 0, len(conv.Pending)+len(evicted))
	backlog = append(backlog, conv.Pending...)
	backlog = append(backlog, evicted...)
	if len(backlog) == 0 {
		return
	}

	if s.llm == nil {
		logger.Debug("No LLM configured; queueing %d turns for later condensation", len(backlog))
		conv.Pending = backlog
		return
	}

	messages := make([]driven.ChatMessage, len(backlog))
	for i, turn := range backlog {
		messages[i] = driven.ChatMessage{Role: string(turn.Role), Content: turn.Content}
	}

	summary, err := s.llm.Condense(ctx, conv.Summary, messages)
	if err != nil {
		logger.Warn("Summary condensation failed, queueing %d turns for retry: %v", len(backlog), err)
		conv.Pending = backlog
		return
	}

	conv.Summary = summary
	conv.Pending = nil
	logger.Debug("Condensed %d turns into summary (%d chars)", len(backlog), len(summary))
}

// ContextFor returns the memory context for prompt assembly: the rolling
// summary and the verbatim window. Evicted turns never re-enter the window;
// those still awaiting condensation are appended to the summary slot so
// their content stays visible until the next successful condense.
func (s *MemoryService) ContextFor(ctx context.Context, conversationID string) (string, []domain.Turn, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.convStore.GetConversation(ctx, conversationID)
	if err != nil {
		return "", nil, fmt.Errorf("loading conversation: %w", err)
	}

	summary := conv.Summary
	if len(conv.Pending) > 0 {
		var b strings.Builder
		b.WriteString(summary)
		if summary != "" {
			b.WriteString("\n")
		}
		b.WriteString("Recent exchanges not yet condensed:")
		for _, turn := range conv.Pending {
			fmt.Fprintf(&b, "\n%s: %s", turn.Role, turn.Content)
		}
		summary = b.String()
	}

	turns := make([]domain.Turn, len(conv.Turns))
	copy(turns, conv.Turns)

	return summary, turns, nil
}

// lockFor returns the mutex guarding a conversation.
func (s *MemoryService) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
