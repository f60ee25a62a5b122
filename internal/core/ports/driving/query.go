package driving

import (
	"context"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// QueryService answers questions against the knowledge base.
type QueryService interface {
	// Retrieve returns the ranked chunks relevant to the query without
	// invoking a language model.
	Retrieve(ctx context.Context, query string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error)

	// Ask retrieves relevant chunks, folds in conversation memory and
	// generates an answer. The conversation identified by conversationID
	// is updated with the new exchange; an empty ID runs stateless.
	Ask(ctx context.Context, conversationID, query string, opts domain.QueryOptions) (*domain.Answer, error)

	// AskStream behaves like Ask but emits answer tokens through emit as
	// they arrive. The returned Answer carries the full text.
	AskStream(ctx context.Context, conversationID, query string, opts domain.QueryOptions, emit func(token string)) (*domain.Answer, error)
}
