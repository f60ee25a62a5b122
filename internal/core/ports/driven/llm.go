package driven

import "context"

// LLMService provides text generation for answering and for conversation
// summary condensation. This is an optional service - when nil, the engine
// still retrieves and assembles context but cannot generate answers.
//
// Like EmbeddingService, calls may block on network I/O and carry a
// timeout plus a bounded retry policy inside the adapter.
type LLMService interface {
	// Generate produces a completion for the assembled context.
	Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error)

	// Stream produces a completion incrementally, invoking emit for each
	// token fragment as it arrives. It returns the full response text.
	Stream(ctx context.Context, messages []ChatMessage, opts GenerateOptions, emit func(token string)) (string, error)

	// Condense folds evicted conversation turns into a rolling summary.
	// The previous summary may be empty. The result replaces it.
	Condense(ctx context.Context, previousSummary string, evicted []ChatMessage) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}
