package driven

import "context"

// EmbeddingService generates vector embeddings from text. This is an
// external capability: calls may block on network I/O and are the only
// place (together with LLMService) where that is permitted. Adapters wrap
// the provider with a timeout, rate limiting, and a bounded retry policy;
// an exhausted retry budget surfaces domain.ErrUpstreamUnavailable.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-ada-002)
//   - Azure OpenAI (deployment-scoped endpoints)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// This is more efficient than calling Embed in a loop for large batches.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 1536, 3072).
	// This is determined by the model and must match the index dimension.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
