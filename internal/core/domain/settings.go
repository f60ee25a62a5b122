package domain

import "fmt"

// Default engine settings. These mirror conservative defaults for a
// 1536-dimension embedding model.
const (
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
	DefaultMinChunkSize     = 100
	DefaultTopK             = 5
	DefaultSimilarityFloor  = 0.7
	DefaultMaxContextChunks = 8
	DefaultNearWindow       = 10
	DefaultHNSWM            = 32
	DefaultEFConstruction   = 200
	DefaultEFSearch         = 100
	DefaultRebuildThreshold = 0.2
	DefaultDimension        = 1536
)

// Settings holds the tunable parameters of the retrieval engine.
type Settings struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the trailing context re-included at chunk starts.
	ChunkOverlap int

	// MinChunkSize is the smallest chunk kept, except a document's only chunk.
	MinChunkSize int

	// TopK is the default number of neighbours requested per query.
	TopK int

	// SimilarityFloor drops retrieved chunks scoring below it.
	SimilarityFloor float64

	// MaxContextChunks caps the chunks merged into one context.
	MaxContextChunks int

	// NearWindow is the number of verbatim turns kept per conversation.
	NearWindow int

	// HNSWM is the per-layer neighbour budget of the proximity graph.
	HNSWM int

	// EFConstruction is the candidate-list width used while inserting.
	EFConstruction int

	// EFSearch is the candidate-list width used at query time. Must be
	// at least TopK; it trades recall for latency.
	EFSearch int

	// RebuildThreshold is the tombstone fraction that triggers a rebuild.
	RebuildThreshold float64

	// Dimension is the embedding vector length.
	Dimension int
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		ChunkSize:        DefaultChunkSize,
		ChunkOverlap:     DefaultChunkOverlap,
		MinChunkSize:     DefaultMinChunkSize,
		TopK:             DefaultTopK,
		SimilarityFloor:  DefaultSimilarityFloor,
		MaxContextChunks: DefaultMaxContextChunks,
		NearWindow:       DefaultNearWindow,
		HNSWM:            DefaultHNSWM,
		EFConstruction:   DefaultEFConstruction,
		EFSearch:         DefaultEFSearch,
		RebuildThreshold: DefaultRebuildThreshold,
		Dimension:        DefaultDimension,
	}
}

// Validate checks the settings for internal consistency.
func (s Settings) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidInput)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", ErrInvalidInput)
	}
	if s.MinChunkSize < 0 || s.MinChunkSize > s.ChunkSize {
		return fmt.Errorf("%w: minimum chunk size must be in [0, chunk size]", ErrInvalidInput)
	}
	if s.TopK <= 0 {
		return fmt.Errorf("%w: top-k must be positive", ErrInvalidInput)
	}
	if s.SimilarityFloor < 0 || s.SimilarityFloor > 1 {
		return fmt.Errorf("%w: similarity floor must be in [0, 1]", ErrInvalidInput)
	}
	if s.MaxContextChunks <= 0 {
		return fmt.Errorf("%w: max context chunks must be positive", ErrInvalidInput)
	}
	if s.NearWindow <= 0 {
		return fmt.Errorf("%w: near window must be positive", ErrInvalidInput)
	}
	if s.HNSWM < 2 {
		return fmt.Errorf("%w: HNSW M must be at least 2", ErrInvalidInput)
	}
	if s.EFConstruction < s.HNSWM {
		return fmt.Errorf("%w: efConstruction must be at least M", ErrInvalidInput)
	}
	if s.EFSearch < s.TopK {
		return fmt.Errorf("%w: efSearch must be at least top-k", ErrInvalidInput)
	}
	if s.RebuildThreshold <= 0 || s.RebuildThreshold > 1 {
		return fmt.Errorf("%w: rebuild threshold must be in (0, 1]", ErrInvalidInput)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}
	return nil
}
