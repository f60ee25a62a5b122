package domain

import "time"

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

// Document lifecycle states.
const (
	// StatusPending means the document was accepted but not yet processed.
	StatusPending DocumentStatus = "pending"

	// StatusProcessing means chunking and embedding are in progress.
	StatusProcessing DocumentStatus = "processing"

	// StatusReady means all chunks are indexed and searchable.
	StatusReady DocumentStatus = "ready"

	// StatusFailed means ingestion failed; partial chunks are tombstoned.
	StatusFailed DocumentStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status will no longer advance on its own.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// Document represents an ingested document with metadata.
// The full text is not retained; only its chunks are.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original name of the ingested file.
	Filename string

	// Status is the current ingestion state.
	Status DocumentStatus

	// ChunkIDs are the vector index positions of this document's chunks,
	// in document reading order.
	ChunkIDs []int

	// ChunkCount is the number of chunks produced at ingestion.
	ChunkCount int

	// FailureReason explains a failed status. Empty otherwise.
	FailureReason string

	// CreatedAt is when the document was accepted.
	CreatedAt time.Time

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Chunk represents a retrievable unit of document text.
// Chunks are immutable once created; they are removed only when their
// document is deleted and the index is rebuilt.
type Chunk struct {
	// ID is the chunk's position in the vector index. Identity is
	// positional, not content-derived, and is assigned monotonically.
	ID int

	// DocumentID links to the owning Document.
	DocumentID string

	// Sequence is the 0-based order of the chunk within its document.
	Sequence int

	// Text is the whitespace-collapsed chunk content.
	Text string

	// TokenEstimate is a rough token count for context budgeting.
	TokenEstimate int
}

// EstimateTokens approximates the token count of text.
// The heuristic is ~4 characters per token, which tracks common
// embedding tokenisers closely enough for budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
