package driven

import (
	"context"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// DocumentStore persists documents, chunks, and the tombstone set.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document row. Its chunks must already be
	// tombstoned; chunk rows are removed at compaction.
	DeleteDocument(ctx context.Context, id string) error

	// SaveChunks stores chunk metadata rows.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunk retrieves a chunk by its index position.
	GetChunk(ctx context.Context, id int) (*domain.Chunk, error)

	// GetChunks retrieves all chunks for a document, in sequence order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// TombstoneChunks marks chunk ids as logically deleted.
	TombstoneChunks(ctx context.Context, ids []int) error

	// Tombstones returns the current tombstone set.
	Tombstones(ctx context.Context) (map[int]bool, error)

	// RemapChunks atomically rewrites chunk ids after an index rebuild,
	// deletes rows absent from the mapping, clears the tombstone set,
	// and records the index generation the mapping belongs to. The
	// mapping is old id to new id.
	RemapChunks(ctx context.Context, remap map[int]int, generation uint64) error

	// IndexGeneration returns the generation recorded by the last
	// RemapChunks, zero before any compaction.
	IndexGeneration(ctx context.Context) (uint64, error)

	// Close releases resources.
	Close() error
}
