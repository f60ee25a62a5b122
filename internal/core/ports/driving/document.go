package driving

import (
	"context"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// DocumentService manages the document lifecycle outside of ingestion.
type DocumentService interface {
	// List returns all known documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Remove deletes a document record and tombstones its chunks in the
	// vector index. Index space is reclaimed by the next compaction.
	Remove(ctx context.Context, documentID string) error
}
