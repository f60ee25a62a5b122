package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages the document lifecycle.
type DocumentService struct {
	docStore driven.DocumentStore
	indexMu  *sync.Mutex
}

// NewDocumentService creates a new document service. indexMu serialises
// operations that touch the shared vector index state; removal holds it
// so tombstoning cannot interleave with an in-flight compaction remap.
func NewDocumentService(docStore driven.DocumentStore, indexMu *sync.Mutex) *DocumentService {
	return &DocumentService{docStore: docStore, indexMu: indexMu}
}

// List returns all documents, newest first.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docStore.GetDocument(ctx, documentID)
}

// Remove tombstones a document's chunks and deletes its row. The chunks
// remain searchable-but-filtered until the next compaction.
func (s *DocumentService) Remove(ctx context.Context, documentID string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if len(doc.ChunkIDs) > 0 {
		if err := s.docStore.TombstoneChunks(ctx, doc.ChunkIDs); err != nil {
			return fmt.Errorf("tombstoning chunks: %w", err)
		}
	}

	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	logger.Info("Removed document %s (%d chunks tombstoned)", documentID, len(doc.ChunkIDs))
	return nil
}
