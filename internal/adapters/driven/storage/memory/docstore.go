// Package memory provides in-memory implementations of the storage ports.
// They mirror the SQLite adapter's semantics and back the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu         sync.RWMutex
	documents  map[string]domain.Document
	order      []string
	chunks     map[int]domain.Chunk
	tombstones map[int]bool
	generation uint64
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents:  make(map[string]domain.Document),
		chunks:     make(map[int]domain.Chunk),
		tombstones: make(map[int]bool),
	}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0, len(s.documents))
	for i := len(s.order) - 1; i >= 0; i-- {
		if doc, ok := s.documents[s.order[i]]; ok {
			result = append(result, doc)
		}
	}
	return result, nil
}

// DeleteDocument removes a document row. Chunk rows survive until
// compaction, matching the SQLite adapter.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

// SaveChunks stores chunk metadata rows.
func (s *DocumentStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

// GetChunk retrieves a chunk by its index position.
func (s *DocumentStore) GetChunk(_ context.Context, id int) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &chunk, nil
}

// GetChunks retrieves all chunks for a document, in sequence order.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Chunk //nolint:prealloc // size unknown without a scan
	for _, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			result = append(result, chunk)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

// TombstoneChunks marks chunk ids as logically deleted.
func (s *DocumentStore) TombstoneChunks(_ context.Context, ids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.tombstones[id] = true
	}
	return nil
}

// Tombstones returns the current tombstone set.
func (s *DocumentStore) Tombstones(_ context.Context) (map[int]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[int]bool, len(s.tombstones))
	for id := range s.tombstones {
		result[id] = true
	}
	return result, nil
}

// RemapChunks rewrites chunk ids after a rebuild, drops rows absent from
// the mapping, clears the tombstone set, and records the generation.
func (s *DocumentStore) RemapChunks(_ context.Context, remap map[int]int, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = generation
	next := make(map[int]domain.Chunk, len(remap))
	for oldID, newID := range remap {
		chunk, ok := s.chunks[oldID]
		if !ok {
			continue
		}
		chunk.ID = newID
		next[newID] = chunk
	}
	s.chunks = next
	s.tombstones = make(map[int]bool)

	for id, doc := range s.documents {
		remapped := doc.ChunkIDs[:0]
		for _, chunkID := range doc.ChunkIDs {
			if newID, ok := remap[chunkID]; ok {
				remapped = append(remapped, newID)
			}
		}
		doc.ChunkIDs = remapped
		s.documents[id] = doc
	}
	return nil
}

// IndexGeneration returns the generation recorded by the last remap.
func (s *DocumentStore) IndexGeneration(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, nil
}

// Close releases resources.
func (s *DocumentStore) Close() error {
	return nil
}
