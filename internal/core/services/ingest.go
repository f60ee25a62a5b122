package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
	"github.com/cosmica-labs/cosmica-cli/internal/postprocessors/chunker"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// embedBatchSize bounds the number of texts per embedding request.
const embedBatchSize = 64

// IngestService runs the ingestion pipeline: normalise, chunk, embed,
// index, persist.
type IngestService struct {
	docStore driven.DocumentStore
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	registry *normalisers.Registry
	splitter *chunker.Splitter
	settings domain.Settings

	// indexMu serialises index mutations with compaction. Shared with
	// DocumentService and MaintenanceService.
	indexMu *sync.Mutex

	// persist saves the index after a successful mutation. May be nil.
	persist func() error
}

// NewIngestService creates a new ingest service. The embedder is required;
// without it ingestion is refused.
func NewIngestService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	registry *normalisers.Registry,
	settings domain.Settings,
	indexMu *sync.Mutex,
	persist func() error,
) *IngestService {
	return &IngestService{
		docStore: docStore,
		index:    index,
		embedder: embedder,
		registry: registry,
		splitter: chunker.New(
			chunker.WithChunkSize(settings.ChunkSize),
			chunker.WithOverlap(settings.ChunkOverlap),
			chunker.WithMinChunkSize(settings.MinChunkSize),
		),
		settings: settings,
		indexMu:  indexMu,
		persist:  persist,
	}
}

// IngestFile reads, normalises, chunks, embeds and indexes a file.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	filename := filepath.Base(path)
	normaliser, err := s.registry.For(filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	text, err := normaliser.Normalise(ctx, filename, raw)
	if err != nil {
		return nil, fmt.Errorf("normalising %s: %w", filename, err)
	}

	return s.ingest(ctx, filename, text)
}

// IngestText ingests raw text under the given name.
func (s *IngestService) IngestText(ctx context.Context, name, text string) (*domain.Document, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: document name required", domain.ErrInvalidInput)
	}
	return s.ingest(ctx, name, text)
}

// ingest runs the shared pipeline on normalised text. The document is
// created pending, advanced to processing, and lands on ready or failed.
// A failure after index insertion tombstones the inserted chunks so the
// index never serves a half-ingested document.
func (s *IngestService) ingest(ctx context.Context, filename, text string) (*domain.Document, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	logger.Section("Ingest")
	logger.Info("Document: %s (%d bytes)", filename, len(text))

	doc := &domain.Document{
		ID:       uuid.New().String(),
		Filename: filename,
		Status:   domain.StatusPending,
	}
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	pieces := s.splitter.Split(text)
	logger.Debug("Chunked into %d pieces", len(pieces))
	if len(pieces) == 0 {
		return s.fail(ctx, doc, nil, errors.New("document has no extractable text"))
	}

	doc.Status = domain.StatusProcessing
	doc.ChunkCount = len(pieces)
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	vectors, err := s.embedAll(ctx, pieces)
	if err != nil {
		logger.Warn("Embedding failed: %v", err)
		return s.fail(ctx, doc, nil, err)
	}

	chunks, inserted, err := s.insert(ctx, doc.ID, pieces, vectors)
	if err != nil {
		logger.Warn("Index insertion failed: %v", err)
		return s.fail(ctx, doc, inserted, err)
	}

	if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
		logger.Warn("Chunk metadata write failed: %v", err)
		return s.fail(ctx, doc, inserted, err)
	}

	doc.Status = domain.StatusReady
	doc.ChunkIDs = inserted
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	if s.persist != nil {
		if err := s.persist(); err != nil {
			// The in-memory index stays authoritative; the next save
			// will try again.
			logger.Warn("Index persistence failed: %v", err)
		}
	}

	logger.Info("Ingested %s: %d chunks", filename, len(chunks))
	return doc, nil
}

// embedAll embeds the pieces in bounded batches.
func (s *IngestService) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.embedder.EmbedBatch(ctx, pieces[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// insert adds vectors to the index under the mutation lock and builds the
// chunk rows with the assigned positions. On error it returns the ids
// inserted so far for tombstoning.
func (s *IngestService) insert(ctx context.Context, docID string, pieces []string, vectors [][]float32) ([]domain.Chunk, []int, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	chunks := make([]domain.Chunk, 0, len(pieces))
	inserted := make([]int, 0, len(pieces))

	for seq, vec := range vectors {
		if err := ctx.Err(); err != nil {
			return nil, inserted, err
		}
		id, err := s.index.Add(vec)
		if err != nil {
			return nil, inserted, fmt.Errorf("indexing chunk %d: %w", seq, err)
		}
		inserted = append(inserted, id)
		chunks = append(chunks, domain.Chunk{
			ID:            id,
			DocumentID:    docID,
			Sequence:      seq,
			Text:          pieces[seq],
			TokenEstimate: domain.EstimateTokens(pieces[seq]),
		})
	}

	return chunks, inserted, nil
}

// fail marks the document failed and tombstones any chunks that made it
// into the index. The returned error wraps ErrIngestFailed.
func (s *IngestService) fail(ctx context.Context, doc *domain.Document, inserted []int, cause error) (*domain.Document, error) {
	if len(inserted) > 0 {
		if err := s.docStore.TombstoneChunks(ctx, inserted); err != nil {
			logger.Warn("Tombstoning partial chunks failed: %v", err)
		}
	}

	doc.Status = domain.StatusFailed
	doc.FailureReason = cause.Error()
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		logger.Warn("Recording failure failed: %v", err)
	}

	return doc, fmt.Errorf("%w: %w", domain.ErrIngestFailed, cause)
}
