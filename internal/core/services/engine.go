package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
)

// EngineConfig configures the engine façade.
type EngineConfig struct {
	// Settings are the validated engine settings.
	Settings domain.Settings

	// IndexPath is where the vector index is persisted. Empty disables
	// persistence; the index then lives only in memory.
	IndexPath string

	// MaintenanceInterval is the background compaction check period.
	// Zero selects the default.
	MaintenanceInterval time.Duration
}

// Engine wires the services over shared state and owns their lifecycle.
// The embedder, llm, and prompts dependencies are optional; the engine
// degrades to the operations the remaining dependencies can serve.
type Engine struct {
	Ingest      *IngestService
	Query       *QueryService
	Documents   *DocumentService
	Memory      *MemoryService
	Maintenance *MaintenanceService
	Scheduler   *Scheduler

	config    EngineConfig
	docStore  driven.DocumentStore
	index     driven.VectorIndex
	embedder  driven.EmbeddingService
	llm       driven.LLMService
	indexMu   sync.Mutex
	viewMu    sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// NewEngine assembles the engine from its adapters. The caller provides a
// loaded index; domain.ErrDimensionMismatch is returned when the embedder
// disagrees with it.
func NewEngine(
	cfg EngineConfig,
	docStore driven.DocumentStore,
	convStore driven.ConversationStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	llm driven.LLMService,
	prompts driven.PromptStore,
	registry *normalisers.Registry,
) (*Engine, error) {
	if embedder != nil && index.Len() > 0 && embedder.Dimensions() != index.Dimension() {
		return nil, fmt.Errorf("%w: index holds %d-dimensional vectors, embedder produces %d",
			domain.ErrDimensionMismatch, index.Dimension(), embedder.Dimensions())
	}

	e := &Engine{
		config:   cfg,
		docStore: docStore,
		index:    index,
		embedder: embedder,
		llm:      llm,
	}

	persist := e.persistIndex
	if cfg.IndexPath == "" {
		persist = nil
	}

	e.Memory = NewMemoryService(convStore, llm, cfg.Settings)
	e.Ingest = NewIngestService(docStore, index, embedder, registry, cfg.Settings, &e.indexMu, persist)
	e.Query = NewQueryService(docStore, index, embedder, llm, prompts, e.Memory, cfg.Settings, &e.viewMu)
	e.Documents = NewDocumentService(docStore, &e.indexMu)
	e.Maintenance = NewMaintenanceService(docStore, index, cfg.Settings, &e.indexMu, &e.viewMu, persist)
	e.Scheduler = NewScheduler(e.Maintenance, cfg.MaintenanceInterval)

	return e, nil
}

// persistIndex saves the index to the configured path.
func (e *Engine) persistIndex() error {
	if err := e.index.Save(e.config.IndexPath); err != nil {
		return fmt.Errorf("%w: saving index to %s: %w", domain.ErrPersistence, e.config.IndexPath, err)
	}
	return nil
}

// Flush persists the index to disk. Metadata is already durable; only the
// in-memory graph needs an explicit save.
func (e *Engine) Flush() error {
	if e.config.IndexPath == "" {
		return nil
	}
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	return e.persistIndex()
}

// Close flushes and releases all resources. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if err := e.Scheduler.Stop(); err != nil {
			logger.Warn("Stopping scheduler: %v", err)
		}
		e.closeErr = e.Flush()
		if err := e.index.Close(); err != nil && e.closeErr == nil {
			e.closeErr = err
		}
		if e.embedder != nil {
			if err := e.embedder.Close(); err != nil && e.closeErr == nil {
				e.closeErr = err
			}
		}
		if e.llm != nil {
			if err := e.llm.Close(); err != nil && e.closeErr == nil {
				e.closeErr = err
			}
		}
		if err := e.docStore.Close(); err != nil && e.closeErr == nil {
			e.closeErr = err
		}
	})
	return e.closeErr
}
