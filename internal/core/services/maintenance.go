package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
)

// Ensure MaintenanceService implements the interface.
var _ driving.MaintenanceService = (*MaintenanceService)(nil)

// MaintenanceService rebuilds the vector index when enough of it is
// tombstoned. indexMu serialises index mutations; viewMu is the read
// view shared with retrieval, held exclusively only while the rebuilt
// graph and the remapped metadata are swapped in together.
type MaintenanceService struct {
	docStore driven.DocumentStore
	index    driven.VectorIndex
	settings domain.Settings
	indexMu  *sync.Mutex
	viewMu   *sync.RWMutex
	persist  func() error

	compacting atomic.Bool
}

// NewMaintenanceService creates a new maintenance service. persist saves
// the index after a successful rebuild; it may be nil.
func NewMaintenanceService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	settings domain.Settings,
	indexMu *sync.Mutex,
	viewMu *sync.RWMutex,
	persist func() error,
) *MaintenanceService {
	return &MaintenanceService{
		docStore: docStore,
		index:    index,
		settings: settings,
		indexMu:  indexMu,
		viewMu:   viewMu,
		persist:  persist,
	}
}

// TombstoneRatio reports the fraction of index entries that are
// tombstoned.
func (s *MaintenanceService) TombstoneRatio(ctx context.Context) (float64, error) {
	total := s.index.Len()
	if total == 0 {
		return 0, nil
	}
	tombstones, err := s.docStore.Tombstones(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading tombstones: %w", err)
	}
	return float64(len(tombstones)) / float64(total), nil
}

// Compact rebuilds the index without tombstoned entries and rewrites the
// surviving chunk ids to match their new positions.
func (s *MaintenanceService) Compact(ctx context.Context) error {
	if !s.compacting.CompareAndSwap(false, true) {
		return domain.ErrCompactionInProgress
	}
	defer s.compacting.Store(false)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	tombstones, err := s.docStore.Tombstones(ctx)
	if err != nil {
		return fmt.Errorf("loading tombstones: %w", err)
	}
	if len(tombstones) == 0 {
		logger.Debug("Compaction skipped: no tombstones")
		return nil
	}

	logger.Section("Index Compaction")
	logger.Info("Rebuilding index: %d of %d entries tombstoned", len(tombstones), s.index.Len())

	// The replacement graph is built offline; searches keep being served
	// by the old graph and the old metadata until both switch together.
	staged, err := s.index.StageRebuild(func(id int) bool {
		return !tombstones[id]
	})
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	s.viewMu.Lock()
	if err := s.docStore.RemapChunks(ctx, staged.Remap(), staged.Generation()); err != nil {
		// The staged graph is discarded and the metadata transaction
		// rolled back, so readers keep a coherent pre-rebuild view.
		s.viewMu.Unlock()
		return fmt.Errorf("remapping chunks after rebuild: %w", err)
	}
	staged.Commit()
	s.viewMu.Unlock()

	if s.persist != nil {
		if err := s.persist(); err != nil {
			logger.Warn("Persisting index after compaction failed: %v", err)
		}
	}

	logger.Info("Compaction complete: %d entries survive", s.index.Len())
	return nil
}

// CompactIfNeeded runs Compact when the tombstone ratio meets the
// configured threshold.
func (s *MaintenanceService) CompactIfNeeded(ctx context.Context) (bool, error) {
	ratio, err := s.TombstoneRatio(ctx)
	if err != nil {
		return false, err
	}
	if ratio < s.settings.RebuildThreshold {
		return false, nil
	}
	logger.Debug("Tombstone ratio %.2f >= threshold %.2f", ratio, s.settings.RebuildThreshold)
	if err := s.Compact(ctx); err != nil {
		return false, err
	}
	return true, nil
}
