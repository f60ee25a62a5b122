package driving

import "context"

// MaintenanceService keeps the vector index healthy over time.
type MaintenanceService interface {
	// TombstoneRatio reports the fraction of index entries that are
	// tombstoned, in [0, 1].
	TombstoneRatio(ctx context.Context) (float64, error)

	// Compact rebuilds the index without tombstoned entries and remaps
	// surviving chunk IDs. No-op when nothing is tombstoned. Returns
	// domain.ErrCompactionInProgress if a compaction is already running.
	Compact(ctx context.Context) error

	// CompactIfNeeded runs Compact when the tombstone ratio meets the
	// configured threshold. Reports whether a compaction ran.
	CompactIfNeeded(ctx context.Context) (bool, error)
}

// Scheduler manages background tasks like threshold-driven compaction
// and index persistence.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error
}
