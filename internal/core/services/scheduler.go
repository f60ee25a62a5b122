package services

import (
	"context"
	"sync"
	"time"

	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// DefaultMaintenanceInterval is how often the scheduler checks the
// tombstone ratio.
const DefaultMaintenanceInterval = 5 * time.Minute

// Scheduler runs threshold-driven compaction in the background.
// It is a pure core service with no external control API.
type Scheduler struct {
	maintenance driving.MaintenanceService
	interval    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. A non-positive interval falls back to
// DefaultMaintenanceInterval.
func NewScheduler(maintenance driving.MaintenanceService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &Scheduler{
		maintenance: maintenance,
		interval:    interval,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for an in-flight compaction to complete
	s.wg.Wait()

	return nil
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs one maintenance pass.
func (s *Scheduler) check(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	ran, err := s.maintenance.CompactIfNeeded(ctx)
	if err != nil {
		logger.Warn("Scheduled compaction failed: %v", err)
		return
	}
	if ran {
		logger.Info("Scheduled compaction completed")
	}
}
