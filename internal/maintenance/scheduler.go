// Package maintenance runs periodic VACUUM and message-retention cleanup on
// the bridge's store.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/output"
)

const vacuumTimeout = 5 * time.Minute

// Scheduler runs one maintenance pass every interval between Start and Stop
type Scheduler struct {
	db            *database.DB
	logger        output.Logger
	interval      time.Duration
	retentionDays int

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	lastVacuum time.Time
}

// New creates a scheduler. A non-positive retentionDays keeps every message.
func New(db *database.DB, logger output.Logger, interval time.Duration, retentionDays int) *Scheduler {
	return &Scheduler{
		db:            db,
		logger:        logger,
		interval:      interval,
		retentionDays: retentionDays,
	}
}

// Start launches the maintenance loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler is already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %v", s.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.logger.Info("Starting database maintenance scheduler (every %v)", s.interval)

	go s.run(ctx, s.done)
	return nil
}

// Stop ends the loop and waits for a pass in progress to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("scheduler is not running")
	}
	s.logger.Info("Stopping database maintenance scheduler...")
	cancel()
	<-done
	s.logger.Success("Database maintenance scheduler stopped")
	return nil
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// LastVacuum returns when VACUUM last succeeded
func (s *Scheduler) LastVacuum() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVacuum
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce prunes expired messages and then vacuums. Failures are logged.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.retentionDays > 0 {
		if err := s.db.CleanupOldMessages(s.retentionDays, s.logger); err != nil {
			s.logger.Error("Message cleanup failed: %v", err)
		}
	}
	if err := s.vacuum(ctx); err != nil {
		s.logger.Error("VACUUM operation failed: %v", err)
	}
}

func (s *Scheduler) vacuum(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, vacuumTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("Starting database VACUUM operation...")
	if _, err := s.db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	s.mu.Lock()
	s.lastVacuum = time.Now()
	s.mu.Unlock()
	s.logger.Success("VACUUM completed in %.2f seconds", time.Since(start).Seconds())
	return nil
}
