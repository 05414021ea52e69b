package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pruner drops state that can no longer affect a decision. Satisfied by
// *ratelimit.MemoryStore.
type Pruner interface {
	Prune(now time.Time) int
}

// CleanupManager periodically prunes the in-memory login limiter
type CleanupManager struct {
	pruner   Pruner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(pruner Pruner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CleanupManager{
		pruner:   pruner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs until Stop is called or ctx is cancelled. It blocks.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup()
		case <-cm.stopCh:
			cm.logger.Info("limiter sweeper stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("limiter sweeper context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup() {
	removed := cm.pruner.Prune(cm.now())
	if removed > 0 {
		cm.logger.Debug("pruned idle rate limit keys", slog.Int("keys_removed", removed))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
