package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionPurger drops sessions past their absolute expiry
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RateLimitPurger drops rate limit counters whose window has closed
type RateLimitPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// ResetTokenPurger drops reset tokens that expired or were used before cutoff
type ResetTokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditCleaner drops audit entries older than the retention period
type AuditCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// CleanupConfig controls how often the sweep runs and how long audit entries live
type CleanupConfig struct {
	Interval           time.Duration
	AuditRetentionDays int
}

type cleanupTask struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes expired sessions, reset tokens, rate
// limit counters and old audit entries. A failing task is logged and does
// not stop the others.
type CleanupManager struct {
	tasks    []cleanupTask
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewCleanupManager creates a new cleanup manager. Nil dependencies are skipped.
func NewCleanupManager(
	sessions SessionPurger,
	limiter RateLimitPurger,
	resets ResetTokenPurger,
	audit AuditCleaner,
	config CleanupConfig,
	logger *slog.Logger,
) *CleanupManager {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	cm := &CleanupManager{
		logger:   logger,
		interval: config.Interval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	if sessions != nil {
		cm.tasks = append(cm.tasks, cleanupTask{name: "sessions", run: sessions.PurgeExpired})
	}
	if resets != nil {
		cm.tasks = append(cm.tasks, cleanupTask{name: "password_reset_tokens", run: func(ctx context.Context) (int64, error) {
			return resets.PurgeExpiredResetTokens(ctx, cm.now().UTC())
		}})
	}
	if limiter != nil {
		cm.tasks = append(cm.tasks, cleanupTask{name: "rate_limit_entries", run: limiter.Purge})
	}
	if audit != nil && config.AuditRetentionDays > 0 {
		days := config.AuditRetentionDays
		cm.tasks = append(cm.tasks, cleanupTask{name: "audit_logs", run: func(ctx context.Context) (int64, error) {
			return audit.Cleanup(ctx, days)
		}})
	}

	return cm
}

// Start begins the periodic cleanup task and blocks until Stop is called or
// ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task once and returns the rows removed per task
func (cm *CleanupManager) RunOnce(ctx context.Context) map[string]int64 {
	removed := make(map[string]int64, len(cm.tasks))

	for _, task := range cm.tasks {
		if ctx.Err() != nil {
			return removed
		}

		taskCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := task.run(taskCtx)
		cancel()

		if err != nil {
			cm.logger.Error("cleanup task failed", slog.String("task", task.name), slog.Any("error", err))
			continue
		}

		removed[task.name] = n
		if n > 0 {
			cm.logger.Info("cleanup task completed", slog.String("task", task.name), slog.Int64("rows_deleted", n))
		}
	}

	return removed
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
