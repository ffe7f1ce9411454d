package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/garage/internal/models"
)

// Rate limit key kinds
const (
	RateLimitKindUser = "user"
	RateLimitKindIP   = "ip"
)

// RateLimitStore persists failure counters. Increment must be atomic per key:
// when the key is missing or its window has elapsed at now, it starts a new
// window at now with count 1.
type RateLimitStore interface {
	Get(ctx context.Context, key string) (*models.RateLimitEntry, error)
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*models.RateLimitEntry, error)
	Reset(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitConfig holds the lockout policy
type RateLimitConfig struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultRateLimitConfig blocks after 5 failures within 5 minutes
var DefaultRateLimitConfig = RateLimitConfig{
	MaxFailures: 5,
	Window:      5 * time.Minute,
}

// RateLimiter applies a fixed-window lockout: once MaxFailures failures land
// inside the window opened by the first failure, the key stays blocked until
// that window closes. A success clears the key.
type RateLimiter struct {
	store  RateLimitStore
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewRateLimiter(store RateLimitStore, config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if config.MaxFailures < 1 {
		config.MaxFailures = DefaultRateLimitConfig.MaxFailures
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitConfig.Window
	}
	return &RateLimiter{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Key namespaces a rate limit key by login surface and kind, e.g. "staff:user:alice"
func Key(surface, kind, value string) string {
	return surface + ":" + kind + ":" + strings.ToLower(strings.TrimSpace(value))
}

// RecordFailure counts one failed attempt for key
func (rl *RateLimiter) RecordFailure(ctx context.Context, key string) error {
	entry, err := rl.store.Increment(ctx, key, rl.now(), rl.config.Window)
	if err != nil {
		return storageError("record rate limit failure", err)
	}

	if entry.Count == rl.config.MaxFailures {
		rl.logger.Warn("rate limit threshold reached",
			slog.String("key", key),
			slog.Int("failures", entry.Count),
			slog.Time("blocked_until", entry.WindowEnd(rl.config.Window)),
		)
	}
	return nil
}

// Claim counts one attempt against key before the attempt is evaluated and
// returns how long key stays blocked, or 0 when the attempt may proceed.
// The store increments atomically, so a burst of concurrent attempts lets
// through at most MaxFailures per window. A failed attempt needs no further
// bookkeeping; a successful one clears the key with RecordSuccess.
func (rl *RateLimiter) Claim(ctx context.Context, key string) (time.Duration, error) {
	now := rl.now()
	entry, err := rl.store.Increment(ctx, key, now, rl.config.Window)
	if err != nil {
		return 0, storageError("claim rate limit attempt", err)
	}
	if entry.Count <= rl.config.MaxFailures {
		return 0, nil
	}

	if entry.Count == rl.config.MaxFailures+1 {
		rl.logger.Warn("rate limit threshold reached",
			slog.String("key", key),
			slog.Int("failures", rl.config.MaxFailures),
			slog.Time("blocked_until", entry.WindowEnd(rl.config.Window)),
		)
	}
	return entry.WindowEnd(rl.config.Window).Sub(now), nil
}

// IsBlocked reports whether key has reached the failure threshold inside its current window
func (rl *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	remaining, err := rl.BlockedFor(ctx, key)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// BlockedFor returns how long key remains blocked, or 0 if it is not blocked
func (rl *RateLimiter) BlockedFor(ctx context.Context, key string) (time.Duration, error) {
	entry, err := rl.store.Get(ctx, key)
	if err != nil {
		return 0, storageError("read rate limit entry", err)
	}
	if entry == nil {
		return 0, nil
	}

	now := rl.now()
	if !entry.Active(now, rl.config.Window) || entry.Count < rl.config.MaxFailures {
		return 0, nil
	}
	return entry.WindowEnd(rl.config.Window).Sub(now), nil
}

// RecordSuccess clears key's counter
func (rl *RateLimiter) RecordSuccess(ctx context.Context, key string) error {
	if err := rl.store.Reset(ctx, key); err != nil {
		return storageError("reset rate limit entry", err)
	}
	return nil
}

// Purge drops counters whose window has closed
func (rl *RateLimiter) Purge(ctx context.Context) (int64, error) {
	n, err := rl.store.DeleteExpired(ctx, rl.now())
	if err != nil {
		return 0, storageError("purge rate limit entries", err)
	}
	return n, nil
}

// Config returns the active policy
func (rl *RateLimiter) Config() RateLimitConfig {
	return rl.config
}

// storageError tags backend failures with ErrStorageUnavailable unless they
// already carry a models sentinel
func storageError(op string, err error) error {
	if isStorageUnavailable(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrStorageUnavailable, err)
}
