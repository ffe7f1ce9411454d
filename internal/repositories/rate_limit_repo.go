package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/models"
)

// RateLimitRepository keeps failed-attempt counters in Postgres so lockouts
// survive restarts and are shared between instances
type RateLimitRepository struct {
	pool database.PgxPool
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{pool: db.Pool}
}

// Get returns nil when key has no entry
func (r *RateLimitRepository) Get(ctx context.Context, key string) (*models.RateLimitEntry, error) {
	var e models.RateLimitEntry
	err := r.pool.QueryRow(ctx,
		`SELECT key, count, window_start FROM rate_limit_entries WHERE key = $1`,
		key,
	).Scan(&e.Key, &e.Count, &e.WindowStart)
	if err != nil {
		err = database.MapPostgresError(err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Increment counts one failure for key. A missing or elapsed window restarts at
// count 1 with window_start = now; the upsert keeps concurrent failures exact.
func (r *RateLimitRepository) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*models.RateLimitEntry, error) {
	query := `
		INSERT INTO rate_limit_entries (key, count, window_start, expires_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			count        = CASE WHEN rate_limit_entries.expires_at <= $2 THEN 1  ELSE rate_limit_entries.count + 1 END,
			window_start = CASE WHEN rate_limit_entries.expires_at <= $2 THEN $2 ELSE rate_limit_entries.window_start END,
			expires_at   = CASE WHEN rate_limit_entries.expires_at <= $2 THEN $3 ELSE rate_limit_entries.expires_at END
		RETURNING key, count, window_start
	`

	var e models.RateLimitEntry
	err := r.pool.QueryRow(ctx, query, key, now, now.Add(window)).Scan(&e.Key, &e.Count, &e.WindowStart)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

func (r *RateLimitRepository) Reset(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rate_limit_entries WHERE key = $1`, key)
	return database.MapPostgresError(err)
}

func (r *RateLimitRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM rate_limit_entries WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
