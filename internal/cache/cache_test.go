package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// rateLimitStore mirrors services.RateLimitStore so both backends share one suite
type rateLimitStore interface {
	Get(ctx context.Context, key string) (*models.RateLimitEntry, error)
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*models.RateLimitEntry, error)
	Reset(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func TestRateLimitStores(t *testing.T) {
	backends := map[string]func(t *testing.T) (rateLimitStore, func(time.Duration)){
		"memory": func(t *testing.T) (rateLimitStore, func(time.Duration)) {
			return NewMemoryRateLimitStore(), func(time.Duration) {}
		},
		"redis": func(t *testing.T) (rateLimitStore, func(time.Duration)) {
			mr, client := setupTestRedis(t)
			return NewRedisRateLimitStore(client), mr.FastForward
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			window := 5 * time.Minute

			t.Run("missing key", func(t *testing.T) {
				store, _ := build(t)
				e, err := store.Get(ctx, "staff:user:nobody")
				require.NoError(t, err)
				assert.Nil(t, e)
			})

			t.Run("counts within one window", func(t *testing.T) {
				store, _ := build(t)
				start := time.Now()

				for i := 1; i <= 5; i++ {
					e, err := store.Increment(ctx, "k", start.Add(time.Duration(i)*time.Second), window)
					require.NoError(t, err)
					assert.Equal(t, i, e.Count)
					assert.WithinDuration(t, start.Add(time.Second), e.WindowStart, time.Millisecond,
						"window is anchored at the first failure")
				}

				e, err := store.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, 5, e.Count)
			})

			t.Run("elapsed window restarts", func(t *testing.T) {
				store, advance := build(t)
				start := time.Now()

				_, err := store.Increment(ctx, "k", start, window)
				require.NoError(t, err)
				_, err = store.Increment(ctx, "k", start, window)
				require.NoError(t, err)

				advance(window + time.Second)
				later := start.Add(window + time.Second)

				e, err := store.Increment(ctx, "k", later, window)
				require.NoError(t, err)
				assert.Equal(t, 1, e.Count)
				assert.WithinDuration(t, later, e.WindowStart, time.Millisecond)
			})

			t.Run("reset clears", func(t *testing.T) {
				store, _ := build(t)
				_, err := store.Increment(ctx, "k", time.Now(), window)
				require.NoError(t, err)

				require.NoError(t, store.Reset(ctx, "k"))
				e, err := store.Get(ctx, "k")
				require.NoError(t, err)
				assert.Nil(t, e)

				require.NoError(t, store.Reset(ctx, "never-existed"))
			})

			t.Run("concurrent increments are all counted", func(t *testing.T) {
				store, _ := build(t)
				now := time.Now()

				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := store.Increment(ctx, "burst", now, window)
						assert.NoError(t, err)
					}()
				}
				wg.Wait()

				e, err := store.Get(ctx, "burst")
				require.NoError(t, err)
				assert.Equal(t, 20, e.Count)
			})
		})
	}
}

func TestMemoryRateLimitStore_DeleteExpired(t *testing.T) {
	store := NewMemoryRateLimitStore()
	ctx := context.Background()
	now := time.Now()

	_, _ = store.Increment(ctx, "old", now.Add(-10*time.Minute), 5*time.Minute)
	_, _ = store.Increment(ctx, "fresh", now, 5*time.Minute)

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	e, _ := store.Get(ctx, "fresh")
	assert.NotNil(t, e)
}

func TestRedisRateLimitStore_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisRateLimitStore(client)
	mr.Close()

	_, err := store.Increment(context.Background(), "k", time.Now(), time.Minute)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

// sessionBackend mirrors services.SessionRepository
type sessionBackend interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, tokenHash string, at time.Time) error
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUserID(ctx context.Context, userID, exceptHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func newSession(hash, userID string, now time.Time) *models.Session {
	return &models.Session{
		ID:             "id-" + hash,
		TokenHash:      hash,
		UserID:         userID,
		Surface:        models.SurfaceStaff,
		CreatedAt:      now,
		ExpiresAt:      now.Add(24 * time.Hour),
		LastActivityAt: now,
	}
}

func TestSessionStores(t *testing.T) {
	backends := map[string]func(t *testing.T) sessionBackend{
		"memory": func(t *testing.T) sessionBackend { return NewMemorySessionStore() },
		"redis": func(t *testing.T) sessionBackend {
			_, client := setupTestRedis(t)
			return NewRedisSessionStore(client)
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)

			t.Run("create get touch delete", func(t *testing.T) {
				store := build(t)
				require.NoError(t, store.Create(ctx, newSession("h1", "u1", now)))

				got, err := store.GetByTokenHash(ctx, "h1")
				require.NoError(t, err)
				assert.Equal(t, "u1", got.UserID)
				assert.True(t, got.ExpiresAt.Equal(now.Add(24*time.Hour)))

				later := now.Add(10 * time.Minute)
				require.NoError(t, store.Touch(ctx, "h1", later))
				got, err = store.GetByTokenHash(ctx, "h1")
				require.NoError(t, err)
				assert.True(t, got.LastActivityAt.Equal(later))
				assert.True(t, got.ExpiresAt.Equal(now.Add(24*time.Hour)), "touch never extends the absolute expiry")

				require.NoError(t, store.Delete(ctx, "h1"))
				_, err = store.GetByTokenHash(ctx, "h1")
				assert.ErrorIs(t, err, models.ErrNotFound)

				require.NoError(t, store.Delete(ctx, "h1"), "delete is idempotent")
				require.NoError(t, store.Touch(ctx, "h1", later), "touching a deleted session is a no-op")
				_, err = store.GetByTokenHash(ctx, "h1")
				assert.ErrorIs(t, err, models.ErrNotFound)
			})

			t.Run("delete by user keeps the excepted session", func(t *testing.T) {
				store := build(t)
				for _, h := range []string{"a", "b", "c"} {
					require.NoError(t, store.Create(ctx, newSession(h, "u1", now)))
				}
				require.NoError(t, store.Create(ctx, newSession("other", "u2", now)))

				n, err := store.DeleteByUserID(ctx, "u1", "b")
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)

				_, err = store.GetByTokenHash(ctx, "b")
				assert.NoError(t, err)
				_, err = store.GetByTokenHash(ctx, "a")
				assert.ErrorIs(t, err, models.ErrNotFound)
				_, err = store.GetByTokenHash(ctx, "other")
				assert.NoError(t, err)

				n, err = store.DeleteByUserID(ctx, "u1", "")
				require.NoError(t, err)
				assert.Equal(t, int64(1), n)
			})
		})
	}
}

func TestMemorySessionStore_DeleteExpired(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, newSession("old", "u1", now.Add(-25*time.Hour))))
	require.NoError(t, store.Create(ctx, newSession("new", "u1", now)))

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestRedisSessionStore_TTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession("h1", "u1", time.Now())))
	assert.Equal(t, 24*time.Hour, mr.TTL(sessionPrefix+"h1"))

	mr.FastForward(24*time.Hour + time.Second)
	_, err := store.GetByTokenHash(ctx, "h1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	client, err = Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()

	_, err = Connect(context.Background(), "redis://%zz")
	assert.Error(t, err)
}
