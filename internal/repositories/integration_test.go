//go:build integration

package repositories

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("garage"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, database.Migrate(ctx, pool, logger))

	return database.New(pool, logger)
}

func TestIntegration_Repositories(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	resets := NewPasswordResetRepository(db)
	limits := NewRateLimitRepository(db)
	audit := NewAuditLogRepository(db)

	alice, err := users.Create(ctx, &models.User{
		Username:     "Alice",
		Email:        "alice@example.com",
		PasswordHash: "pbkdf2-sha256$1000$00$00",
		FullName:     "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, models.RoleCustomer, alice.Role)

	t.Run("duplicate username and email", func(t *testing.T) {
		_, err := users.Create(ctx, &models.User{Username: "ALICE", Email: "other@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, models.ErrDuplicateUsername)

		_, err = users.Create(ctx, &models.User{Username: "alice2", Email: "Alice@Example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, models.ErrDuplicateEmail)
	})

	t.Run("sessions", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		for _, h := range []string{"h1", "h2", "h3"} {
			require.NoError(t, sessions.Create(ctx, &models.Session{
				TokenHash: h, UserID: alice.ID, Surface: models.SurfaceCustomer,
				CreatedAt: now, ExpiresAt: now.Add(time.Hour), LastActivityAt: now,
			}))
		}

		got, err := sessions.GetByTokenHash(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.UserID)

		n, err := sessions.DeleteByUserID(ctx, alice.ID, "h1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = sessions.DeleteExpired(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = sessions.GetByTokenHash(ctx, "h1")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("reset tokens are single use under concurrency", func(t *testing.T) {
		require.NoError(t, resets.Create(ctx, &models.PasswordResetToken{
			UserID: alice.ID, TokenHash: "reset-1", ExpiresAt: time.Now().Add(time.Hour),
		}))

		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := resets.Consume(ctx, "reset-1", time.Now()); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})

	t.Run("rate limit upsert counts concurrent failures", func(t *testing.T) {
		now := time.Now()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := limits.Increment(ctx, "customer:user:alice", now, 5*time.Minute)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		e, err := limits.Get(ctx, "customer:user:alice")
		require.NoError(t, err)
		assert.Equal(t, 10, e.Count)

		// an elapsed window restarts the count
		e, err = limits.Increment(ctx, "customer:user:alice", now.Add(6*time.Minute), 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Count)
	})

	t.Run("audit log", func(t *testing.T) {
		_, err := audit.Create(ctx, &models.AuditLog{
			UserID:   &alice.ID,
			Username: alice.Username,
			Action:   models.AuditActionLogin,
			Success:  true,
			Metadata: models.AuditMetadata{"surface": "customer"},
		})
		require.NoError(t, err)

		logs, err := audit.List(ctx, &alice.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "customer", logs[0].Metadata["surface"])
	})
}
