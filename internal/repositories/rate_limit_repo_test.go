package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRateLimitRepository(db)
	start := time.Now()

	mock.ExpectQuery(`SELECT key, count, window_start FROM rate_limit_entries WHERE key = \$1`).
		WithArgs("staff:user:alice").
		WillReturnRows(pgxmock.NewRows([]string{"key", "count", "window_start"}).AddRow("staff:user:alice", 3, start))

	e, err := repo.Get(context.Background(), "staff:user:alice")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 3, e.Count)

	mock.ExpectQuery(`SELECT key, count, window_start FROM rate_limit_entries`).
		WithArgs("staff:user:bob").
		WillReturnError(pgx.ErrNoRows)

	e, err = repo.Get(context.Background(), "staff:user:bob")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRateLimitRepository_Increment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRateLimitRepository(db)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO rate_limit_entries .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("staff:ip:1.2.3.4", now, now.Add(5*time.Minute)).
		WillReturnRows(pgxmock.NewRows([]string{"key", "count", "window_start"}).AddRow("staff:ip:1.2.3.4", 1, now))

	e, err := repo.Increment(context.Background(), "staff:ip:1.2.3.4", now, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, now, e.WindowStart)
}

func TestRateLimitRepository_StorageFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRateLimitRepository(db)

	mock.ExpectQuery(`INSERT INTO rate_limit_entries`).
		WithArgs(anyArgs(3)...).
		WillReturnError(&pgconn.PgError{Code: "08001"})

	_, err := repo.Increment(context.Background(), "k", time.Now(), time.Minute)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestRateLimitRepository_ResetAndPurge(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRateLimitRepository(db)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM rate_limit_entries WHERE key = \$1`).
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.Reset(context.Background(), "k"))

	mock.ExpectExec(`DELETE FROM rate_limit_entries WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
