package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/google/uuid"
)

const sessionColumns = `id, token_hash, user_id, surface, ip_address, user_agent,
		created_at, expires_at, last_activity_at`

// SessionRepository persists login sessions in Postgres, keyed by token hash
type SessionRepository struct {
	pool database.PgxPool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func scanSessionRow(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.TokenHash, &s.UserID, &s.Surface, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (id, token_hash, user_id, surface, ip_address, user_agent, created_at, expires_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.TokenHash, session.UserID, session.Surface,
		session.IPAddress, session.UserAgent,
		session.CreatedAt, session.ExpiresAt, session.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByTokenHash returns models.ErrNotFound when no session matches
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_activity_at = $1 WHERE token_hash = $2`, at, tokenHash)
	return database.MapPostgresError(err)
}

// Delete is idempotent: removing an absent session is not an error
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return database.MapPostgresError(err)
}

// DeleteByUserID removes every session of userID except the one whose hash is
// exceptHash (empty keeps none) and returns how many were removed
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID, exceptHash string) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND token_hash <> $2`,
		userID, exceptHash,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
