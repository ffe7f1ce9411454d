package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PasswordResetRepository stores hashed, single-use password reset tokens
type PasswordResetRepository struct {
	db   *database.DB
	pool database.PgxPool
}

func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db, pool: db.Pool}
}

// Replace burns every outstanding token of token.UserID and stores token in
// the same transaction, so at most one reset link per user is ever live.
func (r *PasswordResetRepository) Replace(ctx context.Context, token *models.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE password_reset_tokens SET used_at = $1 WHERE user_id = $2 AND used_at IS NULL`,
			token.CreatedAt, token.UserID,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
		return err
	})
	return database.MapPostgresError(err)
}

// Consume marks the token used and returns its owner in one statement, so two
// concurrent resets with the same token cannot both succeed. Unknown, used or
// expired tokens yield models.ErrInvalidOrExpiredResetToken.
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `
		UPDATE password_reset_tokens SET used_at = $1
		WHERE token_hash = $2 AND used_at IS NULL AND expires_at > $1
		RETURNING user_id
	`

	var userID string
	err := r.pool.QueryRow(ctx, query, now, tokenHash).Scan(&userID)
	if err != nil {
		err = database.MapPostgresError(err)
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrInvalidOrExpiredResetToken
		}
		return "", err
	}
	return userID, nil
}

// InvalidateForUser burns every outstanding token of userID
func (r *PasswordResetRepository) InvalidateForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at = $1 WHERE user_id = $2 AND used_at IS NULL`,
		now, userID,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes tokens that expired or were used before cutoff
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= $1 OR used_at <= $1`,
		cutoff,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
