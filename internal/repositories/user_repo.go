package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Unique indexes on users, see migrations/00001_create_users.sql
const (
	constraintUsername = "users_username_key"
	constraintEmail    = "users_email_key"
)

const userColumns = `id, username, email, password_hash, full_name, role, status,
		created_at, updated_at, last_login_at, password_changed_at`

type UserRepository struct {
	pool database.PgxPool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FullName,
		&user.Role, &user.Status,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt, &user.PasswordChangedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername looks up a user case-insensitively; usernames are stored lower-case
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.ToLower(username)))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", database.MapPostgresError(err))
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// Create inserts user and returns the stored row. Username and email are
// normalised to lower case; duplicates map to ErrDuplicateUsername/ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)

	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	if user.Status == "" {
		user.Status = models.StatusActive
	}
	if user.PasswordChangedAt == nil {
		user.PasswordChangedAt = &now
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, full_name, role, status, created_at, updated_at, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + userColumns

	created, err := scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.FullName,
		user.Role, user.Status, user.CreatedAt, user.UpdatedAt, user.PasswordChangedAt,
	))
	if err != nil {
		return nil, r.mapDuplicate(err)
	}

	return created, nil
}

// mapDuplicate resolves a unique violation to the duplicated field. err may
// already be mapped; the driver error is still in its chain.
func (r *UserRepository) mapDuplicate(err error) error {
	switch {
	case database.IsUniqueViolation(err, constraintUsername):
		return models.ErrDuplicateUsername
	case database.IsUniqueViolation(err, constraintEmail):
		return models.ErrDuplicateEmail
	}
	return database.MapPostgresError(err)
}

// UpdatePassword replaces the stored credential and stamps password_changed_at
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	query := `
		UPDATE users SET password_hash = $1, password_changed_at = $2, updated_at = $2
		WHERE id = $3
	`
	return r.execOne(ctx, query, passwordHash, changedAt, id)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id, status string) (*models.User, error) {
	query := `
		UPDATE users SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, status, time.Now().UTC(), id))
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
