package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/garage/internal/database"
	"github.com/BradenHooton/garage/internal/models"
	"github.com/jackc/pgx/v5"
)

const auditLogColumns = `id, user_id, username, action, success, details, ip_address, metadata, created_at`

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	pool database.PgxPool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func scanAuditLogRow(row rowScanner) (*models.AuditLog, error) {
	var log models.AuditLog

	err := row.Scan(
		&log.ID, &log.UserID, &log.Username, &log.Action, &log.Success,
		&log.Details, &log.IPAddress, &log.Metadata, &log.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &log, nil
}

func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)

	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", database.MapPostgresError(err))
	}

	return logs, nil
}

func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if log.Metadata == nil {
		log.Metadata = models.AuditMetadata{}
	}

	query := `
		INSERT INTO audit_logs (user_id, username, action, success, details, ip_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + auditLogColumns

	result, err := scanAuditLogRow(r.pool.QueryRow(ctx, query,
		log.UserID, log.Username, log.Action, log.Success, log.Details, log.IPAddress, log.Metadata,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return result, nil
}

// List returns the newest entries first, optionally restricted to one user
func (r *AuditLogRepository) List(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if userID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+auditLogColumns+` FROM audit_logs
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			*userID, limit, offset,
		)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+auditLogColumns+` FROM audit_logs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", database.MapPostgresError(err))
	}

	return scanAuditLogRows(rows)
}

// Cleanup removes audit logs older than the given number of days
func (r *AuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE created_at < CURRENT_TIMESTAMP - INTERVAL '1 day' * $1
	`

	result, err := r.pool.Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected(), nil
}
