package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditColumnNames = []string{
	"id", "user_id", "username", "action", "success", "details", "ip_address", "metadata", "created_at",
}

func TestAuditLogRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditLogRepository(db)

	userID := "u-1"
	ip := "10.0.0.1"
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(&userID, "alice", models.AuditActionLogin, true, (*string)(nil), &ip, models.AuditMetadata{}).
		WillReturnRows(pgxmock.NewRows(auditColumnNames).
			AddRow("a-1", &userID, "alice", models.AuditActionLogin, true, (*string)(nil), &ip, models.AuditMetadata{}, now))

	created, err := repo.Create(context.Background(), &models.AuditLog{
		UserID:    &userID,
		Username:  "alice",
		Action:    models.AuditActionLogin,
		Success:   true,
		IPAddress: &ip,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", created.ID)
	require.NotNil(t, created.UserID)
	assert.Equal(t, "u-1", *created.UserID)
}

func TestAuditLogRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditLogRepository(db)
	now := time.Now()
	userID := "u-1"

	mock.ExpectQuery(`SELECT .* FROM audit_logs\s+ORDER BY created_at DESC\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows(auditColumnNames).
			AddRow("a-1", nil, "ghost", models.AuditActionFailedLogin, false, nil, nil, models.AuditMetadata{}, now))

	logs, err := repo.List(context.Background(), nil, 50, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].UserID)
	assert.False(t, logs[0].Success)

	mock.ExpectQuery(`SELECT .* FROM audit_logs\s+WHERE user_id = \$1`).
		WithArgs(userID, 10, 5).
		WillReturnRows(pgxmock.NewRows(auditColumnNames))

	logs, err = repo.List(context.Background(), &userID, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAuditLogRepository_Cleanup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditLogRepository(db)

	mock.ExpectExec(`DELETE FROM audit_logs`).
		WithArgs(90).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := repo.Cleanup(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
