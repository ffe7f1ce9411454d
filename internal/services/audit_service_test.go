package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/BradenHooton/garage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_Record_DualWrite(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	repo := &MockAuditLogRepository{}
	svc := NewAuditService(repo, logger)

	svc.Record(context.Background(), AuditEntry{
		Action:        models.AuditActionFailedLogin,
		Username:      "alice",
		IPAddress:     "203.0.113.7",
		Surface:       models.SurfaceCustomer,
		FailureReason: "invalid_credentials",
	})

	require.Len(t, repo.Entries, 1)
	stored := repo.Entries[0]
	assert.Nil(t, stored.UserID)
	assert.Equal(t, "alice", stored.Username)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "203.0.113.7", *stored.IPAddress)
	require.NotNil(t, stored.Details)
	assert.Equal(t, "invalid_credentials", *stored.Details)
	assert.Equal(t, models.SurfaceCustomer, stored.Metadata["surface"])

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, models.AuditActionFailedLogin, line["action"])
}

func TestAuditService_Record_PersistFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	repo := &MockAuditLogRepository{
		CreateFunc: func(context.Context, *models.AuditLog) (*models.AuditLog, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewAuditService(repo, logger)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), AuditEntry{Action: models.AuditActionLogin, UserID: "u1", Success: true})
	})
	assert.Contains(t, buf.String(), "failed to persist audit log")
}

func TestAuditService_NilSafe(t *testing.T) {
	var svc *AuditService
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), AuditEntry{Action: models.AuditActionLogin})
	})

	logOnly := NewAuditService(nil, discardLogger())
	logs, err := logOnly.ListRecent(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAuditService_ListRecent(t *testing.T) {
	userID := "u1"
	repo := &MockAuditLogRepository{
		ListFunc: func(_ context.Context, gotUser *string, limit, offset int) ([]*models.AuditLog, error) {
			require.NotNil(t, gotUser)
			assert.Equal(t, userID, *gotUser)
			assert.Equal(t, 20, limit)
			assert.Equal(t, 40, offset)
			return []*models.AuditLog{{ID: "a1", Action: models.AuditActionLogin}}, nil
		},
	}
	svc := NewAuditService(repo, discardLogger())

	logs, err := svc.ListRecent(context.Background(), &userID, 20, 40)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a1", logs[0].ID)
}

func TestAuditService_Cleanup(t *testing.T) {
	repo := &MockAuditLogRepository{
		CleanupFunc: func(_ context.Context, days int) (int64, error) {
			assert.Equal(t, 90, days)
			return 12, nil
		},
	}
	svc := NewAuditService(repo, discardLogger())

	n, err := svc.Cleanup(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
