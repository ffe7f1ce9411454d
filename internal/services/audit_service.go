package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/garage/internal/models"
	pkglogger "github.com/BradenHooton/garage/pkg/logger"
)

// AuditLogRepository persists audit entries
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	List(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// AuditEntry describes one security-relevant event
type AuditEntry struct {
	Action        string
	UserID        string
	Username      string
	IPAddress     string
	Surface       string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditService handles audit logging with a dual-write pattern (slog + database)
type AuditService struct {
	repo   AuditLogRepository
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
}

// NewAuditService creates an AuditService. A nil repo logs to slog only.
func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		audit:  pkglogger.NewAuditLogger(logger),
		logger: logger,
	}
}

// Record writes entry to the structured log and then to the audit table.
// Persistence failures are logged and never returned.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil {
		return
	}

	s.audit.Log(ctx, pkglogger.AuditEvent{
		Action:        entry.Action,
		UserID:        entry.UserID,
		Username:      entry.Username,
		IPAddress:     entry.IPAddress,
		Surface:       entry.Surface,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
		Metadata:      entry.Metadata,
	})

	if s.repo == nil {
		return
	}

	if _, err := s.repo.Create(ctx, entryToLog(entry)); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
	}
}

// ListRecent returns audit entries newest first, optionally for one user
func (s *AuditService) ListRecent(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error) {
	if s.repo == nil {
		return []*models.AuditLog{}, nil
	}

	logs, err := s.repo.List(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list audit logs", slog.Any("error", err))
		return nil, internalError("list audit logs", err)
	}
	return logs, nil
}

// Cleanup removes entries older than retentionDays
func (s *AuditService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}

	n, err := s.repo.Cleanup(ctx, retentionDays)
	if err != nil {
		return 0, storageError("cleanup audit logs", err)
	}
	return n, nil
}

func entryToLog(entry AuditEntry) *models.AuditLog {
	log := &models.AuditLog{
		Username: entry.Username,
		Action:   entry.Action,
		Success:  entry.Success,
		Metadata: models.AuditMetadata{},
	}

	if entry.UserID != "" {
		userID := entry.UserID
		log.UserID = &userID
	}
	if entry.IPAddress != "" {
		ip := entry.IPAddress
		log.IPAddress = &ip
	}
	if entry.FailureReason != "" {
		reason := entry.FailureReason
		log.Details = &reason
	}
	if entry.Surface != "" {
		log.Metadata["surface"] = entry.Surface
	}
	for k, v := range entry.Metadata {
		log.Metadata[k] = v
	}

	return log
}
