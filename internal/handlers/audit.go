package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/garage/internal/models"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
	"github.com/google/uuid"
)

// AuditServiceInterface reads the persisted audit trail
type AuditServiceInterface interface {
	ListRecent(ctx context.Context, userID *string, limit, offset int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	service AuditServiceInterface
	logger  *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditServiceInterface, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger,
	}
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID        string                 `json:"id"`
	UserID    *string                `json:"user_id,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Details   *string                `json:"details,omitempty"`
	IPAddress *string                `json:"ip_address,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ListAuditLogsResponse is one page of the audit trail
type ListAuditLogsResponse struct {
	Logs   []AuditLogResponse `json:"logs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// ListAuditLogs returns recent audit entries, optionally for one user (admin only)
// @Router /audit-logs [get]
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	var userID *string
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		if _, err := uuid.Parse(raw); err != nil {
			pkghttp.WriteValidationError(w, "Validation failed", map[string]string{"user_id": "must be a valid id"})
			return
		}
		userID = &raw
	}

	limit, offset := parsePagination(r)

	logs, err := h.service.ListRecent(r.Context(), userID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := ListAuditLogsResponse{
		Logs:   make([]AuditLogResponse, 0, len(logs)),
		Limit:  limit,
		Offset: offset,
	}
	for _, l := range logs {
		resp.Logs = append(resp.Logs, auditLogToResponse(l))
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// auditLogToResponse converts an audit log model to a response DTO
func auditLogToResponse(log *models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:        log.ID,
		UserID:    log.UserID,
		Username:  log.Username,
		Action:    log.Action,
		Success:   log.Success,
		Details:   log.Details,
		IPAddress: log.IPAddress,
		Metadata:  log.Metadata,
		CreatedAt: log.CreatedAt,
	}
}
