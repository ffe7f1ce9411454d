package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is a security-relevant event emitted to the structured log
type AuditEvent struct {
	Action        string
	UserID        string
	Username      string
	IPAddress     string
	Surface       string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit events to slog under the "audit" message
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log records event at Info on success and Warn on failure
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType(event.Action)),
		slog.String("action", event.Action),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Surface != "" {
		attrs = append(attrs, slog.String("surface", event.Surface))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

func auditType(action string) string {
	switch action {
	case "login", "failed_login", "logout", "logout_all":
		return "auth"
	case "password_change", "password_reset", "password_reset_request":
		return "password"
	default:
		return "account"
	}
}
