package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit actions recorded by the auth subsystem
const (
	AuditActionLogin                = "login"
	AuditActionFailedLogin          = "failed_login"
	AuditActionLogout               = "logout"
	AuditActionLogoutAll            = "logout_all"
	AuditActionRegister             = "register"
	AuditActionPasswordChange       = "password_change"
	AuditActionPasswordResetRequest = "password_reset_request"
	AuditActionPasswordReset        = "password_reset"
	AuditActionStatusChange         = "status_change"
)

type AuditLog struct {
	ID        string        `db:"id" json:"id"`
	UserID    *string       `db:"user_id" json:"user_id,omitempty"`
	Username  string        `db:"username" json:"username,omitempty"`
	Action    string        `db:"action" json:"action"`
	Success   bool          `db:"success" json:"success"`
	Details   *string       `db:"details" json:"details,omitempty"`
	IPAddress *string       `db:"ip_address" json:"ip_address,omitempty"`
	Metadata  AuditMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(am))
}
