package models

import "time"

// Login surfaces. Each has its own rate limit namespace and accepted roles.
const (
	SurfaceStaff    = "staff"
	SurfaceCustomer = "customer"
)

// Session is a server-side login session. Only the SHA-256 of the opaque
// token is stored; the raw token exists on the client alone.
type Session struct {
	ID             string    `json:"id"`
	TokenHash      string    `json:"token_hash"`
	UserID         string    `json:"user_id"`
	Surface        string    `json:"surface"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// IsExpired reports whether the absolute TTL has elapsed at now
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsIdle reports whether the session has been unused for longer than timeout.
// A zero timeout disables the idle check.
func (s *Session) IsIdle(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(s.LastActivityAt) > timeout
}

// SurfaceAllowsRole reports whether a user with role may sign in through surface
func SurfaceAllowsRole(surface, role string) bool {
	switch surface {
	case SurfaceStaff:
		return role == RoleAdmin || role == RoleStaff
	case SurfaceCustomer:
		return role == RoleCustomer
	}
	return false
}
