package models

import (
	"time"
)

// Roles, ordered from most to least privileged
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// Account statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusPending   = "pending"
)

var roleRank = map[string]int{
	RoleCustomer: 1,
	RoleStaff:    2,
	RoleAdmin:    3,
}

type User struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string // encoded credential, see pkg/auth
	FullName          string
	Role              string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       *time.Time
	PasswordChangedAt *time.Time
}

// IsActive reports whether the account may authenticate
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// HasRole reports whether the user's role is at least min in the admin > staff > customer hierarchy
func (u *User) HasRole(min string) bool {
	return RoleAtLeast(u.Role, min)
}

// RoleAtLeast compares two roles; unknown roles never satisfy a requirement
func RoleAtLeast(role, min string) bool {
	have, ok := roleRank[role]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// ValidStatus reports whether status is one of the known account statuses
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusSuspended, StatusPending:
		return true
	}
	return false
}
