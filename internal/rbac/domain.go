package rbac

import (
	"strings"
	"time"
)

// User is an account that may hold roles. Email is unique and compared
// case-insensitively.
type User struct {
	ID         int64
	FirstName  string
	LastName   string
	Email      string
	Birthday   time.Time
	ValidUntil *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Expired reports whether ValidUntil lies before now.
func (u User) Expired(now time.Time) bool {
	return u.ValidUntil != nil && u.ValidUntil.Before(now)
}

// Role represents a named permission grouping.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	UserName  string
	RoleName  string
	CreatedAt time.Time
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID         int64
	PermissionID   int64
	RoleName       string
	PermissionName string
	CreatedAt      time.Time
}
