package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin             UserRole = "admin"
	RoleOSASStaff         UserRole = "osas_staff"
	RoleGuidanceCounselor UserRole = "guidance_counselor"
	RoleCoachAdviser      UserRole = "coach_adviser"
	RoleStudent           UserRole = "student"
)

// IsStaff reports whether the role belongs to a reviewing office.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleOSASStaff, RoleGuidanceCounselor, RoleCoachAdviser:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserFilter constrains user listings.
type UserFilter struct {
	Role     *UserRole
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
