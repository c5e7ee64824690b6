package models

import "time"

// UserRole represents the authorization tier stored for a portal user.
// New signups start as PENDING and stay there until an admin grants the
// admin claim; PENDING users keep read access to the portal surfaces.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RolePending UserRole = "PENDING"
)

// User represents a portal user stored in the users table.
type User struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	Role          UserRole   `db:"role" json:"role"`
	EmailVerified bool       `db:"email_verified" json:"email_verified"`
	PhoneFactor   *string    `db:"phone_factor" json:"phone_factor,omitempty"`
	Active        bool       `db:"active" json:"active"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// HasSecondFactor reports whether a phone factor is enrolled.
func (u *User) HasSecondFactor() bool {
	return u != nil && u.PhoneFactor != nil && *u.PhoneFactor != ""
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// UserClaims is the claim view returned by the admin user listing.
type UserClaims struct {
	UID    string          `json:"uid"`
	Email  string          `json:"email"`
	Claims map[string]bool `json:"customClaims"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
