package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleEvaluator UserRole = "EVALUATOR"
	RoleLGU       UserRole = "LGU"
	RoleViewer    UserRole = "VIEWER"
)

// Valid reports whether the role belongs to the portal role set.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleEvaluator, RoleLGU, RoleViewer:
		return true
	default:
		return false
	}
}

// Identity is the sign-in record kept in auth_identities.
type Identity struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	GoogleSubject *string    `db:"google_subject" json:"-"`
	Disabled      bool       `db:"disabled" json:"disabled"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// UserProfile is the portal-facing user document kept in user_profiles.
type UserProfile struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Office    string    `db:"office" json:"office"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	OrgUnitID *string   `db:"org_unit_id" json:"org_unit_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DeletedUserProfile is a profile relocated by a non-permanent delete.
type DeletedUserProfile struct {
	UserProfile
	DeletedAt time.Time `db:"deleted_at" json:"deleted_at"`
	DeletedBy string    `db:"deleted_by" json:"deleted_by"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
