package dto

import "github.com/noah-isme/agency-portal-api/internal/models"

// CreateUserRequest registers a portal account with its profile.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=8"`
	FullName  string          `json:"full_name" validate:"required"`
	Role      models.UserRole `json:"role" validate:"required,oneof=ADMIN EVALUATOR LGU VIEWER"`
	Office    string          `json:"office"`
	OrgUnitID *string         `json:"org_unit_id,omitempty"`
}

// AvatarResponse returns the hosted avatar location.
type AvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}
