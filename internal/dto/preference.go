package dto

import "github.com/noah-isme/agency-portal-api/internal/models"

// PreferenceRequest replaces the saved filter of one list view.
type PreferenceRequest struct {
	Search    string          `json:"search" validate:"max=200"`
	Statuses  []models.Status `json:"statuses"`
	ProgramID string          `json:"programId"`
	Role      models.UserRole `json:"role" validate:"omitempty,oneof=ADMIN EVALUATOR LGU VIEWER"`
	SortBy    string          `json:"sortBy" validate:"max=40"`
	SortOrder string          `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
	PageSize  int             `json:"pageSize" validate:"omitempty,min=1,max=100"`
}
