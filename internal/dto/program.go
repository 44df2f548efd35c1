package dto

import "github.com/noah-isme/agency-portal-api/internal/models"

// ProgramRequest is shared by program create and update.
type ProgramRequest struct {
	Name         string            `json:"name" validate:"required,max=200"`
	Description  string            `json:"description"`
	Recurrence   models.Recurrence `json:"recurrence"`
	ValidFrom    models.Date       `json:"valid_from"`
	ValidTo      models.Date       `json:"valid_to"`
	Participants []string          `json:"participants"`
}

// SelectAllRequest toggles every user of a role in or out of a program.
type SelectAllRequest struct {
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN EVALUATOR LGU VIEWER"`
	Selected bool            `json:"selected"`
}

// OccurrencesResponse lists the generated due dates of a program.
type OccurrencesResponse struct {
	ProgramID   string              `json:"programId"`
	Timezone    string              `json:"timezone"`
	Occurrences []models.Occurrence `json:"occurrences"`
}
