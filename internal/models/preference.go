package models

import "time"

// FilterState is a saved list view filter for a user.
type FilterState struct {
	View      string    `json:"view"`
	Search    string    `json:"search,omitempty"`
	Statuses  []Status  `json:"statuses,omitempty"`
	ProgramID string    `json:"programId,omitempty"`
	Role      UserRole  `json:"role,omitempty"`
	SortBy    string    `json:"sortBy,omitempty"`
	SortOrder string    `json:"sortOrder,omitempty"`
	PageSize  int       `json:"pageSize,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
