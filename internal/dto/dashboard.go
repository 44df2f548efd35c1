package dto

import (
	"time"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

// DashboardResponse is the role-specific landing payload. Only the section
// matching Role is populated.
type DashboardResponse struct {
	Role        models.UserRole     `json:"role"`
	Admin       *AdminDashboard     `json:"admin,omitempty"`
	Evaluator   *EvaluatorDashboard `json:"evaluator,omitempty"`
	LGU         *LGUDashboard       `json:"lgu,omitempty"`
	Viewer      *ViewerDashboard    `json:"viewer,omitempty"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// AdminDashboard summarises portal-wide totals.
type AdminDashboard struct {
	Programs     int                       `json:"programs"`
	UsersByRole  map[models.UserRole]int   `json:"usersByRole"`
	Distribution models.StatusDistribution `json:"distribution"`
}

// PendingEvaluation points at a submitted record nobody has reviewed yet.
type PendingEvaluation struct {
	ProgramID     string     `json:"programId"`
	ProgramName   string     `json:"programName"`
	ParticipantID string     `json:"participantId"`
	Occurrence    string     `json:"occurrence"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
}

// EvaluatorDashboard lists the evaluation backlog.
type EvaluatorDashboard struct {
	PendingCount int                 `json:"pendingCount"`
	Pending      []PendingEvaluation `json:"pending"`
}

// OccurrenceItem is one occurrence owed by the calling participant.
type OccurrenceItem struct {
	ProgramID   string    `json:"programId"`
	ProgramName string    `json:"programName"`
	Occurrence  string    `json:"occurrence"`
	DueAt       time.Time `json:"dueAt"`
}

// LGUDashboard lists the participant's upcoming and overdue occurrences.
type LGUDashboard struct {
	Upcoming     []OccurrenceItem          `json:"upcoming"`
	Overdue      []OccurrenceItem          `json:"overdue"`
	Distribution models.StatusDistribution `json:"distribution"`
}

// ViewerDashboard carries the read-only overall distribution.
type ViewerDashboard struct {
	Programs     int                       `json:"programs"`
	Distribution models.StatusDistribution `json:"distribution"`
}
