package dto

import "github.com/noah-isme/agency-portal-api/internal/models"

// SubmitRequest marks an occurrence as submitted by the calling participant.
type SubmitRequest struct {
	Occurrence  string   `json:"occurrence" form:"occurrence" validate:"required"`
	Attachments []string `json:"attachments,omitempty"`
}

// EvaluateRequest is an evaluator edit of one submission record. ExpectedVersion
// turns the write into a compare-and-swap against the stored ledger version.
type EvaluateRequest struct {
	EvaluatorStatus *models.Status `json:"evaluatorStatus,omitempty"`
	Remark          *string        `json:"remark,omitempty"`
	Score           *int           `json:"score,omitempty"`
	ExpectedVersion *int           `json:"expectedVersion,omitempty"`
}

// LedgerRecordResponse returns the written record with the new ledger version.
type LedgerRecordResponse struct {
	LedgerID      string                  `json:"ledgerId"`
	ProgramID     string                  `json:"programId"`
	ParticipantID string                  `json:"participantId"`
	Version       int                     `json:"version"`
	Record        models.SubmissionRecord `json:"record"`
}
