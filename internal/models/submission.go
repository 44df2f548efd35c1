package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is a submission status shared by the automatic and evaluator tracks.
type Status string

const (
	StatusOnTime       Status = "On Time"
	StatusLate         Status = "Late"
	StatusIncomplete   Status = "Incomplete"
	StatusNoSubmission Status = "No Submission"
	StatusForRevision  Status = "For Revision"

	// StatusPending is the evaluator sentinel for records nobody has reviewed yet.
	StatusPending Status = "Pending"
)

// StatusVocabulary lists the reportable statuses in legend order.
var StatusVocabulary = []Status{
	StatusOnTime,
	StatusLate,
	StatusIncomplete,
	StatusNoSubmission,
	StatusForRevision,
}

// ValidEvaluatorStatus reports whether an evaluator may assign the status.
func ValidEvaluatorStatus(s Status) bool {
	if s == StatusPending {
		return true
	}
	for _, v := range StatusVocabulary {
		if v == s {
			return true
		}
	}
	return false
}

// SubmissionRecord is one participant's answer to one occurrence.
type SubmissionRecord struct {
	Occurrence      string     `json:"occurrence"`
	Submitted       bool       `json:"submitted"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	AutoStatus      Status     `json:"autoStatus"`
	EvaluatorStatus Status     `json:"evaluatorStatus,omitempty"`
	Remark          string     `json:"remark,omitempty"`
	Score           *int       `json:"score,omitempty"`
	Attachments     []string   `json:"attachments,omitempty"`
	EvaluatedBy     *string    `json:"evaluatedBy,omitempty"`
	EvaluatedAt     *time.Time `json:"evaluatedAt,omitempty"`
}

// SubmissionRecords is the ordered submissions array stored on a ledger.
type SubmissionRecords []SubmissionRecord

// Value marshals the records to JSON for persistence.
func (r SubmissionRecords) Value() (driver.Value, error) {
	if r == nil {
		r = SubmissionRecords{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal submissions: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB submissions column.
func (r *SubmissionRecords) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*r = SubmissionRecords{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SubmissionRecords", value)
	}
	if len(data) == 0 {
		*r = SubmissionRecords{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal submissions: %w", err)
	}
	return nil
}

// Ledger is the submission document owned by a (program, participant) pair.
type Ledger struct {
	ID            string            `db:"id" json:"id"`
	ProgramID     string            `db:"program_id" json:"program_id"`
	ParticipantID string            `db:"participant_id" json:"participant_id"`
	Submissions   SubmissionRecords `db:"submissions" json:"submissions"`
	Version       int               `db:"version" json:"version"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// LedgerEntry is a flattened record used for display and aggregation.
// Placeholder entries stand in for due occurrences nobody answered and are
// never written back; DocID is empty when the participant has no ledger yet.
type LedgerEntry struct {
	DocID       string `json:"docId"`
	SubmittedBy string `json:"submittedBy"`
	ProgramID   string `json:"programId"`
	Placeholder bool   `json:"placeholder,omitempty"`
	SubmissionRecord
}

// LedgerChange is published whenever a ledger is written.
type LedgerChange struct {
	ProgramID     string    `json:"programId"`
	ParticipantID string    `json:"participantId"`
	Occurrence    string    `json:"occurrence"`
	Version       int       `json:"version"`
	ChangedAt     time.Time `json:"changedAt"`
}
