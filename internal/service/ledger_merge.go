package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

const (
	minScore = 0
	maxScore = 10
)

// EvaluationEdit carries evaluator changes; nil fields are left untouched.
type EvaluationEdit struct {
	EvaluatorStatus *models.Status
	Remark          *string
	Score           *int
	EvaluatedBy     string
	EvaluatedAt     time.Time
}

// Validate checks the edit against the status vocabulary and score range.
func (e EvaluationEdit) Validate() error {
	if e.EvaluatorStatus == nil && e.Remark == nil && e.Score == nil {
		return appErrors.Clone(appErrors.ErrValidation, "evaluation requires evaluatorStatus, remark or score")
	}
	if e.EvaluatorStatus != nil && !models.ValidEvaluatorStatus(*e.EvaluatorStatus) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown evaluator status %q", *e.EvaluatorStatus))
	}
	if e.Score != nil && (*e.Score < minScore || *e.Score > maxScore) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score must be between %d and %d", minScore, maxScore))
	}
	return nil
}

// ApplySubmission merges a submission for occ into records and returns the new
// array together with the written record. A re-submission replaces the earlier
// answer and sends it back to the evaluator queue with every evaluation field
// cleared.
func ApplySubmission(records models.SubmissionRecords, occ models.Occurrence, submittedAt time.Time, attachments []string) (models.SubmissionRecords, models.SubmissionRecord) {
	status, _ := ClassifyOccurrence(occ, &submittedAt, submittedAt)
	at := submittedAt

	out := cloneRecords(records)
	idx := indexOfOccurrence(out, occ.Key)
	if idx >= 0 {
		rec := out[idx]
		rec.Submitted = true
		rec.SubmittedAt = &at
		rec.AutoStatus = status
		rec.EvaluatorStatus = models.StatusPending
		rec.Remark = ""
		rec.Score = nil
		rec.EvaluatedBy = nil
		rec.EvaluatedAt = nil
		if len(attachments) > 0 {
			rec.Attachments = append([]string(nil), attachments...)
		}
		out[idx] = rec
		return out, rec
	}

	rec := models.SubmissionRecord{
		Occurrence:      occ.Key,
		Submitted:       true,
		SubmittedAt:     &at,
		AutoStatus:      status,
		EvaluatorStatus: models.StatusPending,
		Attachments:     append([]string(nil), attachments...),
	}
	pos := sort.Search(len(out), func(i int) bool { return out[i].Occurrence > occ.Key })
	out = append(out, models.SubmissionRecord{})
	copy(out[pos+1:], out[pos:])
	out[pos] = rec
	return out, rec
}

// ApplyEvaluation replaces the record keyed by occurrence with the edited copy,
// leaving every other element untouched. Applying the same edit twice yields
// the same array.
func ApplyEvaluation(records models.SubmissionRecords, occurrence string, edit EvaluationEdit) (models.SubmissionRecords, error) {
	if err := edit.Validate(); err != nil {
		return nil, err
	}
	idx := indexOfOccurrence(records, occurrence)
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no submission recorded for occurrence %s", occurrence))
	}

	out := cloneRecords(records)
	rec := out[idx]
	if edit.EvaluatorStatus != nil {
		rec.EvaluatorStatus = *edit.EvaluatorStatus
	}
	if edit.Remark != nil {
		rec.Remark = *edit.Remark
	}
	if edit.Score != nil {
		score := *edit.Score
		rec.Score = &score
	}
	if edit.EvaluatedBy != "" {
		by := edit.EvaluatedBy
		rec.EvaluatedBy = &by
	}
	if !edit.EvaluatedAt.IsZero() {
		at := edit.EvaluatedAt
		rec.EvaluatedAt = &at
	}
	out[idx] = rec
	return out, nil
}

func indexOfOccurrence(records models.SubmissionRecords, key string) int {
	for i := range records {
		if records[i].Occurrence == key {
			return i
		}
	}
	return -1
}

func cloneRecords(records models.SubmissionRecords) models.SubmissionRecords {
	out := make(models.SubmissionRecords, len(records), len(records)+1)
	copy(out, records)
	return out
}
