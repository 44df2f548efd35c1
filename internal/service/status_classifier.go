package service

import (
	"time"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

// Classify maps a due time and an optional submission time to an automatic
// status. The boolean is false when nothing was submitted and the deadline has
// not passed yet; such occurrences are pending and must not be counted.
// Incomplete and For Revision are evaluator-only and never returned here.
func Classify(dueAt time.Time, submittedAt *time.Time, now time.Time) (models.Status, bool) {
	if submittedAt == nil {
		if now.After(dueAt) {
			return models.StatusNoSubmission, true
		}
		return "", false
	}
	if submittedAt.After(dueAt) {
		return models.StatusLate, true
	}
	return models.StatusOnTime, true
}

// ClassifyOccurrence classifies against an occurrence. Date-only occurrences
// are due at the end of their calendar day, so anything submitted on the due
// date is on time.
func ClassifyOccurrence(occ models.Occurrence, submittedAt *time.Time, now time.Time) (models.Status, bool) {
	return Classify(Deadline(occ), submittedAt, now)
}

// Deadline is the last instant a submission still counts as on time.
func Deadline(occ models.Occurrence) time.Time {
	if occ.HasTime {
		return occ.DueAt
	}
	return occ.DueAt.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// IsDue reports whether the occurrence deadline has passed.
func IsDue(occ models.Occurrence, now time.Time) bool {
	return now.After(Deadline(occ))
}
