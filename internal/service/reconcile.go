package service

import (
	"time"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

// Reconciliation lines up a program's occurrences against its ledgers.
type Reconciliation struct {
	Entries  []models.LedgerEntry
	DueCount int
	// Unscheduled counts ledger records whose occurrence is no longer produced
	// by the program's rule, or that belong to removed participants.
	Unscheduled int
}

// Reconcile pairs every (participant, occurrence) with exactly one entry:
// the ledger record when present, a No Submission placeholder when the
// occurrence is overdue, and nothing while it is still pending.
func Reconcile(program *models.Program, occurrences []models.Occurrence, ledgers []models.Ledger, now time.Time) Reconciliation {
	byParticipant := make(map[string]*models.Ledger, len(ledgers))
	for i := range ledgers {
		byParticipant[ledgers[i].ParticipantID] = &ledgers[i]
	}

	scheduled := make(map[string]struct{}, len(occurrences))
	result := Reconciliation{}
	for _, occ := range occurrences {
		scheduled[occ.Key] = struct{}{}
		if IsDue(occ, now) {
			result.DueCount++
		}
	}

	participants := make(map[string]struct{}, len(program.Participants))
	for _, participantID := range program.Participants {
		if _, dup := participants[participantID]; dup {
			continue
		}
		participants[participantID] = struct{}{}

		ledger := byParticipant[participantID]
		docID := ""
		var records models.SubmissionRecords
		if ledger != nil {
			docID = ledger.ID
			records = ledger.Submissions
		}
		byKey := make(map[string]models.SubmissionRecord, len(records))
		for _, rec := range records {
			byKey[rec.Occurrence] = rec
		}

		for _, occ := range occurrences {
			if rec, ok := byKey[occ.Key]; ok {
				result.Entries = append(result.Entries, models.LedgerEntry{
					DocID:            docID,
					SubmittedBy:      participantID,
					ProgramID:        program.ID,
					SubmissionRecord: rec,
				})
				continue
			}
			if !IsDue(occ, now) {
				continue
			}
			result.Entries = append(result.Entries, models.LedgerEntry{
				DocID:       docID,
				SubmittedBy: participantID,
				ProgramID:   program.ID,
				Placeholder: true,
				SubmissionRecord: models.SubmissionRecord{
					Occurrence: occ.Key,
					AutoStatus: models.StatusNoSubmission,
				},
			})
		}

		for _, rec := range records {
			if _, ok := scheduled[rec.Occurrence]; !ok {
				result.Unscheduled++
			}
		}
	}

	for _, ledger := range ledgers {
		if _, ok := participants[ledger.ParticipantID]; !ok {
			result.Unscheduled += len(ledger.Submissions)
		}
	}

	return result
}

// SummariseParticipants folds entries per participant in program order.
func SummariseParticipants(program *models.Program, entries []models.LedgerEntry, hasLedger map[string]bool) []models.ParticipantSummary {
	grouped := make(map[string][]models.LedgerEntry, len(program.Participants))
	for _, entry := range entries {
		grouped[entry.SubmittedBy] = append(grouped[entry.SubmittedBy], entry)
	}

	seen := make(map[string]struct{}, len(program.Participants))
	out := make([]models.ParticipantSummary, 0, len(program.Participants))
	for _, participantID := range program.Participants {
		if _, dup := seen[participantID]; dup {
			continue
		}
		seen[participantID] = struct{}{}
		own := grouped[participantID]
		summary := models.ParticipantSummary{
			ParticipantID: participantID,
			HasLedger:     hasLedger[participantID],
			Distribution:  Aggregate(own, 0),
		}
		var total, scored int
		for _, entry := range own {
			if entry.Score != nil {
				total += *entry.Score
				scored++
			}
		}
		if scored > 0 {
			avg := float64(total) / float64(scored)
			summary.AverageScore = &avg
		}
		out = append(out, summary)
	}
	return out
}
