package service

import (
	"github.com/noah-isme/agency-portal-api/internal/models"
)

// Aggregate folds entries into per-status counts for the automatic and
// evaluator tracks, both ordered by the status vocabulary. Records still at
// the Pending sentinel are left out of the evaluator track. A program with
// participants but no entries at all reports a single No Submission.
func Aggregate(entries []models.LedgerEntry, participantCount int) models.StatusDistribution {
	auto := make(map[models.Status]int, len(models.StatusVocabulary))
	manual := make(map[models.Status]int, len(models.StatusVocabulary))

	if participantCount > 0 && len(entries) == 0 {
		auto[models.StatusNoSubmission] = 1
	}

	for _, entry := range entries {
		if inVocabulary(entry.AutoStatus) {
			auto[entry.AutoStatus]++
		}
		if entry.EvaluatorStatus != "" && entry.EvaluatorStatus != models.StatusPending && inVocabulary(entry.EvaluatorStatus) {
			manual[entry.EvaluatorStatus]++
		}
	}

	return models.StatusDistribution{
		Auto:   orderedCounts(auto),
		Manual: orderedCounts(manual),
	}
}

// MergeDistributions sums distributions track by track.
func MergeDistributions(items ...models.StatusDistribution) models.StatusDistribution {
	auto := make(map[models.Status]int, len(models.StatusVocabulary))
	manual := make(map[models.Status]int, len(models.StatusVocabulary))
	for _, item := range items {
		for _, c := range item.Auto {
			auto[c.Status] += c.Count
		}
		for _, c := range item.Manual {
			manual[c.Status] += c.Count
		}
	}
	return models.StatusDistribution{Auto: orderedCounts(auto), Manual: orderedCounts(manual)}
}

func orderedCounts(counts map[models.Status]int) []models.StatusCount {
	out := make([]models.StatusCount, 0, len(models.StatusVocabulary))
	for _, status := range models.StatusVocabulary {
		out = append(out, models.StatusCount{Status: status, Count: counts[status]})
	}
	return out
}

func inVocabulary(s models.Status) bool {
	for _, v := range models.StatusVocabulary {
		if v == s {
			return true
		}
	}
	return false
}
