package models

import "time"

// StatusCount is one bar of a status chart.
type StatusCount struct {
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// StatusDistribution holds the automatic and evaluator tracks in vocabulary order.
type StatusDistribution struct {
	Auto   []StatusCount `json:"auto"`
	Manual []StatusCount `json:"manual"`
}

// AutoCount returns the automatic-track count for a status.
func (d StatusDistribution) AutoCount(s Status) int {
	return countOf(d.Auto, s)
}

// ManualCount returns the evaluator-track count for a status.
func (d StatusDistribution) ManualCount(s Status) int {
	return countOf(d.Manual, s)
}

func countOf(counts []StatusCount, s Status) int {
	for _, c := range counts {
		if c.Status == s {
			return c.Count
		}
	}
	return 0
}

// ParticipantSummary folds one participant's entries for a program.
type ParticipantSummary struct {
	ParticipantID string             `json:"participantId"`
	FullName      string             `json:"fullName,omitempty"`
	HasLedger     bool               `json:"hasLedger"`
	Distribution  StatusDistribution `json:"distribution"`
	AverageScore  *float64           `json:"averageScore,omitempty"`
}

// ProgramAnalytics is the analytics payload for a single program.
type ProgramAnalytics struct {
	ProgramID    string               `json:"programId"`
	ProgramName  string               `json:"programName"`
	Occurrences  int                  `json:"occurrences"`
	DueCount     int                  `json:"dueCount"`
	Participants int                  `json:"participants"`
	Unscheduled  int                  `json:"unscheduled"`
	Distribution StatusDistribution   `json:"distribution"`
	PerUser      []ParticipantSummary `json:"perUser"`
	Entries      []LedgerEntry        `json:"entries"`
	GeneratedAt  time.Time            `json:"generatedAt"`
}

// ProgramBreakdown is one program line of a user's analytics.
type ProgramBreakdown struct {
	ProgramID    string             `json:"programId"`
	ProgramName  string             `json:"programName"`
	Distribution StatusDistribution `json:"distribution"`
}

// UserAnalytics folds every program a participant belongs to.
type UserAnalytics struct {
	UserID       string             `json:"userId"`
	Programs     []ProgramBreakdown `json:"programs"`
	Distribution StatusDistribution `json:"distribution"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	SubmissionsTotal         uint64    `json:"submissions_total"`
	EvaluationsTotal         uint64    `json:"evaluations_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// RoleCount is the number of profiles holding a role.
type RoleCount struct {
	Role  UserRole `db:"role" json:"role"`
	Count int      `db:"count" json:"count"`
}

// JobStatusCount is the number of report jobs in a lifecycle state.
type JobStatusCount struct {
	Status ReportStatus `db:"status" json:"status"`
	Count  int          `db:"count" json:"count"`
}

// PortalInventory summarises stored records for the admin overview.
type PortalInventory struct {
	UsersByRole []RoleCount      `json:"users_by_role"`
	Programs    int              `json:"programs"`
	Ledgers     int              `json:"ledgers"`
	ReportJobs  []JobStatusCount `json:"report_jobs"`
}

// SystemAnalytics pairs instrumentation with stored record counts.
type SystemAnalytics struct {
	Metrics   AnalyticsSystemMetrics `json:"metrics"`
	Inventory *PortalInventory       `json:"inventory,omitempty"`
}
