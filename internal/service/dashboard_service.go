package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type dashboardProgramStore interface {
	ListAll(ctx context.Context) ([]models.Program, error)
	ListByParticipant(ctx context.Context, userID string) ([]models.Program, error)
}

type dashboardLedgerStore interface {
	ListByProgram(ctx context.Context, programID string) ([]models.Ledger, error)
	ListByParticipant(ctx context.Context, participantID string) ([]models.Ledger, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)
}

type userAnalyticsProvider interface {
	User(ctx context.Context, actorID string, role models.UserRole, userID string) (*models.UserAnalytics, bool, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL       time.Duration
	UpcomingWindow time.Duration
	UpcomingLimit  int
	PendingLimit   int
}

// DashboardService composes the role-specific landing payloads.
type DashboardService struct {
	programs  dashboardProgramStore
	ledgers   dashboardLedgerStore
	users     roleCounter
	analytics userAnalyticsProvider
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
	cfg       DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Programs  dashboardProgramStore
	Ledgers   dashboardLedgerStore
	Users     roleCounter
	Analytics userAnalyticsProvider
	Cache     *CacheService
	Metrics   *MetricsService
	Logger    *zap.Logger
	Location  *time.Location
	Config    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.UpcomingWindow <= 0 {
		cfg.UpcomingWindow = 14 * 24 * time.Hour
	}
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 5
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = 50
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		programs:  params.Programs,
		ledgers:   params.Ledgers,
		users:     params.Users,
		analytics: params.Analytics,
		cache:     params.Cache,
		metrics:   params.Metrics,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
		cfg:       cfg,
	}
}

// For returns the dashboard of the caller's role and indicates cache utilisation.
func (s *DashboardService) For(ctx context.Context, userID string, role models.UserRole) (*dto.DashboardResponse, bool, error) {
	if userID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "user is required")
	}
	if !role.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	return Remember(ctx, s.cache, dashboardKey(string(role), userID), s.cfg.CacheTTL, func(ctx context.Context) (*dto.DashboardResponse, error) {
		return s.compose(ctx, userID, role)
	})
}

func (s *DashboardService) compose(ctx context.Context, userID string, role models.UserRole) (*dto.DashboardResponse, error) {
	now := s.now()
	resp := &dto.DashboardResponse{Role: role, GeneratedAt: now.UTC()}
	switch role {
	case models.RoleAdmin:
		states, err := s.loadAll(ctx)
		if err != nil {
			return nil, err
		}
		counts, err := s.users.CountByRole(ctx)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to count users")
		}
		resp.Admin = &dto.AdminDashboard{
			Programs:     len(states),
			UsersByRole:  counts,
			Distribution: overallDistribution(states, now),
		}
	case models.RoleViewer:
		states, err := s.loadAll(ctx)
		if err != nil {
			return nil, err
		}
		resp.Viewer = &dto.ViewerDashboard{Programs: len(states), Distribution: overallDistribution(states, now)}
	case models.RoleEvaluator:
		states, err := s.loadAll(ctx)
		if err != nil {
			return nil, err
		}
		pending := PendingEvaluations(states)
		board := &dto.EvaluatorDashboard{PendingCount: len(pending), Pending: pending}
		if len(board.Pending) > s.cfg.PendingLimit {
			board.Pending = board.Pending[:s.cfg.PendingLimit]
		}
		resp.Evaluator = board
	case models.RoleLGU:
		board, err := s.participantBoard(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		resp.LGU = board
	}
	return resp, nil
}

// ProgramState is a program with its expanded schedule and stored ledgers.
type ProgramState struct {
	Program     models.Program
	Occurrences []models.Occurrence
	Ledgers     []models.Ledger
}

func (s *DashboardService) loadAll(ctx context.Context) ([]ProgramState, error) {
	start := time.Now()
	programs, err := s.programs.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list programs")
	}
	states := make([]ProgramState, 0, len(programs))
	for _, program := range programs {
		occurrences, err := GenerateOccurrences(&program, s.loc)
		if err != nil {
			s.logger.Warn("skipping misconfigured program", zap.String("program_id", program.ID), zap.Error(err))
			continue
		}
		ledgers, err := s.ledgers.ListByProgram(ctx, program.ID)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to load ledgers")
		}
		states = append(states, ProgramState{Program: program, Occurrences: occurrences, Ledgers: ledgers})
	}
	s.metrics.ObserveDBQuery("dashboard_programs", time.Since(start))
	return states, nil
}

func (s *DashboardService) participantBoard(ctx context.Context, userID string, now time.Time) (*dto.LGUDashboard, error) {
	programs, err := s.programs.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list programs")
	}
	ledgers, err := s.ledgers.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load ledgers")
	}
	submitted := make(map[string]map[string]bool, len(ledgers))
	for _, ledger := range ledgers {
		keys := make(map[string]bool, len(ledger.Submissions))
		for _, rec := range ledger.Submissions {
			if rec.Submitted {
				keys[rec.Occurrence] = true
			}
		}
		submitted[ledger.ProgramID] = keys
	}

	horizon := now.Add(s.cfg.UpcomingWindow)
	board := &dto.LGUDashboard{Upcoming: []dto.OccurrenceItem{}, Overdue: []dto.OccurrenceItem{}}
	for _, program := range programs {
		occurrences, err := GenerateOccurrences(&program, s.loc)
		if err != nil {
			s.logger.Warn("skipping misconfigured program", zap.String("program_id", program.ID), zap.Error(err))
			continue
		}
		for _, occ := range occurrences {
			if submitted[program.ID][occ.Key] {
				continue
			}
			item := dto.OccurrenceItem{ProgramID: program.ID, ProgramName: program.Name, Occurrence: occ.Key, DueAt: occ.DueAt}
			switch {
			case IsDue(occ, now):
				board.Overdue = append(board.Overdue, item)
			case !occ.DueAt.After(horizon):
				board.Upcoming = append(board.Upcoming, item)
			}
		}
	}
	sort.SliceStable(board.Upcoming, func(i, j int) bool { return board.Upcoming[i].DueAt.Before(board.Upcoming[j].DueAt) })
	sort.SliceStable(board.Overdue, func(i, j int) bool { return board.Overdue[i].DueAt.Before(board.Overdue[j].DueAt) })
	if len(board.Upcoming) > s.cfg.UpcomingLimit {
		board.Upcoming = board.Upcoming[:s.cfg.UpcomingLimit]
	}

	if s.analytics != nil {
		analytics, _, err := s.analytics.User(ctx, userID, models.RoleLGU, userID)
		if err != nil {
			return nil, err
		}
		board.Distribution = analytics.Distribution
	}
	return board, nil
}

func overallDistribution(states []ProgramState, now time.Time) models.StatusDistribution {
	parts := make([]models.StatusDistribution, 0, len(states))
	for i := range states {
		state := &states[i]
		result := Reconcile(&state.Program, state.Occurrences, state.Ledgers, now)
		parts = append(parts, Aggregate(result.Entries, len(normaliseParticipants(state.Program.Participants))))
	}
	return MergeDistributions(parts...)
}

// PendingEvaluations lists submitted records still awaiting an evaluator,
// oldest submission first. Records of removed participants are skipped.
func PendingEvaluations(states []ProgramState) []dto.PendingEvaluation {
	out := []dto.PendingEvaluation{}
	for _, state := range states {
		for _, ledger := range state.Ledgers {
			if !state.Program.HasParticipant(ledger.ParticipantID) {
				continue
			}
			for _, rec := range ledger.Submissions {
				if !rec.Submitted || (rec.EvaluatorStatus != "" && rec.EvaluatorStatus != models.StatusPending) {
					continue
				}
				out = append(out, dto.PendingEvaluation{
					ProgramID:     state.Program.ID,
					ProgramName:   state.Program.Name,
					ParticipantID: ledger.ParticipantID,
					Occurrence:    rec.Occurrence,
					SubmittedAt:   rec.SubmittedAt,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].SubmittedAt, out[j].SubmittedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out
}
