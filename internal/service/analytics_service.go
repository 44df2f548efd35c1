package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type analyticsProgramStore interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	ListByParticipant(ctx context.Context, userID string) ([]models.Program, error)
}

type analyticsLedgerStore interface {
	ListByProgram(ctx context.Context, programID string) ([]models.Ledger, error)
	ListByParticipant(ctx context.Context, participantID string) ([]models.Ledger, error)
}

type profileDirectory interface {
	FindProfiles(ctx context.Context, ids []string) ([]models.UserProfile, error)
}

type inventoryStore interface {
	Inventory(ctx context.Context, since *time.Time) (*models.PortalInventory, error)
}

type ledgerSubscriber interface {
	Subscribe(ctx context.Context, programID string) (<-chan models.LedgerChange, func(), error)
}

// AnalyticsService reconciles programs against their ledgers and folds the
// result into status distributions, with cache integration.
type AnalyticsService struct {
	programs  analyticsProgramStore
	ledgers   analyticsLedgerStore
	profiles  profileDirectory
	feed      ledgerSubscriber
	inventory inventoryStore
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	loc       *time.Location
	ttl       time.Duration
	now       func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(programs analyticsProgramStore, ledgers analyticsLedgerStore, profiles profileDirectory, feed ledgerSubscriber, cache *CacheService, metrics *MetricsService, logger *zap.Logger, loc *time.Location, ttl time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{
		programs: programs,
		ledgers:  ledgers,
		profiles: profiles,
		feed:     feed,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		loc:      loc,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Program returns the analytics of one program. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Program(ctx context.Context, programID string) (*models.ProgramAnalytics, bool, error) {
	return Remember(ctx, s.cache, programAnalyticsKey(programID), s.ttl, func(ctx context.Context) (*models.ProgramAnalytics, error) {
		return s.computeProgram(ctx, programID)
	})
}

// User folds every program userID participates in. Participants may only
// read their own analytics.
func (s *AnalyticsService) User(ctx context.Context, actorID string, role models.UserRole, userID string) (*models.UserAnalytics, bool, error) {
	if role == models.RoleLGU && actorID != userID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "participants may only read their own analytics")
	}
	return Remember(ctx, s.cache, userAnalyticsKey(userID), s.ttl, func(ctx context.Context) (*models.UserAnalytics, error) {
		return s.computeUser(ctx, userID)
	})
}

// Stream emits a program snapshot immediately and again after every ledger
// change of that program, until ctx is cancelled or the change feed closes.
// Bursts of changes are coalesced into one snapshot.
func (s *AnalyticsService) Stream(ctx context.Context, programID string, emit func(*models.ProgramAnalytics) error) error {
	snapshot, _, err := s.Program(ctx, programID)
	if err != nil {
		return err
	}
	if s.feed == nil {
		return emit(snapshot)
	}
	changes, stop, err := s.feed.Subscribe(ctx, programID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to ledger changes")
	}
	defer stop()

	if err := emit(snapshot); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			drain(changes)
			snapshot, err := s.computeProgram(ctx, programID)
			if err != nil {
				return err
			}
			if err := emit(snapshot); err != nil {
				return err
			}
		}
	}
}

func drain(changes <-chan models.LedgerChange) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *AnalyticsService) computeProgram(ctx context.Context, programID string) (*models.ProgramAnalytics, error) {
	program, err := s.programs.FindByID(ctx, programID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Persistence(err, "failed to load program")
	}
	occurrences, err := GenerateOccurrences(program, s.loc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ledgers, err := s.ledgers.ListByProgram(ctx, program.ID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load ledgers")
	}
	s.metrics.ObserveDBQuery("analytics_program_ledgers", time.Since(start))

	now := s.now()
	result := Reconcile(program, occurrences, ledgers, now)
	participants := normaliseParticipants(program.Participants)

	hasLedger := make(map[string]bool, len(ledgers))
	for _, ledger := range ledgers {
		hasLedger[ledger.ParticipantID] = true
	}
	perUser := SummariseParticipants(program, result.Entries, hasLedger)
	s.attachNames(ctx, participants, perUser)

	entries := result.Entries
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return &models.ProgramAnalytics{
		ProgramID:    program.ID,
		ProgramName:  program.Name,
		Occurrences:  len(occurrences),
		DueCount:     result.DueCount,
		Participants: len(participants),
		Unscheduled:  result.Unscheduled,
		Distribution: Aggregate(result.Entries, len(participants)),
		PerUser:      perUser,
		Entries:      entries,
		GeneratedAt:  now.UTC(),
	}, nil
}

func (s *AnalyticsService) computeUser(ctx context.Context, userID string) (*models.UserAnalytics, error) {
	programs, err := s.programs.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list programs")
	}
	ledgers, err := s.ledgers.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load ledgers")
	}
	byProgram := make(map[string]models.Ledger, len(ledgers))
	for _, ledger := range ledgers {
		byProgram[ledger.ProgramID] = ledger
	}

	now := s.now()
	out := &models.UserAnalytics{UserID: userID, Programs: []models.ProgramBreakdown{}, GeneratedAt: now.UTC()}
	parts := make([]models.StatusDistribution, 0, len(programs))
	for i := range programs {
		program := programs[i]
		occurrences, err := GenerateOccurrences(&program, s.loc)
		if err != nil {
			s.logger.Warn("skipping misconfigured program", zap.String("program_id", program.ID), zap.Error(err))
			continue
		}
		view := program
		view.Participants = []string{userID}
		var own []models.Ledger
		if ledger, ok := byProgram[program.ID]; ok {
			own = append(own, ledger)
		}
		result := Reconcile(&view, occurrences, own, now)
		dist := Aggregate(result.Entries, 1)
		parts = append(parts, dist)
		out.Programs = append(out.Programs, models.ProgramBreakdown{
			ProgramID:    program.ID,
			ProgramName:  program.Name,
			Distribution: dist,
		})
	}
	out.Distribution = MergeDistributions(parts...)
	return out, nil
}

func (s *AnalyticsService) attachNames(ctx context.Context, ids []string, rows []models.ParticipantSummary) {
	if s.profiles == nil || len(ids) == 0 {
		return
	}
	profiles, err := s.profiles.FindProfiles(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve participant names", zap.Error(err))
		return
	}
	names := make(map[string]string, len(profiles))
	for _, profile := range profiles {
		names[profile.ID] = profile.FullName
	}
	for i := range rows {
		rows[i].FullName = names[rows[i].ParticipantID]
	}
}

// WithInventory attaches the store that backs the record counts of System.
func (s *AnalyticsService) WithInventory(store inventoryStore) *AnalyticsService {
	s.inventory = store
	return s
}

// SystemMetrics returns the instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	return s.metrics.Snapshot()
}

// System returns the instrumentation snapshot plus record counts when an
// inventory store is attached.
func (s *AnalyticsService) System(ctx context.Context, since *time.Time) (*models.SystemAnalytics, error) {
	result := &models.SystemAnalytics{Metrics: s.SystemMetrics()}
	if s.inventory == nil {
		return result, nil
	}
	inventory, err := s.inventory.Inventory(ctx, since)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load inventory")
	}
	result.Inventory = inventory
	return result, nil
}
