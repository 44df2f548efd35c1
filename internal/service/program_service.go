package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type programStore interface {
	Create(ctx context.Context, program *models.Program) error
	FindByID(ctx context.Context, id string) (*models.Program, error)
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	Update(ctx context.Context, program *models.Program) error
	UpdateParticipants(ctx context.Context, id string, participants []string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type roleDirectory interface {
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ProgramService manages program definitions and their schedules.
type ProgramService struct {
	repo      programStore
	users     roleDirectory
	audit     auditWriter
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewProgramService constructs the service. loc is the portal timezone
// occurrences are stamped in.
func NewProgramService(repo programStore, users roleDirectory, audit auditWriter, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *ProgramService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ProgramService{
		repo:      repo,
		users:     users,
		audit:     audit,
		cache:     cache,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Location returns the portal timezone.
func (s *ProgramService) Location() *time.Location {
	return s.loc
}

// List returns a page of programs.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list programs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return programs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get loads a program.
func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Persistence(err, "failed to load program")
	}
	return program, nil
}

// Create validates and stores a new program.
func (s *ProgramService) Create(ctx context.Context, actorID string, req dto.ProgramRequest) (*models.Program, error) {
	program := &models.Program{CreatedBy: actorID, CreatedAt: s.now()}
	if err := s.apply(program, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Persistence(err, "failed to create program")
	}
	s.recordAudit(ctx, actorID, models.AuditActionProgramCreate, program)
	return program, nil
}

// Update replaces the definition of an existing program. Ledgers are left as
// they are; records for occurrences the new rule no longer produces surface
// as unscheduled in analytics.
func (s *ProgramService) Update(ctx context.Context, actorID, id string, req dto.ProgramRequest) (*models.Program, error) {
	program, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(program, req); err != nil {
		return nil, err
	}
	program.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, program); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Persistence(err, "failed to update program")
	}
	s.invalidate(ctx, program.ID)
	s.recordAudit(ctx, actorID, models.AuditActionProgramUpdate, program)
	return program, nil
}

// Delete removes the program definition. Its ledgers are kept.
func (s *ProgramService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Persistence(err, "failed to delete program")
	}
	s.invalidate(ctx, id)
	s.recordAudit(ctx, actorID, models.AuditActionProgramDelete, &models.Program{ID: id})
	return nil
}

// SelectAll adds every user holding role to the participant set, or removes
// them when selected is false. Existing order is kept and new ids are appended.
func (s *ProgramService) SelectAll(ctx context.Context, actorID, id string, req dto.SelectAllRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}
	program, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := s.users.ListIDsByRole(ctx, req.Role)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list users by role")
	}

	participants := ToggleParticipants(program.Participants, ids, req.Selected)
	at := s.now()
	if err := s.repo.UpdateParticipants(ctx, program.ID, participants, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Persistence(err, "failed to update participants")
	}
	program.Participants = participants
	program.UpdatedAt = at
	s.invalidate(ctx, program.ID)
	s.recordAudit(ctx, actorID, models.AuditActionProgramUpdate, program)
	return program, nil
}

// Occurrences expands the program's schedule in the portal timezone.
func (s *ProgramService) Occurrences(ctx context.Context, id string) (*dto.OccurrencesResponse, error) {
	program, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	occurrences, err := GenerateOccurrences(program, s.loc)
	if err != nil {
		return nil, err
	}
	if occurrences == nil {
		occurrences = []models.Occurrence{}
	}
	return &dto.OccurrencesResponse{ProgramID: program.ID, Timezone: s.loc.String(), Occurrences: occurrences}, nil
}

// ToggleParticipants adds ids to (or removes them from) current preserving order.
func ToggleParticipants(current []string, ids []string, selected bool) []string {
	if selected {
		return normaliseParticipants(append(append([]string{}, current...), ids...))
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]string, 0, len(current))
	for _, id := range normaliseParticipants(current) {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *ProgramService) apply(program *models.Program, req dto.ProgramRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	// Expanding the rule once validates both the anchors and the window.
	if _, err := ExpandRecurrence(req.Recurrence, req.ValidFrom, req.ValidTo, s.loc); err != nil {
		return err
	}
	program.Name = strings.TrimSpace(req.Name)
	program.Description = strings.TrimSpace(req.Description)
	program.Recurrence = req.Recurrence
	program.ValidFrom = req.ValidFrom
	program.ValidTo = req.ValidTo
	program.Participants = normaliseParticipants(req.Participants)
	return nil
}

func (s *ProgramService) invalidate(ctx context.Context, programID string) {
	if s.cache == nil {
		return
	}
	for _, pattern := range []string{programAnalyticsKey(programID), userAnalyticsPattern, dashboardPattern} {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

func (s *ProgramService) recordAudit(ctx context.Context, actorID, action string, program *models.Program) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(program)
	actor := actorID
	resource := program.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     action,
		Resource:   "programs",
		ResourceID: &resource,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func normaliseParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
