package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

var viewNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,39}$`)

// PreferenceStore persists saved list filters per user and view.
type PreferenceStore interface {
	Load(ctx context.Context, userID, view string) (*models.FilterState, error)
	Save(ctx context.Context, userID string, state models.FilterState) error
	Delete(ctx context.Context, userID, view string) error
}

// PreferenceService keeps the last filter a user applied to each list view.
type PreferenceService struct {
	store     PreferenceStore
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPreferenceService constructs the service.
func NewPreferenceService(store PreferenceStore, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{store: store, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the saved filter, or an empty one for the view when nothing is stored.
func (s *PreferenceService) Get(ctx context.Context, userID, view string) (*models.FilterState, error) {
	view, err := normaliseView(view)
	if err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, userID, view)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load preferences")
	}
	if state == nil {
		return &models.FilterState{View: view}, nil
	}
	return state, nil
}

// Save replaces the saved filter of view.
func (s *PreferenceService) Save(ctx context.Context, userID, view string, req dto.PreferenceRequest) (*models.FilterState, error) {
	view, err := normaliseView(view)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	statuses := make([]models.Status, 0, len(req.Statuses))
	seen := map[models.Status]struct{}{}
	for _, status := range req.Statuses {
		if !models.ValidEvaluatorStatus(status) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
		if _, dup := seen[status]; dup {
			continue
		}
		seen[status] = struct{}{}
		statuses = append(statuses, status)
	}

	state := models.FilterState{
		View:      view,
		Search:    strings.TrimSpace(req.Search),
		Statuses:  statuses,
		ProgramID: strings.TrimSpace(req.ProgramID),
		Role:      req.Role,
		SortBy:    strings.TrimSpace(req.SortBy),
		SortOrder: req.SortOrder,
		PageSize:  req.PageSize,
		UpdatedAt: s.now(),
	}
	if err := s.store.Save(ctx, userID, state); err != nil {
		return nil, appErrors.Persistence(err, "failed to save preferences")
	}
	return &state, nil
}

// Reset forgets the saved filter of view.
func (s *PreferenceService) Reset(ctx context.Context, userID, view string) error {
	view, err := normaliseView(view)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, view); err != nil {
		return appErrors.Persistence(err, "failed to reset preferences")
	}
	return nil
}

func normaliseView(view string) (string, error) {
	view = strings.ToLower(strings.TrimSpace(view))
	if !viewNamePattern.MatchString(view) {
		return "", appErrors.Clone(appErrors.ErrValidation, "view must be a short lowercase identifier")
	}
	return view, nil
}
