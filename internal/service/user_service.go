package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/repository"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/media"
)

type userStore interface {
	UpdateCredentials(ctx context.Context, id string, changes repository.CredentialChanges, at time.Time) error
	CreateUser(ctx context.Context, identity *models.Identity, profile *models.UserProfile) error
	FindProfile(ctx context.Context, id string) (*models.UserProfile, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, int, error)
	UpdateAvatar(ctx context.Context, id, url string, at time.Time) error
	Disable(ctx context.Context, id, deletedBy string, at time.Time) error
	DeletePermanently(ctx context.Context, id string) error
}

type mediaUploader interface {
	Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error)
}

// UserServiceConfig tunes avatar handling.
type UserServiceConfig struct {
	AvatarFolder string
	Avatar       media.AvatarOptions
}

// UserService handles account administration and profile media.
type UserService struct {
	repo      userStore
	audit     auditWriter
	uploader  mediaUploader
	validator *validator.Validate
	logger    *zap.Logger
	cfg       UserServiceConfig
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userStore, audit auditWriter, uploader mediaUploader, validate *validator.Validate, logger *zap.Logger, cfg UserServiceConfig) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.AvatarFolder == "" {
		cfg.AvatarFolder = "avatars"
	}
	return &UserService{
		repo:      repo,
		audit:     audit,
		uploader:  uploader,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns paginated profiles and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns an active profile by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	profile, err := s.repo.FindProfile(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Persistence(err, "failed to load user")
	}
	return profile, nil
}

// Create provisions an identity with its profile.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actorID string) (*models.UserProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identity := &models.Identity{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	profile := &models.UserProfile{
		FullName:  strings.TrimSpace(req.FullName),
		Role:      req.Role,
		Office:    strings.TrimSpace(req.Office),
		OrgUnitID: req.OrgUnitID,
	}
	if err := s.repo.CreateUser(ctx, identity, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Persistence(err, "failed to create user")
	}

	s.recordAudit(ctx, actorID, models.AuditActionUserCreate, profile.ID, map[string]interface{}{
		"email": profile.Email,
		"role":  profile.Role,
	})
	return profile, nil
}

// UpdateCredentials rewrites the email and/or password of uid. Admins may
// update anyone; every other caller only their own account.
func (s *UserService) UpdateCredentials(ctx context.Context, actorID string, actorRole models.UserRole, req dto.UpdateCredentialsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credentials payload")
	}
	if req.Email == nil && req.Password == nil {
		return appErrors.Clone(appErrors.ErrValidation, "email or password is required")
	}
	if actorRole != models.RoleAdmin && actorID != req.UID {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may update another user's credentials")
	}

	changes := repository.CredentialChanges{}
	audit := map[string]interface{}{}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		changes.Email = &email
		audit["email"] = email
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		encoded := string(hash)
		changes.PasswordHash = &encoded
		audit["password"] = "changed"
	}

	if err := s.repo.UpdateCredentials(ctx, req.UID, changes, s.now()); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		case errors.Is(err, repository.ErrDuplicate):
			return appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		return appErrors.Persistence(err, "failed to update credentials")
	}

	s.recordAudit(ctx, actorID, models.AuditActionCredentialsUpdate, req.UID, audit)
	return nil
}

// Delete removes a user. Permanent deletes drop the identity and every profile
// row; otherwise sign-in is disabled and the profile moves to the deleted set.
func (s *UserService) Delete(ctx context.Context, actorID string, actorRole models.UserRole, req dto.DeleteUserRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delete payload")
	}
	if actorRole != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may delete users")
	}
	if actorID == req.UID {
		return appErrors.Clone(appErrors.ErrForbidden, "administrators cannot delete their own account")
	}

	action := models.AuditActionUserDisable
	var err error
	if req.Permanent {
		action = models.AuditActionUserDelete
		err = s.repo.DeletePermanently(ctx, req.UID)
	} else {
		err = s.repo.Disable(ctx, req.UID, actorID, s.now())
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Persistence(err, "failed to delete user")
	}

	s.recordAudit(ctx, actorID, action, req.UID, map[string]interface{}{"permanent": req.Permanent})
	return nil
}

// UploadAvatar normalises the image, pushes it to the media host and stores the URL.
func (s *UserService) UploadAvatar(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	if s.uploader == nil {
		return "", appErrors.Clone(appErrors.ErrUpload, "media host is not configured")
	}
	encoded, err := media.NormalizeAvatar(r, s.cfg.Avatar)
	if err != nil {
		return "", err
	}

	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		base = "avatar"
	}
	url, err := s.uploader.Upload(ctx, s.cfg.AvatarFolder, base+".webp", "image/webp", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}

	if err := s.repo.UpdateAvatar(ctx, userID, url, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return "", appErrors.Persistence(err, "failed to store avatar")
	}
	return url, nil
}

func (s *UserService) recordAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	actor := actorID
	resource := resourceID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     action,
		Resource:   "users",
		ResourceID: &resource,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
