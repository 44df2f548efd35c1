package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type identityStore interface {
	FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindIdentityByGoogleSubject(ctx context.Context, subject string) (*models.Identity, error)
	LinkGoogleSubject(ctx context.Context, id, subject string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	FindProfile(ctx context.Context, id string) (*models.UserProfile, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

type googleVerifier interface {
	Verify(idToken string) (*GoogleIdentity, error)
}

// GoogleTokenVerifier checks ID tokens against Google's signing certificates
// and the configured OAuth client ID.
type GoogleTokenVerifier struct {
	clientID string
	verifier googleAuthIDTokenVerifier.Verifier
}

// NewGoogleTokenVerifier builds a verifier for the given client ID.
func NewGoogleTokenVerifier(clientID string) *GoogleTokenVerifier {
	return &GoogleTokenVerifier{clientID: clientID}
}

// Verify validates the token and decodes its claims.
func (v *GoogleTokenVerifier) Verify(idToken string) (*GoogleIdentity, error) {
	if v == nil || v.clientID == "" {
		return nil, errors.New("google sign-in is not configured")
	}
	if err := v.verifier.VerifyIDToken(idToken, []string{v.clientID}); err != nil {
		return nil, err
	}
	claims, err := googleAuthIDTokenVerifier.Decode(idToken)
	if err != nil {
		return nil, err
	}
	return &GoogleIdentity{Subject: claims.Sub, Email: claims.Email, Name: claims.Name}, nil
}

// IdentityConfig defines token issuing parameters.
type IdentityConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	Audience          []string
}

// IdentityService signs users in and verifies the portal's bearer tokens.
type IdentityService struct {
	repo      identityStore
	audit     auditWriter
	google    googleVerifier
	validator *validator.Validate
	logger    *zap.Logger
	config    IdentityConfig
	now       func() time.Time
}

// NewIdentityService constructs an IdentityService instance.
func NewIdentityService(repo identityStore, audit auditWriter, google googleVerifier, validate *validator.Validate, logger *zap.Logger, config IdentityConfig) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	return &IdentityService{
		repo:      repo,
		audit:     audit,
		google:    google,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates an email and password pair and issues an access token.
func (s *IdentityService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identity, err := s.repo.FindIdentityByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Persistence(err, "failed to fetch identity")
	}
	if identity.Disabled {
		return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "account is disabled")
	}
	if identity.PasswordHash == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "password sign-in is not enabled for this account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	return s.issue(ctx, identity, "password", req.IP, req.UserAgent)
}

// LoginWithGoogle signs in an existing portal account using a Google ID token.
// Accounts are provisioned by administrators; an unknown Google account is rejected.
func (s *IdentityService) LoginWithGoogle(ctx context.Context, req models.GoogleLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid google login payload")
	}
	if s.google == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "google sign-in is not configured")
	}
	google, err := s.google.Verify(req.IDToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid google id token")
	}

	identity, err := s.repo.FindIdentityByGoogleSubject(ctx, google.Subject)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Persistence(err, "failed to fetch identity")
	}
	if identity == nil {
		identity, err = s.repo.FindIdentityByEmail(ctx, google.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnauthorized, "no portal account is linked to this google account")
			}
			return nil, appErrors.Persistence(err, "failed to fetch identity")
		}
		if err := s.repo.LinkGoogleSubject(ctx, identity.ID, google.Subject, s.now()); err != nil {
			return nil, appErrors.Persistence(err, "failed to link google account")
		}
	}
	if identity.Disabled {
		return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "account is disabled")
	}

	return s.issue(ctx, identity, "google", req.IP, req.UserAgent)
}

// Me returns the profile behind an authenticated user id.
func (s *IdentityService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Persistence(err, "failed to load profile")
	}
	return userInfo(profile), nil
}

// VerifyToken parses and validates an access token returning its claims.
func (s *IdentityService) VerifyToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid or expired token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid token claims")
	}
	return claims, nil
}

func (s *IdentityService) issue(ctx context.Context, identity *models.Identity, method, ip, userAgent string) (*models.LoginResponse, error) {
	profile, err := s.repo.FindProfile(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "account has no active profile")
		}
		return nil, appErrors.Persistence(err, "failed to load profile")
	}

	issuedAt := s.now()
	accessToken, err := s.generateAccessToken(profile, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.repo.UpdateLastLogin(ctx, identity.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", identity.ID), zap.Error(err))
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &identity.ID,
			Action:     models.AuditActionLogin,
			Resource:   "auth",
			ResourceID: &identity.ID,
			NewValues:  []byte(fmt.Sprintf(`{"method":%q}`, method)),
			IPAddress:  ip,
			UserAgent:  userAgent,
		}); err != nil {
			s.logger.Warn("failed to record login audit log", zap.Error(err))
		}
	}

	return &models.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        *userInfo(profile),
	}, nil
}

func (s *IdentityService) generateAccessToken(profile *models.UserProfile, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:   profile.ID,
		Role:     profile.Role,
		Email:    profile.Email,
		FullName: profile.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   profile.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func userInfo(profile *models.UserProfile) *models.UserInfo {
	return &models.UserInfo{
		ID:        profile.ID,
		Email:     profile.Email,
		FullName:  profile.FullName,
		Role:      profile.Role,
		AvatarURL: profile.AvatarURL,
	}
}
