package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type fakeIdentityService struct {
	lastLogin  models.LoginRequest
	lastGoogle models.GoogleLoginRequest
	loginErr   error
	googleErr  error
}

func (f *fakeIdentityService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "u-1", Email: req.Email}}, nil
}

func (f *fakeIdentityService) LoginWithGoogle(_ context.Context, req models.GoogleLoginRequest) (*models.LoginResponse, error) {
	f.lastGoogle = req
	if f.googleErr != nil {
		return nil, f.googleErr
	}
	return &models.LoginResponse{AccessToken: "google-token"}, nil
}

func (f *fakeIdentityService) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Role: models.RoleLGU}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &fakeIdentityService{}
	handler := NewAuthHandler(svc)
	c, rec := newJSONContext(t, http.MethodPost, "/auth/login", map[string]string{"email": "lgu@example.gov", "password": "secret123"})
	c.Request.Header.Set("User-Agent", "portal-test")

	handler.Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lgu@example.gov", svc.lastLogin.Email)
	assert.Equal(t, "portal-test", svc.lastLogin.UserAgent)
	assert.Contains(t, rec.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	handler := NewAuthHandler(&fakeIdentityService{loginErr: appErrors.ErrInvalidCredentials})

	c, rec := newGinContext(http.MethodPost, "/auth/login", nil)
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newJSONContext(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.gov", "password": "x"})
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestAuthHandlerGoogle(t *testing.T) {
	svc := &fakeIdentityService{}
	handler := NewAuthHandler(svc)
	c, rec := newJSONContext(t, http.MethodPost, "/auth/google", map[string]string{"id_token": "google-id-token"})

	handler.Google(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "google-id-token", svc.lastGoogle.IDToken)

	svc.googleErr = appErrors.Clone(appErrors.ErrUnauthorized, "no account linked to this Google identity")
	c, rec = newJSONContext(t, http.MethodPost, "/auth/google", map[string]string{"id_token": "other"})
	handler.Google(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&fakeIdentityService{})

	c, rec := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newGinContext(http.MethodGet, "/auth/me", nil)
	withClaims(c, "u-9", models.RoleLGU)
	handler.Me(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u-9"`)
}
