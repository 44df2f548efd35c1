package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/middleware"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type accountAdministrator interface {
	UpdateCredentials(ctx context.Context, actorID string, actorRole models.UserRole, req dto.UpdateCredentialsRequest) error
	Delete(ctx context.Context, actorID string, actorRole models.UserRole, req dto.DeleteUserRequest) error
}

// AdminHandler serves the account administration endpoints. They answer with
// the flat {success, message|error} shape, so the bearer token is checked here
// rather than by the JWT middleware.
type AdminHandler struct {
	users    accountAdministrator
	verifier middleware.TokenVerifier
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(users accountAdministrator, verifier middleware.TokenVerifier) *AdminHandler {
	return &AdminHandler{users: users, verifier: verifier}
}

// UpdateCredentials godoc
// @Summary Update account credentials
// @Description Change the email and/or password of an account. Callers may update themselves; admins may update anyone.
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.UpdateCredentialsRequest true "Credentials"
// @Success 200 {object} response.AdminResult
// @Failure 400 {object} response.AdminResult
// @Failure 401 {object} response.AdminResult
// @Failure 403 {object} response.AdminResult
// @Router /api/update-credentials [post]
func (h *AdminHandler) UpdateCredentials(c *gin.Context) {
	claims, ok := h.authenticate(c)
	if !ok {
		return
	}
	var req dto.UpdateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AdminError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.users.UpdateCredentials(c.Request.Context(), claims.UserID, claims.Role, req); err != nil {
		response.AdminError(c, err)
		return
	}
	response.AdminSuccess(c, "credentials updated")
}

// Delete godoc
// @Summary Delete account
// @Description Permanently delete an account, or disable it and archive its profile
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.DeleteUserRequest true "Deletion request"
// @Success 200 {object} response.AdminResult
// @Failure 401 {object} response.AdminResult
// @Failure 403 {object} response.AdminResult
// @Failure 404 {object} response.AdminResult
// @Router /api/delete [post]
func (h *AdminHandler) Delete(c *gin.Context) {
	claims, ok := h.authenticate(c)
	if !ok {
		return
	}
	if claims.Role != models.RoleAdmin {
		response.AdminError(c, appErrors.Clone(appErrors.ErrForbidden, "admin role required"))
		return
	}
	var req dto.DeleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AdminError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.users.Delete(c.Request.Context(), claims.UserID, claims.Role, req); err != nil {
		response.AdminError(c, err)
		return
	}
	if req.Permanent {
		response.AdminSuccess(c, "user permanently deleted")
		return
	}
	response.AdminSuccess(c, "user disabled and archived")
}

func (h *AdminHandler) authenticate(c *gin.Context) (*models.JWTClaims, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		response.AdminError(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing bearer token"))
		return nil, false
	}
	claims, err := h.verifier.VerifyToken(strings.TrimSpace(parts[1]))
	if err != nil {
		response.AdminError(c, err)
		return nil, false
	}
	return claims, true
}
