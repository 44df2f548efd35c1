package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type preferenceService interface {
	Get(ctx context.Context, userID, view string) (*models.FilterState, error)
	Save(ctx context.Context, userID, view string, req dto.PreferenceRequest) (*models.FilterState, error)
	Reset(ctx context.Context, userID, view string) error
}

// PreferenceHandler stores per-view list filters of the caller.
type PreferenceHandler struct {
	service preferenceService
}

// NewPreferenceHandler constructs the handler.
func NewPreferenceHandler(service preferenceService) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// Get godoc
// @Summary Saved filter of a view
// @Tags Preferences
// @Produce json
// @Param view path string true "View identifier"
// @Success 200 {object} response.Envelope
// @Router /preferences/{view} [get]
func (h *PreferenceHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	state, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("view"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Save godoc
// @Summary Replace the saved filter of a view
// @Tags Preferences
// @Accept json
// @Produce json
// @Param view path string true "View identifier"
// @Param payload body dto.PreferenceRequest true "Filter"
// @Success 200 {object} response.Envelope
// @Router /preferences/{view} [put]
func (h *PreferenceHandler) Save(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preference payload"))
		return
	}
	state, err := h.service.Save(c.Request.Context(), claims.UserID, c.Param("view"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Reset godoc
// @Summary Forget the saved filter of a view
// @Tags Preferences
// @Param view path string true "View identifier"
// @Success 204
// @Router /preferences/{view} [delete]
func (h *PreferenceHandler) Reset(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.service.Reset(c.Request.Context(), claims.UserID, c.Param("view")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
