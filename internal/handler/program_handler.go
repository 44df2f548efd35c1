package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type programService interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Program, error)
	Create(ctx context.Context, actorID string, req dto.ProgramRequest) (*models.Program, error)
	Update(ctx context.Context, actorID, id string, req dto.ProgramRequest) (*models.Program, error)
	Delete(ctx context.Context, actorID, id string) error
	SelectAll(ctx context.Context, actorID, id string, req dto.SelectAllRequest) (*models.Program, error)
	Occurrences(ctx context.Context, id string) (*dto.OccurrencesResponse, error)
}

// ProgramHandler exposes reporting program endpoints.
type ProgramHandler struct {
	service programService
}

// NewProgramHandler constructs the handler.
func NewProgramHandler(service programService) *ProgramHandler {
	return &ProgramHandler{service: service}
}

// List godoc
// @Summary List programs
// @Description Participants only see programs they report to
// @Tags Programs
// @Produce json
// @Param search query string false "Name search"
// @Param participant query string false "Participant filter"
// @Param created_by query string false "Creator filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	filter := models.ProgramFilter{
		Search:        strings.TrimSpace(c.Query("search")),
		ParticipantID: strings.TrimSpace(c.Query("participant")),
		CreatedBy:     strings.TrimSpace(c.Query("created_by")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	if claims.Role == models.RoleLGU {
		filter.ParticipantID = claims.UserID
	}

	programs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, pagination)
}

// Get godoc
// @Summary Get program
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [get]
func (h *ProgramHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	program, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role == models.RoleLGU && !program.HasParticipant(claims.UserID) && program.CreatedBy != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "program not found"))
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Create godoc
// @Summary Create program
// @Tags Programs
// @Accept json
// @Produce json
// @Param payload body dto.ProgramRequest true "Program definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid program payload"))
		return
	}
	program, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, program)
}

// Update godoc
// @Summary Update program
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body dto.ProgramRequest true "Program definition"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [put]
func (h *ProgramHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid program payload"))
		return
	}
	program, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Delete godoc
// @Summary Delete program
// @Tags Programs
// @Param id path string true "Program ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [delete]
func (h *ProgramHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SelectAll godoc
// @Summary Toggle every user of a role
// @Description Adds or removes all users of the role from the participant set
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body dto.SelectAllRequest true "Role toggle"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/participants/select-all [post]
func (h *ProgramHandler) SelectAll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.SelectAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}
	program, err := h.service.SelectAll(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Occurrences godoc
// @Summary List generated occurrences
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /programs/{id}/occurrences [get]
func (h *ProgramHandler) Occurrences(c *gin.Context) {
	resp, err := h.service.Occurrences(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
