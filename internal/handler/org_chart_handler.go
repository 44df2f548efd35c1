package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type orgChartService interface {
	Tree(ctx context.Context) ([]*models.OrgNode, error)
	Subtree(ctx context.Context, id string) (*models.OrgNode, error)
}

// OrgChartHandler serves the organisational chart.
type OrgChartHandler struct {
	service orgChartService
}

// NewOrgChartHandler constructs the handler.
func NewOrgChartHandler(service orgChartService) *OrgChartHandler {
	return &OrgChartHandler{service: service}
}

// Tree godoc
// @Summary Organisational chart
// @Tags OrgChart
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /org-chart [get]
func (h *OrgChartHandler) Tree(c *gin.Context) {
	roots, err := h.service.Tree(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roots, nil)
}

// Subtree godoc
// @Summary Organisational unit with descendants
// @Tags OrgChart
// @Produce json
// @Param id path string true "Org unit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /org-chart/{id} [get]
func (h *OrgChartHandler) Subtree(c *gin.Context) {
	node, err := h.service.Subtree(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, node, nil)
}
