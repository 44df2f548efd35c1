package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type analyticsService interface {
	Program(ctx context.Context, programID string) (*models.ProgramAnalytics, bool, error)
	User(ctx context.Context, actorID string, role models.UserRole, userID string) (*models.UserAnalytics, bool, error)
	Stream(ctx context.Context, programID string, emit func(*models.ProgramAnalytics) error) error
	System(ctx context.Context, since *time.Time) (*models.SystemAnalytics, error)
}

// AnalyticsHandler exposes status distribution endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Program godoc
// @Summary Program analytics
// @Description Status distribution and per-participant rows of one program
// @Tags Analytics
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /programs/{id}/analytics [get]
func (h *AnalyticsHandler) Program(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	result, cacheHit, err := h.analytics.Program(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, cacheMeta(c, cacheHit, start))
}

// User godoc
// @Summary User analytics
// @Description Status distribution folded over every program the user participates in
// @Tags Analytics
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/analytics [get]
func (h *AnalyticsHandler) User(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	start := time.Now()
	result, cacheHit, err := h.analytics.User(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, cacheMeta(c, cacheHit, start))
}

// Stream godoc
// @Summary Live program analytics
// @Description Server-sent events; an "analytics" event carries a fresh snapshot after every ledger change
// @Tags Analytics
// @Produce text/event-stream
// @Param id path string true "Program ID"
// @Success 200 {object} models.ProgramAnalytics
// @Router /programs/{id}/analytics/stream [get]
func (h *AnalyticsHandler) Stream(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	ctx := c.Request.Context()
	started := false
	err := h.analytics.Stream(ctx, c.Param("id"), func(snapshot *models.ProgramAnalytics) error {
		if !started {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		c.SSEvent("analytics", snapshot)
		c.Writer.Flush()
		return ctx.Err()
	})
	if err == nil || ctx.Err() != nil {
		return
	}
	if !started {
		response.Error(c, err)
		return
	}
	c.SSEvent("error", appErrors.FromError(err))
	c.Writer.Flush()
}

// System godoc
// @Summary Instrumentation snapshot and record counts
// @Tags Analytics
// @Produce json
// @Param since query string false "Count programs and ledgers touched on or after this date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "since must be YYYY-MM-DD"))
			return
		}
		since = &parsed
	}
	result, err := h.analytics.System(c.Request.Context(), since)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, cacheMeta(c, false, start))
}
