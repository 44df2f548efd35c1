package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type messageService interface {
	Inbox(ctx context.Context, userID string, filter models.InboxFilter) ([]models.InboxItem, error)
	Send(ctx context.Context, senderID string, role models.UserRole, req dto.SendMessageRequest) (*models.Message, error)
	MarkRead(ctx context.Context, userID, messageID string) error
}

// MessageHandler exposes the inbox.
type MessageHandler struct {
	service messageService
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(service messageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Inbox godoc
// @Summary Inbox
// @Description Direct messages, program broadcasts and sent items merged into one list
// @Tags Inbox
// @Produce json
// @Param type query string false "direct | program | sent"
// @Param search query string false "Search subject, body and sender"
// @Param unread query bool false "Only unread items"
// @Param sort query string false "newest | oldest | name"
// @Success 200 {object} response.Envelope
// @Router /inbox [get]
func (h *MessageHandler) Inbox(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	filter := models.InboxFilter{
		Kind:   models.InboxKind(strings.ToLower(strings.TrimSpace(c.Query("type")))),
		Search: strings.TrimSpace(c.Query("search")),
		Sort:   c.Query("sort"),
	}
	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unread must be a boolean"))
			return
		}
		filter.UnreadOnly = unread
	}
	items, err := h.service.Inbox(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Send godoc
// @Summary Send a message
// @Description Exactly one of recipient_id or program_id must be set
// @Tags Inbox
// @Accept json
// @Produce json
// @Param payload body dto.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /messages [post]
func (h *MessageHandler) Send(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	msg, err := h.service.Send(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// MarkRead godoc
// @Summary Mark a message read
// @Tags Inbox
// @Param id path string true "Message ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /messages/{id}/read [patch]
func (h *MessageHandler) MarkRead(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
