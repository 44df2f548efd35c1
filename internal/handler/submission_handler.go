package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/service"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, actorID, programID string, req dto.SubmitRequest, attachment *service.Attachment) (*dto.LedgerRecordResponse, error)
	Evaluate(ctx context.Context, actorID, programID, participantID, occurrence string, req dto.EvaluateRequest) (*dto.LedgerRecordResponse, error)
	Ledger(ctx context.Context, actorID string, role models.UserRole, programID, participantID string) (*models.Ledger, error)
}

// SubmissionHandler exposes submission and evaluation endpoints.
type SubmissionHandler struct {
	service       submissionService
	maxUploadSize int64
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service submissionService, maxUploadSize int64) *SubmissionHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 10 << 20
	}
	return &SubmissionHandler{service: service, maxUploadSize: maxUploadSize}
}

// Submit godoc
// @Summary Submit an occurrence
// @Description Marks an occurrence as submitted by the caller. Accepts JSON, or multipart with an optional "file" attachment.
// @Tags Submissions
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body dto.SubmitRequest false "Submission"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /programs/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var (
		req        dto.SubmitRequest
		attachment *service.Attachment
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+(1<<20))
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
			return
		}
		if fileHeader, err := c.FormFile("file"); err == nil {
			if fileHeader.Size > h.maxUploadSize {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "attachment is too large"))
				return
			}
			src, err := fileHeader.Open()
			if err != nil {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
				return
			}
			defer src.Close() //nolint:errcheck
			attachment = &service.Attachment{
				Filename:    fileHeader.Filename,
				ContentType: fileHeader.Header.Get("Content-Type"),
				Body:        src,
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), claims.UserID, c.Param("id"), req, attachment)
	if err != nil {
		response.Error(c, err)
		return
	}
	setLedgerETag(c, resp.Version)
	response.Created(c, resp)
}

// Evaluate godoc
// @Summary Evaluate a submission record
// @Description Sets evaluator status, remark and score. expectedVersion, or an If-Match header carrying the ledger ETag, makes the write conditional.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param participantId path string true "Participant ID"
// @Param occurrence path string true "Occurrence key (YYYY-MM-DD)"
// @Param payload body dto.EvaluateRequest true "Evaluation"
// @Param If-Match header string false "Ledger version the edit was based on"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /programs/{id}/ledgers/{participantId}/{occurrence} [patch]
func (h *SubmissionHandler) Evaluate(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evaluation payload"))
		return
	}
	if req.ExpectedVersion == nil {
		version, err := parseIfMatch(c.GetHeader("If-Match"))
		if err != nil {
			response.Error(c, err)
			return
		}
		req.ExpectedVersion = version
	}
	resp, err := h.service.Evaluate(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("participantId"), c.Param("occurrence"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	setLedgerETag(c, resp.Version)
	response.JSON(c, http.StatusOK, resp, nil)
}

// Ledger godoc
// @Summary Get a participant ledger
// @Tags Submissions
// @Produce json
// @Param id path string true "Program ID"
// @Param participantId path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /programs/{id}/ledgers/{participantId} [get]
func (h *SubmissionHandler) Ledger(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	ledger, err := h.service.Ledger(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), c.Param("participantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	// A ledger that has never been written has no version to match against.
	if ledger.ID != "" {
		setLedgerETag(c, ledger.Version)
	}
	response.JSON(c, http.StatusOK, ledger, nil)
}

func setLedgerETag(c *gin.Context, version int) {
	c.Header("ETag", strconv.Quote(strconv.Itoa(version)))
}

// parseIfMatch reads a ledger version from an If-Match header. Quoted and bare
// integers are accepted; an empty header or "*" imposes no condition.
func parseIfMatch(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil, nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	version, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || version < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "If-Match must carry a ledger version")
	}
	return &version, nil
}
