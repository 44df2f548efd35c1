package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/service"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type fakeSubmissionSrv struct {
	submitted      *dto.SubmitRequest
	attachmentName string
	attachmentBody string
	evaluated      *dto.EvaluateRequest
	evalTarget     [3]string
	err            error
}

func (f *fakeSubmissionSrv) Submit(_ context.Context, actorID, programID string, req dto.SubmitRequest, attachment *service.Attachment) (*dto.LedgerRecordResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = &req
	if attachment != nil {
		f.attachmentName = attachment.Filename
		body, _ := io.ReadAll(attachment.Body)
		f.attachmentBody = string(body)
	}
	return &dto.LedgerRecordResponse{ProgramID: programID, ParticipantID: actorID, Version: 1, Record: models.SubmissionRecord{Occurrence: req.Occurrence, Submitted: true}}, nil
}

func (f *fakeSubmissionSrv) Evaluate(_ context.Context, _ string, programID, participantID, occurrence string, req dto.EvaluateRequest) (*dto.LedgerRecordResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.evaluated = &req
	f.evalTarget = [3]string{programID, participantID, occurrence}
	return &dto.LedgerRecordResponse{ProgramID: programID, ParticipantID: participantID, Version: 2}, nil
}

func (f *fakeSubmissionSrv) Ledger(_ context.Context, actorID string, role models.UserRole, programID, participantID string) (*models.Ledger, error) {
	if role == models.RoleLGU && actorID != participantID {
		return nil, appErrors.ErrForbidden
	}
	if participantID == "u-new" {
		return &models.Ledger{ProgramID: programID, ParticipantID: participantID}, nil
	}
	return &models.Ledger{ID: "l-1", ProgramID: programID, ParticipantID: participantID, Version: 4}, nil
}

func TestSubmissionHandlerSubmitJSON(t *testing.T) {
	svc := &fakeSubmissionSrv{}
	handler := NewSubmissionHandler(svc, 0)
	c, rec := newJSONContext(t, http.MethodPost, "/programs/p-1/submissions", dto.SubmitRequest{Occurrence: "2024-01-08"})
	c.AddParam("id", "p-1")
	withClaims(c, "u-1", models.RoleLGU)

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.submitted)
	assert.Equal(t, "2024-01-08", svc.submitted.Occurrence)
	assert.Empty(t, svc.attachmentName)
}

func TestSubmissionHandlerSubmitMultipart(t *testing.T) {
	svc := &fakeSubmissionSrv{}
	handler := NewSubmissionHandler(svc, 1<<20)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("occurrence", "2024-01-15"))
	part, err := writer.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 sanitation"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	c, rec := newGinContext(http.MethodPost, "/programs/p-1/submissions", body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.AddParam("id", "p-1")
	withClaims(c, "u-1", models.RoleLGU)

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2024-01-15", svc.submitted.Occurrence)
	assert.Equal(t, "report.pdf", svc.attachmentName)
	assert.Equal(t, "%PDF-1.4 sanitation", svc.attachmentBody)
}

func TestSubmissionHandlerSubmitErrors(t *testing.T) {
	handler := NewSubmissionHandler(&fakeSubmissionSrv{err: appErrors.Clone(appErrors.ErrValidation, "occurrence is not scheduled")}, 0)

	c, rec := newGinContext(http.MethodPost, "/programs/p-1/submissions", nil)
	handler.Submit(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newJSONContext(t, http.MethodPost, "/programs/p-1/submissions", dto.SubmitRequest{Occurrence: "2024-01-09"})
	c.AddParam("id", "p-1")
	withClaims(c, "u-1", models.RoleLGU)
	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "occurrence is not scheduled", decodeEnvelope(t, rec).Error.Message)
}

func TestSubmissionHandlerEvaluate(t *testing.T) {
	svc := &fakeSubmissionSrv{}
	handler := NewSubmissionHandler(svc, 0)
	status := models.StatusForRevision
	version := 3

	c, rec := newJSONContext(t, http.MethodPatch, "/programs/p-1/ledgers/u-2/2024-01-08", dto.EvaluateRequest{EvaluatorStatus: &status, ExpectedVersion: &version})
	c.AddParam("id", "p-1")
	c.AddParam("participantId", "u-2")
	c.AddParam("occurrence", "2024-01-08")
	withClaims(c, "eval-1", models.RoleEvaluator)

	handler.Evaluate(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [3]string{"p-1", "u-2", "2024-01-08"}, svc.evalTarget)
	require.NotNil(t, svc.evaluated.ExpectedVersion)
	assert.Equal(t, 3, *svc.evaluated.ExpectedVersion)

	svc.err = appErrors.Clone(appErrors.ErrConflict, "ledger was modified concurrently")
	c, rec = newJSONContext(t, http.MethodPatch, "/programs/p-1/ledgers/u-2/2024-01-08", dto.EvaluateRequest{ExpectedVersion: &version})
	withClaims(c, "eval-1", models.RoleEvaluator)
	handler.Evaluate(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmissionHandlerLedger(t *testing.T) {
	handler := NewSubmissionHandler(&fakeSubmissionSrv{}, 0)

	c, rec := newGinContext(http.MethodGet, "/programs/p-1/ledgers/u-2", nil)
	c.AddParam("id", "p-1")
	c.AddParam("participantId", "u-2")
	withClaims(c, "u-1", models.RoleLGU)
	handler.Ledger(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newGinContext(http.MethodGet, "/programs/p-1/ledgers/u-2", nil)
	c.AddParam("id", "p-1")
	c.AddParam("participantId", "u-2")
	withClaims(c, "viewer-1", models.RoleViewer)
	handler.Ledger(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"participant_id":"u-2"`)
	assert.Equal(t, `"4"`, rec.Header().Get("ETag"))

	c, rec = newGinContext(http.MethodGet, "/programs/p-1/ledgers/u-new", nil)
	c.AddParam("id", "p-1")
	c.AddParam("participantId", "u-new")
	withClaims(c, "viewer-1", models.RoleViewer)
	handler.Ledger(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
}

func TestSubmissionHandlerEvaluateIfMatch(t *testing.T) {
	status := models.StatusOnTime
	cases := []struct {
		name     string
		header   string
		body     dto.EvaluateRequest
		want     *int
		wantCode int
	}{
		{name: "bare version", header: "3", want: intPtr(3), wantCode: http.StatusOK},
		{name: "quoted etag", header: `"7"`, want: intPtr(7), wantCode: http.StatusOK},
		{name: "body version wins", header: "3", body: dto.EvaluateRequest{ExpectedVersion: intPtr(5)}, want: intPtr(5), wantCode: http.StatusOK},
		{name: "wildcard", header: "*", wantCode: http.StatusOK},
		{name: "absent", wantCode: http.StatusOK},
		{name: "malformed", header: `W/"abc"`, wantCode: http.StatusBadRequest},
		{name: "negative", header: "-1", wantCode: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeSubmissionSrv{}
			handler := NewSubmissionHandler(svc, 0)
			body := tc.body
			body.EvaluatorStatus = &status
			c, rec := newJSONContext(t, http.MethodPatch, "/programs/p-1/ledgers/u-2/2024-01-08", body)
			c.AddParam("id", "p-1")
			c.AddParam("participantId", "u-2")
			c.AddParam("occurrence", "2024-01-08")
			if tc.header != "" {
				c.Request.Header.Set("If-Match", tc.header)
			}
			withClaims(c, "eval-1", models.RoleEvaluator)

			handler.Evaluate(c)

			require.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode != http.StatusOK {
				assert.Nil(t, svc.evaluated)
				assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, rec).Error.Code)
				return
			}
			assert.Equal(t, `"2"`, rec.Header().Get("ETag"))
			if tc.want == nil {
				assert.Nil(t, svc.evaluated.ExpectedVersion)
				return
			}
			require.NotNil(t, svc.evaluated.ExpectedVersion)
			assert.Equal(t, *tc.want, *svc.evaluated.ExpectedVersion)
		})
	}
}

func intPtr(v int) *int { return &v }
