package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/service"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type fakeReportSrv struct {
	lastReq  dto.ReportRequest
	lastRole models.UserRole
	status   *dto.ReportStatusResponse
	download *service.ReportDownload
	err      error
}

func (f *fakeReportSrv) CreateJob(_ context.Context, req dto.ReportRequest, _ string, role models.UserRole) (*dto.ReportJobResponse, error) {
	f.lastReq = req
	f.lastRole = role
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued}, nil
}

func (f *fakeReportSrv) GetStatus(_ context.Context, id string, actorID string, _ models.UserRole) (*dto.ReportStatusResponse, error) {
	if f.status == nil || f.status.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	return f.status, nil
}

func (f *fakeReportSrv) ResolveDownload(_ context.Context, token string) (*service.ReportDownload, error) {
	if f.download == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return f.download, nil
}

func TestReportHandlerGenerate(t *testing.T) {
	svc := &fakeReportSrv{}
	handler := NewReportHandler(svc, nil)
	c, rec := newJSONContext(t, http.MethodPost, "/reports/generate", dto.ReportRequest{Type: models.ReportTypeSummary, ProgramID: "p-1", Format: models.ReportFormatXLSX})
	withClaims(c, "admin-1", models.RoleAdmin)

	handler.GenerateReport(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "p-1", svc.lastReq.ProgramID)
	assert.Contains(t, rec.Body.String(), `"id":"job-1"`)

	svc.err = appErrors.Clone(appErrors.ErrValidation, "unsupported format")
	c, rec = newJSONContext(t, http.MethodPost, "/reports/generate", dto.ReportRequest{ProgramID: "p-1", Format: "docx"})
	withClaims(c, "admin-1", models.RoleAdmin)
	handler.GenerateReport(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHandlerStatus(t *testing.T) {
	url := "/api/v1/export/token"
	handler := NewReportHandler(&fakeReportSrv{status: &dto.ReportStatusResponse{ID: "job-1", Status: models.ReportStatusFinished, Progress: 100, ResultURL: &url}}, nil)

	c, rec := newGinContext(http.MethodGet, "/reports/status/job-1", nil)
	c.AddParam("id", "job-1")
	withClaims(c, "admin-1", models.RoleAdmin)
	handler.ReportStatus(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resultUrl":"/api/v1/export/token"`)

	c, rec = newGinContext(http.MethodGet, "/reports/status/job-2", nil)
	c.AddParam("id", "job-2")
	withClaims(c, "admin-1", models.RoleAdmin)
	handler.ReportStatus(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary_Weekly_20240120_120000.csv")
	require.NoError(t, os.WriteFile(path, []byte("Participant,On Time\nAlpha LGU,1\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewReportHandler(&fakeReportSrv{download: &service.ReportDownload{
		File:      file,
		Filename:  filepath.Base(path),
		Format:    models.ReportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}}, nil)
	c, rec := newGinContext(http.MethodGet, "/export/token", nil)
	c.AddParam("token", "token")

	handler.DownloadReport(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "summary_Weekly_20240120_120000.csv")
	assert.Equal(t, "Participant,On Time\nAlpha LGU,1\n", rec.Body.String())
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	handler := NewReportHandler(&fakeReportSrv{}, nil)
	c, rec := newGinContext(http.MethodGet, "/export/forged", nil)
	c.AddParam("token", "forged")

	handler.DownloadReport(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	})

	c, rec := newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)

	handler.checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	c, rec = newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordSubmission(models.StatusLate)
	handler := NewMetricsHandler(metrics, nil)

	c, rec := newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_submissions_total")

	c, rec = newGinContext(http.MethodGet, "/health", nil)
	handler.Health(c)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
