package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	analytics := newAnalyticsForTest(newFakeProgramStore(weeklyProgram(t)), newFakeLedgerStore(firstLedger()), nil, nil)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(analytics, store, signer, ExportConfig{APIPrefix: "/api/v1/", ResultTTL: time.Hour}, zap.NewNop(), ExportRenderers{})
	svc.now = func() time.Time { return analyticsNow }
	return svc, store
}

func readStored(t *testing.T, store *storage.LocalStorage, relPath string) []byte {
	t.Helper()
	file, err := store.Open(relPath)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	return data
}

func reportJob(id string, kind models.ReportType, format models.ReportFormat) *models.ReportJob {
	return &models.ReportJob{
		ID:        id,
		Type:      kind,
		Params:    models.ReportJobParams{ProgramID: "p-1", Format: format},
		CreatedBy: "admin-1",
	}
}

func TestExportServiceGenerateSubmissionsCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), reportJob("job-1", models.ReportTypeSubmissions, models.ReportFormatCSV))
	require.NoError(t, err)
	assert.Equal(t, "submissions_Weekly_Sanitation_Report_20240120_120000.csv", result.RelativePath)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	assert.True(t, strings.HasSuffix(result.URL, result.Token))

	records, err := csv.NewReader(bytes.NewReader(readStored(t, store, result.RelativePath))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 7)
	assert.Equal(t, submissionHeaders, records[0])
	assert.Equal(t, "Alpha LGU", records[1][0])
	assert.Equal(t, "2024-01-01", records[1][1])
	assert.Equal(t, "8", records[1][5])

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, result.RelativePath, relPath)
}

func TestExportServiceFiltersParticipant(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := reportJob("job-2", models.ReportTypeSubmissions, models.ReportFormatCSV)
	job.Params.ParticipantID = strPtr("u-2")

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(readStored(t, store, result.RelativePath))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, row := range records[1:] {
		assert.Equal(t, "Bravo LGU", row[0])
		assert.Equal(t, string(models.StatusNoSubmission), row[3])
	}
}

func TestExportServiceGenerateSummaryXLSX(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), reportJob("job-3", models.ReportTypeSummary, models.ReportFormatXLSX))
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatXLSX, result.Format)

	f, err := excelize.OpenReader(bytes.NewReader(readStored(t, store, result.RelativePath)))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Participant", rows[0][0])
	assert.Equal(t, "All participants", rows[3][0])
	assert.Equal(t, "4", rows[3][4])
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), reportJob("job-4", models.ReportTypeSummary, models.ReportFormatPDF))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(readStored(t, store, result.RelativePath), []byte("%PDF")))
}

func TestExportServiceRejectsUnknownInputs(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	ctx := context.Background()

	_, err := svc.Generate(ctx, reportJob("job-5", "attendance", models.ReportFormatCSV))
	assert.Error(t, err)

	_, err = svc.Generate(ctx, reportJob("job-6", models.ReportTypeSummary, "docx"))
	assert.Error(t, err)

	job := reportJob("job-7", models.ReportTypeSummary, models.ReportFormatCSV)
	job.Params.ProgramID = "missing"
	_, err = svc.Generate(ctx, job)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Generate(ctx, nil)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename("  "))
	assert.Equal(t, "Q1-Q2_Budget", sanitizeFilename("Q1/Q2 Budget"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 150)), 100)
}
