package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/pkg/export"
	"github.com/noah-isme/agency-portal-api/pkg/storage"
)

type programAnalyticsSource interface {
	Program(ctx context.Context, programID string) (*models.ProgramAnalytics, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, subtitle ...string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportRenderers groups the per-format renderers; nil members get defaults.
type ExportRenderers struct {
	CSV  csvRenderer
	PDF  pdfRenderer
	XLSX xlsxRenderer
}

// ExportService turns program analytics into stored, signed report files.
type ExportService struct {
	analytics programAnalyticsSource
	storage   fileStorage
	renderers ExportRenderers
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(analytics programAnalyticsSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, renderers ExportRenderers) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if renderers.CSV == nil {
		renderers.CSV = export.NewCSVExporter()
	}
	if renderers.PDF == nil {
		renderers.PDF = export.NewPDFExporter()
	}
	if renderers.XLSX == nil {
		renderers.XLSX = export.NewXLSXExporter("Report")
	}
	return &ExportService{
		analytics: analytics,
		storage:   store,
		renderers: renderers,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the dataset of job, renders it and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	analytics, _, err := s.analytics.Program(ctx, job.Params.ProgramID)
	if err != nil {
		return nil, err
	}
	dataset, title, err := buildReportDataset(job, analytics)
	if err != nil {
		return nil, err
	}
	subtitle := fmt.Sprintf("Generated %s", s.now().Format("2006-01-02 15:04 MST"))

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.renderers.CSV.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.renderers.PDF.Render(dataset, title, subtitle)
	case models.ReportFormatXLSX:
		payload, err = s.renderers.XLSX.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, analytics.ProgramName), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("report rendered", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, programName string) string {
	timestamp := s.now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), sanitizeFilename(programName), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

var submissionHeaders = []string{"Participant", "Occurrence", "Submitted At", "Auto Status", "Evaluator Status", "Score", "Remark"}

func buildReportDataset(job *models.ReportJob, analytics *models.ProgramAnalytics) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeSubmissions:
		return submissionsDataset(analytics, job.Params.ParticipantID), fmt.Sprintf("Submissions: %s", analytics.ProgramName), nil
	case models.ReportTypeSummary:
		return summaryDataset(analytics), fmt.Sprintf("Status Summary: %s", analytics.ProgramName), nil
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func submissionsDataset(analytics *models.ProgramAnalytics, participantID *string) export.Dataset {
	names := make(map[string]string, len(analytics.PerUser))
	for _, row := range analytics.PerUser {
		names[row.ParticipantID] = row.FullName
	}
	rows := make([]map[string]string, 0, len(analytics.Entries))
	for _, entry := range analytics.Entries {
		if participantID != nil && *participantID != "" && entry.SubmittedBy != *participantID {
			continue
		}
		participant := names[entry.SubmittedBy]
		if participant == "" {
			participant = entry.SubmittedBy
		}
		score := ""
		if entry.Score != nil {
			score = strconv.Itoa(*entry.Score)
		}
		rows = append(rows, map[string]string{
			"Participant":      participant,
			"Occurrence":       entry.Occurrence,
			"Submitted At":     formatReportTime(entry.SubmittedAt),
			"Auto Status":      string(entry.AutoStatus),
			"Evaluator Status": string(entry.EvaluatorStatus),
			"Score":            score,
			"Remark":           entry.Remark,
		})
	}
	return export.Dataset{Headers: submissionHeaders, Rows: rows}
}

func summaryDataset(analytics *models.ProgramAnalytics) export.Dataset {
	headers := []string{"Participant"}
	for _, status := range models.StatusVocabulary {
		headers = append(headers, string(status))
	}
	headers = append(headers, "Average Score")

	row := func(name string, dist models.StatusDistribution, avg *float64) map[string]string {
		out := map[string]string{"Participant": name, "Average Score": ""}
		for _, status := range models.StatusVocabulary {
			out[string(status)] = strconv.Itoa(dist.AutoCount(status))
		}
		if avg != nil {
			out["Average Score"] = fmt.Sprintf("%.2f", *avg)
		}
		return out
	}

	rows := make([]map[string]string, 0, len(analytics.PerUser)+1)
	for _, summary := range analytics.PerUser {
		name := summary.FullName
		if name == "" {
			name = summary.ParticipantID
		}
		rows = append(rows, row(name, summary.Distribution, summary.AverageScore))
	}
	rows = append(rows, row("All participants", analytics.Distribution, nil))
	return export.Dataset{Headers: headers, Rows: rows}
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
