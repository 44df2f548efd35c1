package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/repository"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
	"github.com/noah-isme/agency-portal-api/pkg/jobs"
)

type reportRepoStub struct {
	jobs     map[string]*models.ReportJob
	finished []models.ReportJob
	seq      int
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		r.seq++
		job.ID = fmt.Sprintf("job-%d", r.seq)
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportRepoStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	var queued []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *reportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return r.finished, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t)
	svc := NewReportService(repo, newFakeProgramStore(weeklyProgram(t)), queue, exportSvc, zap.NewNop(), ReportServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exportSvc
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:      models.ReportTypeSummary,
		ProgramID: " p-1 ",
		Format:    models.ReportFormatXLSX,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.ID, queue.jobs[0].ID)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	assert.Equal(t, "p-1", repo.jobs[resp.ID].Params.ProgramID)
	assert.Nil(t, repo.jobs[resp.ID].Params.ParticipantID)
}

func TestReportServiceScopesParticipants(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	ctx := context.Background()
	req := dto.ReportRequest{Type: models.ReportTypeSubmissions, ProgramID: "p-1", Format: models.ReportFormatCSV}

	resp, err := svc.CreateJob(ctx, req, "u-1", models.RoleLGU)
	require.NoError(t, err)
	require.NotNil(t, repo.jobs[resp.ID].Params.ParticipantID)
	assert.Equal(t, "u-1", *repo.jobs[resp.ID].Params.ParticipantID)

	other := req
	other.ParticipantID = strPtr("u-2")
	_, err = svc.CreateJob(ctx, other, "u-1", models.RoleLGU)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.CreateJob(ctx, req, "u-9", models.RoleLGU)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	resp, err = svc.CreateJob(ctx, other, "eval-1", models.RoleEvaluator)
	require.NoError(t, err)
	assert.Equal(t, "u-2", *repo.jobs[resp.ID].Params.ParticipantID)
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  dto.ReportRequest
		want *appErrors.Error
	}{
		{"missing program", dto.ReportRequest{Type: models.ReportTypeSummary, Format: models.ReportFormatCSV}, appErrors.ErrValidation},
		{"bad type", dto.ReportRequest{Type: "grades", ProgramID: "p-1", Format: models.ReportFormatCSV}, appErrors.ErrValidation},
		{"bad format", dto.ReportRequest{Type: models.ReportTypeSummary, ProgramID: "p-1", Format: "docx"}, appErrors.ErrValidation},
		{"unknown program", dto.ReportRequest{Type: models.ReportTypeSummary, ProgramID: "p-404", Format: models.ReportFormatCSV}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateJob(ctx, tc.req, "admin-1", models.RoleAdmin)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, repo.jobs)
	assert.Empty(t, queue.jobs)
}

func TestReportServiceEnqueueFailureMarksJobFailed(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = errors.New("queue stopped")

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:      models.ReportTypeSummary,
		ProgramID: "p-1",
		Format:    models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.Error(t, err)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestReportServiceGetStatusOwnership(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	msg := "boom"
	repo.jobs["job-1"] = &models.ReportJob{
		ID:           "job-1",
		Type:         models.ReportTypeSummary,
		Status:       models.ReportStatusFailed,
		Progress:     100,
		CreatedBy:    "eval-1",
		ErrorMessage: &msg,
	}
	ctx := context.Background()

	resp, err := svc.GetStatus(ctx, "job-1", "eval-1", models.RoleEvaluator)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)

	_, err = svc.GetStatus(ctx, "job-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = svc.GetStatus(ctx, "job-1", "eval-2", models.RoleEvaluator)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetStatus(ctx, "missing", "admin-1", models.RoleAdmin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := reportJob("job-dl", models.ReportTypeSubmissions, models.ReportFormatCSV)
	job.Status = models.ReportStatusProcessing
	repo.jobs[job.ID] = job

	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	job.Status = models.ReportStatusFinished
	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, result.RelativePath, download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)

	_, err = svc.ResolveDownload(context.Background(), result.Token+"x")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestReportServiceRecoverAndDeadLetter(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	repo.jobs["job-a"] = &models.ReportJob{ID: "job-a", Type: models.ReportTypeSummary, Status: models.ReportStatusQueued}
	repo.jobs["job-b"] = &models.ReportJob{ID: "job-b", Type: models.ReportTypeSummary, Status: models.ReportStatusFinished}

	assert.Equal(t, 1, svc.RecoverPendingJobs(context.Background()))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "job-a", queue.jobs[0].ID)

	svc.DeadLetter(context.Background(), jobs.Job{ID: "job-a", Attempt: 4}, errors.New("render failed"))
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-a"].Status)
	assert.Equal(t, "render failed", *repo.jobs["job-a"].ErrorMessage)
}

func TestReportServiceCleanupRemovesExpiredFiles(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := reportJob("job-old", models.ReportTypeSummary, models.ReportFormatCSV)
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	repo.finished = []models.ReportJob{{ID: job.ID, ResultURL: &result.URL}}

	svc.cleanupExpired(context.Background())

	_, err = exportSvc.Open(result.RelativePath)
	assert.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = reportJob("job-1", models.ReportTypeSummary, models.ReportFormatCSV)
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
	assert.Equal(t, 100, repo.jobs["job-1"].Progress)
	assert.Equal(t, "/api/v1/export/token", *repo.jobs["job-1"].ResultURL)
}

func TestReportWorkerHandleFailureRequeues(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = reportJob("job-1", models.ReportTypeSummary, models.ReportFormatCSV)
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)
}
