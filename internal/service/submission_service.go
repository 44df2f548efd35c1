package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/repository"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type programReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

type ledgerStore interface {
	Find(ctx context.Context, programID, participantID string) (*models.Ledger, error)
	Save(ctx context.Context, ledger *models.Ledger, expectedVersion *int) error
}

type ledgerPublisher interface {
	Publish(ctx context.Context, change models.LedgerChange) error
}

// Attachment is an uploaded file accompanying a submission.
type Attachment struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// SubmissionService records participant submissions and evaluator edits on ledgers.
type SubmissionService struct {
	programs  programReader
	ledgers   ledgerStore
	uploader  mediaUploader
	feed      ledgerPublisher
	cache     cacheInvalidator
	audit     auditWriter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewSubmissionService constructs the service.
func NewSubmissionService(programs programReader, ledgers ledgerStore, uploader mediaUploader, feed ledgerPublisher, cache cacheInvalidator, audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SubmissionService{
		programs:  programs,
		ledgers:   ledgers,
		uploader:  uploader,
		feed:      feed,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit marks the requested occurrence as submitted by actorID. The
// occurrence must be one the program's schedule produces. Concurrent writes
// to the same ledger follow last-write-wins.
func (s *SubmissionService) Submit(ctx context.Context, actorID, programID string, req dto.SubmitRequest, attachment *Attachment) (*dto.LedgerRecordResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	program, err := s.loadProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	if !program.HasParticipant(actorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not a participant of this program")
	}

	occurrences, err := GenerateOccurrences(program, s.loc)
	if err != nil {
		return nil, err
	}
	occ, ok := FindOccurrence(occurrences, req.Occurrence)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("occurrence %s is not scheduled for this program", req.Occurrence))
	}

	attachments := append([]string(nil), req.Attachments...)
	if attachment != nil {
		if s.uploader == nil {
			return nil, appErrors.Clone(appErrors.ErrUpload, "media host is not configured")
		}
		url, err := s.uploader.Upload(ctx, "submissions/"+program.ID, attachment.Filename, attachment.ContentType, attachment.Body)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, url)
	}

	ledger, err := s.ledgers.Find(ctx, program.ID, actorID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Persistence(err, "failed to load ledger")
		}
		ledger = &models.Ledger{ProgramID: program.ID, ParticipantID: actorID}
	}

	records, record := ApplySubmission(ledger.Submissions, occ, s.now(), attachments)
	ledger.Submissions = records
	if err := s.ledgers.Save(ctx, ledger, nil); err != nil {
		return nil, appErrors.Persistence(err, "failed to save ledger")
	}

	s.metrics.RecordSubmission(record.AutoStatus)
	s.afterWrite(ctx, ledger, record.Occurrence)
	return ledgerResponse(ledger, record), nil
}

// Evaluate applies an evaluator edit to one record. With ExpectedVersion set
// the write is a compare-and-swap and a concurrent change yields a conflict.
func (s *SubmissionService) Evaluate(ctx context.Context, actorID, programID, participantID, occurrence string, req dto.EvaluateRequest) (*dto.LedgerRecordResponse, error) {
	edit := EvaluationEdit{
		EvaluatorStatus: req.EvaluatorStatus,
		Remark:          req.Remark,
		Score:           req.Score,
		EvaluatedBy:     actorID,
		EvaluatedAt:     s.now(),
	}
	if err := edit.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.loadProgram(ctx, programID); err != nil {
		return nil, err
	}

	ledger, err := s.ledgers.Find(ctx, programID, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "participant has not submitted to this program")
		}
		return nil, appErrors.Persistence(err, "failed to load ledger")
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != ledger.Version {
		s.metrics.RecordLedgerConflict()
		return nil, versionConflict(*req.ExpectedVersion, ledger.Version)
	}

	records, err := ApplyEvaluation(ledger.Submissions, occurrence, edit)
	if err != nil {
		return nil, err
	}
	ledger.Submissions = records
	if err := s.ledgers.Save(ctx, ledger, req.ExpectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordLedgerConflict()
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "ledger was modified concurrently; reload and retry")
		}
		return nil, appErrors.Persistence(err, "failed to save ledger")
	}

	record := records[indexOfOccurrence(records, occurrence)]
	s.metrics.RecordEvaluation(record.EvaluatorStatus)
	s.recordEvaluation(ctx, actorID, ledger, record)
	s.afterWrite(ctx, ledger, occurrence)
	return ledgerResponse(ledger, record), nil
}

// Ledger returns one participant's ledger. LGU callers may only read their own.
func (s *SubmissionService) Ledger(ctx context.Context, actorID string, role models.UserRole, programID, participantID string) (*models.Ledger, error) {
	if role == models.RoleLGU && actorID != participantID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "participants may only read their own ledger")
	}
	if _, err := s.loadProgram(ctx, programID); err != nil {
		return nil, err
	}
	ledger, err := s.ledgers.Find(ctx, programID, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Ledger{ProgramID: programID, ParticipantID: participantID, Submissions: models.SubmissionRecords{}}, nil
		}
		return nil, appErrors.Persistence(err, "failed to load ledger")
	}
	return ledger, nil
}

func (s *SubmissionService) loadProgram(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.programs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Persistence(err, "failed to load program")
	}
	return program, nil
}

func (s *SubmissionService) afterWrite(ctx context.Context, ledger *models.Ledger, occurrence string) {
	if s.cache != nil {
		for _, pattern := range []string{programAnalyticsKey(ledger.ProgramID), userAnalyticsKey(ledger.ParticipantID), dashboardPattern} {
			if err := s.cache.Invalidate(ctx, pattern); err != nil {
				s.logger.Warn("failed to invalidate cache", zap.String("pattern", pattern), zap.Error(err))
			}
		}
	}
	if s.feed != nil {
		change := models.LedgerChange{
			ProgramID:     ledger.ProgramID,
			ParticipantID: ledger.ParticipantID,
			Occurrence:    occurrence,
			Version:       ledger.Version,
			ChangedAt:     ledger.UpdatedAt,
		}
		if err := s.feed.Publish(ctx, change); err != nil {
			s.logger.Warn("failed to publish ledger change", zap.String("program_id", ledger.ProgramID), zap.Error(err))
		}
	}
}

func (s *SubmissionService) recordEvaluation(ctx context.Context, actorID string, ledger *models.Ledger, record models.SubmissionRecord) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(record)
	actor := actorID
	resource := ledger.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     models.AuditActionEvaluation,
		Resource:   "ledgers",
		ResourceID: &resource,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("ledger_id", ledger.ID), zap.Error(err))
	}
}

func versionConflict(expected, actual int) error {
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("ledger version is %d, expected %d; reload and retry", actual, expected))
}

func ledgerResponse(ledger *models.Ledger, record models.SubmissionRecord) *dto.LedgerRecordResponse {
	return &dto.LedgerRecordResponse{
		LedgerID:      ledger.ID,
		ProgramID:     ledger.ProgramID,
		ParticipantID: ledger.ParticipantID,
		Version:       ledger.Version,
		Record:        record,
	}
}
