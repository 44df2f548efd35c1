package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

const ledgerColumns = `id, program_id, participant_id, submissions, version, created_at, updated_at`

// LedgerRepository stores one submissions document per (program, participant).
// Every write replaces the whole submissions array.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Find returns the ledger of a participant or sql.ErrNoRows.
func (r *LedgerRepository) Find(ctx context.Context, programID, participantID string) (*models.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM submission_ledgers WHERE program_id = $1 AND participant_id = $2`
	var ledger models.Ledger
	if err := r.db.GetContext(ctx, &ledger, query, programID, participantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find ledger: %w", err)
	}
	return &ledger, nil
}

// ListByProgram returns every ledger written for a program.
func (r *LedgerRepository) ListByProgram(ctx context.Context, programID string) ([]models.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM submission_ledgers WHERE program_id = $1 ORDER BY participant_id`
	var ledgers []models.Ledger
	if err := r.db.SelectContext(ctx, &ledgers, query, programID); err != nil {
		return nil, fmt.Errorf("list ledgers by program: %w", err)
	}
	return ledgers, nil
}

// ListByParticipant returns every ledger owned by a participant, across programs.
func (r *LedgerRepository) ListByParticipant(ctx context.Context, participantID string) ([]models.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM submission_ledgers WHERE participant_id = $1 ORDER BY program_id`
	var ledgers []models.Ledger
	if err := r.db.SelectContext(ctx, &ledgers, query, participantID); err != nil {
		return nil, fmt.Errorf("list ledgers by participant: %w", err)
	}
	return ledgers, nil
}

type ledgerStamp struct {
	ID        string    `db:"id"`
	Version   int       `db:"version"`
	CreatedAt time.Time `db:"created_at"`
}

// Save writes ledger.Submissions and refreshes ID, Version and timestamps.
// A nil expectedVersion is an unconditional upsert where the last writer
// wins. Otherwise the write only lands when the stored version equals
// *expectedVersion (0 meaning no ledger exists yet) and ErrVersionConflict is
// returned on mismatch.
func (r *LedgerRepository) Save(ctx context.Context, ledger *models.Ledger, expectedVersion *int) error {
	if ledger.ID == "" {
		ledger.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	switch {
	case expectedVersion == nil:
		query = `INSERT INTO submission_ledgers (id, program_id, participant_id, submissions, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, $5, $5)
ON CONFLICT (program_id, participant_id) DO UPDATE SET submissions = EXCLUDED.submissions, version = submission_ledgers.version + 1, updated_at = EXCLUDED.updated_at
RETURNING id, version, created_at`
		args = []interface{}{ledger.ID, ledger.ProgramID, ledger.ParticipantID, ledger.Submissions, now}
	case *expectedVersion == 0:
		query = `INSERT INTO submission_ledgers (id, program_id, participant_id, submissions, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, $5, $5)
ON CONFLICT (program_id, participant_id) DO NOTHING
RETURNING id, version, created_at`
		args = []interface{}{ledger.ID, ledger.ProgramID, ledger.ParticipantID, ledger.Submissions, now}
	default:
		query = `UPDATE submission_ledgers SET submissions = $3, version = version + 1, updated_at = $4
WHERE program_id = $1 AND participant_id = $2 AND version = $5
RETURNING id, version, created_at`
		args = []interface{}{ledger.ProgramID, ledger.ParticipantID, ledger.Submissions, now, *expectedVersion}
	}

	var stamp ledgerStamp
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&stamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("save ledger: %w", err)
	}
	ledger.ID = stamp.ID
	ledger.Version = stamp.Version
	ledger.CreatedAt = stamp.CreatedAt
	ledger.UpdatedAt = now
	return nil
}
