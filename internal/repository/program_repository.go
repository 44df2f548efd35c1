package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

const programColumns = `id, name, description, recurrence, valid_from, valid_to, participants, created_by, created_at, updated_at`

// ProgramRepository persists program definitions.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// Create inserts a program.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if program.CreatedAt.IsZero() {
		program.CreatedAt = now
	}
	program.UpdatedAt = program.CreatedAt
	if program.Participants == nil {
		program.Participants = []string{}
	}
	const query = `INSERT INTO programs (id, name, description, recurrence, valid_from, valid_to, participants, created_by, created_at, updated_at)
VALUES (:id, :name, :description, :recurrence, :valid_from, :valid_to, :participants, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// FindByID returns a program or sql.ErrNoRows.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	return &program, nil
}

// List returns programs matching the filter with the total count.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	var builder strings.Builder
	builder.WriteString(" FROM programs WHERE 1=1")
	var args []interface{}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		builder.WriteString(fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args)))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		builder.WriteString(fmt.Sprintf(" AND $%d = ANY(participants)", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		builder.WriteString(fmt.Sprintf(" AND created_by = $%d", len(args)))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	listQuery := fmt.Sprintf("SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", programColumns, builder.String(), pageSize, (page-1)*pageSize)
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+builder.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}
	return programs, total, nil
}

// ListAll returns every program unpaged, for aggregation and dashboards.
func (r *ProgramRepository) ListAll(ctx context.Context) ([]models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs ORDER BY created_at DESC`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list all programs: %w", err)
	}
	return programs, nil
}

// ListByParticipant returns programs the user owes submissions to.
func (r *ProgramRepository) ListByParticipant(ctx context.Context, userID string) ([]models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE $1 = ANY(participants) ORDER BY created_at DESC`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, userID); err != nil {
		return nil, fmt.Errorf("list programs by participant: %w", err)
	}
	return programs, nil
}

// ListByCreator returns programs the user created.
func (r *ProgramRepository) ListByCreator(ctx context.Context, userID string) ([]models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE created_by = $1 ORDER BY created_at DESC`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, userID); err != nil {
		return nil, fmt.Errorf("list programs by creator: %w", err)
	}
	return programs, nil
}

// Update rewrites the mutable fields of a program.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = time.Now().UTC()
	if program.Participants == nil {
		program.Participants = []string{}
	}
	const query = `UPDATE programs SET name = :name, description = :description, recurrence = :recurrence, valid_from = :valid_from, valid_to = :valid_to, participants = :participants, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, program)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateParticipants replaces only the participant list.
func (r *ProgramRepository) UpdateParticipants(ctx context.Context, id string, participants []string, at time.Time) error {
	const query = `UPDATE programs SET participants = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, pqStrings(participants), at)
	if err != nil {
		return fmt.Errorf("update participants: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the program row. Ledgers are left in place.
func (r *ProgramRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
