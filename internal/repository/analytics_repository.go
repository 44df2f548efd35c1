package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

// AnalyticsRepository exposes read-only aggregate queries for the admin overview.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Inventory counts users, programs, ledgers and report jobs. A non-nil since
// restricts programs and ledgers to rows touched after that instant.
func (r *AnalyticsRepository) Inventory(ctx context.Context, since *time.Time) (*models.PortalInventory, error) {
	inv := &models.PortalInventory{}

	var roles []models.RoleCount
	if err := r.db.SelectContext(ctx, &roles, `SELECT role, COUNT(*) AS count FROM user_profiles GROUP BY role ORDER BY role`); err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	inv.UsersByRole = roles

	programs, err := r.countSince(ctx, "programs", "created_at", since)
	if err != nil {
		return nil, err
	}
	inv.Programs = programs

	ledgers, err := r.countSince(ctx, "submission_ledgers", "updated_at", since)
	if err != nil {
		return nil, err
	}
	inv.Ledgers = ledgers

	var jobs []models.JobStatusCount
	if err := r.db.SelectContext(ctx, &jobs, `SELECT status, COUNT(*) AS count FROM report_jobs GROUP BY status ORDER BY status`); err != nil {
		return nil, fmt.Errorf("count report jobs: %w", err)
	}
	inv.ReportJobs = jobs
	return inv, nil
}

func (r *AnalyticsRepository) countSince(ctx context.Context, table, column string, since *time.Time) (int, error) {
	var builder strings.Builder
	builder.WriteString("SELECT COUNT(*) FROM ")
	builder.WriteString(table)
	var args []interface{}
	if since != nil {
		args = append(args, *since)
		builder.WriteString(fmt.Sprintf(" WHERE %s >= $%d", column, len(args)))
	}
	var count int
	if err := r.db.GetContext(ctx, &count, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}
