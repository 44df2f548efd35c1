package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

// OrgUnitRepository reads the org chart adjacency list.
type OrgUnitRepository struct {
	db *sqlx.DB
}

// NewOrgUnitRepository constructs the repository.
func NewOrgUnitRepository(db *sqlx.DB) *OrgUnitRepository {
	return &OrgUnitRepository{db: db}
}

// ListAll returns every org unit.
func (r *OrgUnitRepository) ListAll(ctx context.Context) ([]models.OrgUnit, error) {
	const query = `SELECT id, parent_id, name, title, head_user_id FROM org_units ORDER BY name`
	var units []models.OrgUnit
	if err := r.db.SelectContext(ctx, &units, query); err != nil {
		return nil, fmt.Errorf("list org units: %w", err)
	}
	return units, nil
}
