package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type fakeOrgChartSrv struct{}

func (fakeOrgChartSrv) Tree(context.Context) ([]*models.OrgNode, error) {
	child := &models.OrgNode{OrgUnit: models.OrgUnit{ID: "planning", Name: "Planning Office"}, Children: []*models.OrgNode{}}
	return []*models.OrgNode{{OrgUnit: models.OrgUnit{ID: "mayor", Name: "Office of the Mayor"}, Children: []*models.OrgNode{child}}}, nil
}

func (fakeOrgChartSrv) Subtree(_ context.Context, id string) (*models.OrgNode, error) {
	if id != "planning" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "org unit not found")
	}
	return &models.OrgNode{OrgUnit: models.OrgUnit{ID: id}, Children: []*models.OrgNode{}}, nil
}

func TestOrgChartHandler(t *testing.T) {
	handler := NewOrgChartHandler(fakeOrgChartSrv{})

	c, rec := newGinContext(http.MethodGet, "/org-chart", nil)
	handler.Tree(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Planning Office"`)

	c, rec = newGinContext(http.MethodGet, "/org-chart/planning", nil)
	c.AddParam("id", "planning")
	handler.Subtree(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newGinContext(http.MethodGet, "/org-chart/ghost", nil)
	c.AddParam("id", "ghost")
	handler.Subtree(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
