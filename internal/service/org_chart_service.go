package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

type orgUnitStore interface {
	ListAll(ctx context.Context) ([]models.OrgUnit, error)
}

// OrgChartService renders the organisational chart.
type OrgChartService struct {
	repo   orgUnitStore
	logger *zap.Logger
}

// NewOrgChartService constructs the service.
func NewOrgChartService(repo orgUnitStore, logger *zap.Logger) *OrgChartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgChartService{repo: repo, logger: logger}
}

// Tree returns the whole chart as a forest.
func (s *OrgChartService) Tree(ctx context.Context) ([]*models.OrgNode, error) {
	units, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load org chart")
	}
	return BuildOrgForest(units), nil
}

// Subtree returns the unit id with its descendants.
func (s *OrgChartService) Subtree(ctx context.Context, id string) (*models.OrgNode, error) {
	roots, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	if node := findOrgNode(roots, id); node != nil {
		return node, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "org unit not found")
}

// BuildOrgForest links units to their parents. Units whose parent is missing
// become roots, and every cycle is broken at its alphabetically first member.
// Roots and children are ordered by name, then id.
func BuildOrgForest(units []models.OrgUnit) []*models.OrgNode {
	nodes := make(map[string]*models.OrgNode, len(units))
	ordered := make([]*models.OrgNode, 0, len(units))
	for _, unit := range units {
		if _, dup := nodes[unit.ID]; dup {
			continue
		}
		node := &models.OrgNode{OrgUnit: unit, Children: []*models.OrgNode{}}
		nodes[unit.ID] = node
		ordered = append(ordered, node)
	}
	sortOrgNodes(ordered)

	parentOf := make(map[string]string, len(ordered))
	for _, node := range ordered {
		if node.ParentID == nil || *node.ParentID == node.ID {
			continue
		}
		if _, ok := nodes[*node.ParentID]; ok {
			parentOf[node.ID] = *node.ParentID
		}
	}
	breakOrgCycles(ordered, nodes, parentOf)

	roots := []*models.OrgNode{}
	for _, node := range ordered {
		if parent, ok := parentOf[node.ID]; ok {
			nodes[parent].Children = append(nodes[parent].Children, node)
			continue
		}
		roots = append(roots, node)
	}
	return roots
}

func breakOrgCycles(ordered []*models.OrgNode, nodes map[string]*models.OrgNode, parentOf map[string]string) {
	resolved := make(map[string]bool, len(ordered))
	for _, start := range ordered {
		onPath := map[string]int{}
		var path []string
		id := start.ID
		for {
			if resolved[id] {
				break
			}
			if pos, ok := onPath[id]; ok {
				cycle := make([]*models.OrgNode, 0, len(path)-pos)
				for _, member := range path[pos:] {
					cycle = append(cycle, nodes[member])
				}
				sortOrgNodes(cycle)
				delete(parentOf, cycle[0].ID)
				break
			}
			onPath[id] = len(path)
			path = append(path, id)
			parent, ok := parentOf[id]
			if !ok {
				break
			}
			id = parent
		}
		for _, member := range path {
			resolved[member] = true
		}
	}
}

func sortOrgNodes(nodes []*models.OrgNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func findOrgNode(nodes []*models.OrgNode, id string) *models.OrgNode {
	for _, node := range nodes {
		if node.ID == id {
			return node
		}
		if found := findOrgNode(node.Children, id); found != nil {
			return found
		}
	}
	return nil
}
