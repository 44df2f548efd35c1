package models

// OrgUnit is a node of the agency organisational chart stored as an adjacency list.
type OrgUnit struct {
	ID         string  `db:"id" json:"id"`
	ParentID   *string `db:"parent_id" json:"parent_id,omitempty"`
	Name       string  `db:"name" json:"name"`
	Title      string  `db:"title" json:"title"`
	HeadUserID *string `db:"head_user_id" json:"head_user_id,omitempty"`
}

// OrgNode is an org unit with its resolved children.
type OrgNode struct {
	OrgUnit
	Children []*OrgNode `json:"children"`
}
