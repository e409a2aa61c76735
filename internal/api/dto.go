package api

import (
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/orbit"
)

// PathRequest is the request body for operations on a single vault path.
type PathRequest struct {
	Path string `json:"path" example:"Inbox/Stretch.md" validate:"required"`
}

// CategoryListResponse lists the taxonomy categories.
type CategoryListResponse struct {
	Categories []CategoryItem `json:"categories" validate:"required"`
}

// CategoryItem is a category with its canonical folder.
type CategoryItem struct {
	Number string `json:"number" example:"200" validate:"required"`
	Name   string `json:"name" example:"Health" validate:"required"`
	Folder string `json:"folder" example:"200-Health" validate:"required"`
}

// ProcessResponse is the outcome of reconciling one document (aliased from
// the domain layer).
type ProcessResponse = orbit.Result

// GroupingResponse describes a resolved or promoted grouping (aliased from
// the domain layer).
type GroupingResponse = models.Grouping

// AuditResponse wraps audit findings.
type AuditResponse struct {
	Issues []orbit.Issue `json:"issues" validate:"required"`
}

// GraphNode is a document in the relationship graph.
type GraphNode struct {
	ID   string `json:"id" example:"200-Health/210-Yoga/Yoga.md" validate:"required"`
	Name string `json:"name" example:"Yoga" validate:"required"`
	Kind string `json:"kind,omitempty" example:"project"`
}

// GraphLink is an orbit or satellite edge between two documents.
type GraphLink struct {
	Source string `json:"source" example:"200-Health/210-Yoga/0-inbox/Pose.md" validate:"required"`
	Target string `json:"target" example:"200-Health/210-Yoga/Yoga.md" validate:"required"`
	Type   string `json:"type" example:"orbit" validate:"required"`
}

// GraphResponse wraps the relationship graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}

// OrbitersResponse lists documents orbiting a grouping.
type OrbitersResponse struct {
	Name     string   `json:"name" example:"Yoga" validate:"required"`
	Orbiters []string `json:"orbiters" validate:"required"`
}
