package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/taskhub/workflow"
)

// memberPredicate matches projects the user owns or belongs to.
const memberPredicate = `(json_extract(doc, '$.owner') = ? OR EXISTS (
	SELECT 1 FROM json_each(projects.doc, '$.members') m
	WHERE json_extract(m.value, '$.user') = ?))`

// CreateProject inserts a project.
func (s *Store) CreateProject(ctx context.Context, p *workflow.Project) error {
	now := s.now()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.insertDoc(ctx, tableProjects, p.ID, p, now)
}

// GetProject returns the project with the given ID, active or not.
func (s *Store) GetProject(ctx context.Context, id string) (*workflow.Project, error) {
	return getDoc[workflow.Project](ctx, s, tableProjects, id)
}

// UpdateProject replaces the stored project.
func (s *Store) UpdateProject(ctx context.Context, p *workflow.Project) error {
	p.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableProjects, p.ID, p, p.UpdatedAt)
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	// MemberOf restricts results to projects the user owns or belongs to.
	// Empty means every project (admin listing).
	MemberOf string

	Status   string
	Priority workflow.Priority
	Category string
	Search   string
}

// ListProjects returns active projects, most recently updated first.
func (s *Store) ListProjects(ctx context.Context, f ProjectFilter, p Page) (Result[workflow.Project], error) {
	var w where
	w.add(`json_extract(doc, '$.isActive') = 1`)
	if f.MemberOf != "" {
		w.add(memberPredicate, f.MemberOf, f.MemberOf)
	}
	w.addIf(f.Status, `json_extract(doc, '$.status') = ?`)
	w.addIf(string(f.Priority), `json_extract(doc, '$.priority') = ?`)
	w.addIf(f.Category, `json_extract(doc, '$.category') = ?`)
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		w.add(`(lower(json_extract(doc, '$.name')) LIKE ? OR lower(json_extract(doc, '$.description')) LIKE ?)`, like, like)
	}
	return page[workflow.Project](ctx, s, tableProjects, &w, "updated_at DESC", p.Normalize(10))
}

// ProjectsForUser returns every active project the user owns or belongs to.
func (s *Store) ProjectsForUser(ctx context.Context, userID string) ([]*workflow.Project, error) {
	return queryDocs[workflow.Project](ctx, s,
		`SELECT doc FROM projects WHERE json_extract(doc, '$.isActive') = 1 AND `+memberPredicate+` ORDER BY updated_at DESC`,
		userID, userID)
}

// ProjectCounts summarises the projects a user participates in.
type ProjectCounts struct {
	Total   int `json:"total"`
	Owned   int `json:"owned"`
	Member  int `json:"member"`
	Overdue int `json:"overdue"`
}

// CountProjects counts the active projects userID owns or belongs to.
// Overdue projects have an end date before now.
func (s *Store) CountProjects(ctx context.Context, userID string, now time.Time) (ProjectCounts, error) {
	var c ProjectCounts
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(json_extract(doc, '$.owner') = ?), 0),
			COALESCE(SUM(julianday(json_extract(doc, '$.endDate')) < julianday(?)), 0)
		FROM projects WHERE json_extract(doc, '$.isActive') = 1 AND `+memberPredicate,
		userID, now.UTC().Format(time.RFC3339Nano), userID, userID).
		Scan(&c.Total, &c.Owned, &c.Overdue)
	if err != nil {
		return ProjectCounts{}, fmt.Errorf("count projects: %w", err)
	}
	c.Member = c.Total - c.Owned
	return c, nil
}
