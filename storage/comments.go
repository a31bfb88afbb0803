package storage

import (
	"context"

	"github.com/c360studio/taskhub/workflow"
)

// CreateComment inserts a comment.
func (s *Store) CreateComment(ctx context.Context, c *workflow.Comment) error {
	now := s.now()
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return s.insertDoc(ctx, tableComments, c.ID, c, now)
}

// GetComment returns the comment with the given ID, deleted or not.
func (s *Store) GetComment(ctx context.Context, id string) (*workflow.Comment, error) {
	return getDoc[workflow.Comment](ctx, s, tableComments, id)
}

// UpdateComment replaces the stored comment.
func (s *Store) UpdateComment(ctx context.Context, c *workflow.Comment) error {
	c.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableComments, c.ID, c, c.UpdatedAt)
}

// CommentFilter selects the thread to list. Task takes precedence over Project.
type CommentFilter struct {
	Project string
	Task    string
}

// ListComments returns non-deleted comments, newest first.
func (s *Store) ListComments(ctx context.Context, f CommentFilter, p Page) (Result[workflow.Comment], error) {
	var w where
	w.add(`json_extract(doc, '$.isDeleted') = 0`)
	if f.Task != "" {
		w.add(`json_extract(doc, '$.task') = ?`, f.Task)
	} else {
		w.addIf(f.Project, `json_extract(doc, '$.project') = ?`)
	}
	return page[workflow.Comment](ctx, s, tableComments, &w, "created_at DESC", p.Normalize(20))
}

// RecentComments returns the latest n non-deleted comments of a project.
func (s *Store) RecentComments(ctx context.Context, projectID string, n int) ([]*workflow.Comment, error) {
	return queryDocs[workflow.Comment](ctx, s,
		`SELECT doc FROM comments WHERE json_extract(doc, '$.project') = ? AND json_extract(doc, '$.isDeleted') = 0
		ORDER BY created_at DESC LIMIT ?`, projectID, n)
}

// CountComments counts the non-deleted comments of a project.
func (s *Store) CountComments(ctx context.Context, projectID string) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM comments WHERE json_extract(doc, '$.project') = ? AND json_extract(doc, '$.isDeleted') = 0`,
		projectID)
}
