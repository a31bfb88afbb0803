package storage

import (
	"context"

	"github.com/c360studio/taskhub/workflow"
)

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, c *workflow.Category) error {
	now := s.now()
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return s.insertDoc(ctx, tableCategories, c.ID, c, now)
}

// GetCategory returns the category with the given ID.
func (s *Store) GetCategory(ctx context.Context, id string) (*workflow.Category, error) {
	return getDoc[workflow.Category](ctx, s, tableCategories, id)
}

// ListCategories returns categories ordered by name.
func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]*workflow.Category, error) {
	q := `SELECT doc FROM categories`
	if activeOnly {
		q += ` WHERE json_extract(doc, '$.isActive') = 1`
	}
	return queryDocs[workflow.Category](ctx, s, q+` ORDER BY json_extract(doc, '$.name')`)
}

// UpdateCategory replaces the stored category.
func (s *Store) UpdateCategory(ctx context.Context, c *workflow.Category) error {
	c.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableCategories, c.ID, c, c.UpdatedAt)
}

// DeactivateCategory soft-deletes a category.
func (s *Store) DeactivateCategory(ctx context.Context, id string) (*workflow.Category, error) {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.IsActive = false
	if err := s.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
