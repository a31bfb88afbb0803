package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/taskhub/workflow"
)

// CreateRole inserts a role. Role names are unique.
func (s *Store) CreateRole(ctx context.Context, r *workflow.Role) error {
	now := s.now()
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return s.insertDoc(ctx, tableRoles, r.ID, r, now)
}

// GetRole returns the role with the given ID.
func (s *Store) GetRole(ctx context.Context, id string) (*workflow.Role, error) {
	return getDoc[workflow.Role](ctx, s, tableRoles, id)
}

// GetRoleByName returns the role with the given name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*workflow.Role, error) {
	roles, err := queryDocs[workflow.Role](ctx, s,
		`SELECT doc FROM roles WHERE json_extract(doc, '$.name') = ? LIMIT 1`, name)
	if err != nil {
		return nil, fmt.Errorf("get role by name: %w", err)
	}
	if len(roles) == 0 {
		return nil, ErrNotFound
	}
	return roles[0], nil
}

// ListRoles returns roles ordered by name.
func (s *Store) ListRoles(ctx context.Context, activeOnly bool) ([]*workflow.Role, error) {
	q := `SELECT doc FROM roles`
	if activeOnly {
		q += ` WHERE json_extract(doc, '$.isActive') = 1`
	}
	return queryDocs[workflow.Role](ctx, s, q+` ORDER BY json_extract(doc, '$.name')`)
}

// UpdateRole replaces the stored role.
func (s *Store) UpdateRole(ctx context.Context, r *workflow.Role) error {
	r.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableRoles, r.ID, r, r.UpdatedAt)
}

// DeactivateRole soft-deletes a role.
func (s *Store) DeactivateRole(ctx context.Context, id string) (*workflow.Role, error) {
	r, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	r.IsActive = false
	if err := s.UpdateRole(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// EnsureRole returns the role with the given name, creating an active one
// with the given description when it does not exist yet.
func (s *Store) EnsureRole(ctx context.Context, name, description string) (*workflow.Role, error) {
	r, err := s.GetRoleByName(ctx, name)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	r = &workflow.Role{Name: name, Description: description, IsActive: true}
	if err := s.CreateRole(ctx, r); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.GetRoleByName(ctx, name)
		}
		return nil, err
	}
	return r, nil
}
