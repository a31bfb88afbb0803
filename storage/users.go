package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/taskhub/workflow"
)

// userDoc carries the password hash alongside the public user document.
// workflow.User hides the hash from JSON so it never leaks through the API.
type userDoc struct {
	*workflow.User
	PasswordHash string `json:"passwordHash"`
}

func (d *userDoc) user() *workflow.User {
	d.User.PasswordHash = d.PasswordHash
	return d.User
}

// CreateUser inserts a user. The e-mail is normalized before storage and
// ErrConflict is returned when it is already registered.
func (s *Store) CreateUser(ctx context.Context, u *workflow.User) error {
	now := s.now()
	if u.ID == "" {
		u.ID = newID()
	}
	u.Email = workflow.NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now
	return s.insertDoc(ctx, tableUsers, u.ID, userDoc{User: u, PasswordHash: u.PasswordHash}, now)
}

// GetUser returns the user with the given ID, password hash included.
func (s *Store) GetUser(ctx context.Context, id string) (*workflow.User, error) {
	d, err := getDoc[userDoc](ctx, s, tableUsers, id)
	if err != nil {
		return nil, err
	}
	return d.user(), nil
}

// GetUserByEmail looks a user up by normalized e-mail.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*workflow.User, error) {
	docs, err := queryDocs[userDoc](ctx, s,
		`SELECT doc FROM users WHERE json_extract(doc, '$.email') = ? LIMIT 1`,
		workflow.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0].user(), nil
}

// UpdateUser replaces the stored user. An empty PasswordHash keeps the
// stored one.
func (s *Store) UpdateUser(ctx context.Context, u *workflow.User) error {
	if u.PasswordHash == "" {
		existing, err := s.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		u.PasswordHash = existing.PasswordHash
	}
	u.Email = workflow.NormalizeEmail(u.Email)
	u.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableUsers, u.ID, userDoc{User: u, PasswordHash: u.PasswordHash}, u.UpdatedAt)
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Search     string
	Role       string
	ActiveOnly bool
}

// ListUsers returns users ordered by creation time, newest first.
func (s *Store) ListUsers(ctx context.Context, f UserFilter, p Page) (Result[workflow.User], error) {
	var w where
	if f.ActiveOnly {
		w.add(`json_extract(doc, '$.isActive') = 1`)
	}
	w.addIf(f.Role, `json_extract(doc, '$.globalRole') = ?`)
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		w.add(`(lower(json_extract(doc, '$.firstName')) LIKE ? OR lower(json_extract(doc, '$.lastName')) LIKE ? OR json_extract(doc, '$.email') LIKE ?)`,
			like, like, like)
	}
	res, err := page[userDoc](ctx, s, tableUsers, &w, "created_at DESC", p.Normalize(20))
	if err != nil {
		return Result[workflow.User]{}, err
	}
	out := Result[workflow.User]{Total: res.Total}
	for _, d := range res.Items {
		out.Items = append(out.Items, d.user())
	}
	return out, nil
}

// UsersByID resolves a set of user IDs. Unknown IDs are skipped.
func (s *Store) UsersByID(ctx context.Context, ids []string) (map[string]*workflow.User, error) {
	out := make(map[string]*workflow.User, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		u, err := s.GetUser(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = u
	}
	return out, nil
}
