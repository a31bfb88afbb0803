package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/taskhub/workflow"
)

// CreateState inserts a state. (type, name) pairs are unique.
func (s *Store) CreateState(ctx context.Context, st *workflow.State) error {
	now := s.now()
	if st.ID == "" {
		st.ID = newID()
	}
	st.CreatedAt = now
	st.UpdatedAt = now
	return s.insertDoc(ctx, tableStates, st.ID, st, now)
}

// GetState returns the state with the given ID.
func (s *Store) GetState(ctx context.Context, id string) (*workflow.State, error) {
	return getDoc[workflow.State](ctx, s, tableStates, id)
}

// GetStateByName returns the state of the given type and name.
func (s *Store) GetStateByName(ctx context.Context, typ workflow.StateType, name string) (*workflow.State, error) {
	states, err := queryDocs[workflow.State](ctx, s,
		`SELECT doc FROM states WHERE json_extract(doc, '$.type') = ? AND json_extract(doc, '$.name') = ? LIMIT 1`,
		string(typ), name)
	if err != nil {
		return nil, fmt.Errorf("get state by name: %w", err)
	}
	if len(states) == 0 {
		return nil, ErrNotFound
	}
	return states[0], nil
}

// ListStates returns states of one type (or all when typ is empty),
// ordered by type then creation.
func (s *Store) ListStates(ctx context.Context, typ workflow.StateType, activeOnly bool) ([]*workflow.State, error) {
	var w where
	w.addIf(string(typ), `json_extract(doc, '$.type') = ?`)
	if activeOnly {
		w.add(`json_extract(doc, '$.isActive') = 1`)
	}
	return queryDocs[workflow.State](ctx, s,
		`SELECT doc FROM states`+w.String()+` ORDER BY json_extract(doc, '$.type'), created_at`, w.args...)
}

// UpdateState replaces the stored state.
func (s *Store) UpdateState(ctx context.Context, st *workflow.State) error {
	st.UpdatedAt = s.now()
	return s.updateDoc(ctx, tableStates, st.ID, st, st.UpdatedAt)
}

// DeactivateState soft-deletes a state.
func (s *Store) DeactivateState(ctx context.Context, id string) (*workflow.State, error) {
	st, err := s.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	st.IsActive = false
	if err := s.UpdateState(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// EnsureState returns the named state, creating it when missing. It backs
// the lazy creation of initial project and task states.
func (s *Store) EnsureState(ctx context.Context, typ workflow.StateType, name, description string) (*workflow.State, error) {
	st, err := s.GetStateByName(ctx, typ, name)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	st = &workflow.State{
		Name:        name,
		Type:        typ,
		Description: description,
		IsActive:    true,
		IsFinal:     (typ == workflow.StateTypeTask && name == workflow.TaskStateCompleted) || (typ == workflow.StateTypeProject && name == workflow.ProjectStateCompleted),
	}
	if err := s.CreateState(ctx, st); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.GetStateByName(ctx, typ, name)
		}
		return nil, err
	}
	return st, nil
}
