package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

const msgStateNotFound = "State not found"

type stateRequest struct {
	Name               *string             `json:"name"`
	Description        *string             `json:"description"`
	Type               *workflow.StateType `json:"type"`
	IsFinal            *bool               `json:"isFinal"`
	IsActive           *bool               `json:"isActive"`
	AllowedTransitions []string            `json:"allowedTransitions"`
}

func (req stateRequest) apply(st *workflow.State) {
	if req.Name != nil {
		st.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		st.Description = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		st.Type = *req.Type
	}
	if req.IsFinal != nil {
		st.IsFinal = *req.IsFinal
	}
	if req.IsActive != nil {
		st.IsActive = *req.IsActive
	}
	if req.AllowedTransitions != nil {
		st.AllowedTransitions = req.AllowedTransitions
	}
}

// handleListStates returns the active states of one type. The data member
// is the list itself.
func (s *Server) handleListStates(typ workflow.StateType) http.HandlerFunc {
	msg := "Project states retrieved successfully"
	if typ == workflow.StateTypeTask {
		msg = "Task states retrieved successfully"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		states, err := s.store.ListStates(r.Context(), typ, true)
		if err != nil {
			s.failErr(w, r, err)
			return
		}
		if states == nil {
			states = []*workflow.State{}
		}
		respond(w, http.StatusOK, msg, states)
	}
}

func (s *Server) handleCreateState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	st := &workflow.State{IsActive: true}
	req.apply(st)
	if err := st.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.CreateState(r.Context(), st); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			fail(w, http.StatusBadRequest, "State already exists")
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "State created successfully", st)
}

func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	st, err := s.store.GetState(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		fail(w, http.StatusNotFound, msgStateNotFound)
		return
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	req.apply(st)
	if err := st.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateState(r.Context(), st); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			fail(w, http.StatusBadRequest, "State already exists")
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "State updated successfully", st)
}

func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.DeactivateState(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fail(w, http.StatusNotFound, msgStateNotFound)
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "State deleted successfully", nil)
}
