package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

const msgRoleNotFound = "Rol no encontrado"

type rolesResponse struct {
	Roles []*workflow.Role `json:"roles"`
}

type roleResponse struct {
	Role *workflow.Role `json:"role"`
}

type roleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.store.ListRoles(r.Context(), true)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if roles == nil {
		roles = []*workflow.Role{}
	}
	respond(w, http.StatusOK, "Roles obtenidos", rolesResponse{Roles: roles})
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	role := &workflow.Role{IsActive: true}
	req.apply(role)
	if err := role.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.CreateRole(r.Context(), role); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			fail(w, http.StatusBadRequest, "El rol ya existe")
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Rol creado", roleResponse{Role: role})
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	role, err := s.store.GetRole(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		fail(w, http.StatusNotFound, msgRoleNotFound)
		return
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	req.apply(role)
	if err := role.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateRole(r.Context(), role); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			fail(w, http.StatusBadRequest, "El rol ya existe")
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Rol actualizado", roleResponse{Role: role})
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.DeactivateRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fail(w, http.StatusNotFound, msgRoleNotFound)
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Rol eliminado", nil)
}

func (req roleRequest) apply(role *workflow.Role) {
	if req.Name != nil {
		role.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		role.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
}
