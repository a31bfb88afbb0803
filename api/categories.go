package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

const msgCategoryNotFound = "Category not found"

type categoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

func (req categoryRequest) apply(c *workflow.Category) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context(), true)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if cats == nil {
		cats = []*workflow.Category{}
	}
	respond(w, http.StatusOK, "Categories retrieved successfully", cats)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCategory(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, "Category retrieved successfully", c)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	c := &workflow.Category{IsActive: true, CreatedBy: principal(r).User.ID}
	req.apply(c)
	if err := c.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.CreateCategory(r.Context(), c); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Category created successfully", c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	c, ok := s.loadCategory(w, r)
	if !ok {
		return
	}
	req.apply(c)
	if err := c.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateCategory(r.Context(), c); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Category updated successfully", c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.DeactivateCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fail(w, http.StatusNotFound, msgCategoryNotFound)
			return
		}
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Category deleted successfully", nil)
}

func (s *Server) loadCategory(w http.ResponseWriter, r *http.Request) (*workflow.Category, bool) {
	c, err := s.store.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		fail(w, http.StatusNotFound, msgCategoryNotFound)
		return nil, false
	}
	if err != nil {
		s.failErr(w, r, err)
		return nil, false
	}
	return c, true
}
