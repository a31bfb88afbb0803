package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

const msgUserNotFound = "Usuario no encontrado"

type usersResponse struct {
	Users []*workflow.User `json:"users"`
}

// handleListUsers lists accounts for admins. Supports ?search=, ?role=
// (role ID) and ?active=true.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p := pageParams(r, 10)
	q := r.URL.Query()
	res, err := s.store.ListUsers(r.Context(), storage.UserFilter{
		Search:     q.Get("search"),
		Role:       q.Get("role"),
		ActiveOnly: boolParam(r, "active"),
	}, p)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	users := res.Items
	if users == nil {
		users = []*workflow.User{}
	}
	respondPage(w, "Usuarios obtenidos", usersResponse{Users: users}, newPagination(p, res.Total))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "Perfil obtenido", userResponse{User: principal(r).User})
}

type profileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
}

// handleUpdateProfile changes the caller's name and phone. Other fields in
// the body are ignored.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	u := principal(r).User
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
	if err := u.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateUser(r.Context(), u); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Perfil actualizado", userResponse{User: u})
}

// handleDeleteUser deactivates an account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	u.IsActive = false
	if err := s.store.UpdateUser(r.Context(), u); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Usuario eliminado", nil)
}

type changeRoleRequest struct {
	RoleID string `json:"roleId"`
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	u, ok := s.loadUser(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	role, err := s.store.GetRole(r.Context(), req.RoleID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !role.IsActive) {
		fail(w, http.StatusBadRequest, "Rol no válido")
		return
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}

	u.GlobalRole = role.ID
	u.RoleName = role.Name
	if err := s.store.UpdateUser(r.Context(), u); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.logger.Info("User role changed", "user_id", u.ID, "role", role.Name, "by", principal(r).User.ID)
	respond(w, http.StatusOK, "Rol actualizado", userResponse{User: u})
}

func (s *Server) loadUser(w http.ResponseWriter, r *http.Request, id string) (*workflow.User, bool) {
	u, err := s.store.GetUser(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		fail(w, http.StatusNotFound, msgUserNotFound)
		return nil, false
	}
	if err != nil {
		s.failErr(w, r, err)
		return nil, false
	}
	return u, true
}
