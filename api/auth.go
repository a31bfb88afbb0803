package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/c360studio/taskhub/auth"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

const msgInvalidCredentials = "Credenciales inválidas"

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
}

type userResponse struct {
	User *workflow.User `json:"user"`
}

type loginResponse struct {
	User  *workflow.User `json:"user"`
	Token string         `json:"token"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// handleRegister creates a Developer account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	u := &workflow.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     workflow.NormalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		IsActive:  true,
	}
	var verrs workflow.ValidationErrors
	if err := u.Validate(); err != nil {
		errors.As(err, &verrs)
	}
	if err := workflow.ValidatePassword(req.Password); err != nil {
		var perrs workflow.ValidationErrors
		errors.As(err, &perrs)
		verrs = append(verrs, perrs...)
	}
	if err := verrs.Err(); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUserByEmail(ctx, u.Email); err == nil {
		fail(w, http.StatusBadRequest, "El email ya está registrado")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.failErr(w, r, err)
		return
	}

	role, err := s.store.EnsureRole(ctx, workflow.RoleDeveloper, "Desarrollador con permisos básicos")
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	u.GlobalRole = role.ID
	u.RoleName = role.Name

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	u.PasswordHash = hash

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			fail(w, http.StatusBadRequest, "El email ya está registrado")
			return
		}
		s.failErr(w, r, err)
		return
	}

	s.logger.Info("User registered", "user_id", u.ID, "email", u.Email)
	s.events.Publish(ctx, events.SubjectUserRegistered, u.ID,
		events.UserRegistered{UserID: u.ID, Email: u.Email, Role: u.RoleName})
	respond(w, http.StatusCreated, "Usuario registrado exitosamente", userResponse{User: u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		s.failErr(w, r, workflow.ValidationErrors{
			{Field: "email", Message: "email and password are required"},
		})
		return
	}

	ctx := r.Context()
	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		fail(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if !u.IsActive || s.hasher.Compare(u.PasswordHash, req.Password) != nil {
		fail(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	now := s.now().UTC()
	u.LastLogin = &now
	if err := s.store.UpdateUser(ctx, u); err != nil {
		s.failErr(w, r, err)
		return
	}

	token, err := s.issuer.Issue(auth.Claims{UserID: u.ID, Email: u.Email, Role: u.RoleName})
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Login exitoso", loginResponse{User: u, Token: token})
}

// handleLogout is stateless: tokens expire on their own.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "Logout exitoso", nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	u := principal(r).User
	token, err := s.issuer.Issue(auth.Claims{UserID: u.ID, Email: u.Email, Role: u.RoleName})
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Token renovado", tokenResponse{Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "Usuario autenticado", userResponse{User: principal(r).User})
}
