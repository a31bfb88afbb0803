package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

// Common client messages.
const (
	msgInternal         = "Error interno del servidor"
	msgValidation       = "Errores de validación"
	msgInvalidBody      = "Cuerpo de la petición inválido"
	msgProjectNotFound  = "Proyecto no encontrado"
	msgTaskNotFound     = "Tarea no encontrada"
	msgCommentNotFound  = "Comentario no encontrado"
	msgNoProjectAccess  = "Sin acceso al proyecto"
	msgEndpointNotFound = "Endpoint not found"
)

// Pagination describes a page of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func newPagination(p storage.Page, total int) *Pagination {
	return &Pagination{
		Page:  p.Page,
		Limit: p.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}

// envelope is the body of every API response.
type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Errors     any         `json:"errors,omitempty"`
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Timestamp: time.Now().UTC(), Data: data})
}

func respondPage(w http.ResponseWriter, message string, data any, p *Pagination) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Timestamp: time.Now().UTC(), Data: data, Pagination: p})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Message: message, Timestamp: time.Now().UTC()})
}

// deny adapts fail to auth.DenyFunc.
func deny(w http.ResponseWriter, _ *http.Request, status int, message string) {
	fail(w, status, message)
}

// failErr maps an error to a response. Validation errors are listed in the
// errors member, sentinel storage errors map to 404/400 and anything else is
// logged and reported as a 500.
func (s *Server) failErr(w http.ResponseWriter, r *http.Request, err error) {
	var verrs workflow.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, envelope{
			Message:   msgValidation,
			Timestamp: time.Now().UTC(),
			Errors:    []workflow.ValidationError(verrs),
		})
	case errors.Is(err, storage.ErrNotFound):
		fail(w, http.StatusNotFound, "Recurso no encontrado")
	case errors.Is(err, storage.ErrConflict):
		fail(w, http.StatusBadRequest, "El recurso ya existe")
	case errors.Is(err, errBadRequest):
		fail(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		fail(w, http.StatusInternalServerError, msgInternal)
	}
}
