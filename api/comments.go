package api

import (
	"errors"
	"html"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/c360studio/taskhub/access"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

// commentPolicy strips every HTML tag from comment bodies.
var commentPolicy = bluemonday.StrictPolicy()

// sanitizeComment removes markup but keeps the text as typed; the policy
// escapes entities, which are turned back into characters here.
func sanitizeComment(content string) string {
	return strings.TrimSpace(html.UnescapeString(commentPolicy.Sanitize(content)))
}

type commentsResponse struct {
	Comments []*workflow.Comment `json:"comments"`
}

type commentResponse struct {
	Comment *workflow.Comment `json:"comment"`
}

func (s *Server) handleListProjectComments(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	s.listComments(w, r, storage.CommentFilter{Project: p.ID})
}

func (s *Server) handleListTaskComments(w http.ResponseWriter, r *http.Request) {
	t, _, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	s.listComments(w, r, storage.CommentFilter{Task: t.ID})
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request, f storage.CommentFilter) {
	pg := pageParams(r, 20)
	res, err := s.store.ListComments(r.Context(), f, pg)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	comments := res.Items
	if comments == nil {
		comments = []*workflow.Comment{}
	}
	respondPage(w, "Comentarios obtenidos", commentsResponse{Comments: comments}, newPagination(pg, res.Total))
}

type createCommentRequest struct {
	Content       string `json:"content"`
	Task          string `json:"task"`
	ParentComment string `json:"parentComment"`
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	pr := principal(r)
	if !access.CanComment(pr.Actor(), p) {
		fail(w, http.StatusForbidden, "Los comentarios están deshabilitados en este proyecto")
		return
	}
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	if req.Task != "" {
		t, err := s.store.GetTask(ctx, req.Task)
		if err != nil || !t.IsActive || t.Project != p.ID {
			fail(w, http.StatusBadRequest, "Tarea no válida para este proyecto")
			return
		}
	}
	if req.ParentComment != "" {
		parent, err := s.store.GetComment(ctx, req.ParentComment)
		if err != nil || parent.IsDeleted || parent.Project != p.ID {
			fail(w, http.StatusBadRequest, "Comentario padre no válido")
			return
		}
	}

	content := sanitizeComment(req.Content)
	c := &workflow.Comment{
		Content:       content,
		Author:        pr.User.ID,
		Project:       p.ID,
		Task:          req.Task,
		ParentComment: req.ParentComment,
		Mentions:      workflow.ParseMentions(content),
		Reactions:     []workflow.Reaction{},
	}
	if err := c.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.events.Publish(ctx, events.SubjectCommentCreated, pr.User.ID, events.CommentCreated{
		CommentID: c.ID,
		ProjectID: p.ID,
		TaskID:    c.Task,
		Mentions:  c.Mentions,
	})
	respond(w, http.StatusCreated, "Comentario creado exitosamente", commentResponse{Comment: c})
}

// loadComment fetches the {id} comment. Deleted comments are not found.
func (s *Server) loadComment(w http.ResponseWriter, r *http.Request) (*workflow.Comment, bool) {
	c, err := s.store.GetComment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && c.IsDeleted) {
		fail(w, http.StatusNotFound, msgCommentNotFound)
		return nil, false
	}
	if err != nil {
		s.failErr(w, r, err)
		return nil, false
	}
	return c, true
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadComment(w, r)
	if !ok {
		return
	}
	if !access.CanEditComment(principal(r).Actor(), c) {
		fail(w, http.StatusForbidden, "Solo puedes editar tus propios comentarios")
		return
	}
	var req updateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	c.Edit(sanitizeComment(req.Content), s.now().UTC())
	if err := c.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateComment(r.Context(), c); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Comentario actualizado exitosamente", commentResponse{Comment: c})
}

// handleDeleteComment hides the comment. The author and admins may delete.
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadComment(w, r)
	if !ok {
		return
	}
	if !access.CanDeleteComment(principal(r).Actor(), c) {
		fail(w, http.StatusForbidden, "Sin permisos para eliminar este comentario")
		return
	}
	c.SoftDelete(s.now().UTC())
	if err := s.store.UpdateComment(r.Context(), c); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Comentario eliminado exitosamente", nil)
}

type reactionRequest struct {
	Type workflow.ReactionType `json:"type"`
}

type reactionResponse struct {
	Active    bool                          `json:"active"`
	Reactions []workflow.Reaction           `json:"reactions"`
	Summary   map[workflow.ReactionType]int `json:"summary"`
}

// handleReactToComment toggles the caller's reaction of the given type.
func (s *Server) handleReactToComment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadComment(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	p, err := s.store.GetProject(ctx, c.Project)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	pr := principal(r)
	if !access.CanViewProject(pr.Actor(), p) {
		fail(w, http.StatusForbidden, msgNoProjectAccess)
		return
	}
	var req reactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	if !req.Type.IsValid() {
		fail(w, http.StatusBadRequest, "Tipo de reacción no válido")
		return
	}

	active := c.ToggleReaction(pr.User.ID, req.Type, s.now().UTC())
	if err := s.store.UpdateComment(ctx, c); err != nil {
		s.failErr(w, r, err)
		return
	}
	reactions := c.Reactions
	if reactions == nil {
		reactions = []workflow.Reaction{}
	}
	respond(w, http.StatusOK, "Reacción actualizada", reactionResponse{
		Active:    active,
		Reactions: reactions,
		Summary:   c.ReactionSummary(),
	})
}
