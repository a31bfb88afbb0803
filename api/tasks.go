package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/taskhub/access"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

const msgAssigneeNotMember = "El usuario debe ser miembro del proyecto"

// taskView adds derived fields to a task.
type taskView struct {
	*workflow.Task
	DaysRemaining   *int `json:"daysRemaining"`
	IsOverdue       bool `json:"isOverdue"`
	SubtaskProgress int  `json:"subtaskProgress"`
}

func (s *Server) taskView(t *workflow.Task) taskView {
	now := s.now()
	return taskView{
		Task:            t,
		DaysRemaining:   t.DaysRemaining(now),
		IsOverdue:       t.IsOverdue(now),
		SubtaskProgress: t.SubtaskProgress(),
	}
}

func (s *Server) taskViews(tasks []*workflow.Task) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, s.taskView(t))
	}
	return views
}

// loadTask fetches the {id} task and its project and checks the caller may
// view the project.
func (s *Server) loadTask(w http.ResponseWriter, r *http.Request) (*workflow.Task, *workflow.Project, bool) {
	ctx := r.Context()
	t, err := s.store.GetTask(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !t.IsActive) {
		fail(w, http.StatusNotFound, msgTaskNotFound)
		return nil, nil, false
	}
	if err != nil {
		s.failErr(w, r, err)
		return nil, nil, false
	}
	p, err := s.store.GetProject(ctx, t.Project)
	if errors.Is(err, storage.ErrNotFound) {
		fail(w, http.StatusNotFound, msgProjectNotFound)
		return nil, nil, false
	}
	if err != nil {
		s.failErr(w, r, err)
		return nil, nil, false
	}
	if !access.CanViewProject(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Sin acceso a la tarea")
		return nil, nil, false
	}
	return t, p, true
}

type taskFilters struct {
	Status     string            `json:"status,omitempty"`
	Priority   workflow.Priority `json:"priority,omitempty"`
	AssignedTo string            `json:"assignedTo,omitempty"`
	Search     string            `json:"search,omitempty"`
}

func taskFilterParams(r *http.Request) taskFilters {
	q := r.URL.Query()
	return taskFilters{
		Status:     q.Get("status"),
		Priority:   workflow.ParsePriority(q.Get("priority"), ""),
		AssignedTo: q.Get("assignedTo"),
		Search:     q.Get("search"),
	}
}

type tasksResponse struct {
	Tasks   []taskView  `json:"tasks"`
	Filters taskFilters `json:"filters"`
}

// handleListProjectTasks lists a project's tasks by due date, then
// priority.
func (s *Server) handleListProjectTasks(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	filters := taskFilterParams(r)
	pg := pageParams(r, 10)
	res, err := s.store.ListTasks(r.Context(), storage.TaskFilter{
		Project:    p.ID,
		AssignedTo: filters.AssignedTo,
		Status:     filters.Status,
		Priority:   filters.Priority,
		Search:     filters.Search,
	}, pg)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	respondPage(w, "Tareas obtenidas", tasksResponse{Tasks: s.taskViews(res.Items), Filters: filters},
		newPagination(pg, res.Total))
}

type myTasksResponse struct {
	Tasks []taskView         `json:"tasks"`
	Stats storage.TaskCounts `json:"stats"`
}

// handleMyTasks lists the tasks assigned to the caller across projects.
func (s *Server) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := principal(r).User.ID
	filters := taskFilterParams(r)
	pg := pageParams(r, 10)
	res, err := s.store.ListTasks(ctx, storage.TaskFilter{
		AssignedTo: me,
		Status:     filters.Status,
		Priority:   filters.Priority,
		Search:     filters.Search,
	}, pg)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	stats, err := s.store.CountTasks(ctx, storage.TaskFilter{AssignedTo: me}, s.now())
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	respondPage(w, "Mis tareas obtenidas", myTasksResponse{Tasks: s.taskViews(res.Items), Stats: stats},
		newPagination(pg, res.Total))
}

type taskRequest struct {
	Title          *string               `json:"title"`
	Description    *string               `json:"description"`
	AssignedTo     *string               `json:"assignedTo"`
	Priority       *string               `json:"priority"`
	EstimatedHours *float64              `json:"estimatedHours"`
	ActualHours    *float64              `json:"actualHours"`
	StartDate      Date                  `json:"startDate"`
	DueDate        Date                  `json:"dueDate"`
	Tags           []string              `json:"tags"`
	Subtasks       []workflow.Subtask    `json:"subtasks"`
	Dependencies   []workflow.Dependency `json:"dependencies"`
}

// apply copies the editable fields. Assignment goes through its own
// endpoint after creation.
func (req taskRequest) apply(t *workflow.Task) {
	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = strings.TrimSpace(*req.Description)
	}
	if req.Priority != nil {
		t.Priority = workflow.Priority(*req.Priority)
	}
	if req.EstimatedHours != nil {
		t.EstimatedHours = *req.EstimatedHours
	}
	if req.ActualHours != nil {
		t.ActualHours = *req.ActualHours
	}
	if req.StartDate.Set {
		t.StartDate = req.StartDate.Ptr()
	}
	if req.DueDate.Set {
		t.DueDate = req.DueDate.Ptr()
	}
	if req.Tags != nil {
		t.Tags = trimTags(req.Tags)
	}
	if req.Subtasks != nil {
		t.Subtasks = req.Subtasks
	}
	if req.Dependencies != nil {
		t.Dependencies = req.Dependencies
	}
}

type taskResponse struct {
	Task taskView `json:"task"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	pr := principal(r)
	if !access.CanCreateTask(pr.Actor(), p) {
		fail(w, http.StatusForbidden, "Sin permisos para crear tareas")
		return
	}
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	t := &workflow.Task{
		Project:   p.ID,
		CreatedBy: pr.User.ID,
		Priority:  workflow.PriorityMedium,
		IsActive:  true,
		Tags:      []string{},
	}
	req.apply(t)
	if req.AssignedTo != nil && *req.AssignedTo != "" {
		if !p.IsParticipant(*req.AssignedTo) {
			fail(w, http.StatusBadRequest, msgAssigneeNotMember)
			return
		}
		t.AssignedTo = *req.AssignedTo
	}
	if err := t.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	initial, err := s.store.EnsureState(ctx, workflow.StateTypeTask, workflow.TaskStatePending, "Estado inicial de la tarea")
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	t.Status = initial.ID
	if err := s.store.CreateTask(ctx, t); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.refreshRollup(ctx, p.ID)
	if t.AssignedTo != "" {
		s.events.Publish(ctx, events.SubjectTaskAssigned, pr.User.ID,
			events.TaskAssigned{TaskID: t.ID, ProjectID: p.ID, AssignedTo: t.AssignedTo})
	}
	respond(w, http.StatusCreated, "Tarea creada exitosamente", taskResponse{Task: s.taskView(t)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, _, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, "Tarea obtenida", taskResponse{Task: s.taskView(t)})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if !access.CanEditTask(principal(r).Actor(), p, t) {
		fail(w, http.StatusForbidden, "Sin permisos para editar esta tarea")
		return
	}
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	req.apply(t)
	if err := t.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := s.store.UpdateTask(ctx, t); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.refreshRollup(ctx, p.ID)
	respond(w, http.StatusOK, "Tarea actualizada exitosamente", taskResponse{Task: s.taskView(t)})
}

// handleDeleteTask deactivates the task.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	if !access.CanDeleteTask(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Sin permisos para eliminar esta tarea")
		return
	}
	ctx := r.Context()
	t.IsActive = false
	if err := s.store.UpdateTask(ctx, t); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.refreshRollup(ctx, p.ID)
	respond(w, http.StatusOK, "Tarea eliminada exitosamente", nil)
}

// handleChangeTaskStatus moves a task to another state. Entering a final
// state stamps completedAt; leaving it clears the stamp.
func (s *Server) handleChangeTaskStatus(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	pr := principal(r)
	if !access.CanChangeTaskStatus(pr.Actor(), p, t) {
		fail(w, http.StatusForbidden, "Solo el asignado o creador puede cambiar el estado")
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	target, current, err := s.transitionStates(ctx, t.Status, req.StatusID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	wasCompleted := t.IsCompleted()
	err = workflow.ApplyTaskStatus(t, current, target, s.transitionOptions())
	switch {
	case errors.Is(err, workflow.ErrInvalidState):
		fail(w, http.StatusBadRequest, "Estado no válido para tareas")
		return
	case errors.Is(err, workflow.ErrTransitionNotAllowed):
		fail(w, http.StatusBadRequest, msgTransitionNotAllowed)
		return
	case err != nil:
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateTask(ctx, t); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.refreshRollup(ctx, p.ID)
	if t.IsCompleted() && !wasCompleted {
		s.events.Publish(ctx, events.SubjectTaskCompleted, pr.User.ID, events.TaskCompleted{
			TaskID:      t.ID,
			ProjectID:   p.ID,
			Title:       t.Title,
			CompletedAt: *t.CompletedAt,
		})
	}
	respond(w, http.StatusOK, "Estado de tarea actualizado", taskResponse{Task: s.taskView(t)})
}

type assignRequest struct {
	AssignedTo string `json:"assignedTo"`
}

// handleAssignTask sets or clears the assignee. The assignee must be the
// project owner or a member.
func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	pr := principal(r)
	if !access.CanAssignTask(pr.Actor(), p) {
		fail(w, http.StatusForbidden, "Sin permisos para asignar tareas")
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	if req.AssignedTo != "" && !p.IsParticipant(req.AssignedTo) {
		fail(w, http.StatusBadRequest, msgAssigneeNotMember)
		return
	}

	ctx := r.Context()
	changed := t.AssignedTo != req.AssignedTo
	t.AssignedTo = req.AssignedTo
	if err := s.store.UpdateTask(ctx, t); err != nil {
		s.failErr(w, r, err)
		return
	}
	if changed && t.AssignedTo != "" {
		s.events.Publish(ctx, events.SubjectTaskAssigned, pr.User.ID,
			events.TaskAssigned{TaskID: t.ID, ProjectID: p.ID, AssignedTo: t.AssignedTo})
	}
	respond(w, http.StatusOK, "Tarea asignada exitosamente", taskResponse{Task: s.taskView(t)})
}
