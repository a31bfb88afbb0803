package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/taskhub/access"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

// projectView adds the derived fields clients display next to a project.
type projectView struct {
	*workflow.Project
	DaysRemaining *int `json:"daysRemaining"`
	IsOverdue     bool `json:"isOverdue"`
}

func (s *Server) projectView(p *workflow.Project, states map[string]*workflow.State) projectView {
	now := s.now()
	return projectView{
		Project:       p,
		DaysRemaining: p.DaysRemaining(now),
		IsOverdue:     p.IsOverdue(now, states[p.Status]),
	}
}

// stateIndex loads every state keyed by ID.
func (s *Server) stateIndex(ctx context.Context) (map[string]*workflow.State, error) {
	states, err := s.store.ListStates(ctx, "", false)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]*workflow.State, len(states))
	for _, st := range states {
		idx[st.ID] = st
	}
	return idx, nil
}

// loadProject fetches the {id} project and checks the caller may view it.
// It writes the failure response and returns false when not.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*workflow.Project, bool) {
	return s.loadProjectByID(w, r, chi.URLParam(r, "id"))
}

func (s *Server) loadProjectByID(w http.ResponseWriter, r *http.Request, id string) (*workflow.Project, bool) {
	p, err := s.store.GetProject(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !p.IsActive) {
		fail(w, http.StatusNotFound, msgProjectNotFound)
		return nil, false
	}
	if err != nil {
		s.failErr(w, r, err)
		return nil, false
	}
	if !access.CanViewProject(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, msgNoProjectAccess)
		return nil, false
	}
	return p, true
}

// ----------------------------------------------------------------------------
// GET /api/projects
// ----------------------------------------------------------------------------

type projectFilters struct {
	Status   string            `json:"status,omitempty"`
	Priority workflow.Priority `json:"priority,omitempty"`
	Category string            `json:"category,omitempty"`
	Search   string            `json:"search,omitempty"`
}

type projectListResponse struct {
	Projects []projectView         `json:"projects"`
	Stats    storage.ProjectCounts `json:"stats"`
	Filters  projectFilters        `json:"filters"`
}

// handleListProjects lists the projects the caller owns or belongs to.
// Admins see every project.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := principal(r).Actor()
	q := r.URL.Query()
	filters := projectFilters{
		Status:   q.Get("status"),
		Priority: workflow.ParsePriority(q.Get("priority"), ""),
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	f := storage.ProjectFilter{
		Status:   filters.Status,
		Priority: filters.Priority,
		Category: filters.Category,
		Search:   filters.Search,
	}
	if !actor.IsAdmin() {
		f.MemberOf = actor.UserID
	}
	p := pageParams(r, 10)

	var (
		res    storage.Result[workflow.Project]
		stats  storage.ProjectCounts
		states map[string]*workflow.State
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		res, err = s.store.ListProjects(gctx, f, p)
		return err
	})
	g.Go(func() (err error) {
		stats, err = s.store.CountProjects(gctx, actor.UserID, s.now())
		return err
	})
	g.Go(func() (err error) {
		states, err = s.stateIndex(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.failErr(w, r, err)
		return
	}

	views := make([]projectView, 0, len(res.Items))
	for _, proj := range res.Items {
		views = append(views, s.projectView(proj, states))
	}
	respondPage(w, "Proyectos obtenidos exitosamente",
		projectListResponse{Projects: views, Stats: stats, Filters: filters},
		newPagination(p, res.Total))
}

// ----------------------------------------------------------------------------
// POST /api/projects
// ----------------------------------------------------------------------------

type projectRequest struct {
	Name           *string                 `json:"name"`
	Description    *string                 `json:"description"`
	Category       *string                 `json:"category"`
	Priority       *string                 `json:"priority"`
	StartDate      Date                    `json:"startDate"`
	EndDate        Date                    `json:"endDate"`
	EstimatedHours *float64                `json:"estimatedHours"`
	ActualHours    *float64                `json:"actualHours"`
	Budget         *float64                `json:"budget"`
	Tags           []string                `json:"tags"`
	Settings       *workflow.SettingsPatch `json:"settings"`
}

func (req projectRequest) apply(p *workflow.Project) {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Priority != nil {
		p.Priority = workflow.Priority(*req.Priority)
	}
	if req.StartDate.Set {
		p.StartDate = req.StartDate.Ptr()
	}
	if req.EndDate.Set {
		p.EndDate = req.EndDate.Ptr()
	}
	if req.EstimatedHours != nil {
		p.EstimatedHours = *req.EstimatedHours
	}
	if req.ActualHours != nil {
		p.ActualHours = *req.ActualHours
	}
	if req.Budget != nil {
		p.Budget = *req.Budget
	}
	if req.Tags != nil {
		p.Tags = trimTags(req.Tags)
	}
	if req.Settings != nil {
		req.Settings.Apply(&p.Settings)
	}
}

type projectResponse struct {
	Project projectView `json:"project"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	pr := principal(r)
	actor := pr.Actor()
	if !access.CanCreateProject(actor) {
		fail(w, http.StatusForbidden, "Sin permisos para crear proyectos")
		return
	}
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	now := s.now().UTC()
	p := &workflow.Project{
		Owner:    actor.UserID,
		Priority: workflow.PriorityMedium,
		IsActive: true,
		Tags:     []string{},
		Settings: workflow.DefaultProjectSettings(),
		AIMetadata: workflow.ProjectAIMetadata{
			RiskLevel: workflow.RiskLow,
		},
		Members: []workflow.Member{{
			User:        actor.UserID,
			Role:        pr.User.GlobalRole,
			RoleName:    pr.User.RoleName,
			JoinedAt:    now,
			Permissions: workflow.DefaultPermissions(pr.User.RoleName),
		}},
	}
	req.apply(p)
	if err := p.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	if !s.validCategory(ctx, p.Category) {
		fail(w, http.StatusBadRequest, "Categoría no válida")
		return
	}
	initial, err := s.store.EnsureState(ctx, workflow.StateTypeProject, workflow.ProjectStatePlanning, "Estado inicial del proyecto")
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	p.Status = initial.ID

	if err := s.store.CreateProject(ctx, p); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.logger.Info("Project created", "project_id", p.ID, "owner", p.Owner)
	respond(w, http.StatusCreated, "Proyecto creado exitosamente",
		projectResponse{Project: s.projectView(p, map[string]*workflow.State{initial.ID: initial})})
}

func (s *Server) validCategory(ctx context.Context, id string) bool {
	c, err := s.store.GetCategory(ctx, id)
	return err == nil && c.IsActive
}

func trimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// GET /api/projects/{id}
// ----------------------------------------------------------------------------

type commentStats struct {
	Total  int                 `json:"total"`
	Recent []*workflow.Comment `json:"recent"`
}

type projectStats struct {
	Tasks    storage.TaskCounts `json:"tasks"`
	Comments commentStats       `json:"comments"`
	Progress int                `json:"progress"`
}

type projectDetailResponse struct {
	Project projectView   `json:"project"`
	Stats   *projectStats `json:"stats,omitempty"`
}

// handleGetProject returns one project. ?stats=true adds task and comment
// aggregates.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	states, err := s.stateIndex(ctx)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	resp := projectDetailResponse{Project: s.projectView(p, states)}
	if boolParam(r, "stats") {
		stats, err := s.projectStats(ctx, p.ID)
		if err != nil {
			s.failErr(w, r, err)
			return
		}
		resp.Stats = stats
	}
	respond(w, http.StatusOK, "Proyecto obtenido exitosamente", resp)
}

func (s *Server) projectStats(ctx context.Context, projectID string) (*projectStats, error) {
	var st projectStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Tasks, err = s.store.CountTasks(gctx, storage.TaskFilter{Project: projectID}, s.now())
		return err
	})
	g.Go(func() (err error) {
		st.Comments.Total, err = s.store.CountComments(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		st.Comments.Recent, err = s.store.RecentComments(gctx, projectID, 5)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if st.Comments.Recent == nil {
		st.Comments.Recent = []*workflow.Comment{}
	}
	st.Progress = workflow.TaskRollup{Total: st.Tasks.Total, Completed: st.Tasks.Completed}.Progress()
	return &st, nil
}

// ----------------------------------------------------------------------------
// PUT, DELETE /api/projects/{id}
// ----------------------------------------------------------------------------

// handleUpdateProject edits project fields. Ownership, membership and status
// have their own endpoints and are not accepted here.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !access.CanEditProject(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Sin permisos para editar este proyecto")
		return
	}
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	oldCategory := p.Category
	req.apply(p)
	if err := p.Validate(); err != nil {
		s.failErr(w, r, err)
		return
	}
	ctx := r.Context()
	if p.Category != oldCategory && !s.validCategory(ctx, p.Category) {
		fail(w, http.StatusBadRequest, "Categoría no válida")
		return
	}
	if err := s.store.UpdateProject(ctx, p); err != nil {
		s.failErr(w, r, err)
		return
	}
	states, err := s.stateIndex(ctx)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Proyecto actualizado exitosamente", projectResponse{Project: s.projectView(p, states)})
}

// handleDeleteProject deactivates the project.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !access.CanDeleteProject(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Sin permisos para eliminar este proyecto")
		return
	}
	p.IsActive = false
	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.logger.Info("Project deleted", "project_id", p.ID, "by", principal(r).User.ID)
	respond(w, http.StatusOK, "Proyecto eliminado exitosamente", nil)
}

// ----------------------------------------------------------------------------
// Members
// ----------------------------------------------------------------------------

type addMemberRequest struct {
	UserID      string                     `json:"userId"`
	RoleID      string                     `json:"roleId"`
	Permissions *workflow.PermissionsPatch `json:"permissions"`
}

type membersResponse struct {
	Members []workflow.Member `json:"members"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !access.CanManageMembers(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Solo el propietario puede agregar miembros")
		return
	}
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	u, err := s.store.GetUser(ctx, req.UserID)
	if err != nil || !u.IsActive {
		fail(w, http.StatusBadRequest, "Usuario no válido")
		return
	}
	role, err := s.store.GetRole(ctx, req.RoleID)
	if err != nil || !role.IsActive {
		fail(w, http.StatusBadRequest, "Rol no válido")
		return
	}
	if p.Member(u.ID) != nil {
		fail(w, http.StatusBadRequest, "El usuario ya es miembro del proyecto")
		return
	}

	m := workflow.Member{
		User:        u.ID,
		Role:        role.ID,
		RoleName:    role.Name,
		JoinedAt:    s.now().UTC(),
		Permissions: workflow.DefaultPermissions(role.Name),
	}
	if req.Permissions != nil {
		req.Permissions.Apply(&m.Permissions)
	}
	p.Members = append(p.Members, m)
	if err := s.store.UpdateProject(ctx, p); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Miembro agregado exitosamente", membersResponse{Members: p.Members})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !access.CanManageMembers(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Solo el propietario puede remover miembros")
		return
	}
	userID := chi.URLParam(r, "userId")
	if p.IsOwner(userID) {
		fail(w, http.StatusBadRequest, "No se puede remover al propietario del proyecto")
		return
	}
	if !p.RemoveMember(userID) {
		fail(w, http.StatusBadRequest, "El usuario no es miembro del proyecto")
		return
	}
	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Miembro removido exitosamente", membersResponse{Members: p.Members})
}

type memberResponse struct {
	Member workflow.Member `json:"member"`
}

func (s *Server) handleUpdateMemberPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !access.CanManageMembers(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Solo el propietario puede cambiar permisos")
		return
	}
	var patch workflow.PermissionsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.failErr(w, r, err)
		return
	}
	m := p.Member(chi.URLParam(r, "userId"))
	if m == nil {
		fail(w, http.StatusBadRequest, "Usuario no es miembro del proyecto")
		return
	}
	patch.Apply(&m.Permissions)
	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Permisos actualizados exitosamente", memberResponse{Member: *m})
}

// ----------------------------------------------------------------------------
// Status and settings
// ----------------------------------------------------------------------------

type statusRequest struct {
	StatusID string `json:"statusId"`
}

func (s *Server) handleChangeProjectStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	pr := principal(r)
	if !access.CanChangeProjectStatus(pr.Actor(), p) {
		fail(w, http.StatusForbidden, "Sin permisos para cambiar el estado")
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	target, current, err := s.transitionStates(ctx, p.Status, req.StatusID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	from := p.Status
	err = workflow.ApplyProjectStatus(p, current, target, s.transitionOptions())
	switch {
	case errors.Is(err, workflow.ErrInvalidState):
		fail(w, http.StatusBadRequest, "Estado no válido para proyectos")
		return
	case errors.Is(err, workflow.ErrTransitionNotAllowed):
		fail(w, http.StatusBadRequest, msgTransitionNotAllowed)
		return
	case err != nil:
		s.failErr(w, r, err)
		return
	}
	if err := s.store.UpdateProject(ctx, p); err != nil {
		s.failErr(w, r, err)
		return
	}
	if from != p.Status {
		s.events.Publish(ctx, events.SubjectProjectStatusChanged, pr.User.ID,
			events.ProjectStatusChanged{ProjectID: p.ID, From: from, To: p.Status})
	}
	respond(w, http.StatusOK, "Estado actualizado exitosamente",
		projectResponse{Project: s.projectView(p, map[string]*workflow.State{target.ID: target})})
}

const msgTransitionNotAllowed = "Transición de estado no permitida"

// transitionStates loads the target state and the current one. A missing
// target yields a nil target, which the apply functions reject; a missing
// current state is tolerated.
func (s *Server) transitionStates(ctx context.Context, currentID, targetID string) (target, current *workflow.State, err error) {
	target, err = s.store.GetState(ctx, targetID)
	if errors.Is(err, storage.ErrNotFound) || targetID == "" {
		target, err = nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	current, err = s.store.GetState(ctx, currentID)
	if errors.Is(err, storage.ErrNotFound) || currentID == "" {
		current, err = nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return target, current, nil
}

func (s *Server) transitionOptions() workflow.TransitionOptions {
	return workflow.TransitionOptions{EnforceTransitions: s.opts.EnforceTransitions, Now: s.now().UTC()}
}

type settingsResponse struct {
	Settings workflow.ProjectSettings `json:"settings"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !access.CanUpdateSettings(principal(r).Actor(), p) {
		fail(w, http.StatusForbidden, "Solo el propietario puede cambiar configuraciones")
		return
	}
	var patch workflow.SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.failErr(w, r, err)
		return
	}
	patch.Apply(&p.Settings)
	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Configuraciones actualizadas", settingsResponse{Settings: p.Settings})
}

// refreshRollup recomputes the project's health score and actual hours
// from its tasks. Failures are logged; the triggering request already
// succeeded.
func (s *Server) refreshRollup(ctx context.Context, projectID string) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("Rollup: load project", "project_id", projectID, "error", err)
		return
	}
	tasks, err := s.store.TasksForProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("Rollup: load tasks", "project_id", projectID, "error", err)
		return
	}
	p.ApplyTaskRollup(workflow.Rollup(tasks))
	if err := s.store.UpdateProject(ctx, p); err != nil {
		s.logger.Warn("Rollup: update project", "project_id", projectID, "error", err)
	}
}
