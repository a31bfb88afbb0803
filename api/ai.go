package api

import (
	"net/http"
	"strings"

	"github.com/c360studio/taskhub/access"
	"github.com/c360studio/taskhub/assistant"
	"github.com/c360studio/taskhub/workflow"
)

const (
	msgProjectIDRequired = "projectId es requerido"
	msgAIDisabled        = "El asistente de IA está deshabilitado en este proyecto"
)

type generateTasksRequest struct {
	ProjectDescription string `json:"projectDescription"`
	ProjectID          string `json:"projectId"`
	ProjectName        string `json:"projectName"`
	Category           string `json:"category"`

	// Persist stores the generated tasks in the project.
	Persist bool `json:"persist"`
}

type generateTasksResponse struct {
	GeneratedTasks []assistant.GeneratedTask `json:"generatedTasks"`
	ProjectID      string                    `json:"projectId,omitempty"`
	AIMetadata     assistant.Metadata        `json:"aiMetadata"`
	Source         assistant.Source          `json:"source"`
	CreatedTasks   []taskView                `json:"createdTasks,omitempty"`
}

// handleGenerateTasks proposes a task breakdown for a project description.
// The response always succeeds: when the model is unavailable or its reply
// is unusable the fixed fallback plan is returned.
func (s *Server) handleGenerateTasks(w http.ResponseWriter, r *http.Request) {
	var req generateTasksRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}

	ctx := r.Context()
	in := assistant.GenerateInput{
		ProjectName: strings.TrimSpace(req.ProjectName),
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.ProjectDescription),
	}

	var project *workflow.Project
	if req.ProjectID != "" {
		p, ok := s.loadProjectByID(w, r, req.ProjectID)
		if !ok {
			return
		}
		if !p.Settings.AIAssistEnabled {
			fail(w, http.StatusForbidden, msgAIDisabled)
			return
		}
		project = p
		if in.ProjectName == "" {
			in.ProjectName = p.Name
		}
		if in.Description == "" {
			in.Description = p.Description
		}
		if in.Category == "" {
			if c, err := s.store.GetCategory(ctx, p.Category); err == nil {
				in.Category = c.Name
			}
		}
	}
	if in.Description == "" {
		s.failErr(w, r, workflow.ValidationErrors{
			{Field: "projectDescription", Message: "projectDescription is required"},
		})
		return
	}
	if req.Persist {
		if project == nil {
			fail(w, http.StatusBadRequest, msgProjectIDRequired)
			return
		}
		if !access.CanCreateTask(principal(r).Actor(), project) {
			fail(w, http.StatusForbidden, "Sin permisos para crear tareas")
			return
		}
	}

	gen := s.assistant.GenerateTasks(ctx, in)
	resp := generateTasksResponse{
		GeneratedTasks: gen.Tasks,
		ProjectID:      req.ProjectID,
		AIMetadata:     gen.Metadata,
		Source:         gen.Source,
	}

	if req.Persist {
		initial, err := s.store.EnsureState(ctx, workflow.StateTypeTask, workflow.TaskStatePending, "Estado inicial de la tarea")
		if err != nil {
			s.failErr(w, r, err)
			return
		}
		tasks, skipped := s.assistant.ToTasks(gen, project.ID, principal(r).User.ID, initial.ID)
		if len(skipped) > 0 {
			s.logger.Warn("Skipped invalid generated tasks", "project_id", project.ID, "count", len(skipped))
		}
		if err := s.store.CreateTasks(ctx, tasks); err != nil {
			s.failErr(w, r, err)
			return
		}
		s.refreshRollup(ctx, project.ID)
		resp.CreatedTasks = s.taskViews(tasks)
	}

	s.logger.Info("Tasks generated",
		"source", gen.Source,
		"provider", gen.Metadata.Provider,
		"model", gen.Metadata.Model,
		"count", len(gen.Tasks),
		"persisted", len(resp.CreatedTasks))
	respond(w, http.StatusOK, gen.Message(), resp)
}

type projectRef struct {
	ProjectID string `json:"projectId"`
}

type analysisResponse struct {
	Analysis assistant.Analysis `json:"analysis"`
}

// handleAnalyzeProject scores the project's progress and stores the result
// in its AI metadata.
func (s *Server) handleAnalyzeProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.projectFromBody(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	tasks, err := s.store.TasksForProject(ctx, p.ID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	a := assistant.AnalyzeProject(tasks)
	assistant.ApplyAnalysis(p, a, s.now().UTC())
	if err := s.store.UpdateProject(ctx, p); err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Análisis completado", analysisResponse{Analysis: a})
}

type estimateRequest struct {
	TaskDescription string `json:"taskDescription"`
	Complexity      string `json:"complexity"`
}

type estimateResponse struct {
	Estimation assistant.Estimation `json:"estimation"`
}

func (s *Server) handleEstimateTime(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failErr(w, r, err)
		return
	}
	if strings.TrimSpace(req.TaskDescription) == "" {
		s.failErr(w, r, workflow.ValidationErrors{
			{Field: "taskDescription", Message: "taskDescription is required"},
		})
		return
	}
	est := assistant.EstimateTime(req.TaskDescription, assistant.ParseComplexity(req.Complexity))
	respond(w, http.StatusOK, "Estimación completada", estimateResponse{Estimation: est})
}

type summaryResponse struct {
	Summary *assistant.Summary `json:"summary"`
}

func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := s.projectFromBody(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	tasks, err := s.store.TasksForProject(ctx, p.ID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	in := assistant.SummaryInput{Project: p, Tasks: tasks}
	if st, err := s.store.GetState(ctx, p.Status); err == nil {
		in.StatusName = st.Name
	}
	sum, err := s.assistant.GenerateSummary(ctx, in)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Resumen generado", summaryResponse{Summary: sum})
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (s *Server) handleSuggestImprovements(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "Sugerencias generadas", suggestionsResponse{Suggestions: assistant.Suggestions()})
}

// projectFromBody loads the project named by {"projectId"} in the body.
func (s *Server) projectFromBody(w http.ResponseWriter, r *http.Request) (*workflow.Project, bool) {
	var ref projectRef
	if err := decodeJSON(w, r, &ref); err != nil {
		s.failErr(w, r, err)
		return nil, false
	}
	if ref.ProjectID == "" {
		fail(w, http.StatusBadRequest, msgProjectIDRequired)
		return nil, false
	}
	return s.loadProjectByID(w, r, ref.ProjectID)
}
