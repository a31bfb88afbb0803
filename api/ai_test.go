package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskhub/assistant"
	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/workflow"
)

func TestAI_GenerateTasks(t *testing.T) {
	tests := []struct {
		name        string
		unavailable bool
		responses   []*llm.Response
		err         error
		wantMessage string
		wantSource  assistant.Source
		wantCount   int
		wantModel   string
		wantCalls   int
	}{
		{
			name:        "basic mode without endpoint",
			unavailable: true,
			wantMessage: assistant.MsgGeneratedBasic,
			wantSource:  assistant.SourceBasic,
			wantCount:   6,
			wantModel:   "fallback",
		},
		{
			name: "model reply",
			responses: []*llm.Response{{
				Content: "```json\n" + `{"tasks": [
					{"title": "Configurar CI", "description": "Pipeline de integración continua", "estimatedHours": 5, "priority": "high"},
					{"title": "Diseñar API", "description": "Contratos REST del catálogo", "estimatedHours": 8, "priority": "Urgent"}
				]}` + "\n```",
				Model:    "deepseek-chat",
				Provider: "deepseek",
			}},
			wantMessage: "Tareas generadas con DeepSeek AI",
			wantSource:  assistant.SourceAI,
			wantCount:   2,
			wantModel:   "deepseek-chat",
			wantCalls:   1,
		},
		{
			name:        "endpoint error falls back",
			err:         errors.New("connection refused"),
			wantMessage: assistant.MsgGeneratedFallback,
			wantSource:  assistant.SourceFallback,
			wantCount:   6,
			wantModel:   "fallback",
			wantCalls:   1,
		},
		{
			name:        "unparsable reply falls back",
			responses:   []*llm.Response{{Content: "no json here", Model: "deepseek-chat", Provider: "deepseek"}},
			wantMessage: assistant.MsgGeneratedFallback,
			wantSource:  assistant.SourceFallback,
			wantCount:   6,
			wantModel:   "fallback",
			wantCalls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.llm.Unavailable = tt.unavailable
			env.llm.Responses = tt.responses
			env.llm.Err = tt.err

			rec := env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("dev@test.com"), map[string]any{
				"projectDescription": "<p>Tienda online con <b>carrito</b></p>",
				"projectName":        "Tienda",
				"category":           "Web Development",
			})
			out := expect[generateTasksResponse](t, rec, http.StatusOK, tt.wantMessage)
			assert.Equal(t, tt.wantSource, out.Data.Source)
			assert.Len(t, out.Data.GeneratedTasks, tt.wantCount)
			assert.Equal(t, tt.wantModel, out.Data.AIMetadata.Model)
			assert.Empty(t, out.Data.CreatedTasks)
			assert.Equal(t, tt.wantCalls, env.llm.CallCount())
		})
	}
}

func TestAI_GenerateTasks_ModelReplyNormalised(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Unavailable = false
	env.llm.Responses = []*llm.Response{{
		Content:  `{"tasks": [{"title": "Diseñar API", "description": "Contratos REST", "estimatedHours": -3, "priority": "Urgent"}, {"title": "  "}]}`,
		Model:    "deepseek-chat",
		Provider: "deepseek",
	}}

	rec := env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("dev@test.com"), map[string]any{
		"projectDescription": "<p>Tienda online con <b>carrito</b></p>",
	})
	out := expect[generateTasksResponse](t, rec, http.StatusOK, "Tareas generadas con DeepSeek AI")
	require.Len(t, out.Data.GeneratedTasks, 1)
	assert.Equal(t, workflow.PriorityMedium, out.Data.GeneratedTasks[0].Priority)
	assert.Zero(t, out.Data.GeneratedTasks[0].EstimatedHours)
	assert.Equal(t, "DeepSeek", out.Data.AIMetadata.Provider)

	reqs := env.llm.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
	assert.Contains(t, prompt, "**carrito**")
	assert.NotContains(t, prompt, "<p>")
}

func TestAI_GenerateTasks_Persist(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	env.addMember("pm@test.com", p, "viewer@test.com", workflow.RoleViewer)

	rec := env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("pm@test.com"), map[string]any{
		"projectDescription": "Tienda", "persist": true,
	})
	expect[any](t, rec, http.StatusBadRequest, msgProjectIDRequired)

	rec = env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("viewer@test.com"), map[string]any{
		"projectId": p.ID, "persist": true,
	})
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para crear tareas")

	rec = env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("dev@test.com"), map[string]any{
		"projectId": p.ID,
	})
	expect[any](t, rec, http.StatusForbidden, msgNoProjectAccess)

	rec = env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("pm@test.com"), map[string]any{
		"projectId": p.ID, "persist": true,
	})
	out := expect[generateTasksResponse](t, rec, http.StatusOK, assistant.MsgGeneratedBasic)
	assert.Equal(t, p.ID, out.Data.ProjectID)
	require.Len(t, out.Data.CreatedTasks, 6)

	tasks, err := env.store.TasksForProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 6)
	pending := env.state(workflow.StateTypeTask, workflow.TaskStatePending)
	for _, task := range tasks {
		assert.True(t, task.AIGenerated)
		assert.Equal(t, pending.ID, task.Status)
		assert.Equal(t, env.user("pm@test.com").ID, task.CreatedBy)
		require.NotNil(t, task.AIMetadata)
		assert.InDelta(t, 0.5, task.AIMetadata.Confidence, 1e-9)
		assert.Equal(t, "fallback", task.AIMetadata.EstimationSource)
	}

	off := false
	rec = env.do(http.MethodPut, "/api/projects/"+p.ID+"/settings", env.token("pm@test.com"),
		workflow.SettingsPatch{AIAssistEnabled: &off})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("pm@test.com"), map[string]any{"projectId": p.ID})
	expect[any](t, rec, http.StatusForbidden, msgAIDisabled)
}

func TestAI_GenerateTasks_RequiresDescription(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/ai/generate-tasks", env.token("dev@test.com"), map[string]any{"projectName": "Sin descripción"})
	out := expect[any](t, rec, http.StatusBadRequest, msgValidation)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "projectDescription", out.Errors[0].Field)

	rec = env.do(http.MethodPost, "/api/ai/generate-tasks", "", map[string]any{"projectDescription": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAI_AnalyzeProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	task := env.createTask("pm@test.com", p, map[string]any{})
	env.createTask("pm@test.com", p, map[string]any{})
	env.createTask("pm@test.com", p, map[string]any{})
	env.createTask("pm@test.com", p, map[string]any{})

	done := env.state(workflow.StateTypeTask, workflow.TaskStateCompleted)
	rec := env.do(http.MethodPut, "/api/tasks/"+task.ID+"/status", env.token("pm@test.com"), map[string]any{"statusId": done.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/ai/analyze-project", env.token("pm@test.com"), map[string]any{})
	expect[any](t, rec, http.StatusBadRequest, msgProjectIDRequired)

	rec = env.do(http.MethodPost, "/api/ai/analyze-project", env.token("pm@test.com"), map[string]any{"projectId": p.ID})
	out := expect[analysisResponse](t, rec, http.StatusOK, "Análisis completado")
	a := out.Data.Analysis
	assert.Equal(t, 25, a.HealthScore)
	assert.Equal(t, assistant.HealthPoor, a.OverallHealth)
	assert.Equal(t, workflow.RiskHigh, a.RiskLevel)
	assert.Equal(t, []string{"Progreso lento"}, a.Risks)
	assert.Equal(t, "Proyecto con 25% de progreso", a.Summary)

	stored, err := env.store.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RiskHigh, stored.AIMetadata.RiskLevel)
	assert.NotNil(t, stored.AIMetadata.LastAnalysis)
	assert.Len(t, stored.AIMetadata.Recommendations, 2)
}

func TestAI_EstimateTime(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token("dev@test.com")

	rec := env.do(http.MethodPost, "/api/ai/estimate-time", tok, map[string]any{"complexity": "High"})
	expect[any](t, rec, http.StatusBadRequest, msgValidation)

	description := strings.Repeat("palabra ", 29) + "final"
	rec = env.do(http.MethodPost, "/api/ai/estimate-time", tok, map[string]any{
		"taskDescription": description,
		"complexity":      "high",
	})
	out := expect[estimateResponse](t, rec, http.StatusOK, "Estimación completada")
	assert.InDelta(t, 7.0, out.Data.Estimation.Recommended, 1e-9)
	assert.InDelta(t, 5.0, out.Data.Estimation.Range.Min, 1e-9)
	assert.InDelta(t, 10.0, out.Data.Estimation.Range.Max, 1e-9)
	assert.Equal(t, "Medium", out.Data.Estimation.Confidence)
}

func TestAI_SummaryAndSuggestions(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	env.createTask("pm@test.com", p, map[string]any{})

	rec := env.do(http.MethodPost, "/api/ai/generate-summary", env.token("pm@test.com"), map[string]any{"projectId": p.ID})
	out := expect[summaryResponse](t, rec, http.StatusOK, "Resumen generado")
	require.NotNil(t, out.Data.Summary)
	assert.True(t, strings.HasPrefix(out.Data.Summary.Markdown, "# Resumen del Proyecto: Tienda online"))
	assert.Contains(t, out.Data.Summary.Markdown, "Planificación")
	assert.Contains(t, out.Data.Summary.HTML, "<h1>")
	assert.Equal(t, assistant.SourceBasic, out.Data.Summary.Source)

	rec = env.do(http.MethodPost, "/api/ai/generate-summary", env.token("dev@test.com"), map[string]any{"projectId": p.ID})
	expect[any](t, rec, http.StatusForbidden, msgNoProjectAccess)

	rec = env.do(http.MethodPost, "/api/ai/suggest-improvements", env.token("dev@test.com"), map[string]any{})
	sugg := expect[suggestionsResponse](t, rec, http.StatusOK, "Sugerencias generadas")
	assert.Len(t, sugg.Data.Suggestions, 3)
}
