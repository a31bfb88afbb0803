package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/workflow"
)

func TestTasks_CreatePermissions(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	env.addMember("pm@test.com", p, "dev@test.com", workflow.RoleDeveloper)
	env.addMember("pm@test.com", p, "viewer@test.com", workflow.RoleViewer)
	path := "/api/projects/" + p.ID + "/tasks"
	body := map[string]any{"title": "Diseño", "description": "Diseñar la pantalla de login"}

	rec := env.do(http.MethodPost, path, env.token("viewer@test.com"), body)
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para crear tareas")

	rec = env.do(http.MethodPost, path, env.token("admin@test.com"), body)
	expect[any](t, rec, http.StatusCreated, "Tarea creada exitosamente")

	task := env.createTask("dev@test.com", p, map[string]any{"priority": "Critical"})
	assert.Equal(t, env.user("dev@test.com").ID, task.CreatedBy)
	assert.Equal(t, env.state(workflow.StateTypeTask, workflow.TaskStatePending).ID, task.Status)
	assert.Equal(t, workflow.PriorityCritical, task.Priority)
	assert.Nil(t, task.CompletedAt)

	rec = env.do(http.MethodPost, path, env.token("pm@test.com"), map[string]any{
		"title": "Diseño", "description": "Diseñar la pantalla de login",
		"assignedTo": env.user("admin@test.com").ID,
	})
	expect[any](t, rec, http.StatusBadRequest, msgAssigneeNotMember)

	rec = env.do(http.MethodPost, path, env.token("pm@test.com"), map[string]any{"title": "X"})
	out := expect[any](t, rec, http.StatusBadRequest, msgValidation)
	assert.NotEmpty(t, out.Errors)

	canCreate := false
	rec = env.do(http.MethodPut, "/api/projects/"+p.ID+"/settings", env.token("pm@test.com"),
		workflow.SettingsPatch{AllowTaskCreation: &canCreate})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, path, env.token("dev@test.com"), body)
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para crear tareas")
	rec = env.do(http.MethodPost, path, env.token("pm@test.com"), body)
	expect[any](t, rec, http.StatusCreated, "Tarea creada exitosamente")
}

func TestTasks_StatusCompletion(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	env.addMember("pm@test.com", p, "dev@test.com", workflow.RoleDeveloper)
	env.addMember("pm@test.com", p, "viewer@test.com", workflow.RoleViewer)
	task := env.createTask("pm@test.com", p, map[string]any{"assignedTo": env.user("dev@test.com").ID})
	env.createTask("pm@test.com", p, map[string]any{})
	path := "/api/tasks/" + task.ID + "/status"

	assert.Contains(t, env.events.Subjects(), events.SubjectTaskAssigned)

	done := env.state(workflow.StateTypeTask, workflow.TaskStateCompleted)
	inProgress := env.state(workflow.StateTypeTask, workflow.TaskStateInProgress)

	rec := env.do(http.MethodPut, path, env.token("viewer@test.com"), map[string]any{"statusId": done.ID})
	expect[any](t, rec, http.StatusForbidden, "Solo el asignado o creador puede cambiar el estado")

	projectState := env.state(workflow.StateTypeProject, workflow.ProjectStateCompleted)
	rec = env.do(http.MethodPut, path, env.token("dev@test.com"), map[string]any{"statusId": projectState.ID})
	expect[any](t, rec, http.StatusBadRequest, "Estado no válido para tareas")

	rec = env.do(http.MethodPut, path, env.token("dev@test.com"), map[string]any{"statusId": "missing"})
	expect[any](t, rec, http.StatusBadRequest, "Estado no válido para tareas")

	rec = env.do(http.MethodPut, path, env.token("dev@test.com"), map[string]any{"statusId": done.ID})
	out := expect[taskResponseBody](t, rec, http.StatusOK, "Estado de tarea actualizado")
	require.NotNil(t, out.Data.Task.CompletedAt)
	assert.Equal(t, done.ID, out.Data.Task.Status)
	assert.Contains(t, env.events.Subjects(), events.SubjectTaskCompleted)

	stored, err := env.store.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.AIMetadata.HealthScore, "one of two tasks completed")

	rec = env.do(http.MethodPut, path, env.token("dev@test.com"), map[string]any{"statusId": inProgress.ID})
	out = expect[taskResponseBody](t, rec, http.StatusOK, "Estado de tarea actualizado")
	assert.Nil(t, out.Data.Task.CompletedAt)

	stored, err = env.store.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.AIMetadata.HealthScore)
}

func TestTasks_EnforcedTransitions(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, o *Options) { o.EnforceTransitions = true })
	pending := env.state(workflow.StateTypeTask, workflow.TaskStatePending)
	inProgress := env.state(workflow.StateTypeTask, workflow.TaskStateInProgress)
	done := env.state(workflow.StateTypeTask, workflow.TaskStateCompleted)
	pending.AllowedTransitions = []string{inProgress.ID}
	require.NoError(t, env.store.UpdateState(context.Background(), pending))

	p := env.createProject("pm@test.com", "Tienda online")
	task := env.createTask("pm@test.com", p, map[string]any{})
	path := "/api/tasks/" + task.ID + "/status"

	rec := env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"statusId": done.ID})
	expect[any](t, rec, http.StatusBadRequest, msgTransitionNotAllowed)

	rec = env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"statusId": inProgress.ID})
	expect[any](t, rec, http.StatusOK, "Estado de tarea actualizado")

	rec = env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"statusId": done.ID})
	out := expect[taskResponseBody](t, rec, http.StatusOK, "Estado de tarea actualizado")
	assert.NotNil(t, out.Data.Task.CompletedAt)
}

func TestTasks_AssignUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	env.addMember("pm@test.com", p, "dev@test.com", workflow.RoleDeveloper)
	task := env.createTask("pm@test.com", p, map[string]any{})
	path := "/api/tasks/" + task.ID
	dev := env.user("dev@test.com")

	rec := env.do(http.MethodPut, path+"/assign", env.token("dev@test.com"), map[string]any{"assignedTo": dev.ID})
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para asignar tareas")

	rec = env.do(http.MethodPut, path+"/assign", env.token("pm@test.com"), map[string]any{"assignedTo": env.user("viewer@test.com").ID})
	expect[any](t, rec, http.StatusBadRequest, msgAssigneeNotMember)

	rec = env.do(http.MethodPut, path+"/assign", env.token("pm@test.com"), map[string]any{"assignedTo": dev.ID})
	out := expect[taskResponseBody](t, rec, http.StatusOK, "Tarea asignada exitosamente")
	assert.Equal(t, dev.ID, out.Data.Task.AssignedTo)

	rec = env.do(http.MethodGet, "/api/tasks/my-tasks", env.token("dev@test.com"), nil)
	mine := expect[myTasksResponseBody](t, rec, http.StatusOK, "Mis tareas obtenidas")
	require.Len(t, mine.Data.Tasks, 1)
	assert.Equal(t, task.ID, mine.Data.Tasks[0].ID)
	assert.Equal(t, 1, mine.Data.Stats.Total)
	assert.Equal(t, 1, mine.Data.Stats.Pending)

	rec = env.do(http.MethodPut, path, env.token("dev@test.com"), map[string]any{
		"title":    "Título editado",
		"subtasks": []workflow.Subtask{{Title: "a", Completed: true}, {Title: "b"}},
	})
	upd := expect[taskViewBody](t, rec, http.StatusOK, "Tarea actualizada exitosamente")
	assert.Equal(t, "Título editado", upd.Data.Task.Title)
	assert.Equal(t, 50, upd.Data.Task.SubtaskProgress)

	rec = env.do(http.MethodDelete, path, env.token("dev@test.com"), nil)
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para eliminar esta tarea")

	rec = env.do(http.MethodDelete, path, env.token("pm@test.com"), nil)
	expect[any](t, rec, http.StatusOK, "Tarea eliminada exitosamente")

	rec = env.do(http.MethodGet, path, env.token("pm@test.com"), nil)
	expect[any](t, rec, http.StatusNotFound, msgTaskNotFound)
}

func TestTasks_UpdateClearsDates(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	task := env.createTask("pm@test.com", p, map[string]any{"startDate": "2030-01-01", "dueDate": "2030-02-01"})
	require.NotNil(t, task.DueDate)
	path := "/api/tasks/" + task.ID

	rec := env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"title": "Sin cambio de fechas"})
	upd := expect[taskViewBody](t, rec, http.StatusOK, "Tarea actualizada exitosamente")
	require.NotNil(t, upd.Data.Task.DueDate)
	require.NotNil(t, upd.Data.Task.StartDate)

	rec = env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"dueDate": nil, "startDate": ""})
	upd = expect[taskViewBody](t, rec, http.StatusOK, "Tarea actualizada exitosamente")
	assert.Nil(t, upd.Data.Task.DueDate)
	assert.Nil(t, upd.Data.Task.StartDate)
}

func TestTasks_ListProjectTasks(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	late := env.createTask("pm@test.com", p, map[string]any{"title": "Tarea tardía", "dueDate": "2030-06-01"})
	early := env.createTask("pm@test.com", p, map[string]any{"title": "Tarea temprana", "dueDate": "2030-01-01"})
	undated := env.createTask("pm@test.com", p, map[string]any{"title": "Tarea sin fecha", "priority": "Critical"})

	rec := env.do(http.MethodGet, "/api/projects/"+p.ID+"/tasks", env.token("pm@test.com"), nil)
	out := expect[tasksResponseBody](t, rec, http.StatusOK, "Tareas obtenidas")
	require.Len(t, out.Data.Tasks, 3)
	assert.Equal(t, early.ID, out.Data.Tasks[0].ID)
	assert.Equal(t, late.ID, out.Data.Tasks[1].ID)
	assert.Equal(t, undated.ID, out.Data.Tasks[2].ID)
	require.NotNil(t, out.Pagination)
	assert.Equal(t, 3, out.Pagination.Total)
	assert.Equal(t, 10, out.Pagination.Limit)
	assert.Equal(t, 1, out.Pagination.Page)

	rec = env.do(http.MethodGet, "/api/projects/"+p.ID+"/tasks?search=temprana", env.token("pm@test.com"), nil)
	out = expect[tasksResponseBody](t, rec, http.StatusOK, "Tareas obtenidas")
	require.Len(t, out.Data.Tasks, 1)
	assert.Equal(t, early.ID, out.Data.Tasks[0].ID)
	assert.Equal(t, "temprana", out.Data.Filters.Search)

	rec = env.do(http.MethodGet, "/api/tasks/"+early.ID, env.token("dev@test.com"), nil)
	expect[any](t, rec, http.StatusForbidden, "Sin acceso a la tarea")
}

type taskViewBody struct {
	Task struct {
		*workflow.Task
		SubtaskProgress int `json:"subtaskProgress"`
	} `json:"task"`
}

type tasksResponseBody struct {
	Tasks   []*workflow.Task `json:"tasks"`
	Filters taskFilters      `json:"filters"`
}

type myTasksResponseBody struct {
	Tasks []*workflow.Task `json:"tasks"`
	Stats struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Pending   int `json:"pending"`
		Overdue   int `json:"overdue"`
	} `json:"stats"`
}
