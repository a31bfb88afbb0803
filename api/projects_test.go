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

func TestProjects_Create(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/projects", env.token("dev@test.com"), map[string]any{
		"name": "Proyecto", "description": "Descripción suficientemente larga", "category": env.seeded.Categories[0].ID,
	})
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para crear proyectos")

	rec = env.do(http.MethodPost, "/api/projects", env.token("pm@test.com"), map[string]any{
		"name": "Proyecto", "description": "Descripción suficientemente larga", "category": "missing",
	})
	expect[any](t, rec, http.StatusBadRequest, "Categoría no válida")

	rec = env.do(http.MethodPost, "/api/projects", env.token("pm@test.com"), map[string]any{
		"name": "P", "description": "corta", "category": env.seeded.Categories[0].ID,
		"startDate": "2025-06-01", "endDate": "2025-05-01",
	})
	out := expect[any](t, rec, http.StatusBadRequest, "Errores de validación")
	assert.GreaterOrEqual(t, len(out.Errors), 3)

	p := env.createProject("pm@test.com", "Tienda online")
	pm := env.user("pm@test.com")
	assert.Equal(t, pm.ID, p.Owner)
	assert.Equal(t, env.state(workflow.StateTypeProject, workflow.ProjectStatePlanning).ID, p.Status)
	assert.Equal(t, workflow.PriorityHigh, p.Priority)
	assert.Equal(t, workflow.RiskLow, p.AIMetadata.RiskLevel)
	require.Len(t, p.Members, 1)
	assert.Equal(t, pm.ID, p.Members[0].User)
	assert.Equal(t, workflow.DefaultPermissions(workflow.RoleProjectManager), p.Members[0].Permissions)
	assert.False(t, p.Settings.RequireTaskApproval)
	assert.True(t, p.Settings.AllowComments)

	rec = env.do(http.MethodPost, "/api/projects", env.token("admin@test.com"), map[string]any{
		"name":        "Proyecto con aprobación",
		"description": "Descripción suficientemente larga del proyecto",
		"category":    env.seeded.Categories[0].ID,
		"settings":    map[string]any{"requireTaskApproval": true},
	})
	approved := expect[projectResponseBody](t, rec, http.StatusCreated, "Proyecto creado exitosamente")
	assert.True(t, approved.Data.Project.Settings.RequireTaskApproval)
}

func TestProjects_AccessAndMembers(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	path := "/api/projects/" + p.ID

	rec := env.do(http.MethodGet, path, env.token("dev@test.com"), nil)
	expect[any](t, rec, http.StatusForbidden, msgNoProjectAccess)

	rec = env.do(http.MethodGet, path, env.token("admin@test.com"), nil)
	expect[any](t, rec, http.StatusOK, "Proyecto obtenido exitosamente")

	rec = env.do(http.MethodGet, "/api/projects/missing", env.token("admin@test.com"), nil)
	expect[any](t, rec, http.StatusNotFound, msgProjectNotFound)

	env.addMember("pm@test.com", p, "dev@test.com", workflow.RoleDeveloper)

	rec = env.do(http.MethodPost, path+"/members", env.token("pm@test.com"), map[string]any{
		"userId": env.user("dev@test.com").ID,
		"roleId": env.seeded.Roles[workflow.RoleDeveloper].ID,
	})
	expect[any](t, rec, http.StatusBadRequest, "El usuario ya es miembro del proyecto")

	rec = env.do(http.MethodPost, path+"/members", env.token("pm@test.com"), map[string]any{
		"userId": "missing", "roleId": env.seeded.Roles[workflow.RoleViewer].ID,
	})
	expect[any](t, rec, http.StatusBadRequest, "Usuario no válido")

	rec = env.do(http.MethodPost, path+"/members", env.token("dev@test.com"), map[string]any{
		"userId": env.user("viewer@test.com").ID, "roleId": env.seeded.Roles[workflow.RoleViewer].ID,
	})
	expect[any](t, rec, http.StatusForbidden, "Solo el propietario puede agregar miembros")

	rec = env.do(http.MethodGet, path, env.token("dev@test.com"), nil)
	expect[any](t, rec, http.StatusOK, "Proyecto obtenido exitosamente")

	rec = env.do(http.MethodPut, path, env.token("dev@test.com"), map[string]any{"name": "Renombrado"})
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para editar este proyecto")

	rec = env.do(http.MethodDelete, path+"/members/"+p.Owner, env.token("pm@test.com"), nil)
	expect[any](t, rec, http.StatusBadRequest, "No se puede remover al propietario del proyecto")

	rec = env.do(http.MethodDelete, path+"/members/"+env.user("viewer@test.com").ID, env.token("pm@test.com"), nil)
	expect[any](t, rec, http.StatusBadRequest, "El usuario no es miembro del proyecto")

	canDelete := true
	rec = env.do(http.MethodPut, path+"/members/"+env.user("dev@test.com").ID+"/permissions", env.token("pm@test.com"),
		workflow.PermissionsPatch{CanDeleteTasks: &canDelete})
	perms := expect[memberResponse](t, rec, http.StatusOK, "Permisos actualizados exitosamente")
	assert.True(t, perms.Data.Member.Permissions.CanDeleteTasks)
	assert.True(t, perms.Data.Member.Permissions.CanCreateTasks, "untouched flags keep their value")

	rec = env.do(http.MethodDelete, path+"/members/"+env.user("dev@test.com").ID, env.token("pm@test.com"), nil)
	expect[membersResponse](t, rec, http.StatusOK, "Miembro removido exitosamente")

	rec = env.do(http.MethodGet, path, env.token("dev@test.com"), nil)
	expect[any](t, rec, http.StatusForbidden, msgNoProjectAccess)
}

func TestProjects_ListAndStats(t *testing.T) {
	env := newTestEnv(t)
	own := env.createProject("pm@test.com", "Proyecto propio")
	env.createProject("admin@test.com", "Proyecto ajeno")
	shared := env.createProject("admin@test.com", "Proyecto compartido")
	env.addMember("admin@test.com", shared, "pm@test.com", workflow.RoleProjectManager)

	rec := env.do(http.MethodGet, "/api/projects", env.token("pm@test.com"), nil)
	out := expect[projectListResponseBody](t, rec, http.StatusOK, "Proyectos obtenidos exitosamente")
	require.Len(t, out.Data.Projects, 2)
	assert.Equal(t, shared.ID, out.Data.Projects[0].ID, "most recently updated first")
	assert.Equal(t, 2, out.Data.Stats.Total)
	assert.Equal(t, 1, out.Data.Stats.Owned)
	assert.Equal(t, 1, out.Data.Stats.Member)
	assert.Equal(t, 2, out.Pagination.Total)

	rec = env.do(http.MethodGet, "/api/projects", env.token("admin@test.com"), nil)
	out = expect[projectListResponseBody](t, rec, http.StatusOK, "Proyectos obtenidos exitosamente")
	assert.Len(t, out.Data.Projects, 3, "admins see every project")

	rec = env.do(http.MethodGet, "/api/projects?search=propio", env.token("admin@test.com"), nil)
	out = expect[projectListResponseBody](t, rec, http.StatusOK, "Proyectos obtenidos exitosamente")
	require.Len(t, out.Data.Projects, 1)
	assert.Equal(t, own.ID, out.Data.Projects[0].ID)

	env.createTask("pm@test.com", own, map[string]any{"dueDate": "2000-01-01"})
	env.createTask("pm@test.com", own, map[string]any{})
	env.do(http.MethodPost, "/api/projects/"+own.ID+"/comments", env.token("pm@test.com"), map[string]any{"content": "Hola"})

	rec = env.do(http.MethodGet, "/api/projects/"+own.ID+"?stats=true", env.token("pm@test.com"), nil)
	detail := expect[projectDetailBody](t, rec, http.StatusOK, "Proyecto obtenido exitosamente")
	require.NotNil(t, detail.Data.Stats)
	assert.Equal(t, 2, detail.Data.Stats.Tasks.Total)
	assert.Equal(t, 2, detail.Data.Stats.Tasks.Pending)
	assert.Equal(t, 1, detail.Data.Stats.Tasks.Overdue)
	assert.Equal(t, 1, detail.Data.Stats.Comments.Total)
	assert.Len(t, detail.Data.Stats.Comments.Recent, 1)
	assert.Zero(t, detail.Data.Stats.Progress)

	rec = env.do(http.MethodGet, "/api/projects/"+own.ID, env.token("pm@test.com"), nil)
	detail = expect[projectDetailBody](t, rec, http.StatusOK, "Proyecto obtenido exitosamente")
	assert.Nil(t, detail.Data.Stats)
}

func TestProjects_UpdateStatusSettingsDelete(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("pm@test.com", "Tienda online")
	path := "/api/projects/" + p.ID
	pm := env.token("pm@test.com")

	rec := env.do(http.MethodPut, path, pm, map[string]any{
		"name":    "Tienda renovada",
		"endDate": "2099-12-31",
		"owner":   env.user("dev@test.com").ID,
	})
	upd := expect[projectDetailBody](t, rec, http.StatusOK, "Proyecto actualizado exitosamente")
	assert.Equal(t, "Tienda renovada", upd.Data.Project.Name)
	assert.Equal(t, env.user("pm@test.com").ID, upd.Data.Project.Owner, "owner cannot be changed here")
	require.NotNil(t, upd.Data.Project.DaysRemaining)
	assert.Positive(t, *upd.Data.Project.DaysRemaining)
	assert.False(t, upd.Data.Project.IsOverdue)

	taskState := env.state(workflow.StateTypeTask, workflow.TaskStatePending)
	rec = env.do(http.MethodPut, path+"/status", pm, map[string]any{"statusId": taskState.ID})
	expect[any](t, rec, http.StatusBadRequest, "Estado no válido para proyectos")

	done := env.state(workflow.StateTypeProject, workflow.ProjectStateCompleted)
	rec = env.do(http.MethodPut, path+"/status", pm, map[string]any{"statusId": done.ID})
	st := expect[projectResponseBody](t, rec, http.StatusOK, "Estado actualizado exitosamente")
	assert.Equal(t, done.ID, st.Data.Project.Status)
	assert.Equal(t, 100, st.Data.Project.AIMetadata.HealthScore)
	assert.Contains(t, env.events.Subjects(), events.SubjectProjectStatusChanged)

	rec = env.do(http.MethodPut, path+"/settings", env.token("admin@test.com"), map[string]any{"allowComments": false})
	settings := expect[settingsResponse](t, rec, http.StatusOK, "Configuraciones actualizadas")
	assert.False(t, settings.Data.Settings.AllowComments)
	assert.True(t, settings.Data.Settings.AllowTaskCreation)

	rec = env.do(http.MethodDelete, path, env.token("admin@test.com"), nil)
	expect[any](t, rec, http.StatusOK, "Proyecto eliminado exitosamente")

	rec = env.do(http.MethodGet, path, pm, nil)
	expect[any](t, rec, http.StatusNotFound, msgProjectNotFound)
}

func TestProjects_EnforcedTransitions(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, o *Options) { o.EnforceTransitions = true })
	ctx := context.Background()

	planning := env.state(workflow.StateTypeProject, workflow.ProjectStatePlanning)
	inProgress := env.state(workflow.StateTypeProject, workflow.ProjectStateInProgress)
	done := env.state(workflow.StateTypeProject, workflow.ProjectStateCompleted)
	planning.AllowedTransitions = []string{inProgress.ID}
	require.NoError(t, env.store.UpdateState(ctx, planning))

	p := env.createProject("pm@test.com", "Tienda online")
	path := "/api/projects/" + p.ID + "/status"

	rec := env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"statusId": done.ID})
	expect[any](t, rec, http.StatusBadRequest, msgTransitionNotAllowed)

	rec = env.do(http.MethodPut, path, env.token("pm@test.com"), map[string]any{"statusId": inProgress.ID})
	expect[any](t, rec, http.StatusOK, "Estado actualizado exitosamente")
}

type projectListResponseBody struct {
	Projects []projectBody `json:"projects"`
	Stats    struct {
		Total   int `json:"total"`
		Owned   int `json:"owned"`
		Member  int `json:"member"`
		Overdue int `json:"overdue"`
	} `json:"stats"`
}

type projectDetailBody struct {
	Project projectBody   `json:"project"`
	Stats   *projectStats `json:"stats"`
}

func TestProjects_DeactivatedRoleLosesCreateRight(t *testing.T) {
	env := newTestEnv(t)
	env.createProject("pm@test.com", "Antes de desactivar")

	rec := env.do(http.MethodDelete, "/api/roles/"+env.seeded.Roles[workflow.RoleProjectManager].ID, env.token("admin@test.com"), nil)
	expect[any](t, rec, http.StatusOK, "Rol eliminado")

	rec = env.do(http.MethodPost, "/api/projects", env.token("pm@test.com"), map[string]any{
		"name":        "Después de desactivar",
		"description": "Descripción suficientemente larga del proyecto",
		"category":    env.seeded.Categories[0].ID,
	})
	expect[any](t, rec, http.StatusForbidden, "Sin permisos para crear proyectos")
}
