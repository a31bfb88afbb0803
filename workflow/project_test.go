package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validProject() Project {
	return Project{
		Name:        "Portal",
		Description: "Customer self-service portal",
		Category:    "c1",
		Owner:       "u1",
		Priority:    PriorityHigh,
		IsActive:    true,
	}
}

func TestProject_Validate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	tests := []struct {
		name    string
		modify  func(*Project)
		wantErr string
	}{
		{name: "valid", modify: func(*Project) {}},
		{name: "short name", modify: func(p *Project) { p.Name = "ab" }, wantErr: "name"},
		{name: "long description", modify: func(p *Project) { p.Description = strings.Repeat("x", 1001) }, wantErr: "description"},
		{name: "missing category", modify: func(p *Project) { p.Category = "" }, wantErr: "category"},
		{name: "negative budget", modify: func(p *Project) { p.Budget = -10 }, wantErr: "budget"},
		{name: "long tag", modify: func(p *Project) { p.Tags = []string{strings.Repeat("t", 21)} }, wantErr: "tags"},
		{
			name: "end before start",
			modify: func(p *Project) {
				p.StartDate = &start
				p.EndDate = &end
			},
			wantErr: "endDate",
		},
		{name: "health out of range", modify: func(p *Project) { p.AIMetadata.HealthScore = 101 }, wantErr: "healthScore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProject()
			tt.modify(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProject_Membership(t *testing.T) {
	p := validProject()
	p.Members = []Member{
		{User: "u1", RoleName: RoleProjectManager},
		{User: "u2", RoleName: RoleDeveloper, Permissions: DefaultPermissions(RoleDeveloper)},
	}

	assert.True(t, p.IsOwner("u1"))
	assert.False(t, p.IsOwner(""))
	assert.True(t, p.IsParticipant("u2"))
	assert.False(t, p.IsParticipant("u3"))
	assert.NotNil(t, p.Member("u2"))

	assert.True(t, p.RemoveMember("u2"))
	assert.False(t, p.RemoveMember("u2"))
	assert.Nil(t, p.Member("u2"))
}

func TestDefaultPermissions(t *testing.T) {
	tests := []struct {
		role string
		want MemberPermissions
	}{
		{RoleAdmin, MemberPermissions{true, true, true, true}},
		{RoleProjectManager, MemberPermissions{true, true, true, true}},
		{RoleDeveloper, MemberPermissions{CanCreateTasks: true, CanEditTasks: true}},
		{RoleViewer, MemberPermissions{}},
		{"Unknown", MemberPermissions{}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPermissions(tt.role))
		})
	}
}

func TestPatches(t *testing.T) {
	yes, no := true, false

	perms := DefaultPermissions(RoleDeveloper)
	PermissionsPatch{CanDeleteTasks: &yes, CanEditTasks: &no}.Apply(&perms)
	assert.Equal(t, MemberPermissions{CanCreateTasks: true, CanDeleteTasks: true}, perms)

	settings := DefaultProjectSettings()
	SettingsPatch{AllowComments: &no}.Apply(&settings)
	assert.False(t, settings.AllowComments)
	assert.True(t, settings.AllowTaskCreation)
}

func TestProject_Overdue(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(-72 * time.Hour)
	p := validProject()
	p.EndDate = &end

	active := &State{Name: ProjectStateInProgress, Type: StateTypeProject}
	done := &State{Name: ProjectStateCompleted, Type: StateTypeProject}

	assert.True(t, p.IsOverdue(now, active))
	assert.False(t, p.IsOverdue(now, done))
	assert.Equal(t, -3, *p.DaysRemaining(now))

	p.ApplyTaskRollup(TaskRollup{Total: 4, Completed: 1, ActualHours: 12.5})
	assert.Equal(t, 25, p.AIMetadata.HealthScore)
	assert.Equal(t, 12.5, p.ActualHours)
}
