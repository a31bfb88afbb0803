package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskhub/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskhub.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateCategory(context.Background(), &workflow.Category{Name: "Web", IsActive: true}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	cats, err := s.ListCategories(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := &workflow.User{
		FirstName:    "Ana",
		LastName:     "Pérez",
		Email:        " Ana@Example.com ",
		PasswordHash: "hash-1",
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ana@example.com", u.Email)

	got, err := s.GetUserByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash-1", got.PasswordHash, "hash is stored")

	dup := &workflow.User{FirstName: "B", LastName: "C", Email: "ana@example.com"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrConflict)

	got.PasswordHash = ""
	got.Phone = "+34 600 000 000"
	require.NoError(t, s.UpdateUser(ctx, got))
	again, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", again.PasswordHash, "empty hash keeps the stored one")
	assert.Equal(t, "+34 600 000 000", again.Phone)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := s.ListUsers(ctx, UserFilter{Search: "pér"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	byID, err := s.UsersByID(ctx, []string{u.ID, "missing", u.ID})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
}

func TestRolesAndStates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.EnsureRole(ctx, workflow.RoleDeveloper, "Builds the product")
	require.NoError(t, err)
	r2, err := s.EnsureRole(ctx, workflow.RoleDeveloper, "ignored")
	require.NoError(t, err)
	assert.Equal(t, r.ID, r2.ID)

	_, err = s.DeactivateRole(ctx, r.ID)
	require.NoError(t, err)
	active, err := s.ListRoles(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	pending, err := s.EnsureState(ctx, workflow.StateTypeTask, workflow.TaskStatePending, "")
	require.NoError(t, err)
	done, err := s.EnsureState(ctx, workflow.StateTypeTask, workflow.TaskStateCompleted, "")
	require.NoError(t, err)
	assert.True(t, done.IsFinal)
	assert.False(t, pending.IsFinal)

	// Same name under the other type is a different state.
	proj, err := s.EnsureState(ctx, workflow.StateTypeProject, workflow.ProjectStateInProgress, "")
	require.NoError(t, err)
	task, err := s.EnsureState(ctx, workflow.StateTypeTask, workflow.TaskStateInProgress, "")
	require.NoError(t, err)
	assert.NotEqual(t, proj.ID, task.ID)

	err = s.CreateState(ctx, &workflow.State{Name: workflow.TaskStatePending, Type: workflow.StateTypeTask})
	assert.ErrorIs(t, err, ErrConflict)

	states, err := s.ListStates(ctx, workflow.StateTypeTask, true)
	require.NoError(t, err)
	assert.Len(t, states, 3)
}

func TestProjects_Membership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mine := &workflow.Project{Name: "Mine", Owner: "u1", IsActive: true, Priority: workflow.PriorityHigh}
	shared := &workflow.Project{Name: "Shared", Owner: "u2", IsActive: true,
		Members: []workflow.Member{{User: "u1", RoleName: workflow.RoleDeveloper}}}
	other := &workflow.Project{Name: "Other", Owner: "u3", IsActive: true}
	gone := &workflow.Project{Name: "Gone", Owner: "u1", IsActive: false}
	for _, p := range []*workflow.Project{mine, shared, other, gone} {
		require.NoError(t, s.CreateProject(ctx, p))
	}

	res, err := s.ListProjects(ctx, ProjectFilter{MemberOf: "u1"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Shared", res.Items[0].Name, "most recently updated first")

	res, err = s.ListProjects(ctx, ProjectFilter{}, Page{Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Items, 1)

	res, err = s.ListProjects(ctx, ProjectFilter{Priority: workflow.PriorityHigh}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	all, err := s.ProjectsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = s.UpdateProject(ctx, &workflow.Project{ID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTasks_Ordering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := func(d int) *time.Time {
		v := time.Date(2025, 4, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	tasks := []*workflow.Task{
		{Title: "undated", Project: "p1", Priority: workflow.PriorityCritical, IsActive: true},
		{Title: "late low", Project: "p1", Priority: workflow.PriorityLow, DueDate: day(20), IsActive: true},
		{Title: "late high", Project: "p1", Priority: workflow.PriorityHigh, DueDate: day(20), IsActive: true},
		{Title: "soon", Project: "p1", Priority: workflow.PriorityLow, DueDate: day(2), IsActive: true, AssignedTo: "u9"},
		{Title: "deleted", Project: "p1", IsActive: false},
		{Title: "elsewhere", Project: "p2", IsActive: true, AssignedTo: "u9"},
	}
	require.NoError(t, s.CreateTasks(ctx, tasks))

	got, err := s.TasksForProject(ctx, "p1")
	require.NoError(t, err)
	var titles []string
	for _, task := range got {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"soon", "late high", "late low", "undated"}, titles)

	mine, err := s.ListTasks(ctx, TaskFilter{AssignedTo: "u9"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total)

	found, err := s.ListTasks(ctx, TaskFilter{Project: "p1", Search: "LATE"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, found.Total)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c1 := &workflow.Comment{Content: "first", Project: "p1", Author: "u1"}
	c2 := &workflow.Comment{Content: "on task", Project: "p1", Task: "t1", Author: "u1"}
	c3 := &workflow.Comment{Content: "deleted", Project: "p1", Author: "u1"}
	for _, c := range []*workflow.Comment{c1, c2, c3} {
		require.NoError(t, s.CreateComment(ctx, c))
	}
	c3.SoftDelete(time.Now())
	require.NoError(t, s.UpdateComment(ctx, c3))

	res, err := s.ListComments(ctx, CommentFilter{Project: "p1"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, c2.ID, res.Items[0].ID, "newest first")

	res, err = s.ListComments(ctx, CommentFilter{Project: "p1", Task: "t1"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	n, err := s.CountComments(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := s.RecentComments(ctx, "p1", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, c2.ID, recent[0].ID)
}

func TestPage_Normalize(t *testing.T) {
	p := Page{}.Normalize(10)
	assert.Equal(t, Page{Page: 1, Limit: 10}, p)
	assert.Equal(t, 0, p.Offset())

	p = Page{Page: 3, Limit: 500}.Normalize(10)
	assert.Equal(t, MaxPageSize, p.Limit)
	assert.Equal(t, 200, p.Offset())
}

func TestCountTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)
	require.NoError(t, s.CreateTasks(ctx, []*workflow.Task{
		{Title: "done", Project: "p1", AssignedTo: "u1", CompletedAt: &past, DueDate: &past, IsActive: true},
		{Title: "late", Project: "p1", AssignedTo: "u1", DueDate: &past, IsActive: true},
		{Title: "upcoming", Project: "p1", AssignedTo: "u2", DueDate: &future, IsActive: true},
		{Title: "undated", Project: "p1", IsActive: true},
		{Title: "inactive", Project: "p1", DueDate: &past, IsActive: false},
	}))

	c, err := s.CountTasks(ctx, TaskFilter{Project: "p1"}, now)
	require.NoError(t, err)
	assert.Equal(t, TaskCounts{Total: 4, Completed: 1, Pending: 3, Overdue: 1}, c)

	c, err = s.CountTasks(ctx, TaskFilter{AssignedTo: "u1"}, now)
	require.NoError(t, err)
	assert.Equal(t, TaskCounts{Total: 2, Completed: 1, Pending: 1, Overdue: 1}, c)
}

func TestCountProjects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	require.NoError(t, s.CreateProject(ctx, &workflow.Project{Name: "own", Owner: "u1", IsActive: true, EndDate: &past}))
	require.NoError(t, s.CreateProject(ctx, &workflow.Project{Name: "joined", Owner: "u2", IsActive: true,
		Members: []workflow.Member{{User: "u1"}}}))
	require.NoError(t, s.CreateProject(ctx, &workflow.Project{Name: "gone", Owner: "u1", IsActive: false}))
	require.NoError(t, s.CreateProject(ctx, &workflow.Project{Name: "other", Owner: "u3", IsActive: true}))

	c, err := s.CountProjects(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, ProjectCounts{Total: 2, Owned: 1, Member: 1, Overdue: 1}, c)
}
