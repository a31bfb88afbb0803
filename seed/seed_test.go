package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/c360studio/taskhub/auth"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/workflow"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	hasher := auth.Hasher{Cost: bcrypt.MinCost}

	res, err := Run(ctx, store, Options{Hasher: hasher})
	require.NoError(t, err)

	assert.Len(t, res.Roles, 4)
	assert.Len(t, res.States, len(workflow.DefaultStates()))
	assert.Len(t, res.Categories, len(DefaultCategories))
	require.Len(t, res.Users, 4)
	assert.Equal(t, len(DefaultCategories)+4, res.Created)

	admin := res.Users["admin@test.com"]
	require.NotNil(t, admin)
	assert.Equal(t, workflow.RoleAdmin, admin.RoleName)
	assert.Equal(t, res.Roles[workflow.RoleAdmin].ID, admin.GlobalRole)
	assert.True(t, admin.IsActive)

	for _, acc := range DefaultAccounts {
		u, err := store.GetUserByEmail(ctx, acc.Email)
		require.NoError(t, err, acc.Email)
		assert.NoError(t, hasher.Compare(u.PasswordHash, acc.Password), acc.Email)
	}

	done, err := store.GetStateByName(ctx, workflow.StateTypeTask, workflow.TaskStateCompleted)
	require.NoError(t, err)
	assert.True(t, done.IsFinal)
	assert.True(t, done.IsActive)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	opts := Options{Hasher: auth.Hasher{Cost: bcrypt.MinCost}}

	first, err := Run(ctx, store, opts)
	require.NoError(t, err)
	second, err := Run(ctx, store, opts)
	require.NoError(t, err)

	assert.Zero(t, second.Created)
	assert.Equal(t, first.Users["pm@test.com"].ID, second.Users["pm@test.com"].ID)
	assert.Equal(t, first.Roles[workflow.RoleViewer].ID, second.Roles[workflow.RoleViewer].ID)

	roles, err := store.ListRoles(ctx, false)
	require.NoError(t, err)
	assert.Len(t, roles, 4)
	cats, err := store.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Len(t, cats, len(DefaultCategories))
}

func TestRun_SkipAccounts(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	res, err := Run(ctx, store, Options{SkipAccounts: true})
	require.NoError(t, err)
	assert.Empty(t, res.Users)

	_, err = store.GetUserByEmail(ctx, "admin@test.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
