package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koombo/koombo/internal/models"
)

type countingUsers struct {
	users   map[uuid.UUID]*models.User
	lookups int
}

func (c *countingUsers) Create(_ context.Context, _, _, _ string, _ models.Role) (*models.User, error) {
	return nil, nil
}

func (c *countingUsers) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	c.lookups++
	u, ok := c.users[userID]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (c *countingUsers) GetByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (c *countingUsers) SetRole(_ context.Context, _ uuid.UUID, _ models.Role) (bool, error) {
	return false, nil
}

func TestRequestIdentityMemoizes(t *testing.T) {
	t.Parallel()

	u := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	repo := &countingUsers{users: map[uuid.UUID]*models.User{u.ID: u}}
	req := NewIdentity(repo).Request()

	for i := 0; i < 3; i++ {
		got, err := req.PrincipalFor(context.Background(), u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	}
	role, err := req.RoleFor(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	// Five questions, one query.
	assert.Equal(t, 1, repo.lookups)
}

func TestRequestIdentityMemoizesAbsence(t *testing.T) {
	t.Parallel()

	repo := &countingUsers{users: map[uuid.UUID]*models.User{}}
	req := NewIdentity(repo).Request()

	missing := uuid.New()
	for i := 0; i < 3; i++ {
		got, err := req.PrincipalFor(context.Background(), missing)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 1, repo.lookups)

	role, err := req.RoleFor(context.Background(), missing)
	require.NoError(t, err)
	assert.Empty(t, role)
}

func TestPrincipalForNilUUID(t *testing.T) {
	t.Parallel()

	repo := &countingUsers{users: map[uuid.UUID]*models.User{}}
	got, err := NewIdentity(repo).PrincipalFor(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, repo.lookups)
}
