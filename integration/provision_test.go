package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsbot/internal/ledger"
	"vpsbot/internal/provision"
)

func TestResources_OwnershipScoped(t *testing.T) {
	conn := setupTestDB(t)
	users := ledger.NewRepository(conn)
	seedUser(t, users, 4001)
	seedUser(t, users, 4002)
	repo := provision.NewRepository(conn)
	ctx := context.Background()

	res := &provision.Resource{UserID: 4001, AccountRef: "main", ResourceID: 880011, Name: "web-1", SizeSlug: "s-1vcpu-1gb"}
	require.NoError(t, repo.Add(ctx, res))
	assert.NotZero(t, res.ID)
	assert.False(t, res.CreatedAt.IsZero())

	dup := &provision.Resource{UserID: 4002, AccountRef: "main", ResourceID: 880011}
	assert.Error(t, repo.Add(ctx, dup), "a resource belongs to one user per account")

	owned, err := repo.FindOwned(ctx, 4001, 880011)
	require.NoError(t, err)
	assert.Equal(t, "web-1", owned.Name)

	_, err = repo.FindOwned(ctx, 4002, 880011)
	assert.ErrorIs(t, err, provision.ErrNotOwner)

	assert.ErrorIs(t, repo.Remove(ctx, 4002, 880011), provision.ErrResourceNotFound)
	require.NoError(t, repo.Remove(ctx, 4001, 880011))

	list, err := repo.ListByUser(ctx, 4001)
	require.NoError(t, err)
	assert.Empty(t, list)
}
