package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/apperror"
	"trove/internal/docstore"
	"trove/internal/model"
	"trove/internal/quota"
	"trove/internal/schema"
)

func TestContainerPaths(t *testing.T) {
	c := Container{UserID: "u", CollectionID: "c"}
	assert.Equal(t, "users/u/collections/c/items", c.ItemsPath())
	assert.False(t, c.IsSub())

	s := Container{UserID: "u", CollectionID: "c", SubCollectionID: "s"}
	assert.Equal(t, "users/u/collections/c/subCollections/s/items", s.ItemsPath())
	assert.True(t, s.IsSub())
}

func TestUserUsageClampsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(docstore.NewMemoryStore())

	require.NoError(t, repo.CreateUser(ctx, &model.User{UserID: "u1", Tier: "free"}))
	require.NoError(t, repo.AddUsage(ctx, "u1", quota.Usage{Collections: 2, StorageUsedMB: 1.5}))
	require.NoError(t, repo.AddUsage(ctx, "u1", quota.Usage{Collections: -5, TotalItems: -1, StorageUsedMB: -0.5}))

	u, err := repo.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, quota.Usage{Collections: 0, TotalItems: 0, StorageUsedMB: 1}, u.Usage)

	_, err = repo.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUserUsageBelow(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(docstore.NewMemoryStore())
	require.NoError(t, repo.CreateUser(ctx, &model.User{UserID: "u1", Tier: "free", Usage: quota.Usage{Collections: 2}}))

	require.NoError(t, repo.AddUsageBelow(ctx, "u1", UsageCollections, 1, 3))
	err := repo.AddUsageBelow(ctx, "u1", UsageCollections, 1, 3)
	assert.ErrorIs(t, err, docstore.ErrConditionFailed)
}

func TestTemplateRepoListing(t *testing.T) {
	ctx := context.Background()
	repo := NewTemplateRepo(docstore.NewMemoryStore())

	fields, err := schema.Definition{
		Name:        "Coins",
		Description: "coins",
		Fields:      []schema.FieldDefinition{{Name: "Year", Type: "number"}},
	}.Build()
	require.NoError(t, err)

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		tmpl := &schema.Template{Name: name, Fields: fields, State: schema.StateActive, CreatedAt: time.Now()}
		require.NoError(t, repo.CreateTemplate(ctx, tmpl))
		ids = append(ids, tmpl.ID)
	}
	require.NoError(t, repo.IncrementUsage(ctx, ids[2]))
	require.NoError(t, repo.MarkDeleted(ctx, ids[1], time.Now()))

	active, err := repo.ListTemplates(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "third", active[0].Name)
	assert.Equal(t, "first", active[1].Name)

	all, err := repo.ListTemplates(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := repo.GetTemplate(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, schema.StateDeleted, got.State)
	assert.NotNil(t, got.DeletedAt)
	assert.Equal(t, schema.TypeNumber, got.Fields[0].Type())
}

func TestAggregatesFloor(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	repo := NewCollectionRepo(store)

	col := &model.Collection{UserID: "u1", Name: "Records", TemplateID: "vinyl"}
	require.NoError(t, repo.CreateCollection(ctx, col))
	c := Container{UserID: "u1", CollectionID: col.ID}

	require.NoError(t, repo.AddAggregates(ctx, c, 1, 20))
	require.NoError(t, repo.AddAggregates(ctx, c, -3, -50))

	got, err := repo.GetCollection(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.ItemCount)
	assert.Equal(t, float64(0), got.EstimatedValue)
}
