package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/apperror"
	"trove/internal/catalog"
	"trove/internal/quota"
	"trove/internal/repository"
)

func TestCreateCollectionEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")

	for range 3 {
		h.newCollection(t, "u1")
	}
	_, err := h.collections.CreateCollection(ctx, "u1", ContainerInput{Name: "Fourth"})
	requireQuota(t, err, quota.LimitMaxCollections)

	cols, err := h.collections.ListCollections(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cols, 3)
	assert.Equal(t, int64(3), h.usage(t, "u1").Collections)
}

func TestCreateCollectionDefaultsTemplate(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	assert.Equal(t, catalog.DefaultID, col.TemplateID)
}

func TestCreateCollectionUnknownTemplate(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	_, err := h.collections.CreateCollection(context.Background(), "u1", ContainerInput{Name: "X", TemplateID: "nope"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, int64(0), h.usage(t, "u1").Collections)
}

func TestCustomTemplateGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "pro", "pro")
	h.seedUser(t, "free", "free")
	tmpl := proTemplate(t, h, "pro", "Comics")

	_, err := h.collections.CreateCollection(ctx, "free", ContainerInput{Name: "Mine", TemplateID: tmpl.ID})
	requireQuota(t, err, quota.LimitCanUseCustomTemplates)

	col, err := h.collections.CreateCollection(ctx, "pro", ContainerInput{Name: "Mine", TemplateID: tmpl.ID})
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, col.TemplateID)
}

func TestStrictCreateCollectionCompensates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, strictMode(), wrapLedger(func(l QuotaLedger) QuotaLedger {
		return admitAll{QuotaLedger: l}
	}))
	h.seedUser(t, "u1", "free")
	require.NoError(t, h.ledger.Restate(ctx, "u1", quota.Usage{Collections: 3}))

	_, err := h.collections.CreateCollection(ctx, "u1", ContainerInput{Name: "Raced"})
	requireQuota(t, err, quota.LimitMaxCollections)

	cols, err := h.collections.ListCollections(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cols)
	assert.Empty(t, h.queue.Jobs())
}

func TestUpdateCollection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")

	name := "  Renamed "
	vinyl := "vinyl"
	got, err := h.collections.UpdateCollection(ctx, "u1", col.ID, CollectionPatch{Name: &name, TemplateID: &vinyl})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "vinyl", got.TemplateID)
	assert.Equal(t, col.Description, got.Description)

	bad := "missing"
	_, err = h.collections.UpdateCollection(ctx, "u1", col.ID, CollectionPatch{TemplateID: &bad})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCollectionsAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	h.seedUser(t, "u2", "free")
	col := h.newCollection(t, "u1")

	_, err := h.collections.GetCollection(ctx, "u2", col.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	err = h.collections.DeleteCollection(ctx, "u2", col.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSubCollectionsDoNotCountAsCollections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")

	for range 5 {
		_, err := h.collections.CreateSubCollection(ctx, "u1", col.ID, ContainerInput{Name: "Shelf"})
		require.NoError(t, err)
	}
	subs, err := h.collections.ListSubCollections(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 5)
	assert.Equal(t, int64(1), h.usage(t, "u1").Collections)
	assert.Equal(t, col.TemplateID, subs[0].TemplateID)
}

func TestDeleteCollectionCascadesAndReleases(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	item := h.addItem(t, c, "Penny", 1)

	photo, err := h.items.UploadPhoto(ctx, "u1", c, item.ID, PhotoUpload{
		Filename:    "front.jpg",
		ContentType: "image/jpeg",
		Size:        2 << 20,
		Body:        strings.NewReader("jpeg"),
	})
	require.NoError(t, err)
	require.True(t, h.blobs.Has(photo.Key))

	sub, err := h.collections.CreateSubCollection(ctx, "u1", col.ID, ContainerInput{Name: "Shelf"})
	require.NoError(t, err)
	h.addItem(t, repository.Container{UserID: "u1", CollectionID: col.ID, SubCollectionID: sub.ID}, "Dime", 1)

	before := h.usage(t, "u1")
	assert.Equal(t, int64(2), before.TotalItems)
	assert.InDelta(t, 2.0, before.StorageUsedMB, 1e-9)

	require.NoError(t, h.collections.DeleteCollection(ctx, "u1", col.ID))

	assert.Equal(t, quota.Usage{}, h.usage(t, "u1"))
	assert.False(t, h.blobs.Has(photo.Key))
	_, err = h.collections.GetCollection(ctx, "u1", col.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = h.collRepo.GetSubCollection(ctx, "u1", col.ID, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteSubCollectionReleasesItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	sub, err := h.collections.CreateSubCollection(ctx, "u1", col.ID, ContainerInput{Name: "Shelf"})
	require.NoError(t, err)
	sc := repository.Container{UserID: "u1", CollectionID: col.ID, SubCollectionID: sub.ID}
	h.addItem(t, sc, "A", 1)
	h.addItem(t, sc, "B", 1)

	require.NoError(t, h.collections.DeleteSubCollection(ctx, "u1", col.ID, sub.ID))
	assert.Equal(t, quota.Usage{Collections: 1}, h.usage(t, "u1"))
}

func TestCollectionStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	h.addItem(t, c, "A", 10)
	h.addItem(t, c, "B", 20)

	sub, err := h.collections.CreateSubCollection(ctx, "u1", col.ID, ContainerInput{Name: "Shelf"})
	require.NoError(t, err)
	h.addItem(t, repository.Container{UserID: "u1", CollectionID: col.ID, SubCollectionID: sub.ID}, "C", 30)

	stats, err := h.collections.GetStats(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.InDelta(t, 60.0, stats.TotalValue, 1e-9)
	assert.InDelta(t, 20.0, stats.AverageValue, 1e-9)
	assert.Equal(t, map[string]int64{catalog.DefaultID: 3}, stats.ByTemplate)
	assert.Equal(t, 1, stats.SubCollections)
}

func TestDeleteCollectionPartialFailureKeepsCountsTrue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, wrapItemRepo(func(r repository.ItemRepository) repository.ItemRepository {
		return failingSubDelete{ItemRepository: r}
	}))
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	h.addItem(t, repository.Container{UserID: "u1", CollectionID: col.ID}, "Penny", 5)
	sub, err := h.collections.CreateSubCollection(ctx, "u1", col.ID, ContainerInput{Name: "Shelf"})
	require.NoError(t, err)
	h.addItem(t, repository.Container{UserID: "u1", CollectionID: col.ID, SubCollectionID: sub.ID}, "Dime", 3)

	err = h.collections.DeleteCollection(ctx, "u1", col.ID)
	require.ErrorIs(t, err, apperror.ErrStoreUnavailable)

	stored, err := h.collRepo.GetCollection(ctx, "u1", col.ID)
	require.NoError(t, err)
	items, err := h.itemRepo.ListItems(ctx, repository.Container{UserID: "u1", CollectionID: col.ID})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(0), stored.ItemCount)
	assert.InDelta(t, 0.0, stored.EstimatedValue, 1e-9)

	storedSub, err := h.collRepo.GetSubCollection(ctx, "u1", col.ID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), storedSub.ItemCount)
	assert.InDelta(t, 3.0, storedSub.EstimatedValue, 1e-9)
	assert.Equal(t, quota.Usage{Collections: 1, TotalItems: 1}, h.usage(t, "u1"))

	jobs := h.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "u1", jobs[0].UserID)
	assert.Equal(t, "delete_failed", jobs[0].Reason)

	usage, err := h.reconcile.Recount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, quota.Usage{Collections: 1, TotalItems: 1}, usage)
}

func TestDeleteSubCollectionFailureQueuesRecount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, wrapItemRepo(func(r repository.ItemRepository) repository.ItemRepository {
		return failingSubDelete{ItemRepository: r}
	}))
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	sub, err := h.collections.CreateSubCollection(ctx, "u1", col.ID, ContainerInput{Name: "Shelf"})
	require.NoError(t, err)
	h.addItem(t, repository.Container{UserID: "u1", CollectionID: col.ID, SubCollectionID: sub.ID}, "Dime", 3)

	err = h.collections.DeleteSubCollection(ctx, "u1", col.ID, sub.ID)
	require.ErrorIs(t, err, apperror.ErrStoreUnavailable)

	storedSub, err := h.collRepo.GetSubCollection(ctx, "u1", col.ID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), storedSub.ItemCount)
	assert.Equal(t, quota.Usage{Collections: 1, TotalItems: 1}, h.usage(t, "u1"))

	jobs := h.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "delete_failed", jobs[0].Reason)
}
