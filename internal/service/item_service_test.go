package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/apperror"
	"trove/internal/blobstore"
	"trove/internal/model"
	"trove/internal/quota"
	"trove/internal/repository"
)

func TestCreateItemCoercesAndCounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}

	item, err := h.items.CreateItem(ctx, "u1", c, ItemInput{
		Attributes: map[string]any{
			"Name":      "  1909-S VDB  ",
			"Value":     "1250.50",
			"Condition": "Good",
			"Unknown":   "dropped",
		},
		EstimatedValue: 1250.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "general", item.TemplateID)
	assert.Equal(t, 1250.5, item.Attributes["Value"])
	assert.Equal(t, "Good", item.Attributes["Condition"])
	assert.NotContains(t, item.Attributes, "Unknown")

	got, err := h.items.GetItem(ctx, "u1", c, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Attributes["Value"], got.Attributes["Value"])

	assert.Equal(t, int64(1), h.usage(t, "u1").TotalItems)
	stored, err := h.collRepo.GetCollection(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ItemCount)
	assert.InDelta(t, 1250.5, stored.EstimatedValue, 1e-9)
}

func TestCreateItemValidationReportsEveryField(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}

	_, err := h.items.CreateItem(ctx, "u1", c, ItemInput{
		Attributes: map[string]any{"Value": "lots", "Condition": "Shiny"},
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("Name", apperror.CodeRequired))
	assert.True(t, ve.Has("Value", apperror.CodeTypeMismatch))
	assert.True(t, ve.Has("Condition", apperror.CodeInvalidOption))

	assert.Equal(t, int64(0), h.usage(t, "u1").TotalItems)
	items, err := h.items.ListItems(ctx, "u1", c)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateItemUsesRequestTemplate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}

	item, err := h.items.CreateItem(ctx, "u1", c, ItemInput{
		TemplateID: "vinyl",
		Attributes: map[string]any{
			"Artist":       "Miles Davis",
			"Album Title":  "Kind of Blue",
			"Format":       "LP",
			"Release Year": 1959,
			"Genre(s)":     "jazz, modal ,",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "vinyl", item.TemplateID)
	assert.Equal(t, float64(1959), item.Attributes["Release Year"])
	assert.Equal(t, []string{"jazz", "modal"}, item.Attributes["Genre(s)"])
}

func TestCreateItemRejectsNegativeValue(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}

	_, err := h.items.CreateItem(context.Background(), "u1", c, ItemInput{
		Attributes:     map[string]any{"Name": "x"},
		EstimatedValue: -1,
	})
	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("estimatedValue", apperror.CodeOutOfRange))
}

func TestCreateItemMissingContainer(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	c := repository.Container{UserID: "u1", CollectionID: "nope"}
	_, err := h.items.CreateItem(context.Background(), "u1", c, ItemInput{Attributes: map[string]any{"Name": "x"}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateItemPerCollectionLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	require.NoError(t, h.ledger.RestateContainer(ctx, c, 50, 0))

	_, err := h.items.CreateItem(ctx, "u1", c, ItemInput{Attributes: map[string]any{"Name": "x"}})
	requireQuota(t, err, quota.LimitMaxItemsPerCollection)
}

func TestCreateItemFillsCollectionToLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	require.NoError(t, h.ledger.RestateContainer(ctx, c, 49, 0))

	_, err := h.items.CreateItem(ctx, "u1", c, ItemInput{Attributes: map[string]any{"Name": "fiftieth"}})
	require.NoError(t, err)
	stored, err := h.collRepo.GetCollection(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.ItemCount)

	_, err = h.items.CreateItem(ctx, "u1", c, ItemInput{Attributes: map[string]any{"Name": "one too many"}})
	requireQuota(t, err, quota.LimitMaxItemsPerCollection)
	stored, err = h.collRepo.GetCollection(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.ItemCount)
}

func TestCreateItemChecksQuotaBeforeAttributes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	require.NoError(t, h.ledger.RestateContainer(ctx, c, 50, 0))

	_, err := h.items.CreateItem(ctx, "u1", c, ItemInput{
		Attributes:     map[string]any{"Condition": "Shiny"},
		EstimatedValue: -1,
	})
	requireQuota(t, err, quota.LimitMaxItemsPerCollection)
}

// failingUsage is a template service whose usage counter is unavailable.
type failingUsage struct {
	TemplateService
}

func (failingUsage) RecordUsage(ctx context.Context, templateID string) error {
	return apperror.ErrStoreUnavailable
}

func TestCreateItemLogsUsageFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "pro")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	tmpl := proTemplate(t, h, "u1", "Stamps")

	var logs bytes.Buffer
	items := NewItemService(h.collRepo, h.itemRepo, failingUsage{TemplateService: h.templates}, h.ledger, h.queue, h.blobs, nil, zerolog.New(&logs))

	item, err := items.CreateItem(ctx, "u1", c, ItemInput{
		TemplateID: tmpl.ID,
		Attributes: map[string]any{"Title": "Penny Black"},
	})
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, item.TemplateID)
	assert.Contains(t, logs.String(), "Failed to record template usage")
	assert.Contains(t, logs.String(), tmpl.ID)
}

func TestCreateItemTotalLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	require.NoError(t, h.ledger.Restate(ctx, "u1", quota.Usage{Collections: 1, TotalItems: 150}))

	_, err := h.items.CreateItem(ctx, "u1", c, ItemInput{Attributes: map[string]any{"Name": "x"}})
	requireQuota(t, err, quota.LimitMaxTotalItems)
}

func TestStrictCreateItemCompensates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, strictMode(), wrapLedger(func(l QuotaLedger) QuotaLedger {
		return admitAll{QuotaLedger: l}
	}))
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	require.NoError(t, h.ledger.RestateContainer(ctx, c, 50, 0))

	_, err := h.items.CreateItem(ctx, "u1", c, ItemInput{Attributes: map[string]any{"Name": "x"}})
	requireQuota(t, err, quota.LimitMaxItemsPerCollection)

	items, err := h.itemRepo.ListItems(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(0), h.usage(t, "u1").TotalItems)
}

func TestDeleteItemReleases(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	item := h.addItem(t, c, "Penny", 4)

	photo, err := h.items.UploadPhoto(ctx, "u1", c, item.ID, PhotoUpload{
		Filename: "a.png", ContentType: "image/png", Size: 1 << 20, Body: strings.NewReader("png"),
	})
	require.NoError(t, err)

	require.NoError(t, h.items.DeleteItem(ctx, "u1", c, item.ID))
	assert.Equal(t, quota.Usage{Collections: 1}, h.usage(t, "u1"))
	assert.False(t, h.blobs.Has(photo.Key))

	stored, err := h.collRepo.GetCollection(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ItemCount)
	assert.InDelta(t, 0.0, stored.EstimatedValue, 1e-9)

	err = h.items.DeleteItem(ctx, "u1", c, item.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUploadPhotoStorageIsAdditive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	item := h.addItem(t, c, "Penny", 0)
	require.NoError(t, h.ledger.Restate(ctx, "u1", quota.Usage{Collections: 1, TotalItems: 1, StorageUsedMB: 99.5}))

	_, err := h.items.UploadPhoto(ctx, "u1", c, item.ID, PhotoUpload{
		Filename: "big.jpg", ContentType: "image/jpeg", Size: 1 << 20, Body: strings.NewReader("jpeg"),
	})
	requireQuota(t, err, quota.LimitMaxStorageMB)

	got, err := h.items.GetItem(ctx, "u1", c, item.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Photos)
	assert.InDelta(t, 99.5, h.usage(t, "u1").StorageUsedMB, 1e-9)
}

func TestConcurrentUploadsKeepEveryPhoto(t *testing.T) {
	ctx := context.Background()
	var barrier sync.WaitGroup
	barrier.Add(2)
	h := newHarness(t, wrapBlobStore(func(s blobstore.Store) blobstore.Store {
		return barrierBlobs{Store: s, barrier: &barrier}
	}))
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	item := h.addItem(t, c, "Penny", 0)

	var wg sync.WaitGroup
	photos := make([]*model.Photo, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			photos[i], errs[i] = h.items.UploadPhoto(ctx, "u1", c, item.ID, PhotoUpload{
				Filename: "side.jpg", ContentType: "image/jpeg", Size: 1 << 20, Body: strings.NewReader("jpeg"),
			})
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := h.items.GetItem(ctx, "u1", c, item.ID)
	require.NoError(t, err)
	require.Len(t, got.Photos, 2)
	assert.ElementsMatch(t, []string{photos[0].ID, photos[1].ID}, []string{got.Photos[0].ID, got.Photos[1].ID})
	assert.InDelta(t, 2.0, got.StorageMB(), 1e-9)
	assert.InDelta(t, 2.0, h.usage(t, "u1").StorageUsedMB, 1e-9)
	assert.True(t, h.blobs.Has(photos[0].Key))
	assert.True(t, h.blobs.Has(photos[1].Key))
}

func TestUploadPhotoPerItemLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	col := h.newCollection(t, "u1")
	c := repository.Container{UserID: "u1", CollectionID: col.ID}
	item := h.addItem(t, c, "Penny", 0)

	upload := func() error {
		_, err := h.items.UploadPhoto(ctx, "u1", c, item.ID, PhotoUpload{
			Filename: "p.jpg", ContentType: "image/jpeg", Size: 1024, Body: strings.NewReader("x"),
		})
		return err
	}
	for range 5 {
		require.NoError(t, upload())
	}
	requireQuota(t, upload(), quota.LimitMaxPhotosPerItem)

	got, err := h.items.GetItem(ctx, "u1", c, item.ID)
	require.NoError(t, err)
	assert.Len(t, got.Photos, 5)
	url, err := h.items.PhotoURL(ctx, got.Photos[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "memory://users/u1/items/"+item.ID+"/"))
}
