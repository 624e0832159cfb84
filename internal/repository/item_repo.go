package repository

import (
	"context"
	"fmt"
	"time"

	"trove/internal/docstore"
	"trove/internal/model"
)

// ItemRepository persists items inside a container.
type ItemRepository interface {
	CreateItem(ctx context.Context, c Container, item *model.Item) error
	GetItem(ctx context.Context, c Container, itemID string) (*model.Item, error)
	ListItems(ctx context.Context, c Container) ([]model.Item, error)
	DeleteItems(ctx context.Context, c Container, itemIDs []string) error
	// AddPhoto appends one photo record in a single store update.
	AddPhoto(ctx context.Context, c Container, itemID string, photo model.Photo) error
}

type itemRepo struct {
	store docstore.Store
}

// NewItemRepo creates a new ItemRepository.
func NewItemRepo(store docstore.Store) ItemRepository {
	return &itemRepo{store: store}
}

func (r *itemRepo) CreateItem(ctx context.Context, c Container, item *model.Item) error {
	data, err := docstore.Encode(item)
	if err != nil {
		return err
	}
	id, err := r.store.Put(ctx, c.ItemsPath(), item.ID, data)
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}
	item.ID = id
	return nil
}

func (r *itemRepo) GetItem(ctx context.Context, c Container, itemID string) (*model.Item, error) {
	doc, err := r.store.Get(ctx, c.ItemsPath(), itemID)
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", itemID, err)
	}
	var it model.Item
	if err := doc.Decode(&it); err != nil {
		return nil, err
	}
	it.ID = doc.ID
	return &it, nil
}

func (r *itemRepo) ListItems(ctx context.Context, c Container) ([]model.Item, error) {
	docs, err := r.store.Query(ctx, c.ItemsPath(), docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	out := make([]model.Item, 0, len(docs))
	for _, doc := range docs {
		var it model.Item
		if err := doc.Decode(&it); err != nil {
			return nil, err
		}
		it.ID = doc.ID
		out = append(out, it)
	}
	return out, nil
}

func (r *itemRepo) DeleteItems(ctx context.Context, c Container, itemIDs []string) error {
	if err := r.store.BatchDelete(ctx, c.ItemsPath(), itemIDs); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	return nil
}

func (r *itemRepo) AddPhoto(ctx context.Context, c Container, itemID string, photo model.Photo) error {
	err := r.store.Update(ctx, c.ItemsPath(), itemID,
		docstore.Append("photos", photo),
		docstore.Set("updatedAt", time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("adding photo to item %s: %w", itemID, err)
	}
	return nil
}
