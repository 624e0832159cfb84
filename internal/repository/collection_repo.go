package repository

import (
	"context"
	"fmt"
	"time"

	"trove/internal/docstore"
	"trove/internal/model"
)

// CollectionRepository persists collections and sub-collections, including
// their derived aggregates.
type CollectionRepository interface {
	CreateCollection(ctx context.Context, c *model.Collection) error
	GetCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error)
	ListCollections(ctx context.Context, userID string) ([]model.Collection, error)
	UpdateCollection(ctx context.Context, userID, collectionID string, fields map[string]any) error
	DeleteCollection(ctx context.Context, userID, collectionID string) error

	CreateSubCollection(ctx context.Context, userID string, s *model.SubCollection) error
	GetSubCollection(ctx context.Context, userID, collectionID, subID string) (*model.SubCollection, error)
	ListSubCollections(ctx context.Context, userID, collectionID string) ([]model.SubCollection, error)
	DeleteSubCollections(ctx context.Context, userID, collectionID string, subIDs []string) error

	// AddAggregates adjusts a container's itemCount and estimatedValue, never
	// below zero.
	AddAggregates(ctx context.Context, c Container, items int64, value float64) error
	// AddItemBelow increments itemCount only while it is below limit. Fails
	// with docstore.ErrConditionFailed otherwise.
	AddItemBelow(ctx context.Context, c Container, value float64, limit int64) error
	// SetAggregates overwrites a container's aggregates, used by reconciliation.
	SetAggregates(ctx context.Context, c Container, items int64, value float64) error
}

type collectionRepo struct {
	store docstore.Store
}

// NewCollectionRepo creates a new CollectionRepository.
func NewCollectionRepo(store docstore.Store) CollectionRepository {
	return &collectionRepo{store: store}
}

func (r *collectionRepo) CreateCollection(ctx context.Context, c *model.Collection) error {
	data, err := docstore.Encode(c)
	if err != nil {
		return err
	}
	id, err := r.store.Put(ctx, collectionsPath(c.UserID), c.ID, data)
	if err != nil {
		return fmt.Errorf("creating collection for user %s: %w", c.UserID, err)
	}
	c.ID = id
	return nil
}

func (r *collectionRepo) GetCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	doc, err := r.store.Get(ctx, collectionsPath(userID), collectionID)
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", collectionID, err)
	}
	var c model.Collection
	if err := doc.Decode(&c); err != nil {
		return nil, err
	}
	c.ID = doc.ID
	return &c, nil
}

func (r *collectionRepo) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	docs, err := r.store.Query(ctx, collectionsPath(userID), docstore.Query{
		OrderBy: []docstore.Order{{Field: "createdAt", Desc: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("listing collections for user %s: %w", userID, err)
	}
	out := make([]model.Collection, 0, len(docs))
	for _, doc := range docs {
		var c model.Collection
		if err := doc.Decode(&c); err != nil {
			return nil, err
		}
		c.ID = doc.ID
		out = append(out, c)
	}
	return out, nil
}

func (r *collectionRepo) UpdateCollection(ctx context.Context, userID, collectionID string, fields map[string]any) error {
	ops := make([]docstore.Op, 0, len(fields)+1)
	for k, v := range fields {
		ops = append(ops, docstore.Set(k, v))
	}
	ops = append(ops, docstore.Set("updatedAt", time.Now().UTC()))
	if err := r.store.Update(ctx, collectionsPath(userID), collectionID, ops...); err != nil {
		return fmt.Errorf("updating collection %s: %w", collectionID, err)
	}
	return nil
}

func (r *collectionRepo) DeleteCollection(ctx context.Context, userID, collectionID string) error {
	if err := r.store.BatchDelete(ctx, collectionsPath(userID), []string{collectionID}); err != nil {
		return fmt.Errorf("deleting collection %s: %w", collectionID, err)
	}
	return nil
}

func (r *collectionRepo) CreateSubCollection(ctx context.Context, userID string, s *model.SubCollection) error {
	data, err := docstore.Encode(s)
	if err != nil {
		return err
	}
	id, err := r.store.Put(ctx, subCollectionsPath(userID, s.CollectionID), s.ID, data)
	if err != nil {
		return fmt.Errorf("creating sub-collection in %s: %w", s.CollectionID, err)
	}
	s.ID = id
	return nil
}

func (r *collectionRepo) GetSubCollection(ctx context.Context, userID, collectionID, subID string) (*model.SubCollection, error) {
	doc, err := r.store.Get(ctx, subCollectionsPath(userID, collectionID), subID)
	if err != nil {
		return nil, fmt.Errorf("getting sub-collection %s: %w", subID, err)
	}
	var s model.SubCollection
	if err := doc.Decode(&s); err != nil {
		return nil, err
	}
	s.ID = doc.ID
	return &s, nil
}

func (r *collectionRepo) ListSubCollections(ctx context.Context, userID, collectionID string) ([]model.SubCollection, error) {
	docs, err := r.store.Query(ctx, subCollectionsPath(userID, collectionID), docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("listing sub-collections of %s: %w", collectionID, err)
	}
	out := make([]model.SubCollection, 0, len(docs))
	for _, doc := range docs {
		var s model.SubCollection
		if err := doc.Decode(&s); err != nil {
			return nil, err
		}
		s.ID = doc.ID
		out = append(out, s)
	}
	return out, nil
}

func (r *collectionRepo) DeleteSubCollections(ctx context.Context, userID, collectionID string, subIDs []string) error {
	if err := r.store.BatchDelete(ctx, subCollectionsPath(userID, collectionID), subIDs); err != nil {
		return fmt.Errorf("deleting sub-collections of %s: %w", collectionID, err)
	}
	return nil
}

func (r *collectionRepo) AddAggregates(ctx context.Context, c Container, items int64, value float64) error {
	path, id := c.parent()
	err := r.store.Update(ctx, path, id,
		docstore.IncrementFloor("itemCount", float64(items), 0),
		docstore.IncrementFloor("estimatedValue", value, 0),
		docstore.Set("updatedAt", time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("updating aggregates of %s: %w", id, err)
	}
	return nil
}

func (r *collectionRepo) AddItemBelow(ctx context.Context, c Container, value float64, limit int64) error {
	path, id := c.parent()
	err := r.store.Update(ctx, path, id,
		docstore.IncrementBelow("itemCount", 1, float64(limit)),
		docstore.IncrementFloor("estimatedValue", value, 0),
		docstore.Set("updatedAt", time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("reserving item slot in %s: %w", id, err)
	}
	return nil
}

func (r *collectionRepo) SetAggregates(ctx context.Context, c Container, items int64, value float64) error {
	path, id := c.parent()
	err := r.store.Update(ctx, path, id,
		docstore.Set("itemCount", items),
		docstore.Set("estimatedValue", value),
	)
	if err != nil {
		return fmt.Errorf("setting aggregates of %s: %w", id, err)
	}
	return nil
}
