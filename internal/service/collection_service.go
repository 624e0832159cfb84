package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trove/internal/apperror"
	"trove/internal/blobstore"
	"trove/internal/catalog"
	"trove/internal/model"
	"trove/internal/pubsub"
	"trove/internal/quota"
	"trove/internal/repository"
)

// ContainerInput is the editable part of a collection or sub-collection.
type ContainerInput struct {
	Name        string
	Description string
	TemplateID  string
}

// CollectionPatch updates only the non-nil fields.
type CollectionPatch struct {
	Name        *string
	Description *string
	TemplateID  *string
}

// CollectionStats is computed from live items.
type CollectionStats struct {
	TotalItems     int64            `json:"totalItems"`
	TotalValue     float64          `json:"totalValue"`
	AverageValue   float64          `json:"averageValue"`
	ByTemplate     map[string]int64 `json:"byTemplate"`
	SubCollections int              `json:"subCollections"`
}

// CollectionService manages collections and sub-collections.
type CollectionService interface {
	CreateCollection(ctx context.Context, userID string, in ContainerInput) (*model.Collection, error)
	ListCollections(ctx context.Context, userID string) ([]model.Collection, error)
	GetCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error)
	UpdateCollection(ctx context.Context, userID, collectionID string, patch CollectionPatch) (*model.Collection, error)
	// DeleteCollection removes the collection with its sub-collections, items
	// and photos, and releases the usage they held.
	DeleteCollection(ctx context.Context, userID, collectionID string) error
	GetStats(ctx context.Context, userID, collectionID string) (*CollectionStats, error)

	CreateSubCollection(ctx context.Context, userID, collectionID string, in ContainerInput) (*model.SubCollection, error)
	ListSubCollections(ctx context.Context, userID, collectionID string) ([]model.SubCollection, error)
	GetSubCollection(ctx context.Context, userID, collectionID, subID string) (*model.SubCollection, error)
	DeleteSubCollection(ctx context.Context, userID, collectionID, subID string) error
}

type collectionService struct {
	accounting
	repo      repository.CollectionRepository
	items     repository.ItemRepository
	templates TemplateService
	blobs     blobstore.Store
	events    *pubsub.Emitter
}

// NewCollectionService creates a new CollectionService with a scoped logger.
func NewCollectionService(
	repo repository.CollectionRepository,
	items repository.ItemRepository,
	templates TemplateService,
	ledger QuotaLedger,
	queue ReconcileQueue,
	blobs blobstore.Store,
	events *pubsub.Emitter,
	logger zerolog.Logger,
) CollectionService {
	return &collectionService{
		accounting: accounting{
			ledger: ledger,
			queue:  queue,
			logger: logger.With().Str("service", "CollectionService").Logger(),
		},
		repo:      repo,
		items:     items,
		templates: templates,
		blobs:     blobs,
		events:    events,
	}
}

// checkTemplate resolves templateID and applies the custom-template gate.
func (s *collectionService) checkTemplate(ctx context.Context, userID, templateID string) (string, error) {
	if templateID == "" {
		templateID = catalog.DefaultID
	}
	t, err := s.templates.Resolve(ctx, templateID)
	if err != nil {
		return "", err
	}
	if !t.IsBuiltIn {
		if err := s.ledger.Admit(ctx, userID, quota.UseCustomTemplate, Admission{}); err != nil {
			return "", err
		}
	}
	return t.ID, nil
}

func (s *collectionService) CreateCollection(ctx context.Context, userID string, in ContainerInput) (*model.Collection, error) {
	templateID, err := s.checkTemplate(ctx, userID, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Admit(ctx, userID, quota.CreateCollection, Admission{}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	col := &model.Collection{
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		TemplateID:  templateID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateCollection(ctx, col); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create collection")
		return nil, err
	}

	if err := s.settle(ctx, userID, quota.CreateCollection, Reservation{Token: col.ID}); err != nil {
		if derr := s.repo.DeleteCollection(context.WithoutCancel(ctx), userID, col.ID); derr != nil {
			s.logger.Error().Err(derr).Str("collection_id", col.ID).Msg("Failed to remove collection after denied reservation")
		}
		return nil, err
	}

	s.events.Emit(ctx, pubsub.Event{
		Type:      pubsub.EventCollectionCreated,
		UserID:    userID,
		SubjectID: col.ID,
		Data:      map[string]any{"templateId": templateID},
	})
	return col, nil
}

func (s *collectionService) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	cols, err := s.repo.ListCollections(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list collections")
		return nil, err
	}
	return cols, nil
}

func (s *collectionService) GetCollection(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	col, err := s.repo.GetCollection(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}
	if col.UserID != userID {
		return nil, fmt.Errorf("collection %s: %w", collectionID, apperror.ErrUnauthorized)
	}
	return col, nil
}

func (s *collectionService) UpdateCollection(ctx context.Context, userID, collectionID string, patch CollectionPatch) (*model.Collection, error) {
	if _, err := s.GetCollection(ctx, userID, collectionID); err != nil {
		return nil, err
	}

	fields := make(map[string]any, 3)
	if patch.Name != nil {
		fields["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.TemplateID != nil {
		templateID, err := s.checkTemplate(ctx, userID, *patch.TemplateID)
		if err != nil {
			return nil, err
		}
		fields["templateId"] = templateID
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateCollection(ctx, userID, collectionID, fields); err != nil {
			s.logger.Error().Err(err).Str("collection_id", collectionID).Msg("Failed to update collection")
			return nil, err
		}
	}
	return s.repo.GetCollection(ctx, userID, collectionID)
}

// purge deletes every item in c with its photos, releases c's aggregates and
// returns the user-level usage the items held.
func (s *collectionService) purge(ctx context.Context, c repository.Container) (quota.Usage, error) {
	items, err := s.items.ListItems(ctx, c)
	if err != nil {
		return quota.Usage{}, err
	}
	if len(items) == 0 {
		return quota.Usage{}, nil
	}

	ids := make([]string, 0, len(items))
	var keys []string
	var storage, value float64
	for i := range items {
		ids = append(ids, items[i].ID)
		keys = append(keys, items[i].PhotoKeys()...)
		storage += items[i].StorageMB()
		value += items[i].EstimatedValue
	}
	if err := s.items.DeleteItems(ctx, c, ids); err != nil {
		return quota.Usage{}, err
	}
	if len(keys) > 0 {
		if err := s.blobs.Delete(ctx, keys); err != nil {
			// orphaned blobs do not affect counters
			s.logger.Error().Err(err).Str("collection_id", c.CollectionID).Int("photos", len(keys)).Msg("Failed to delete photos")
		}
	}
	if err := s.ledger.ReleaseContainer(context.WithoutCancel(ctx), c, int64(len(items)), value); err != nil {
		s.enqueueRecount(ctx, c.UserID, "release_failed")
	}
	return quota.Usage{TotalItems: int64(len(items)), StorageUsedMB: storage}, nil
}

func (s *collectionService) DeleteCollection(ctx context.Context, userID, collectionID string) error {
	if _, err := s.GetCollection(ctx, userID, collectionID); err != nil {
		return err
	}
	subs, err := s.repo.ListSubCollections(ctx, userID, collectionID)
	if err != nil {
		return err
	}

	var released quota.Usage
	containers := []repository.Container{{UserID: userID, CollectionID: collectionID}}
	subIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		containers = append(containers, repository.Container{UserID: userID, CollectionID: collectionID, SubCollectionID: sub.ID})
		subIDs = append(subIDs, sub.ID)
	}
	for _, c := range containers {
		purged, err := s.purge(ctx, c)
		if err != nil {
			s.logger.Error().Err(err).Str("collection_id", collectionID).Msg("Failed to delete collection items")
			s.abandon(ctx, userID, released)
			return err
		}
		released = released.Add(purged)
	}
	if len(subIDs) > 0 {
		if err := s.repo.DeleteSubCollections(ctx, userID, collectionID, subIDs); err != nil {
			s.abandon(ctx, userID, released)
			return err
		}
	}
	if err := s.repo.DeleteCollection(ctx, userID, collectionID); err != nil {
		s.abandon(ctx, userID, released)
		return err
	}

	released.Collections = 1
	s.releaseOrQueue(ctx, userID, released)
	s.events.Emit(ctx, pubsub.Event{
		Type:      pubsub.EventCollectionDeleted,
		UserID:    userID,
		SubjectID: collectionID,
		Data:      map[string]any{"items": released.TotalItems},
	})
	return nil
}

// releaseOrQueue releases usage for deleted documents, queueing a recount
// when the release fails.
func (s *collectionService) releaseOrQueue(ctx context.Context, userID string, delta quota.Usage) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), userID, delta); err != nil {
		s.enqueueRecount(ctx, userID, "release_failed")
	}
}

// abandon settles a delete that stopped part way. Usage held by the items
// already purged is released and a recount is queued for the rest.
func (s *collectionService) abandon(ctx context.Context, userID string, released quota.Usage) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), userID, released); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to release usage of purged items")
	}
	s.enqueueRecount(ctx, userID, "delete_failed")
}

func (s *collectionService) enqueueRecount(ctx context.Context, userID, reason string) {
	if s.queue == nil {
		return
	}
	job := model.ReconcileJob{UserID: userID, Reason: reason, RequestedAt: time.Now().UTC()}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue usage reconcile")
	}
}

func (s *collectionService) GetStats(ctx context.Context, userID, collectionID string) (*CollectionStats, error) {
	if _, err := s.GetCollection(ctx, userID, collectionID); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubCollections(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}

	stats := &CollectionStats{ByTemplate: map[string]int64{}, SubCollections: len(subs)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	count := func(c repository.Container) {
		g.Go(func() error {
			items, err := s.items.ListItems(gctx, c)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i := range items {
				stats.TotalItems++
				stats.TotalValue += items[i].EstimatedValue
				stats.ByTemplate[items[i].TemplateID]++
			}
			return nil
		})
	}
	count(repository.Container{UserID: userID, CollectionID: collectionID})
	for _, sub := range subs {
		count(repository.Container{UserID: userID, CollectionID: collectionID, SubCollectionID: sub.ID})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Str("collection_id", collectionID).Msg("Failed to compute collection stats")
		return nil, err
	}
	if stats.TotalItems > 0 {
		stats.AverageValue = stats.TotalValue / float64(stats.TotalItems)
	}
	return stats, nil
}

func (s *collectionService) CreateSubCollection(ctx context.Context, userID, collectionID string, in ContainerInput) (*model.SubCollection, error) {
	col, err := s.GetCollection(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}
	templateID := in.TemplateID
	if templateID == "" {
		templateID = col.TemplateID
	}
	if templateID, err = s.checkTemplate(ctx, userID, templateID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &model.SubCollection{
		CollectionID: collectionID,
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		TemplateID:   templateID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateSubCollection(ctx, userID, sub); err != nil {
		s.logger.Error().Err(err).Str("collection_id", collectionID).Msg("Failed to create sub-collection")
		return nil, err
	}
	return sub, nil
}

func (s *collectionService) ListSubCollections(ctx context.Context, userID, collectionID string) ([]model.SubCollection, error) {
	if _, err := s.GetCollection(ctx, userID, collectionID); err != nil {
		return nil, err
	}
	return s.repo.ListSubCollections(ctx, userID, collectionID)
}

func (s *collectionService) GetSubCollection(ctx context.Context, userID, collectionID, subID string) (*model.SubCollection, error) {
	if _, err := s.GetCollection(ctx, userID, collectionID); err != nil {
		return nil, err
	}
	return s.repo.GetSubCollection(ctx, userID, collectionID, subID)
}

func (s *collectionService) DeleteSubCollection(ctx context.Context, userID, collectionID, subID string) error {
	if _, err := s.GetSubCollection(ctx, userID, collectionID, subID); err != nil {
		return err
	}
	c := repository.Container{UserID: userID, CollectionID: collectionID, SubCollectionID: subID}
	released, err := s.purge(ctx, c)
	if err != nil {
		s.abandon(ctx, userID, quota.Usage{})
		return err
	}
	if err := s.repo.DeleteSubCollections(ctx, userID, collectionID, []string{subID}); err != nil {
		s.abandon(ctx, userID, released)
		return err
	}
	s.releaseOrQueue(ctx, userID, released)
	return nil
}
