package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trove/internal/apperror"
	"trove/internal/blobstore"
	"trove/internal/catalog"
	"trove/internal/model"
	"trove/internal/pubsub"
	"trove/internal/quota"
	"trove/internal/repository"
	"trove/internal/schema"
)

// ItemInput is a raw item submission.
type ItemInput struct {
	// TemplateID overrides the container's template when set.
	TemplateID     string
	Attributes     map[string]any
	EstimatedValue float64
}

// PhotoUpload is one uploaded file.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ItemService runs the admission, validation, write and reservation sequence
// for items and their photos.
type ItemService interface {
	CreateItem(ctx context.Context, userID string, c repository.Container, in ItemInput) (*model.Item, error)
	ListItems(ctx context.Context, userID string, c repository.Container) ([]model.Item, error)
	GetItem(ctx context.Context, userID string, c repository.Container, itemID string) (*model.Item, error)
	DeleteItem(ctx context.Context, userID string, c repository.Container, itemID string) error
	UploadPhoto(ctx context.Context, userID string, c repository.Container, itemID string, up PhotoUpload) (*model.Photo, error)
	PhotoURL(ctx context.Context, p model.Photo) (string, error)
}

type itemService struct {
	accounting
	collections repository.CollectionRepository
	repo        repository.ItemRepository
	templates   TemplateService
	blobs       blobstore.Store
	events      *pubsub.Emitter
}

// NewItemService creates a new ItemService with a scoped logger.
func NewItemService(
	collections repository.CollectionRepository,
	repo repository.ItemRepository,
	templates TemplateService,
	ledger QuotaLedger,
	queue ReconcileQueue,
	blobs blobstore.Store,
	events *pubsub.Emitter,
	logger zerolog.Logger,
) ItemService {
	return &itemService{
		accounting: accounting{
			ledger: ledger,
			queue:  queue,
			logger: logger.With().Str("service", "ItemService").Logger(),
		},
		collections: collections,
		repo:        repo,
		templates:   templates,
		blobs:       blobs,
		events:      events,
	}
}

// containerTemplate checks that c exists for userID and returns its template id.
func (s *itemService) containerTemplate(ctx context.Context, userID string, c repository.Container) (string, error) {
	if c.UserID != userID {
		return "", fmt.Errorf("container %s: %w", c.CollectionID, apperror.ErrUnauthorized)
	}
	col, err := s.collections.GetCollection(ctx, userID, c.CollectionID)
	if err != nil {
		return "", err
	}
	if !c.IsSub() {
		return col.TemplateID, nil
	}
	sub, err := s.collections.GetSubCollection(ctx, userID, c.CollectionID, c.SubCollectionID)
	if err != nil {
		return "", err
	}
	if sub.TemplateID != "" {
		return sub.TemplateID, nil
	}
	return col.TemplateID, nil
}

func (s *itemService) CreateItem(ctx context.Context, userID string, c repository.Container, in ItemInput) (*model.Item, error) {
	templateID, err := s.containerTemplate(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	if in.TemplateID != "" {
		templateID = in.TemplateID
	}
	if templateID == "" {
		templateID = catalog.DefaultID
	}
	if err := s.ledger.Admit(ctx, userID, quota.AddItem, Admission{Container: &c}); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.Resolve(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsBuiltIn {
		if err := s.ledger.Admit(ctx, userID, quota.UseCustomTemplate, Admission{}); err != nil {
			return nil, err
		}
	}
	attrs, err := schema.ValidateAndCoerce(tmpl, in.Attributes)
	if err != nil {
		return nil, err
	}
	if in.EstimatedValue < 0 {
		ve := &apperror.ValidationError{}
		ve.Add("estimatedValue", apperror.CodeOutOfRange, "estimated value must not be negative")
		return nil, ve
	}

	now := time.Now().UTC()
	item := &model.Item{
		ID:              uuid.NewString(),
		CollectionID:    c.CollectionID,
		SubCollectionID: c.SubCollectionID,
		TemplateID:      tmpl.ID,
		Attributes:      attrs,
		EstimatedValue:  in.EstimatedValue,
		Photos:          []model.Photo{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateItem(ctx, c, item); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("collection_id", c.CollectionID).Msg("Failed to create item")
		return nil, err
	}

	if err := s.settle(ctx, userID, quota.AddItem, Reservation{Token: item.ID, Container: &c, Value: item.EstimatedValue}); err != nil {
		if derr := s.repo.DeleteItems(context.WithoutCancel(ctx), c, []string{item.ID}); derr != nil {
			s.logger.Error().Err(derr).Str("item_id", item.ID).Msg("Failed to remove item after denied reservation")
		}
		return nil, err
	}

	// usage counts are informational and never fail the create
	if err := s.templates.RecordUsage(context.WithoutCancel(ctx), tmpl.ID); err != nil {
		s.logger.Warn().Err(err).Str("template_id", tmpl.ID).Str("item_id", item.ID).Msg("Failed to record template usage")
	}

	s.events.Emit(ctx, pubsub.Event{
		Type:      pubsub.EventItemCreated,
		UserID:    userID,
		SubjectID: item.ID,
		Data: map[string]any{
			"collectionId":    c.CollectionID,
			"subCollectionId": c.SubCollectionID,
			"templateId":      tmpl.ID,
		},
	})
	return item, nil
}

func (s *itemService) ListItems(ctx context.Context, userID string, c repository.Container) ([]model.Item, error) {
	if _, err := s.containerTemplate(ctx, userID, c); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, c)
	if err != nil {
		s.logger.Error().Err(err).Str("collection_id", c.CollectionID).Msg("Failed to list items")
		return nil, err
	}
	return items, nil
}

func (s *itemService) GetItem(ctx context.Context, userID string, c repository.Container, itemID string) (*model.Item, error) {
	if _, err := s.containerTemplate(ctx, userID, c); err != nil {
		return nil, err
	}
	return s.repo.GetItem(ctx, c, itemID)
}

func (s *itemService) DeleteItem(ctx context.Context, userID string, c repository.Container, itemID string) error {
	item, err := s.GetItem(ctx, userID, c, itemID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItems(ctx, c, []string{itemID}); err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to delete item")
		return err
	}
	if keys := item.PhotoKeys(); len(keys) > 0 {
		if err := s.blobs.Delete(ctx, keys); err != nil {
			s.logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to delete item photos")
		}
	}

	ctx = context.WithoutCancel(ctx)
	userErr := s.ledger.Release(ctx, userID, quota.Usage{TotalItems: 1, StorageUsedMB: item.StorageMB()})
	containerErr := s.ledger.ReleaseContainer(ctx, c, 1, item.EstimatedValue)
	if (userErr != nil || containerErr != nil) && s.queue != nil {
		job := model.ReconcileJob{UserID: userID, Reason: "release_failed", RequestedAt: time.Now().UTC()}
		if qerr := s.queue.Enqueue(ctx, job); qerr != nil {
			s.logger.Error().Err(qerr).Str("user_id", userID).Msg("Failed to enqueue usage reconcile")
		}
	}
	return nil
}

func (s *itemService) UploadPhoto(ctx context.Context, userID string, c repository.Container, itemID string, up PhotoUpload) (*model.Photo, error) {
	item, err := s.GetItem(ctx, userID, c, itemID)
	if err != nil {
		return nil, err
	}
	sizeMB := float64(up.Size) / (1024 * 1024)
	err = s.ledger.Admit(ctx, userID, quota.UploadPhoto, Admission{
		ItemPhotos: int64(len(item.Photos)),
		FileSizeMB: sizeMB,
	})
	if err != nil {
		return nil, err
	}

	photoID := uuid.NewString()
	photo := model.Photo{
		ID:          photoID,
		Key:         blobstore.PhotoKey(userID, itemID, photoID, up.Filename),
		ContentType: up.ContentType,
		SizeMB:      sizeMB,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.blobs.Put(ctx, photo.Key, up.ContentType, up.Body, up.Size); err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to store photo")
		return nil, err
	}
	if err := s.repo.AddPhoto(ctx, c, itemID, photo); err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to attach photo")
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), []string{photo.Key}); derr != nil {
			s.logger.Error().Err(derr).Str("key", photo.Key).Msg("Failed to remove unattached photo")
		}
		return nil, err
	}

	if err := s.settle(ctx, userID, quota.UploadPhoto, Reservation{Token: photoID, SizeMB: sizeMB}); err != nil {
		return nil, err
	}
	return &photo, nil
}

func (s *itemService) PhotoURL(ctx context.Context, p model.Photo) (string, error) {
	return s.blobs.URL(ctx, p.Key, 15*time.Minute)
}
