package repository

import (
	"context"
	"fmt"

	"trove/internal/docstore"
	"trove/internal/model"
)

// SubscriptionEventRepository appends tier-change history.
type SubscriptionEventRepository interface {
	AppendEvent(ctx context.Context, ev *model.SubscriptionEvent) error
	ListEventsByUser(ctx context.Context, userID string) ([]model.SubscriptionEvent, error)
}

type subscriptionEventRepo struct {
	store docstore.Store
}

// NewSubscriptionEventRepo creates a new SubscriptionEventRepository.
func NewSubscriptionEventRepo(store docstore.Store) SubscriptionEventRepository {
	return &subscriptionEventRepo{store: store}
}

func (r *subscriptionEventRepo) AppendEvent(ctx context.Context, ev *model.SubscriptionEvent) error {
	data, err := docstore.Encode(ev)
	if err != nil {
		return err
	}
	id, err := r.store.Put(ctx, subscriptionEventsPath, "", data)
	if err != nil {
		return fmt.Errorf("appending subscription event for user %s: %w", ev.UserID, err)
	}
	ev.ID = id
	return nil
}

func (r *subscriptionEventRepo) ListEventsByUser(ctx context.Context, userID string) ([]model.SubscriptionEvent, error) {
	docs, err := r.store.Query(ctx, subscriptionEventsPath, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("userId", userID)},
	})
	if err != nil {
		return nil, fmt.Errorf("listing subscription events for user %s: %w", userID, err)
	}
	out := make([]model.SubscriptionEvent, 0, len(docs))
	for _, doc := range docs {
		var ev model.SubscriptionEvent
		if err := doc.Decode(&ev); err != nil {
			return nil, err
		}
		ev.ID = doc.ID
		out = append(out, ev)
	}
	return out, nil
}
