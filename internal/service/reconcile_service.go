package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trove/internal/metrics"
	"trove/internal/model"
	"trove/internal/pgmq"
	"trove/internal/quota"
	"trove/internal/repository"
)

// ReconcileQueue schedules a usage recount for a user.
type ReconcileQueue interface {
	Enqueue(ctx context.Context, job model.ReconcileJob) error
}

// ReconcileService recomputes derived counters from live documents.
type ReconcileService interface {
	// Recount rewrites the user's usage counters and every container's
	// aggregates, returning the recomputed usage.
	Recount(ctx context.Context, userID string) (quota.Usage, error)
}

type reconcileService struct {
	collections repository.CollectionRepository
	items       repository.ItemRepository
	ledger      QuotaLedger
	logger      zerolog.Logger
}

// NewReconcileService creates a new ReconcileService with a scoped logger.
func NewReconcileService(
	collections repository.CollectionRepository,
	items repository.ItemRepository,
	ledger QuotaLedger,
	logger zerolog.Logger,
) ReconcileService {
	return &reconcileService{
		collections: collections,
		items:       items,
		ledger:      ledger,
		logger:      logger.With().Str("service", "ReconcileService").Logger(),
	}
}

type containerTotals struct {
	items   int64
	value   float64
	storage float64
}

func (s *reconcileService) tally(ctx context.Context, c repository.Container) (containerTotals, error) {
	items, err := s.items.ListItems(ctx, c)
	if err != nil {
		return containerTotals{}, err
	}
	var t containerTotals
	for i := range items {
		t.items++
		t.value += items[i].EstimatedValue
		t.storage += items[i].StorageMB()
	}
	return t, nil
}

func (s *reconcileService) Recount(ctx context.Context, userID string) (quota.Usage, error) {
	cols, err := s.collections.ListCollections(ctx, userID)
	if err != nil {
		metrics.ReconcileJobs.WithLabelValues("error").Inc()
		return quota.Usage{}, err
	}

	var (
		mu    sync.Mutex
		usage = quota.Usage{Collections: int64(len(cols))}
	)
	add := func(t containerTotals) {
		mu.Lock()
		usage.TotalItems += t.items
		usage.StorageUsedMB += t.storage
		mu.Unlock()
	}
	restate := func(ctx context.Context, c repository.Container) error {
		t, err := s.tally(ctx, c)
		if err != nil {
			return err
		}
		if err := s.ledger.RestateContainer(ctx, c, t.items, t.value); err != nil {
			return err
		}
		add(t)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, col := range cols {
		g.Go(func() error {
			c := repository.Container{UserID: userID, CollectionID: col.ID}
			if err := restate(gctx, c); err != nil {
				return err
			}
			subs, err := s.collections.ListSubCollections(gctx, userID, col.ID)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				c.SubCollectionID = sub.ID
				if err := restate(gctx, c); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to recount containers")
		metrics.ReconcileJobs.WithLabelValues("error").Inc()
		return quota.Usage{}, err
	}

	if err := s.ledger.Restate(ctx, userID, usage); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to restate usage")
		metrics.ReconcileJobs.WithLabelValues("error").Inc()
		return quota.Usage{}, err
	}
	metrics.ReconcileJobs.WithLabelValues("ok").Inc()
	s.logger.Info().Str("user_id", userID).
		Int64("collections", usage.Collections).
		Int64("total_items", usage.TotalItems).
		Float64("storage_mb", usage.StorageUsedMB).
		Msg("Usage reconciled")
	return usage, nil
}

type pgmqReconcileQueue struct {
	client *pgmq.Client
	queue  string
}

// NewPGMQReconcileQueue sends reconcile jobs to a pgmq queue.
func NewPGMQReconcileQueue(client *pgmq.Client, queue string) ReconcileQueue {
	return &pgmqReconcileQueue{client: client, queue: queue}
}

func (q *pgmqReconcileQueue) Enqueue(ctx context.Context, job model.ReconcileJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal reconcile job: %w", err)
	}
	return q.client.Send(ctx, q.queue, payload)
}

type inlineReconcileQueue struct {
	svc ReconcileService
}

// NewInlineReconcileQueue recounts immediately instead of queueing. Used when
// no Postgres queue is available.
func NewInlineReconcileQueue(svc ReconcileService) ReconcileQueue {
	return &inlineReconcileQueue{svc: svc}
}

func (q *inlineReconcileQueue) Enqueue(ctx context.Context, job model.ReconcileJob) error {
	_, err := q.svc.Recount(context.WithoutCancel(ctx), job.UserID)
	return err
}
