package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"trove/internal/apperror"
	"trove/internal/docstore"
	"trove/internal/metrics"
	"trove/internal/model"
	"trove/internal/quota"
	"trove/internal/receipt"
	"trove/internal/repository"
	"trove/internal/tier"
)

// Admission is the context of an admission check beyond the user's counters.
type Admission struct {
	// Container is the target of AddItem.
	Container  *repository.Container
	ItemPhotos int64
	FileSizeMB float64
}

// Reservation describes the counters a successful write consumes.
type Reservation struct {
	// Token identifies the write. A token is applied at most once; an empty
	// token disables deduplication.
	Token     string
	Container *repository.Container
	// Value is the estimated value added to the container for AddItem.
	Value  float64
	SizeMB float64
}

// QuotaLedger owns every read and write of usage counters and container
// aggregates. Feature code never mutates them directly.
type QuotaLedger interface {
	// CheckAdmission reports whether op is admitted. A user without a
	// resolvable tier is denied. Errors are store failures only.
	CheckAdmission(ctx context.Context, userID string, op quota.Operation, a Admission) (quota.Decision, error)
	// Admit is CheckAdmission that returns a *apperror.QuotaExceededError on denial.
	Admit(ctx context.Context, userID string, op quota.Operation, a Admission) error
	// Reserve applies the counters for a write that already succeeded.
	Reserve(ctx context.Context, userID string, op quota.Operation, r Reservation) error
	// Release subtracts delta from the user's counters, clamped at zero.
	Release(ctx context.Context, userID string, delta quota.Usage) error
	// ReleaseContainer subtracts items and value from a container's aggregates.
	ReleaseContainer(ctx context.Context, c repository.Container, items int64, value float64) error
	// Restate overwrites counters with recomputed values.
	Restate(ctx context.Context, userID string, usage quota.Usage) error
	RestateContainer(ctx context.Context, c repository.Container, items int64, value float64) error
}

type quotaLedger struct {
	users       repository.UserRepository
	collections repository.CollectionRepository
	receipts    receipt.Store
	strict      bool
	logger      zerolog.Logger
}

// NewQuotaLedger creates a QuotaLedger. With strict set, CreateCollection and
// AddItem reservations use guarded increments that fail with QuotaExceeded
// when a concurrent request already consumed the last slot.
func NewQuotaLedger(
	users repository.UserRepository,
	collections repository.CollectionRepository,
	receipts receipt.Store,
	strict bool,
	logger zerolog.Logger,
) QuotaLedger {
	return &quotaLedger{
		users:       users,
		collections: collections,
		receipts:    receipts,
		strict:      strict,
		logger:      logger.With().Str("service", "QuotaLedger").Logger(),
	}
}

func (l *quotaLedger) profile(ctx context.Context, userID string) (*model.User, *tier.Profile, error) {
	u, err := l.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	p, ok := tier.Lookup(u.Tier)
	if !ok {
		l.logger.Warn().Str("user_id", userID).Str("tier", u.Tier).Msg("Unknown tier, denying admission")
		return u, nil, nil
	}
	return u, &p, nil
}

func (l *quotaLedger) containerItems(ctx context.Context, c *repository.Container) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("add item admission needs a container: %w", apperror.ErrNotFound)
	}
	if c.IsSub() {
		s, err := l.collections.GetSubCollection(ctx, c.UserID, c.CollectionID, c.SubCollectionID)
		if err != nil {
			return 0, err
		}
		return s.ItemCount, nil
	}
	col, err := l.collections.GetCollection(ctx, c.UserID, c.CollectionID)
	if err != nil {
		return 0, err
	}
	return col.ItemCount, nil
}

func (l *quotaLedger) CheckAdmission(ctx context.Context, userID string, op quota.Operation, a Admission) (quota.Decision, error) {
	u, p, err := l.profile(ctx, userID)
	if err != nil {
		return quota.Decision{}, err
	}

	var usage quota.Usage
	if u != nil {
		usage = u.Usage
	}
	req := quota.Request{ItemPhotos: a.ItemPhotos, FileSizeMB: a.FileSizeMB}
	if op == quota.AddItem && p != nil {
		n, err := l.containerItems(ctx, a.Container)
		if err != nil {
			return quota.Decision{}, err
		}
		req.ContainerItems = n
	}

	d := quota.Evaluate(p, usage, op, req)
	metrics.AdmissionDecisions.WithLabelValues(string(op), metrics.Outcome(d.Admitted)).Inc()
	if !d.Admitted {
		l.logger.Info().Str("user_id", userID).Str("operation", string(op)).Str("limit", d.Limit).Msg("Admission denied")
	}
	return d, nil
}

func (l *quotaLedger) Admit(ctx context.Context, userID string, op quota.Operation, a Admission) error {
	d, err := l.CheckAdmission(ctx, userID, op, a)
	if err != nil {
		return err
	}
	return d.Err(op)
}

func (l *quotaLedger) Reserve(ctx context.Context, userID string, op quota.Operation, r Reservation) error {
	delta := quota.Delta(op, quota.Request{FileSizeMB: r.SizeMB})
	if delta.IsZero() {
		return nil
	}

	if r.Token != "" && l.receipts != nil {
		key := fmt.Sprintf("%s:%s:%s", userID, op, r.Token)
		claimed, err := l.receipts.Claim(ctx, key)
		if err != nil {
			return fmt.Errorf("claiming reservation: %w", err)
		}
		if !claimed {
			l.logger.Debug().Str("user_id", userID).Str("operation", string(op)).Str("token", r.Token).Msg("Reservation already applied")
			return nil
		}
		if err := l.apply(ctx, userID, op, delta, r); err != nil {
			if ferr := l.receipts.Forget(ctx, key); ferr != nil {
				l.logger.Error().Err(ferr).Str("user_id", userID).Str("token", r.Token).Msg("Failed to forget reservation receipt")
			}
			return err
		}
		return nil
	}
	return l.apply(ctx, userID, op, delta, r)
}

func (l *quotaLedger) apply(ctx context.Context, userID string, op quota.Operation, delta quota.Usage, r Reservation) error {
	if !l.strict || (op != quota.CreateCollection && op != quota.AddItem) {
		if err := l.users.AddUsage(ctx, userID, delta); err != nil {
			return err
		}
		if op == quota.AddItem {
			if r.Container == nil {
				return fmt.Errorf("add item reservation needs a container")
			}
			return l.collections.AddAggregates(ctx, *r.Container, 1, r.Value)
		}
		return nil
	}
	return l.applyStrict(ctx, userID, op, r)
}

func (l *quotaLedger) applyStrict(ctx context.Context, userID string, op quota.Operation, r Reservation) error {
	_, p, err := l.profile(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return quota.Evaluate(nil, quota.Usage{}, op, quota.Request{}).Err(op)
	}

	switch op {
	case quota.CreateCollection:
		return l.guarded(op, quota.LimitMaxCollections, p.MaxCollections,
			func(limit float64) error {
				return l.users.AddUsageBelow(ctx, userID, repository.UsageCollections, 1, limit)
			},
			func() error { return l.users.AddUsage(ctx, userID, quota.Usage{Collections: 1}) },
		)

	case quota.AddItem:
		if r.Container == nil {
			return fmt.Errorf("add item reservation needs a container")
		}
		err := l.guarded(op, quota.LimitMaxTotalItems, p.MaxTotalItems,
			func(limit float64) error {
				return l.users.AddUsageBelow(ctx, userID, repository.UsageTotalItems, 1, limit)
			},
			func() error { return l.users.AddUsage(ctx, userID, quota.Usage{TotalItems: 1}) },
		)
		if err != nil {
			return err
		}
		err = l.guarded(op, quota.LimitMaxItemsPerCollection, p.MaxItemsPerCollection,
			func(limit float64) error {
				return l.collections.AddItemBelow(ctx, *r.Container, r.Value, int64(limit))
			},
			func() error { return l.collections.AddAggregates(ctx, *r.Container, 1, r.Value) },
		)
		if err != nil {
			// undo the user-level slot taken above
			if rerr := l.users.AddUsage(ctx, userID, quota.Usage{TotalItems: -1}); rerr != nil {
				l.logger.Error().Err(rerr).Str("user_id", userID).Msg("Failed to roll back total item reservation")
			}
			return err
		}
		return nil
	}
	return nil
}

// guarded runs the bounded increment unless limit is unlimited, translating a
// failed guard into a quota error.
func (l *quotaLedger) guarded(op quota.Operation, limitName string, limit int64, bounded func(float64) error, unbounded func() error) error {
	if tier.IsUnlimited(limit) {
		return unbounded()
	}
	err := bounded(float64(limit))
	if errors.Is(err, docstore.ErrConditionFailed) {
		return &apperror.QuotaExceededError{
			Operation: string(op),
			Limit:     limitName,
			Max:       limit,
			Current:   float64(limit),
		}
	}
	return err
}

func (l *quotaLedger) Release(ctx context.Context, userID string, delta quota.Usage) error {
	if delta.IsZero() {
		return nil
	}
	if err := l.users.AddUsage(ctx, userID, delta.Neg()); err != nil {
		l.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to release usage")
		return err
	}
	return nil
}

func (l *quotaLedger) ReleaseContainer(ctx context.Context, c repository.Container, items int64, value float64) error {
	if items == 0 && value == 0 {
		return nil
	}
	if err := l.collections.AddAggregates(ctx, c, -items, -value); err != nil {
		l.logger.Error().Err(err).Str("collection_id", c.CollectionID).Str("sub_collection_id", c.SubCollectionID).Msg("Failed to release container aggregates")
		return err
	}
	return nil
}

func (l *quotaLedger) Restate(ctx context.Context, userID string, usage quota.Usage) error {
	return l.users.SetUsage(ctx, userID, usage)
}

func (l *quotaLedger) RestateContainer(ctx context.Context, c repository.Container, items int64, value float64) error {
	return l.collections.SetAggregates(ctx, c, items, value)
}
