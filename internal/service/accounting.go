package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trove/internal/apperror"
	"trove/internal/metrics"
	"trove/internal/model"
	"trove/internal/quota"
)

// accounting applies reservations after writes on behalf of the services
// that create resources.
type accounting struct {
	ledger QuotaLedger
	queue  ReconcileQueue
	logger zerolog.Logger
}

// settle reserves counters for a write that already succeeded. Only a quota
// denial from a strict reservation is returned; the caller must then undo the
// write. Any other failure leaves counters short, so a recount is queued and
// the request still succeeds.
func (a *accounting) settle(ctx context.Context, userID string, op quota.Operation, r Reservation) error {
	// the write already happened, so a client disconnect must not skip this
	ctx = context.WithoutCancel(ctx)

	err := a.ledger.Reserve(ctx, userID, op, r)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperror.ErrQuotaExceeded) {
		return err
	}

	metrics.ReserveFailures.WithLabelValues(string(op)).Inc()
	a.logger.Error().Err(err).Str("user_id", userID).Str("operation", string(op)).Str("token", r.Token).Msg("Failed to reserve usage after write")
	if a.queue == nil {
		return nil
	}
	job := model.ReconcileJob{
		UserID:      userID,
		Reason:      "reserve_failed",
		Operation:   string(op),
		RequestedAt: time.Now().UTC(),
	}
	if qerr := a.queue.Enqueue(ctx, job); qerr != nil {
		a.logger.Error().Err(qerr).Str("user_id", userID).Msg("Failed to enqueue usage reconcile")
	}
	return nil
}
