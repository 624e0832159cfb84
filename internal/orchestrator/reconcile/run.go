package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"trove/internal/model"
	"trove/internal/pgmq"
	"trove/internal/quota"
)

// maxDeliveries is how often a job is retried before it is archived.
const maxDeliveries = 5

// Queue is the subset of the pgmq client the worker needs.
type Queue interface {
	ReadWithPoll(ctx context.Context, queue string, visibilitySec, timeoutSec, maxMessages int) ([]*pgmq.Message, error)
	Delete(ctx context.Context, queue string, msgIDs []int64) error
	Archive(ctx context.Context, queue string, msgIDs []int64) error
}

// Recounter recomputes one user's counters.
type Recounter interface {
	Recount(ctx context.Context, userID string) (quota.Usage, error)
}

// Options tune the poll loop.
type Options struct {
	Queue       string
	PollTimeout int
	MaxMessages int
	// Visibility is how long a read job stays hidden before redelivery.
	Visibility int
}

// Run starts the usage reconcile orchestrator. Jobs for the same user within
// one batch are recounted once.
func Run(ctx context.Context, logger zerolog.Logger, client Queue, svc Recounter, opts Options) error {
	logger = logger.With().Str("orchestrator", "reconcile").Str("queue", opts.Queue).Logger()
	if opts.Visibility <= 0 {
		opts.Visibility = 60
	}
	logger.Info().Msg("Starting reconcile orchestrator")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down reconcile orchestrator")
			return nil
		default:
		}

		msgs, err := client.ReadWithPoll(ctx, opts.Queue, opts.Visibility, opts.PollTimeout, opts.MaxMessages)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("Error reading reconcile queue")
			sleep(ctx, time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		ProcessBatch(ctx, logger, client, svc, opts.Queue, msgs)
	}
}

// ProcessBatch handles one read batch. Messages that cannot be decoded, or
// that keep failing, are archived; successful ones are deleted. Failed jobs
// are left for redelivery after the visibility timeout.
func ProcessBatch(ctx context.Context, logger zerolog.Logger, client Queue, svc Recounter, queue string, msgs []*pgmq.Message) {
	byUser := make(map[string][]*pgmq.Message)
	var order []string
	var poison []int64

	for _, msg := range msgs {
		var job model.ReconcileJob
		if err := json.Unmarshal(msg.Data, &job); err != nil || job.UserID == "" {
			logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Malformed reconcile job")
			poison = append(poison, msg.ID)
			continue
		}
		if _, seen := byUser[job.UserID]; !seen {
			order = append(order, job.UserID)
		}
		byUser[job.UserID] = append(byUser[job.UserID], msg)
	}

	var done []int64
	for _, userID := range order {
		group := byUser[userID]
		if _, err := svc.Recount(ctx, userID); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("Recount failed")
			for _, msg := range group {
				if msg.ReadCnt >= maxDeliveries {
					poison = append(poison, msg.ID)
				}
			}
			continue
		}
		for _, msg := range group {
			done = append(done, msg.ID)
		}
	}

	if len(done) > 0 {
		if err := client.Delete(ctx, queue, done); err != nil {
			logger.Error().Err(err).Msg("Error deleting reconcile messages")
		}
	}
	if len(poison) > 0 {
		if err := client.Archive(ctx, queue, poison); err != nil {
			logger.Error().Err(err).Msg("Error archiving reconcile messages")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
