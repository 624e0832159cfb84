package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/pgmq"
	"trove/internal/quota"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]*pgmq.Message
	deleted  []int64
	archived []int64
}

func (q *fakeQueue) ReadWithPoll(ctx context.Context, queue string, visibilitySec, timeoutSec, maxMessages int) ([]*pgmq.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		return nil, nil
	}
	b := q.batches[0]
	q.batches = q.batches[1:]
	return b, nil
}

func (q *fakeQueue) Delete(ctx context.Context, queue string, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, ids...)
	return nil
}

func (q *fakeQueue) Archive(ctx context.Context, queue string, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.archived = append(q.archived, ids...)
	return nil
}

type fakeRecounter struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func (f *fakeRecounter) Recount(ctx context.Context, userID string) (quota.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[userID]++
	if f.fail[userID] {
		return quota.Usage{}, errors.New("store down")
	}
	return quota.Usage{}, nil
}

func msg(id int64, reads int, data string) *pgmq.Message {
	return &pgmq.Message{ID: id, ReadCnt: reads, Data: []byte(data)}
}

func TestProcessBatch(t *testing.T) {
	q := &fakeQueue{}
	rc := &fakeRecounter{calls: map[string]int{}, fail: map[string]bool{"bad": true}}

	ProcessBatch(context.Background(), zerolog.Nop(), q, rc, "usage_reconcile_queue", []*pgmq.Message{
		msg(1, 1, `{"user_id":"u1","reason":"reserve_failed"}`),
		msg(2, 1, `{"user_id":"u1","reason":"release_failed"}`),
		msg(3, 1, `not json`),
		msg(4, 1, `{"user_id":"bad"}`),
		msg(5, maxDeliveries, `{"user_id":"bad"}`),
		msg(6, 1, `{"reason":"no user"}`),
	})

	assert.Equal(t, 1, rc.calls["u1"])
	assert.Equal(t, 1, rc.calls["bad"])
	assert.ElementsMatch(t, []int64{1, 2}, q.deleted)
	assert.ElementsMatch(t, []int64{3, 5, 6}, q.archived)
}

func TestRunStopsOnCancel(t *testing.T) {
	q := &fakeQueue{batches: [][]*pgmq.Message{{msg(1, 1, `{"user_id":"u1"}`)}}}
	rc := &fakeRecounter{calls: map[string]int{}, fail: map[string]bool{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, zerolog.Nop(), q, rc, Options{Queue: "q", PollTimeout: 1, MaxMessages: 10})
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.deleted) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
