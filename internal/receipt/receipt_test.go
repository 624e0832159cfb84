package receipt

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runClaimContract(t *testing.T, s Store) {
	ctx := context.Background()
	token := uuid.NewString()

	ok, err := s.Claim(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same token")

	require.NoError(t, s.Forget(ctx, token))
	ok, err = s.Claim(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok, "claim after forget")
}

func TestMemoryStore(t *testing.T) {
	runClaimContract(t, NewMemoryStore(time.Hour))
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ok, _ := s.Claim(context.Background(), "t")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = s.Claim(context.Background(), "t")
	assert.True(t, ok)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TROVE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TROVE_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))

	runClaimContract(t, s)
}
