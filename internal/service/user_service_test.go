package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/internal/apperror"
	"trove/internal/model"
	"trove/internal/quota"
	"trove/internal/tier"
)

func TestBootstrapCreatesFreeProfileOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u, err := h.userSvc.Bootstrap(ctx, "u1", Profile{Name: " Ada ", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, string(tier.Free), u.Tier)
	assert.True(t, u.Usage.IsZero())

	h.newCollection(t, "u1")
	again, err := h.userSvc.Bootstrap(ctx, "u1", Profile{Name: "Someone Else"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
	assert.Equal(t, int64(1), again.Usage.Collections)
}

func TestGetUserTierInfo(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "patron")
	require.NoError(t, h.ledger.Restate(ctx, "u1", quota.Usage{Collections: 4}))

	info, err := h.userSvc.GetUserTierInfo(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, string(tier.Enterprise), info.Tier)
	require.NotNil(t, info.Limits)
	assert.Equal(t, "Patron", info.Limits.DisplayName)
	assert.Equal(t, int64(4), info.Usage.Collections)

	_, err = h.userSvc.GetUserTierInfo(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSetTierRecordsChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUser(t, "u1", "free")

	u, err := h.userSvc.SetTier(ctx, "u1", "Pro", "admin")
	require.NoError(t, err)
	assert.Equal(t, string(tier.Pro), u.Tier)

	_, err = h.userSvc.SetTier(ctx, "u1", "pro", "admin")
	require.NoError(t, err)

	events, err := h.userSvc.ListSubscriptionEvents(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventTierChange, events[0].Event)
	assert.Equal(t, "free", events[0].FromTier)
	assert.Equal(t, "pro", events[0].ToTier)
	assert.Equal(t, "admin", events[0].Source)

	// the new tier takes effect on the next admission
	_, err = h.templates.Create(ctx, "u1", proDefinition("Coins"))
	require.NoError(t, err)
}

func TestSetTierRejectsUnknown(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "u1", "free")
	_, err := h.userSvc.SetTier(context.Background(), "u1", "gold", "admin")
	require.ErrorIs(t, err, apperror.ErrValidation)
	ve, ok := apperror.AsValidation(err)
	require.True(t, ok)
	assert.True(t, ve.Has("tier", apperror.CodeInvalidOption))
}
