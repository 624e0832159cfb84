package repository

import (
	"context"
	"fmt"
	"time"

	"trove/internal/docstore"
	"trove/internal/model"
	"trove/internal/quota"
)

// UserRepository persists user profiles and their usage counters.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	// GetUserByID fails with apperror.ErrNotFound when no profile exists.
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	SetTier(ctx context.Context, userID, tier string) error
	// AddUsage applies delta, clamping every counter at zero.
	AddUsage(ctx context.Context, userID string, delta quota.Usage) error
	// AddUsageBelow increments one counter only while it is below limit.
	// Fails with docstore.ErrConditionFailed otherwise.
	AddUsageBelow(ctx context.Context, userID, counter string, delta, limit float64) error
	// SetUsage overwrites the counters, used by reconciliation.
	SetUsage(ctx context.Context, userID string, usage quota.Usage) error
}

// Usage counter field names inside the user document.
const (
	UsageCollections = "usage.collections"
	UsageTotalItems  = "usage.totalItems"
	UsageStorageMB   = "usage.storageUsedMB"
)

type userRepo struct {
	store docstore.Store
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(store docstore.Store) UserRepository {
	return &userRepo{store: store}
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	data, err := docstore.Encode(u)
	if err != nil {
		return err
	}
	if _, err := r.store.Put(ctx, usersPath, u.UserID, data); err != nil {
		return fmt.Errorf("creating user %s: %w", u.UserID, err)
	}
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	doc, err := r.store.Get(ctx, usersPath, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", userID, err)
	}
	var u model.User
	if err := doc.Decode(&u); err != nil {
		return nil, err
	}
	u.UserID = doc.ID
	return &u, nil
}

func (r *userRepo) SetTier(ctx context.Context, userID, tier string) error {
	err := r.store.Update(ctx, usersPath, userID,
		docstore.Set("tier", tier),
		docstore.Set("updatedAt", time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("setting tier for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) AddUsage(ctx context.Context, userID string, delta quota.Usage) error {
	var ops []docstore.Op
	if delta.Collections != 0 {
		ops = append(ops, docstore.IncrementFloor(UsageCollections, float64(delta.Collections), 0))
	}
	if delta.TotalItems != 0 {
		ops = append(ops, docstore.IncrementFloor(UsageTotalItems, float64(delta.TotalItems), 0))
	}
	if delta.StorageUsedMB != 0 {
		ops = append(ops, docstore.IncrementFloor(UsageStorageMB, delta.StorageUsedMB, 0))
	}
	if len(ops) == 0 {
		return nil
	}
	if err := r.store.Update(ctx, usersPath, userID, ops...); err != nil {
		return fmt.Errorf("updating usage for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) AddUsageBelow(ctx context.Context, userID, counter string, delta, limit float64) error {
	if err := r.store.Update(ctx, usersPath, userID, docstore.IncrementBelow(counter, delta, limit)); err != nil {
		return fmt.Errorf("reserving %s for user %s: %w", counter, userID, err)
	}
	return nil
}

func (r *userRepo) SetUsage(ctx context.Context, userID string, usage quota.Usage) error {
	err := r.store.Update(ctx, usersPath, userID,
		docstore.Set(UsageCollections, usage.Collections),
		docstore.Set(UsageTotalItems, usage.TotalItems),
		docstore.Set(UsageStorageMB, usage.StorageUsedMB),
	)
	if err != nil {
		return fmt.Errorf("setting usage for user %s: %w", userID, err)
	}
	return nil
}
