package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trove/internal/apperror"
	"trove/internal/model"
	"trove/internal/pubsub"
	"trove/internal/quota"
	"trove/internal/repository"
	"trove/internal/tier"
)

// TierInfo is a user's tier with its limits and current usage.
type TierInfo struct {
	Tier   string        `json:"tier"`
	Limits *tier.Profile `json:"limits"`
	Usage  quota.Usage   `json:"usage"`
}

// Profile fields taken from the identity provider on first sign-in.
type Profile struct {
	Name      string
	Email     string
	AvatarURL string
}

type UserService interface {
	// Bootstrap returns the user's profile, creating a free-tier profile with
	// zero usage on first sight.
	Bootstrap(ctx context.Context, userID string, p Profile) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	GetUserTierInfo(ctx context.Context, userID string) (*TierInfo, error)
	// SetTier moves the user to another tier and records the change. Setting
	// the current tier is a no-op.
	SetTier(ctx context.Context, userID, tierName, source string) (*model.User, error)
	ListSubscriptionEvents(ctx context.Context, userID string) ([]model.SubscriptionEvent, error)
}

type userService struct {
	repo     repository.UserRepository
	eventLog repository.SubscriptionEventRepository
	events   *pubsub.Emitter
	logger   zerolog.Logger
}

// NewUserService creates a new UserService with a scoped logger.
func NewUserService(
	repo repository.UserRepository,
	eventLog repository.SubscriptionEventRepository,
	events *pubsub.Emitter,
	logger zerolog.Logger,
) UserService {
	return &userService{
		repo:     repo,
		eventLog: eventLog,
		events:   events,
		logger:   logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Bootstrap(ctx context.Context, userID string, p Profile) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load user")
		return nil, err
	}

	now := time.Now().UTC()
	u = &model.User{
		UserID:    userID,
		Name:      strings.TrimSpace(p.Name),
		Email:     strings.TrimSpace(p.Email),
		AvatarURL: p.AvatarURL,
		Tier:      string(tier.Free),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create user")
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Msg("User profile created")
	return u, nil
}

func (s *userService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *userService) GetUserTierInfo(ctx context.Context, userID string) (*TierInfo, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := &TierInfo{Tier: u.Tier, Usage: u.Usage}
	if p, ok := tier.Lookup(u.Tier); ok {
		info.Tier = string(p.Name)
		info.Limits = &p
	}
	return info, nil
}

func (s *userService) SetTier(ctx context.Context, userID, tierName, source string) (*model.User, error) {
	to, ok := tier.Normalize(tierName)
	if !ok {
		ve := &apperror.ValidationError{}
		ve.Add("tier", apperror.CodeInvalidOption, "unknown tier %q", tierName)
		return nil, ve
	}
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	from, _ := tier.Normalize(u.Tier)
	if from == to {
		return u, nil
	}

	if err := s.repo.SetTier(ctx, userID, string(to)); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to set tier")
		return nil, err
	}
	ev := &model.SubscriptionEvent{
		UserID:    userID,
		Event:     model.EventTierChange,
		FromTier:  u.Tier,
		ToTier:    string(to),
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
	if err := s.eventLog.AppendEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to record tier change")
	}

	direction := "upgrade"
	if tier.Rank(to) < tier.Rank(from) {
		direction = "downgrade"
	}
	s.logger.Info().Str("user_id", userID).Str("from", u.Tier).Str("to", string(to)).Str("direction", direction).Msg("Tier changed")
	s.events.Emit(ctx, pubsub.Event{
		Type:      pubsub.EventTierChanged,
		UserID:    userID,
		SubjectID: userID,
		Data:      map[string]any{"from": u.Tier, "to": string(to), "direction": direction},
	})

	u.Tier = string(to)
	u.UpdatedAt = ev.Timestamp
	return u, nil
}

func (s *userService) ListSubscriptionEvents(ctx context.Context, userID string) ([]model.SubscriptionEvent, error) {
	return s.eventLog.ListEventsByUser(ctx, userID)
}
