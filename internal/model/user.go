package model

import (
	"time"

	"trove/internal/quota"
)

// User is the profile document at users/{userID}. Usage is only written by
// the quota ledger.
type User struct {
	UserID    string      `json:"-"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	AvatarURL string      `json:"avatarUrl,omitempty"`
	Tier      string      `json:"tier"`
	Usage     quota.Usage `json:"usage"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// SubscriptionEvent is an append-only record of a tier change.
type SubscriptionEvent struct {
	ID        string    `json:"-"`
	UserID    string    `json:"userId"`
	Event     string    `json:"event"`
	FromTier  string    `json:"fromTier"`
	ToTier    string    `json:"toTier"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const EventTierChange = "tier_change"
