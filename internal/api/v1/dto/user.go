package dto

import (
	"time"

	"trove/internal/model"
	"trove/internal/quota"
	"trove/internal/service"
	"trove/internal/tier"
)

// UserCreateDTO is used for incoming bootstrap requests. Empty fields fall back
// to the token claims.
type UserCreateDTO struct {
	Name      string `json:"name" validate:"omitempty,max=200"`
	Email     string `json:"email" validate:"omitempty,email"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

// UsageDTO is a user's consumption counters.
type UsageDTO struct {
	Collections   int64   `json:"collections"`
	TotalItems    int64   `json:"total_items"`
	StorageUsedMB float64 `json:"storage_used_mb"`
}

// UserResponseDTO is returned in API responses
type UserResponseDTO struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	Tier      string    `json:"tier"`
	Usage     UsageDTO  `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LimitsDTO is a tier profile. -1 means unlimited.
type LimitsDTO struct {
	DisplayName           string `json:"display_name"`
	MaxCollections        int64  `json:"max_collections"`
	MaxItemsPerCollection int64  `json:"max_items_per_collection"`
	MaxTotalItems         int64  `json:"max_total_items"`
	MaxPhotosPerItem      int64  `json:"max_photos_per_item"`
	MaxStorageMB          int64  `json:"max_storage_mb"`
	CanCreateTemplates    bool   `json:"can_create_templates"`
	CanUseCustomTemplates bool   `json:"can_use_custom_templates"`
	PrioritySupport       bool   `json:"priority_support"`
}

// TierInfoResponseDTO is returned by GET /users/me/tier.
type TierInfoResponseDTO struct {
	Tier   string     `json:"tier"`
	Limits *LimitsDTO `json:"limits"`
	Usage  UsageDTO   `json:"usage"`
}

func Usage(u quota.Usage) UsageDTO {
	return UsageDTO{Collections: u.Collections, TotalItems: u.TotalItems, StorageUsedMB: u.StorageUsedMB}
}

func User(u *model.User) UserResponseDTO {
	return UserResponseDTO{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Tier:      u.Tier,
		Usage:     Usage(u.Usage),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func Limits(p *tier.Profile) *LimitsDTO {
	if p == nil {
		return nil
	}
	return &LimitsDTO{
		DisplayName:           p.DisplayName,
		MaxCollections:        p.MaxCollections,
		MaxItemsPerCollection: p.MaxItemsPerCollection,
		MaxTotalItems:         p.MaxTotalItems,
		MaxPhotosPerItem:      p.MaxPhotosPerItem,
		MaxStorageMB:          p.MaxStorageMB,
		CanCreateTemplates:    p.CanCreateTemplates,
		CanUseCustomTemplates: p.CanUseCustomTemplates,
		PrioritySupport:       p.PrioritySupport,
	}
}

func TierInfo(info *service.TierInfo) TierInfoResponseDTO {
	return TierInfoResponseDTO{Tier: info.Tier, Limits: Limits(info.Limits), Usage: Usage(info.Usage)}
}
