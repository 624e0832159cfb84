package tier

import (
	"strings"
)

type Name string

const (
	Free       Name = "free"
	Pro        Name = "pro"
	Enterprise Name = "enterprise"
)

// Unlimited is the limit value that disables a numeric quota.
const Unlimited int64 = -1

// Profile is the fixed set of limits for a tier. Profiles are process-wide
// configuration and are never mutated.
type Profile struct {
	Name                  Name   `json:"name"`
	DisplayName           string `json:"displayName"`
	MaxCollections        int64  `json:"maxCollections"`
	MaxItemsPerCollection int64  `json:"maxItemsPerCollection"`
	MaxTotalItems         int64  `json:"maxTotalItems"`
	MaxPhotosPerItem      int64  `json:"maxPhotosPerItem"`
	MaxStorageMB          int64  `json:"maxStorageMB"`
	CanCreateTemplates    bool   `json:"canCreateTemplates"`
	CanUseCustomTemplates bool   `json:"canUseCustomTemplates"`
	PrioritySupport       bool   `json:"prioritySupport"`
}

var profiles = map[Name]Profile{
	Free: {
		Name:                  Free,
		DisplayName:           "Free",
		MaxCollections:        3,
		MaxItemsPerCollection: 50,
		MaxTotalItems:         150,
		MaxPhotosPerItem:      5,
		MaxStorageMB:          100,
	},
	Pro: {
		Name:                  Pro,
		DisplayName:           "Pro",
		MaxCollections:        25,
		MaxItemsPerCollection: 1000,
		MaxTotalItems:         25000,
		MaxPhotosPerItem:      20,
		MaxStorageMB:          2048,
		CanCreateTemplates:    true,
		CanUseCustomTemplates: true,
	},
	Enterprise: {
		Name:                  Enterprise,
		DisplayName:           "Patron",
		MaxCollections:        Unlimited,
		MaxItemsPerCollection: Unlimited,
		MaxTotalItems:         Unlimited,
		MaxPhotosPerItem:      Unlimited,
		MaxStorageMB:          51200,
		CanCreateTemplates:    true,
		CanUseCustomTemplates: true,
		PrioritySupport:       true,
	},
}

// Normalize maps a stored tier name to its canonical name. "patron" is the
// customer-facing name of the enterprise tier.
func Normalize(name string) (Name, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(Free):
		return Free, true
	case string(Pro):
		return Pro, true
	case string(Enterprise), "patron":
		return Enterprise, true
	default:
		return "", false
	}
}

// Lookup returns the profile for name. Unknown names do not resolve.
func Lookup(name string) (Profile, bool) {
	n, ok := Normalize(name)
	if !ok {
		return Profile{}, false
	}
	return profiles[n], true
}

// All returns every profile ordered from lowest to highest.
func All() []Profile {
	return []Profile{profiles[Free], profiles[Pro], profiles[Enterprise]}
}

// Rank orders tiers so upgrades and downgrades can be told apart.
func Rank(name Name) int {
	switch name {
	case Enterprise:
		return 2
	case Pro:
		return 1
	default:
		return 0
	}
}

// IsUnlimited reports whether limit disables its quota.
func IsUnlimited(limit int64) bool {
	return limit == Unlimited
}
