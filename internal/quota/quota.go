// Package quota evaluates tier limits against usage counters. It performs no
// I/O; the ledger in the service package reads the counters and applies the
// decision.
package quota

import (
	"trove/internal/apperror"
	"trove/internal/tier"
)

type Operation string

const (
	CreateCollection  Operation = "create_collection"
	AddItem           Operation = "add_item"
	UploadPhoto       Operation = "upload_photo"
	CreateTemplate    Operation = "create_template"
	UseCustomTemplate Operation = "use_custom_template"
)

// Limit names reported in decisions.
const (
	LimitTier                  = "tier"
	LimitMaxCollections        = "maxCollections"
	LimitMaxTotalItems         = "maxTotalItems"
	LimitMaxItemsPerCollection = "maxItemsPerCollection"
	LimitMaxStorageMB          = "maxStorageMB"
	LimitMaxPhotosPerItem      = "maxPhotosPerItem"
	LimitCanCreateTemplates    = "canCreateTemplates"
	LimitCanUseCustomTemplates = "canUseCustomTemplates"
)

// Usage is the per-user counter set.
type Usage struct {
	Collections   int64   `json:"collections"`
	TotalItems    int64   `json:"totalItems"`
	StorageUsedMB float64 `json:"storageUsedMB"`
}

// Add returns u+d with every counter clamped at zero.
func (u Usage) Add(d Usage) Usage {
	out := Usage{
		Collections:   u.Collections + d.Collections,
		TotalItems:    u.TotalItems + d.TotalItems,
		StorageUsedMB: u.StorageUsedMB + d.StorageUsedMB,
	}
	if out.Collections < 0 {
		out.Collections = 0
	}
	if out.TotalItems < 0 {
		out.TotalItems = 0
	}
	if out.StorageUsedMB < 0 {
		out.StorageUsedMB = 0
	}
	return out
}

// Neg flips the sign of every counter.
func (u Usage) Neg() Usage {
	return Usage{Collections: -u.Collections, TotalItems: -u.TotalItems, StorageUsedMB: -u.StorageUsedMB}
}

// IsZero reports whether u changes nothing.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Request carries the operation context that is not part of user usage.
type Request struct {
	// ContainerItems is the live item count of the target collection or
	// sub-collection for AddItem.
	ContainerItems int64
	// ItemPhotos is the number of photos already attached for UploadPhoto.
	ItemPhotos int64
	FileSizeMB float64
}

// Decision is the outcome of an admission check. A denied decision names the
// limit that denied it.
type Decision struct {
	Admitted bool
	Limit    string
	Max      int64
	Current  float64
}

// Err returns a *apperror.QuotaExceededError for a denied decision.
func (d Decision) Err(op Operation) error {
	if d.Admitted {
		return nil
	}
	return &apperror.QuotaExceededError{
		Operation: string(op),
		Limit:     d.Limit,
		Max:       d.Max,
		Current:   d.Current,
	}
}

var admit = Decision{Admitted: true}

func deny(limit string, max int64, current float64) Decision {
	return Decision{Limit: limit, Max: max, Current: current}
}

// below admits current < limit, or anything when limit is unlimited.
func below(limit int64, current int64) bool {
	return tier.IsUnlimited(limit) || current < limit
}

// Evaluate decides whether op is admitted. A nil profile denies everything.
func Evaluate(p *tier.Profile, u Usage, op Operation, req Request) Decision {
	if p == nil {
		return deny(LimitTier, 0, 0)
	}

	switch op {
	case CreateCollection:
		if !below(p.MaxCollections, u.Collections) {
			return deny(LimitMaxCollections, p.MaxCollections, float64(u.Collections))
		}
		return admit

	case AddItem:
		if !below(p.MaxTotalItems, u.TotalItems) {
			return deny(LimitMaxTotalItems, p.MaxTotalItems, float64(u.TotalItems))
		}
		if !below(p.MaxItemsPerCollection, req.ContainerItems) {
			return deny(LimitMaxItemsPerCollection, p.MaxItemsPerCollection, float64(req.ContainerItems))
		}
		return admit

	case UploadPhoto:
		if !tier.IsUnlimited(p.MaxStorageMB) && u.StorageUsedMB+req.FileSizeMB > float64(p.MaxStorageMB) {
			return deny(LimitMaxStorageMB, p.MaxStorageMB, u.StorageUsedMB)
		}
		if !below(p.MaxPhotosPerItem, req.ItemPhotos) {
			return deny(LimitMaxPhotosPerItem, p.MaxPhotosPerItem, float64(req.ItemPhotos))
		}
		return admit

	case CreateTemplate:
		if !p.CanCreateTemplates {
			return deny(LimitCanCreateTemplates, 0, 0)
		}
		return admit

	case UseCustomTemplate:
		if !p.CanUseCustomTemplates {
			return deny(LimitCanUseCustomTemplates, 0, 0)
		}
		return admit
	}
	return deny(string(op), 0, 0)
}

// Delta is the counter change a successful op applies.
func Delta(op Operation, req Request) Usage {
	switch op {
	case CreateCollection:
		return Usage{Collections: 1}
	case AddItem:
		return Usage{TotalItems: 1}
	case UploadPhoto:
		return Usage{StorageUsedMB: req.FileSizeMB}
	}
	return Usage{}
}
