package model

import "time"

// Collection is a top-level container at users/{userID}/collections/{id}.
// ItemCount and EstimatedValue cover the collection's direct items only;
// sub-collections keep their own aggregates.
type Collection struct {
	ID             string    `json:"-"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	TemplateID     string    `json:"templateId"`
	ItemCount      int64     `json:"itemCount"`
	EstimatedValue float64   `json:"estimatedValue"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SubCollection is a nested container inside a collection.
type SubCollection struct {
	ID             string    `json:"-"`
	CollectionID   string    `json:"collectionId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	TemplateID     string    `json:"templateId"`
	ItemCount      int64     `json:"itemCount"`
	EstimatedValue float64   `json:"estimatedValue"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Photo is an uploaded image attached to an item.
type Photo struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	SizeMB      float64   `json:"sizeMB"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Item is a record conforming to a template.
type Item struct {
	ID              string         `json:"-"`
	CollectionID    string         `json:"collectionId"`
	SubCollectionID string         `json:"subCollectionId,omitempty"`
	TemplateID      string         `json:"templateId"`
	Attributes      map[string]any `json:"attributes"`
	EstimatedValue  float64        `json:"estimatedValue"`
	Photos          []Photo        `json:"photos"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// StorageMB is the total size of the item's photos.
func (i *Item) StorageMB() float64 {
	var total float64
	for _, p := range i.Photos {
		total += p.SizeMB
	}
	return total
}

// PhotoKeys lists the blob keys of the item's photos.
func (i *Item) PhotoKeys() []string {
	keys := make([]string, 0, len(i.Photos))
	for _, p := range i.Photos {
		keys = append(keys, p.Key)
	}
	return keys
}
