package dto

import (
	"time"

	"trove/internal/model"
	"trove/internal/service"
)

// ItemCreateDTO is used for incoming item creation requests. Attribute values
// are coerced against the template; TemplateID defaults to the container's.
type ItemCreateDTO struct {
	TemplateID     string         `json:"template_id" validate:"max=128"`
	Attributes     map[string]any `json:"attributes"`
	EstimatedValue float64        `json:"estimated_value" validate:"gte=0"`
}

// PhotoResponseDTO is an attached photo with a short-lived download URL.
type PhotoResponseDTO struct {
	PhotoID     string    `json:"photo_id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeMB      float64   `json:"size_mb"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ItemResponseDTO is returned in API responses for items
type ItemResponseDTO struct {
	ItemID          string             `json:"item_id"`
	CollectionID    string             `json:"collection_id"`
	SubCollectionID string             `json:"sub_collection_id,omitempty"`
	TemplateID      string             `json:"template_id"`
	Attributes      map[string]any     `json:"attributes"`
	EstimatedValue  float64            `json:"estimated_value"`
	Photos          []PhotoResponseDTO `json:"photos"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (d ItemCreateDTO) Input() service.ItemInput {
	attrs := d.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return service.ItemInput{TemplateID: d.TemplateID, Attributes: attrs, EstimatedValue: d.EstimatedValue}
}

// Photo maps p with an already signed url.
func Photo(p model.Photo, url string) PhotoResponseDTO {
	return PhotoResponseDTO{
		PhotoID:     p.ID,
		URL:         url,
		ContentType: p.ContentType,
		SizeMB:      p.SizeMB,
		UploadedAt:  p.UploadedAt,
	}
}

// Item maps i; urls holds one signed url per photo, in order.
func Item(i *model.Item, urls []string) ItemResponseDTO {
	photos := make([]PhotoResponseDTO, 0, len(i.Photos))
	for n, p := range i.Photos {
		var url string
		if n < len(urls) {
			url = urls[n]
		}
		photos = append(photos, Photo(p, url))
	}
	return ItemResponseDTO{
		ItemID:          i.ID,
		CollectionID:    i.CollectionID,
		SubCollectionID: i.SubCollectionID,
		TemplateID:      i.TemplateID,
		Attributes:      i.Attributes,
		EstimatedValue:  i.EstimatedValue,
		Photos:          photos,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}
