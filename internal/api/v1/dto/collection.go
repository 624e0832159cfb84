package dto

import (
	"time"

	"trove/internal/model"
	"trove/internal/service"
)

// CollectionCreateDTO is used for incoming collection and sub-collection
// creation requests
type CollectionCreateDTO struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	TemplateID  string `json:"template_id" validate:"max=128"`
}

// CollectionUpdateDTO is used for incoming collection update requests
type CollectionUpdateDTO struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	TemplateID  *string `json:"template_id,omitempty" validate:"omitempty,max=128"`
}

// CollectionResponseDTO is returned in API responses for collections
type CollectionResponseDTO struct {
	CollectionID   string    `json:"collection_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	TemplateID     string    `json:"template_id"`
	ItemCount      int64     `json:"item_count"`
	EstimatedValue float64   `json:"estimated_value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SubCollectionResponseDTO is returned in API responses for sub-collections
type SubCollectionResponseDTO struct {
	SubCollectionID string    `json:"sub_collection_id"`
	CollectionID    string    `json:"collection_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	TemplateID      string    `json:"template_id"`
	ItemCount       int64     `json:"item_count"`
	EstimatedValue  float64   `json:"estimated_value"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CollectionStatsDTO is computed from live items.
type CollectionStatsDTO struct {
	TotalItems     int64            `json:"total_items"`
	TotalValue     float64          `json:"total_value"`
	AverageValue   float64          `json:"average_value"`
	ByTemplate     map[string]int64 `json:"by_template"`
	SubCollections int              `json:"sub_collections"`
}

func (d CollectionCreateDTO) Input() service.ContainerInput {
	return service.ContainerInput{Name: d.Name, Description: d.Description, TemplateID: d.TemplateID}
}

func (d CollectionUpdateDTO) Patch() service.CollectionPatch {
	return service.CollectionPatch{Name: d.Name, Description: d.Description, TemplateID: d.TemplateID}
}

func Collection(c *model.Collection) CollectionResponseDTO {
	return CollectionResponseDTO{
		CollectionID:   c.ID,
		Name:           c.Name,
		Description:    c.Description,
		TemplateID:     c.TemplateID,
		ItemCount:      c.ItemCount,
		EstimatedValue: c.EstimatedValue,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func Collections(cs []model.Collection) []CollectionResponseDTO {
	out := make([]CollectionResponseDTO, 0, len(cs))
	for i := range cs {
		out = append(out, Collection(&cs[i]))
	}
	return out
}

func SubCollection(s *model.SubCollection) SubCollectionResponseDTO {
	return SubCollectionResponseDTO{
		SubCollectionID: s.ID,
		CollectionID:    s.CollectionID,
		Name:            s.Name,
		Description:     s.Description,
		TemplateID:      s.TemplateID,
		ItemCount:       s.ItemCount,
		EstimatedValue:  s.EstimatedValue,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func SubCollections(ss []model.SubCollection) []SubCollectionResponseDTO {
	out := make([]SubCollectionResponseDTO, 0, len(ss))
	for i := range ss {
		out = append(out, SubCollection(&ss[i]))
	}
	return out
}

func Stats(s *service.CollectionStats) CollectionStatsDTO {
	return CollectionStatsDTO(*s)
}
