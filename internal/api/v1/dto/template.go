package dto

import (
	"time"

	"trove/internal/schema"
)

// TemplateFieldDTO is one field of a template definition.
type TemplateFieldDTO struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty"`
	Description string   `json:"description,omitempty"`
}

// TemplateRequestDTO is used to create or replace a custom template. Field
// level rules are checked by the schema package so every problem is reported
// at once.
type TemplateRequestDTO struct {
	Name        string             `json:"name" validate:"max=100"`
	Description string             `json:"description" validate:"max=500"`
	Icon        string             `json:"icon" validate:"max=16"`
	Fields      []TemplateFieldDTO `json:"fields" validate:"max=100"`
}

// TemplateResponseDTO is returned in API responses for templates
type TemplateResponseDTO struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Icon        string             `json:"icon"`
	Fields      []TemplateFieldDTO `json:"fields"`
	IsBuiltIn   bool               `json:"is_built_in"`
	IsActive    bool               `json:"is_active"`
	UsageCount  int64              `json:"usage_count"`
	CreatedBy   string             `json:"created_by,omitempty"`
	CreatedAt   *time.Time         `json:"created_at,omitempty"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
}

// Definition converts the request into an unvalidated schema definition.
func (d TemplateRequestDTO) Definition() schema.Definition {
	def := schema.Definition{
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Fields:      make([]schema.FieldDefinition, 0, len(d.Fields)),
	}
	for _, f := range d.Fields {
		def.Fields = append(def.Fields, schema.FieldDefinition(f))
	}
	return def
}

func Template(t *schema.Template) TemplateResponseDTO {
	def := t.Definition()
	fields := make([]TemplateFieldDTO, 0, len(def.Fields))
	for _, f := range def.Fields {
		fields = append(fields, TemplateFieldDTO(f))
	}
	resp := TemplateResponseDTO{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Icon:        t.Icon,
		Fields:      fields,
		IsBuiltIn:   t.IsBuiltIn,
		IsActive:    t.Active(),
		UsageCount:  t.UsageCount,
		CreatedBy:   t.CreatedBy,
		DeletedAt:   t.DeletedAt,
	}
	if !t.CreatedAt.IsZero() {
		resp.CreatedAt = &t.CreatedAt
		resp.UpdatedAt = &t.UpdatedAt
	}
	return resp
}

func Templates(ts []*schema.Template) []TemplateResponseDTO {
	out := make([]TemplateResponseDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, Template(t))
	}
	return out
}
