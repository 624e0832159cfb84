package repository

import (
	"context"
	"fmt"
	"time"

	"trove/internal/docstore"
	"trove/internal/schema"
)

// TemplateRepository persists user-defined templates. The collection is flat
// so templates can be shared across users.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *schema.Template) error
	GetTemplate(ctx context.Context, templateID string) (*schema.Template, error)
	// ListTemplates orders by usageCount descending, then creation order.
	ListTemplates(ctx context.Context, includeDeleted bool) ([]*schema.Template, error)
	UpdateDefinition(ctx context.Context, t *schema.Template) error
	MarkDeleted(ctx context.Context, templateID string, at time.Time) error
	IncrementUsage(ctx context.Context, templateID string) error
}

type templateRepo struct {
	store docstore.Store
}

// NewTemplateRepo creates a new TemplateRepository.
func NewTemplateRepo(store docstore.Store) TemplateRepository {
	return &templateRepo{store: store}
}

func (r *templateRepo) CreateTemplate(ctx context.Context, t *schema.Template) error {
	data, err := docstore.Encode(t)
	if err != nil {
		return err
	}
	id, err := r.store.Put(ctx, customTemplatesPath, t.ID, data)
	if err != nil {
		return fmt.Errorf("creating template: %w", err)
	}
	t.ID = id
	return nil
}

func (r *templateRepo) GetTemplate(ctx context.Context, templateID string) (*schema.Template, error) {
	doc, err := r.store.Get(ctx, customTemplatesPath, templateID)
	if err != nil {
		return nil, fmt.Errorf("getting template %s: %w", templateID, err)
	}
	return decodeTemplate(doc)
}

func (r *templateRepo) ListTemplates(ctx context.Context, includeDeleted bool) ([]*schema.Template, error) {
	q := docstore.Query{
		OrderBy: []docstore.Order{{Field: "usageCount", Desc: true}},
	}
	if !includeDeleted {
		q.Filters = []docstore.Filter{docstore.Eq("state", schema.StateActive)}
	}
	docs, err := r.store.Query(ctx, customTemplatesPath, q)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	out := make([]*schema.Template, 0, len(docs))
	for i := range docs {
		t, err := decodeTemplate(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *templateRepo) UpdateDefinition(ctx context.Context, t *schema.Template) error {
	err := r.store.Update(ctx, customTemplatesPath, t.ID,
		docstore.Set("name", t.Name),
		docstore.Set("description", t.Description),
		docstore.Set("icon", t.Icon),
		docstore.Set("fields", t.Fields),
		docstore.Set("updatedAt", t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("updating template %s: %w", t.ID, err)
	}
	return nil
}

func (r *templateRepo) MarkDeleted(ctx context.Context, templateID string, at time.Time) error {
	err := r.store.Update(ctx, customTemplatesPath, templateID,
		docstore.Set("state", schema.StateDeleted),
		docstore.Set("deletedAt", at),
		docstore.Set("updatedAt", at),
	)
	if err != nil {
		return fmt.Errorf("deleting template %s: %w", templateID, err)
	}
	return nil
}

func (r *templateRepo) IncrementUsage(ctx context.Context, templateID string) error {
	if err := r.store.Update(ctx, customTemplatesPath, templateID, docstore.Increment("usageCount", 1)); err != nil {
		return fmt.Errorf("recording usage of template %s: %w", templateID, err)
	}
	return nil
}

func decodeTemplate(doc *docstore.Document) (*schema.Template, error) {
	var t schema.Template
	if err := doc.Decode(&t); err != nil {
		return nil, err
	}
	t.ID = doc.ID
	return &t, nil
}
