package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trove/internal/apperror"
	"trove/internal/catalog"
	"trove/internal/pubsub"
	"trove/internal/quota"
	"trove/internal/repository"
	"trove/internal/schema"
)

// TemplateService is the schema registry: built-in templates from the catalog
// plus user-defined templates from the store.
type TemplateService interface {
	// Resolve fails with apperror.ErrNotFound for unknown or deleted ids.
	// Callers that render forms fall back to the default template themselves.
	Resolve(ctx context.Context, templateID string) (*schema.Template, error)
	// ListAll returns built-ins first, then custom templates by usage.
	ListAll(ctx context.Context, includeInactive bool) ([]*schema.Template, error)
	Create(ctx context.Context, userID string, def schema.Definition) (*schema.Template, error)
	Update(ctx context.Context, userID, templateID string, def schema.Definition) (*schema.Template, error)
	// SoftDelete is idempotent for templates that are already deleted.
	SoftDelete(ctx context.Context, userID, templateID string) error
	// RecordUsage is a no-op for built-in templates.
	RecordUsage(ctx context.Context, templateID string) error
	Duplicate(ctx context.Context, userID, templateID string) (*schema.Template, error)
	Analytics(ctx context.Context) (*TemplateAnalytics, error)
}

// TemplateAnalytics summarizes the registry. MostUsed is the active custom
// template with the highest usage count, or nil when none has been used.
type TemplateAnalytics struct {
	BuiltIn  int              `json:"builtIn"`
	Custom   int              `json:"custom"`
	MostUsed *schema.Template `json:"mostUsed,omitempty"`
}

type templateService struct {
	catalog *catalog.Catalog
	repo    repository.TemplateRepository
	ledger  QuotaLedger
	events  *pubsub.Emitter
	now     func() time.Time
	logger  zerolog.Logger
}

// NewTemplateService creates a new TemplateService with a scoped logger.
func NewTemplateService(
	cat *catalog.Catalog,
	repo repository.TemplateRepository,
	ledger QuotaLedger,
	events *pubsub.Emitter,
	logger zerolog.Logger,
) TemplateService {
	return &templateService{
		catalog: cat,
		repo:    repo,
		ledger:  ledger,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("service", "TemplateService").Logger(),
	}
}

func (s *templateService) Resolve(ctx context.Context, templateID string) (*schema.Template, error) {
	if t, ok := s.catalog.Get(templateID); ok {
		return t, nil
	}
	if strings.TrimSpace(templateID) == "" {
		return nil, fmt.Errorf("template id is empty: %w", apperror.ErrNotFound)
	}
	t, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error().Err(err).Str("template_id", templateID).Msg("Failed to fetch template")
		}
		return nil, err
	}
	if !t.Active() {
		return nil, fmt.Errorf("template %s is deleted: %w", templateID, apperror.ErrNotFound)
	}
	return t, nil
}

func (s *templateService) ListAll(ctx context.Context, includeInactive bool) ([]*schema.Template, error) {
	custom, err := s.repo.ListTemplates(ctx, includeInactive)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list custom templates")
		return nil, err
	}
	out := s.catalog.All()
	return append(out, custom...), nil
}

func (s *templateService) Analytics(ctx context.Context) (*TemplateAnalytics, error) {
	custom, err := s.repo.ListTemplates(ctx, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list custom templates")
		return nil, err
	}
	a := &TemplateAnalytics{BuiltIn: len(s.catalog.All()), Custom: len(custom)}
	for _, t := range custom {
		if t.UsageCount > 0 && (a.MostUsed == nil || t.UsageCount > a.MostUsed.UsageCount) {
			a.MostUsed = t
		}
	}
	return a, nil
}

func (s *templateService) Create(ctx context.Context, userID string, def schema.Definition) (*schema.Template, error) {
	if err := s.ledger.Admit(ctx, userID, quota.CreateTemplate, Admission{}); err != nil {
		return nil, err
	}
	fields, err := def.Build()
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &schema.Template{
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Icon:        iconOrDefault(def.Icon),
		Fields:      fields,
		State:       schema.StateActive,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create template")
		return nil, err
	}

	s.events.Emit(ctx, pubsub.Event{
		Type:      pubsub.EventTemplateCreated,
		UserID:    userID,
		SubjectID: t.ID,
		Data:      map[string]any{"name": t.Name, "fields": len(t.Fields)},
	})
	return t, nil
}

// owned loads a custom template the caller may modify.
func (s *templateService) owned(ctx context.Context, userID, templateID string) (*schema.Template, error) {
	if s.catalog.Has(templateID) {
		return nil, fmt.Errorf("built-in template %s is read-only: %w", templateID, apperror.ErrUnauthorized)
	}
	t, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.CreatedBy != userID {
		s.logger.Warn().Str("user_id", userID).Str("template_id", templateID).Msg("Template modification by non-owner")
		return nil, fmt.Errorf("template %s: %w", templateID, apperror.ErrUnauthorized)
	}
	return t, nil
}

func (s *templateService) Update(ctx context.Context, userID, templateID string, def schema.Definition) (*schema.Template, error) {
	t, err := s.owned(ctx, userID, templateID)
	if err != nil {
		return nil, err
	}
	if !t.Active() {
		return nil, fmt.Errorf("template %s is deleted: %w", templateID, apperror.ErrNotFound)
	}
	fields, err := def.Build()
	if err != nil {
		return nil, err
	}

	t.Name = strings.TrimSpace(def.Name)
	t.Description = strings.TrimSpace(def.Description)
	t.Icon = iconOrDefault(def.Icon)
	t.Fields = fields
	t.UpdatedAt = s.now()
	if err := s.repo.UpdateDefinition(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("template_id", templateID).Msg("Failed to update template")
		return nil, err
	}
	return t, nil
}

func (s *templateService) SoftDelete(ctx context.Context, userID, templateID string) error {
	t, err := s.owned(ctx, userID, templateID)
	if err != nil {
		return err
	}
	if !t.Active() {
		return nil
	}
	if err := s.repo.MarkDeleted(ctx, templateID, s.now()); err != nil {
		s.logger.Error().Err(err).Str("template_id", templateID).Msg("Failed to delete template")
		return err
	}
	return nil
}

func (s *templateService) RecordUsage(ctx context.Context, templateID string) error {
	if s.catalog.Has(templateID) {
		return nil
	}
	if err := s.repo.IncrementUsage(ctx, templateID); err != nil {
		s.logger.Error().Err(err).Str("template_id", templateID).Msg("Failed to record template usage")
		return err
	}
	return nil
}

func (s *templateService) Duplicate(ctx context.Context, userID, templateID string) (*schema.Template, error) {
	src, err := s.Resolve(ctx, templateID)
	if err != nil {
		return nil, err
	}
	def := src.Definition()
	def.Name = src.Name + " (Copy)"
	return s.Create(ctx, userID, def)
}

func iconOrDefault(icon string) string {
	if icon = strings.TrimSpace(icon); icon != "" {
		return icon
	}
	return schema.DefaultIcon
}
