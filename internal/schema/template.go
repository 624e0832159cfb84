package schema

import (
	"fmt"
	"strings"
	"time"

	"trove/internal/apperror"
)

// State is the lifecycle state of a template.
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

// Template is a named, ordered set of fields that records are validated
// against. Built-in templates are immutable and never count usage.
type Template struct {
	ID          string      `json:"-"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Fields      []FieldSpec `json:"fields"`
	IsBuiltIn   bool        `json:"isBuiltIn"`
	UsageCount  int64       `json:"usageCount"`
	State       State       `json:"state"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	DeletedAt   *time.Time  `json:"deletedAt,omitempty"`
}

// Active reports whether t may be resolved and used for new records.
func (t *Template) Active() bool {
	return t.State == "" || t.State == StateActive
}

// Field looks up a field by name.
func (t *Template) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldDefinition is an authored field before validation.
type FieldDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Required    bool     `json:"required" yaml:"required"`
	Options     []string `json:"options,omitempty" yaml:"options"`
	Description string   `json:"description,omitempty" yaml:"description"`
}

// Definition is an authored template before validation.
type Definition struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Icon        string            `json:"icon,omitempty" yaml:"icon"`
	Fields      []FieldDefinition `json:"fields" yaml:"fields"`
}

// DefaultIcon is used when a definition leaves the icon blank.
const DefaultIcon = "📦"

// Build validates d and returns its normalized fields. All problems are
// collected into one *apperror.ValidationError.
func (d Definition) Build() ([]FieldSpec, error) {
	ve := &apperror.ValidationError{}

	if strings.TrimSpace(d.Name) == "" {
		ve.Add("name", apperror.CodeInvalidDefinition, "template name is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		ve.Add("description", apperror.CodeInvalidDefinition, "template description is required")
	}
	if len(d.Fields) == 0 {
		ve.Add("fields", apperror.CodeInvalidDefinition, "at least one field is required")
	}

	seen := make(map[string]int, len(d.Fields))
	fields := make([]FieldSpec, 0, len(d.Fields))
	for i, fd := range d.Fields {
		label := fmt.Sprintf("fields[%d]", i)
		name := strings.TrimSpace(fd.Name)
		if name == "" {
			ve.Add(label+".name", apperror.CodeInvalidDefinition, "field name is required")
		} else if first, dup := seen[name]; dup {
			ve.Add(label+".name", apperror.CodeDuplicateField, "%q already used by fields[%d]", name, first)
		} else {
			seen[name] = i
		}

		t, ok := ParseFieldType(fd.Type)
		if !ok {
			ve.Add(label+".type", apperror.CodeUnknownType, "unknown field type %q", fd.Type)
			continue
		}
		kind, err := NewKind(t, fd.Options)
		if err != nil {
			ve.Add(label+".type", apperror.CodeUnknownType, "%v", err)
			continue
		}
		if sk, isSelect := kind.(SelectKind); isSelect && len(sk.Options) == 0 {
			ve.Add(label+".options", apperror.CodeMissingOptions, "select field %q needs at least one option", name)
		}
		fields = append(fields, FieldSpec{
			Name:        name,
			Kind:        kind,
			Required:    fd.Required,
			Description: strings.TrimSpace(fd.Description),
		})
	}

	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return fields, nil
}

// Definition converts t back into its authored form, used when duplicating.
func (t *Template) Definition() Definition {
	d := Definition{
		Name:        t.Name,
		Description: t.Description,
		Icon:        t.Icon,
		Fields:      make([]FieldDefinition, 0, len(t.Fields)),
	}
	for _, f := range t.Fields {
		d.Fields = append(d.Fields, FieldDefinition{
			Name:        f.Name,
			Type:        string(f.Type()),
			Required:    f.Required,
			Options:     append([]string(nil), f.Options()...),
			Description: f.Description,
		})
	}
	return d
}
