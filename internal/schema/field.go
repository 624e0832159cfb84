package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the declared type of a template attribute.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeParagraph FieldType = "paragraph"
	TypeNumber    FieldType = "number"
	TypeCurrency  FieldType = "currency"
	TypeDate      FieldType = "date"
	TypeBoolean   FieldType = "boolean"
	TypeSelect    FieldType = "select"
	TypeTags      FieldType = "tags"
	TypeURL       FieldType = "url"
)

// legacy names written by older template builders
var typeAliases = map[string]FieldType{
	"dropdown": TypeSelect,
	"textarea": TypeParagraph,
}

// ParseFieldType resolves a type name, accepting legacy aliases.
func ParseFieldType(s string) (FieldType, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := typeAliases[name]; ok {
		return alias, true
	}
	switch t := FieldType(name); t {
	case TypeText, TypeParagraph, TypeNumber, TypeCurrency, TypeDate,
		TypeBoolean, TypeSelect, TypeTags, TypeURL:
		return t, true
	}
	return "", false
}

// Kind is the closed set of field kinds. Each kind carries only the data its
// coercion needs; the unexported method keeps the set sealed to this package.
type Kind interface {
	Type() FieldType
	coerce(raw any) (any, *fault)
}

// TextKind covers text, paragraph and url fields.
type TextKind struct {
	Variant FieldType
}

// NumberKind covers number and currency fields. Currency rejects negatives.
type NumberKind struct {
	Currency bool
}

type BooleanKind struct{}

type DateKind struct{}

// SelectKind accepts exactly one of Options (case-sensitive).
type SelectKind struct {
	Options []string
}

type TagsKind struct{}

func (k TextKind) Type() FieldType {
	if k.Variant == "" {
		return TypeText
	}
	return k.Variant
}

func (k NumberKind) Type() FieldType {
	if k.Currency {
		return TypeCurrency
	}
	return TypeNumber
}

func (BooleanKind) Type() FieldType { return TypeBoolean }
func (DateKind) Type() FieldType    { return TypeDate }
func (SelectKind) Type() FieldType  { return TypeSelect }
func (TagsKind) Type() FieldType    { return TypeTags }

// NewKind builds the kind for t. Options are only kept for select fields.
func NewKind(t FieldType, options []string) (Kind, error) {
	switch t {
	case TypeText, TypeParagraph, TypeURL:
		return TextKind{Variant: t}, nil
	case TypeNumber:
		return NumberKind{}, nil
	case TypeCurrency:
		return NumberKind{Currency: true}, nil
	case TypeBoolean:
		return BooleanKind{}, nil
	case TypeDate:
		return DateKind{}, nil
	case TypeSelect:
		return SelectKind{Options: cleanOptions(options)}, nil
	case TypeTags:
		return TagsKind{}, nil
	}
	return nil, fmt.Errorf("unknown field type %q", t)
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// FieldSpec describes one attribute of a template.
type FieldSpec struct {
	Name        string
	Kind        Kind
	Required    bool
	Description string
}

// Type returns the declared type, or "" for a field without a kind.
func (f FieldSpec) Type() FieldType {
	if f.Kind == nil {
		return ""
	}
	return f.Kind.Type()
}

// Options returns the select options; nil for every other kind.
func (f FieldSpec) Options() []string {
	if sk, ok := f.Kind.(SelectKind); ok {
		return sk.Options
	}
	return nil
}

type fieldDoc struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Options     []string  `json:"options"`
	Description string    `json:"description"`
}

func (f FieldSpec) MarshalJSON() ([]byte, error) {
	opts := f.Options()
	if opts == nil {
		opts = []string{}
	}
	return json.Marshal(fieldDoc{
		Name:        f.Name,
		Type:        f.Type(),
		Required:    f.Required,
		Options:     opts,
		Description: f.Description,
	})
}

func (f *FieldSpec) UnmarshalJSON(data []byte) error {
	var doc fieldDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	t, ok := ParseFieldType(string(doc.Type))
	if !ok {
		return fmt.Errorf("field %q: unknown field type %q", doc.Name, doc.Type)
	}
	kind, err := NewKind(t, doc.Options)
	if err != nil {
		return err
	}
	*f = FieldSpec{
		Name:        doc.Name,
		Kind:        kind,
		Required:    doc.Required,
		Description: doc.Description,
	}
	return nil
}
