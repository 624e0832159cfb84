// Package catalog ships the built-in templates. They are data compiled into
// the binary, never stored, and never usage-tracked.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"trove/internal/schema"
)

// DefaultID is the template used when a collection or item names none.
const DefaultID = "general"

//go:embed templates.yaml
var templatesYAML []byte

type entry struct {
	ID                string `yaml:"id"`
	schema.Definition `yaml:",inline"`
}

// Catalog is an immutable, ordered set of built-in templates.
type Catalog struct {
	order []string
	byID  map[string]*schema.Template
}

// Parse builds a catalog from YAML. Every entry must pass the same definition
// rules as user templates.
func Parse(data []byte) (*Catalog, error) {
	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]*schema.Template, len(entries))}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog template %q has no id", e.Name)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("catalog template id %q is duplicated", e.ID)
		}
		fields, err := e.Build()
		if err != nil {
			return nil, fmt.Errorf("catalog template %q: %w", e.ID, err)
		}
		icon := e.Icon
		if icon == "" {
			icon = schema.DefaultIcon
		}
		c.byID[e.ID] = &schema.Template{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Icon:        icon,
			Fields:      fields,
			IsBuiltIn:   true,
			State:       schema.StateActive,
		}
		c.order = append(c.order, e.ID)
	}
	if _, ok := c.byID[DefaultID]; !ok {
		return nil, fmt.Errorf("catalog is missing the %q template", DefaultID)
	}
	return c, nil
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the embedded catalog. It panics if the embedded data is
// invalid, which is a build defect.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		c, err := Parse(templatesYAML)
		if err != nil {
			panic(err)
		}
		builtin = c
	})
	return builtin
}

// Get returns a copy of the built-in template with the given id.
func (c *Catalog) Get(id string) (*schema.Template, bool) {
	t, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Has reports whether id names a built-in template.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns copies of every built-in template in catalog order.
func (c *Catalog) All() []*schema.Template {
	out := make([]*schema.Template, 0, len(c.order))
	for _, id := range c.order {
		t, _ := c.Get(id)
		out = append(out, t)
	}
	return out
}

// Default returns the general-purpose template.
func (c *Catalog) Default() *schema.Template {
	t, _ := c.Get(DefaultID)
	return t
}
