package openapi

import (
	"encoding/json"
	"strings"
)

const componentPrefix = "#/components/schemas/"

// SchemaType accepts both the 3.0 single type and the 3.1 type list. A "null" member of the
// list is folded into Nullable by the decoder.
type SchemaType string

type Schema struct {
	Ref         string     `json:"$ref,omitempty"`
	Type        SchemaType `json:"type,omitempty"`
	Format      string     `json:"format,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Nullable    bool       `json:"nullable,omitempty"`
	Default     any        `json:"default,omitempty"`
	Enum        []any      `json:"enum,omitempty"`

	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Items      *Schema            `json:"items,omitempty"`

	AnyOf []*Schema `json:"anyOf,omitempty"`
	OneOf []*Schema `json:"oneOf,omitempty"`
	AllOf []*Schema `json:"allOf,omitempty"`

	// Choices groups string options, e.g. model names per provider.
	Choices map[string][]string `json:"choices,omitempty"`

	XParameter  string         `json:"x-parameter,omitempty"`
	XParameters map[string]any `json:"x-parameters,omitempty"`
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	type plain Schema

	aux := struct {
		*plain
		Type json.RawMessage `json:"type,omitempty"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Type) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(aux.Type, &single); err == nil {
		s.Type = SchemaType(single)

		return nil
	}

	var list []string
	if err := json.Unmarshal(aux.Type, &list); err != nil {
		return err
	}

	for _, t := range list {
		if t == "null" {
			s.Nullable = true

			continue
		}

		if s.Type == "" {
			s.Type = SchemaType(t)
		}
	}

	return nil
}

// IsNull reports whether the schema only admits null.
func (s *Schema) IsNull() bool {
	return s != nil && s.Type == "null"
}

// Resolve returns a copy of s with every component reference inlined. A reference that would
// recurse into itself is left in place.
func (d *Document) Resolve(s *Schema) *Schema {
	return d.resolve(s, map[string]bool{})
}

func (d *Document) resolve(s *Schema, visiting map[string]bool) *Schema {
	if s == nil {
		return nil
	}

	if s.Ref != "" {
		name := strings.TrimPrefix(s.Ref, componentPrefix)

		target, ok := d.Components.Schemas[name]
		if !ok || visiting[name] {
			out := *s

			return &out
		}

		visiting[name] = true
		resolved := d.resolve(target, visiting)
		delete(visiting, name)

		// Sibling keywords next to a $ref override the target.
		if s.Title != "" {
			resolved.Title = s.Title
		}

		if s.Description != "" {
			resolved.Description = s.Description
		}

		if s.Default != nil {
			resolved.Default = s.Default
		}

		return resolved
	}

	out := *s

	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for k, p := range s.Properties {
			out.Properties[k] = d.resolve(p, visiting)
		}
	}

	out.Items = d.resolve(s.Items, visiting)
	out.AnyOf = d.resolveAll(s.AnyOf, visiting)
	out.OneOf = d.resolveAll(s.OneOf, visiting)
	out.AllOf = d.resolveAll(s.AllOf, visiting)

	return &out
}

func (d *Document) resolveAll(list []*Schema, visiting map[string]bool) []*Schema {
	if list == nil {
		return nil
	}

	out := make([]*Schema, len(list))
	for i, s := range list {
		out[i] = d.resolve(s, visiting)
	}

	return out
}
