package transform

import (
	"fmt"
	"sort"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/openapi"
)

// MetadataFor derives the shape description of a schema node. Nullable unions collapse onto
// their single non-null member; real unions become compound metadata.
func MetadataFor(schema *openapi.Schema) *enhanced.ConfigMetadata {
	if schema == nil {
		return &enhanced.ConfigMetadata{Type: enhanced.TypeString}
	}

	if union := unionMembers(schema); union != nil {
		alternatives, nullable := nonNull(union)

		switch len(alternatives) {
		case 0:
			return withCommon(&enhanced.ConfigMetadata{Type: enhanced.TypeString, Nullable: true}, schema)
		case 1:
			md := MetadataFor(alternatives[0])
			md.Nullable = md.Nullable || nullable || schema.Nullable

			return withCommon(md, schema)
		default:
			md := &enhanced.ConfigMetadata{Type: enhanced.TypeCompound, Nullable: nullable || schema.Nullable}
			for _, alt := range alternatives {
				md.Alternatives = append(md.Alternatives, MetadataFor(alt))
			}

			return withCommon(md, schema)
		}
	}

	md := &enhanced.ConfigMetadata{Nullable: schema.Nullable}

	switch schema.Type {
	case "integer":
		md.Type = enhanced.TypeNumber
		md.IsInteger = true
	case "number":
		md.Type = enhanced.TypeNumber
	case "boolean":
		md.Type = enhanced.TypeBoolean
	case "array":
		md.Type = enhanced.TypeArray
		if schema.Items != nil {
			md.ItemMetadata = MetadataFor(schema.Items)
		}
	case "object":
		md.Type = enhanced.TypeObject
	case "":
		if len(schema.Properties) > 0 {
			md.Type = enhanced.TypeObject
		} else {
			md.Type = enhanced.TypeString
		}
	default:
		md.Type = enhanced.TypeString
	}

	if md.Type == enhanced.TypeNumber {
		md.Min = copyFloat(schema.Minimum)
		md.Max = copyFloat(schema.Maximum)
	}

	if md.Type == enhanced.TypeObject && len(schema.Properties) > 0 {
		md.Properties = make(map[string]*enhanced.ConfigMetadata, len(schema.Properties))
		for key, prop := range schema.Properties {
			md.Properties[key] = MetadataFor(prop)
		}
	}

	for _, v := range schema.Enum {
		s := fmt.Sprint(v)
		md.Options = append(md.Options, enhanced.Option{Label: s, Value: s})
	}

	md.Groups = groups(schema.Choices)

	return withCommon(md, schema)
}

func unionMembers(schema *openapi.Schema) []*openapi.Schema {
	switch {
	case len(schema.AnyOf) > 0:
		return schema.AnyOf
	case len(schema.OneOf) > 0:
		return schema.OneOf
	case len(schema.AllOf) > 0:
		return schema.AllOf
	default:
		return nil
	}
}

func nonNull(list []*openapi.Schema) ([]*openapi.Schema, bool) {
	out := make([]*openapi.Schema, 0, len(list))
	nullable := false

	for _, s := range list {
		if s == nil || s.IsNull() {
			nullable = true

			continue
		}

		out = append(out, s)
	}

	return out, nullable
}

func withCommon(md *enhanced.ConfigMetadata, schema *openapi.Schema) *enhanced.ConfigMetadata {
	if schema.Title != "" {
		md.Title = schema.Title
	}

	if schema.Description != "" {
		md.Description = schema.Description
	}

	if schema.Default != nil {
		md.Default = schema.Default
	}

	return md
}

func groups(choices map[string][]string) []enhanced.OptionGroup {
	if len(choices) == 0 {
		return nil
	}

	labels := make([]string, 0, len(choices))
	for label := range choices {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	out := make([]enhanced.OptionGroup, 0, len(labels))
	for _, label := range labels {
		group := enhanced.OptionGroup{Label: label}
		for _, value := range choices[label] {
			group.Options = append(group.Options, enhanced.Option{Label: value, Value: value})
		}

		out = append(out, group)
	}

	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}

	v := *f

	return &v
}
