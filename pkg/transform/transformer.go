// Package transform maps plain variant configurations onto Enhanced trees and back.
package transform

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/openapi"
)

var ErrNotPromptSchema = errors.New("schema has no prompt properties")

type Option func(*Transformer)

// WithIDGenerator replaces the uuid identity generator, mostly for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(t *Transformer) {
		t.newID = fn
	}
}

type Transformer struct {
	store *content.Store
	newID func() string
}

func New(store *content.Store, opts ...Option) *Transformer {
	t := &Transformer{
		store: store,
		newID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *Transformer) Store() *content.Store {
	return t.store
}

func (t *Transformer) NewID() string {
	return t.newID()
}

// TransformValue wraps value in an Enhanced tree shaped by schema. When the caller already holds
// the metadata of this position it passes it as parentMd and schema is not consulted.
func (t *Transformer) TransformValue(value any, schema *openapi.Schema, parentMd *enhanced.ConfigMetadata) *enhanced.Node {
	md := parentMd
	if md == nil {
		md = MetadataFor(schema)
	}

	return t.transform(value, md)
}

func (t *Transformer) transform(value any, md *enhanced.ConfigMetadata) *enhanced.Node {
	ref := t.store.HashMetadata(md)

	if md.Type == enhanced.TypeCompound {
		if alt := pickAlternative(md.Alternatives, value); alt != nil {
			node := t.transform(value, alt)
			node.MetadataRef = ref

			return node
		}

		return enhanced.NewLeaf(t.newID(), ref, value)
	}

	switch md.Type {
	case enhanced.TypeArray:
		list, ok := value.([]any)
		if !ok && value != nil {
			break
		}

		itemMd := md.ItemMetadata
		items := make([]*enhanced.Node, 0, len(list))

		for _, item := range list {
			imd := itemMd
			if imd == nil {
				imd = inferMetadata(item)
			}

			items = append(items, t.transform(item, imd))
		}

		return enhanced.NewArray(t.newID(), ref, items)
	case enhanced.TypeObject:
		if len(md.Properties) == 0 {
			// Unknown-shaped objects stay opaque instead of becoming an empty object.
			break
		}

		obj, ok := value.(map[string]any)
		if !ok && value != nil {
			break
		}

		fields := make(map[string]*enhanced.Node, len(md.Properties))

		var keys map[string]string

		for key, propMd := range md.Properties {
			field := CamelCase(key)
			fields[field] = t.transform(obj[key], propMd)

			if SnakeCase(field) != key {
				if keys == nil {
					keys = map[string]string{}
				}

				keys[field] = key
			}
		}

		node := enhanced.NewObject(t.newID(), ref, fields)
		node.Keys = keys

		return node
	}

	return enhanced.NewLeaf(t.newID(), ref, enhanced.CloneValue(value))
}

func pickAlternative(alternatives []*enhanced.ConfigMetadata, value any) *enhanced.ConfigMetadata {
	var want enhanced.MetadataType

	switch value.(type) {
	case []any:
		want = enhanced.TypeArray
	case map[string]any:
		want = enhanced.TypeObject
	case bool:
		want = enhanced.TypeBoolean
	case float64, float32, int, int64, int32:
		want = enhanced.TypeNumber
	case string:
		want = enhanced.TypeString
	default:
		if len(alternatives) > 0 {
			return alternatives[0]
		}

		return nil
	}

	for _, alt := range alternatives {
		if alt.Type == want {
			return alt
		}
	}

	return nil
}

func inferMetadata(value any) *enhanced.ConfigMetadata {
	switch v := value.(type) {
	case bool:
		return &enhanced.ConfigMetadata{Type: enhanced.TypeBoolean}
	case float64, float32, int, int64, int32:
		return &enhanced.ConfigMetadata{Type: enhanced.TypeNumber}
	case []any:
		return &enhanced.ConfigMetadata{Type: enhanced.TypeArray}
	case map[string]any:
		md := &enhanced.ConfigMetadata{Type: enhanced.TypeObject, Properties: map[string]*enhanced.ConfigMetadata{}}
		for key, child := range v {
			md.Properties[key] = inferMetadata(child)
		}

		return md
	default:
		return &enhanced.ConfigMetadata{Type: enhanced.TypeString}
	}
}

// Metadata resolves the metadata a node references.
func (t *Transformer) Metadata(node *enhanced.Node) (*enhanced.ConfigMetadata, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil node", enhanced.ErrInvalidNode)
	}

	return t.store.MetadataLazy(node.MetadataRef)
}

// SchemaDefaults collects the default values a schema declares, recursing into object properties.
func SchemaDefaults(schema *openapi.Schema) any {
	if schema == nil {
		return nil
	}

	if schema.Default != nil {
		return enhanced.CloneValue(schema.Default)
	}

	if union := unionMembers(schema); union != nil {
		if alternatives, _ := nonNull(union); len(alternatives) == 1 {
			return SchemaDefaults(alternatives[0])
		}

		return nil
	}

	if len(schema.Properties) == 0 {
		return nil
	}

	out := map[string]any{}

	for key, prop := range schema.Properties {
		if v := SchemaDefaults(prop); v != nil {
			out[key] = v
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// MergeWithSchema prefers saved over defaults per declared property, recursing into objects.
// Arrays and primitives are atomic: a saved value replaces the default wholesale. Saved keys the
// schema does not declare are kept.
func MergeWithSchema(schema *openapi.Schema, defaults, saved any, ignoreKeys ...string) any {
	props := objectProperties(schema)
	if props == nil {
		if saved != nil {
			return enhanced.CloneValue(saved)
		}

		return enhanced.CloneValue(defaults)
	}

	savedMap, savedIsMap := saved.(map[string]any)
	if saved != nil && !savedIsMap {
		return enhanced.CloneValue(saved)
	}

	defaultMap, _ := defaults.(map[string]any)

	ignored := make(map[string]bool, len(ignoreKeys))
	for _, k := range ignoreKeys {
		ignored[k] = true
	}

	out := map[string]any{}

	for key, prop := range props {
		if ignored[key] {
			continue
		}

		if v := MergeWithSchema(prop, defaultMap[key], savedMap[key]); v != nil {
			out[key] = v
		}
	}

	for key, v := range savedMap {
		if _, declared := props[key]; declared || ignored[key] {
			continue
		}

		out[key] = enhanced.CloneValue(v)
	}

	return out
}

func objectProperties(schema *openapi.Schema) map[string]*openapi.Schema {
	if schema == nil {
		return nil
	}

	if union := unionMembers(schema); union != nil {
		if alternatives, _ := nonNull(union); len(alternatives) == 1 {
			return objectProperties(alternatives[0])
		}

		return nil
	}

	if len(schema.Properties) == 0 {
		return nil
	}

	return schema.Properties
}

// IsPromptSchema reports whether a configuration property holds a prompt template.
func IsPromptSchema(schema *openapi.Schema) bool {
	if schema == nil {
		return false
	}

	if schema.XParameter == "prompt" {
		return true
	}

	if v, ok := schema.XParameters["prompt"]; ok && v != false && v != "false" {
		return true
	}

	props := objectProperties(schema)
	_, hasMessages := props["messages"]

	return hasMessages
}

// TransformVariant builds the Enhanced variant from its persisted record and the run request
// schema of its service.
func (t *Transformer) TransformVariant(record *models.VariantRecord, requestSchema *openapi.Schema) (*models.Variant, error) {
	agConfig := openapi.AgConfigSchema(requestSchema)
	if agConfig == nil {
		return nil, fmt.Errorf("variant %s: %w", record.ID, openapi.ErrSchemaNotFound)
	}

	var v models.Variant
	if err := copier.Copy(&v, record); err != nil {
		return nil, fmt.Errorf("failed to copy variant %s: %w", record.ID, err)
	}

	v.IsChat = openapi.IsChat(requestSchema)

	merged, _ := MergeWithSchema(agConfig, SchemaDefaults(agConfig), record.Parameters).(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}

	keys := make([]string, 0, len(agConfig.Properties))
	for key := range agConfig.Properties {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	v.Prompts = []*models.Prompt{}

	for _, key := range keys {
		propSchema := agConfig.Properties[key]
		if !IsPromptSchema(propSchema) {
			continue
		}

		prompt := &models.Prompt{Key: key, Node: t.TransformValue(merged[key], propSchema, nil)}
		t.SyncInputKeys(prompt)

		v.Prompts = append(v.Prompts, prompt)
		delete(merged, key)
	}

	if len(v.Prompts) == 0 {
		return nil, fmt.Errorf("variant %s: %w", record.ID, ErrNotPromptSchema)
	}

	v.Parameters = nil
	if len(merged) > 0 {
		v.Parameters = merged
	}

	return &v, nil
}
