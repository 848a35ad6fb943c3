package transform

import (
	"github.com/jinzhu/copier"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
)

// ExtractValueByMetadata deflates an Enhanced tree into a plain value. Null leaves and empty
// arrays are dropped; objects restore their property names and disappear when every field was
// dropped.
// A nil result means the whole subtree was filtered out.
func ExtractValueByMetadata(node *enhanced.Node) any {
	if node == nil {
		return nil
	}

	switch node.Kind {
	case enhanced.KindLeaf:
		if !shouldIncludeValue(node.Value) {
			return nil
		}

		return enhanced.CloneValue(node.Value)
	case enhanced.KindArray:
		out := make([]any, 0, len(node.Items))

		for _, item := range node.Items {
			if v := ExtractValueByMetadata(item); shouldIncludeValue(v) {
				out = append(out, v)
			}
		}

		if len(out) == 0 {
			return nil
		}

		return out
	case enhanced.KindObject:
		out := make(map[string]any, len(node.Fields))

		for key, child := range node.Fields {
			if v := ExtractValueByMetadata(child); shouldIncludeValue(v) {
				out[PropertyKey(node, key)] = v
			}
		}

		if len(out) == 0 {
			return nil
		}

		return out
	}

	return nil
}

// PropertyKey is the original property name of an object field.
func PropertyKey(node *enhanced.Node, field string) string {
	if key, ok := node.Keys[field]; ok {
		return key
	}

	return SnakeCase(field)
}

func shouldIncludeValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	default:
		return true
	}
}

// ExtractRow flattens an input row into its variable values. Row keys are variable names and are
// kept verbatim.
func ExtractRow(row *enhanced.Node) map[string]any {
	if row == nil || row.Kind != enhanced.KindObject {
		return nil
	}

	out := make(map[string]any, len(row.Fields))

	for key, child := range row.Fields {
		if v := ExtractValueByMetadata(child); shouldIncludeValue(v) {
			out[key] = v
		}
	}

	return out
}

// ExtractMessages flattens message rows into role/content pairs.
func ExtractMessages(history []*enhanced.Node) []any {
	out := make([]any, 0, len(history))

	for _, msg := range history {
		if v := ExtractValueByMetadata(msg); v != nil {
			out = append(out, v)
		}
	}

	return out
}

// AgConfig returns the plain configuration of a variant: its non-prompt parameters plus every
// deflated prompt under its key.
func AgConfig(v *models.Variant) map[string]any {
	out, _ := enhanced.CloneValue(v.Parameters).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}

	for _, p := range v.Prompts {
		if extracted := ExtractValueByMetadata(p.Node); extracted != nil {
			out[p.Key] = extracted
		}
	}

	return out
}

// TransformToRequestBody builds the run payload for a variant. inputRow and history are optional;
// history is only sent for chat variants.
func TransformToRequestBody(v *models.Variant, inputRow *enhanced.Node, history []*enhanced.Node) map[string]any {
	body := map[string]any{
		"ag_config": AgConfig(v),
	}

	if inputs := ExtractRow(inputRow); len(inputs) > 0 {
		body["inputs"] = inputs
	}

	if v.IsChat && len(history) > 0 {
		body["messages"] = ExtractMessages(history)
	}

	return body
}

// DeflateVariant converts a variant back into its persisted record.
func DeflateVariant(v *models.Variant) (*models.VariantRecord, error) {
	var record models.VariantRecord
	if err := copier.Copy(&record, v); err != nil {
		return nil, err
	}

	record.Parameters = AgConfig(v)

	return &record, nil
}
