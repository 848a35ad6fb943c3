package transform

import (
	"regexp"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
)

var variablePattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// ExtractVariables returns the distinct {{var}} names of text in order of first appearance.
func ExtractVariables(text string) []string {
	var out []string

	seen := map[string]bool{}

	for _, m := range variablePattern.FindAllStringSubmatch(text, -1) {
		if name := m[1]; !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	return out
}

// PromptVariables collects the variables of every message of a prompt.
func PromptVariables(p *models.Prompt) []string {
	var out []string

	seen := map[string]bool{}

	messages := p.Messages()
	if messages == nil {
		return nil
	}

	for _, msg := range messages.Items {
		text, ok := msg.Field(models.MessageContent).StringValue()
		if !ok {
			continue
		}

		for _, name := range ExtractVariables(text) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}

	return out
}

// VariantVariables collects the variables of every prompt of a variant.
func VariantVariables(v *models.Variant) []string {
	var out []string

	seen := map[string]bool{}

	for _, p := range v.Prompts {
		for _, name := range PromptVariables(p) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}

	return out
}

// SyncInputKeys rewrites the prompt's inputKeys array from its messages. Items whose value is
// unchanged keep their identity. It reports whether the array changed.
func (t *Transformer) SyncInputKeys(p *models.Prompt) bool {
	if p == nil || p.Node == nil || p.Node.Kind != enhanced.KindObject {
		return false
	}

	keys := PromptVariables(p)
	existing := p.InputKeys()

	if existing != nil && existing.Kind == enhanced.KindArray && sameKeys(existing.Items, keys) {
		return false
	}

	arrayID, arrayRef := t.newID(), enhanced.Digest("")
	itemRef := enhanced.Digest("")
	reuse := map[string]*enhanced.Node{}

	if existing != nil && existing.Kind == enhanced.KindArray {
		arrayID, arrayRef = existing.ID, existing.MetadataRef

		for _, item := range existing.Items {
			if s, ok := item.StringValue(); ok {
				reuse[s] = item
			}

			itemRef = item.MetadataRef
		}

		if md, err := t.store.MetadataLazy(arrayRef); err == nil && md.ItemMetadata != nil {
			itemRef = t.store.HashMetadata(md.ItemMetadata)
		}
	}

	if arrayRef == "" {
		arrayRef = t.store.HashMetadata(&enhanced.ConfigMetadata{
			Type:         enhanced.TypeArray,
			ItemMetadata: &enhanced.ConfigMetadata{Type: enhanced.TypeString},
		})
	}

	if itemRef == "" {
		itemRef = t.store.HashMetadata(&enhanced.ConfigMetadata{Type: enhanced.TypeString})
	}

	items := make([]*enhanced.Node, 0, len(keys))

	for _, key := range keys {
		if item, ok := reuse[key]; ok {
			items = append(items, item)

			continue
		}

		items = append(items, enhanced.NewLeaf(t.newID(), itemRef, key))
	}

	p.Node.Fields[models.PromptInputKeys] = enhanced.NewArray(arrayID, arrayRef, items)

	return true
}

func sameKeys(items []*enhanced.Node, keys []string) bool {
	if len(items) != len(keys) {
		return false
	}

	for i, item := range items {
		if s, ok := item.StringValue(); !ok || s != keys[i] {
			return false
		}
	}

	return true
}
