package transform

import (
	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
)

var (
	textMetadata = &enhanced.ConfigMetadata{Type: enhanced.TypeString}
	rowMetadata  = &enhanced.ConfigMetadata{Type: enhanced.TypeObject, Title: "Input row"}
	chatMetadata = &enhanced.ConfigMetadata{Type: enhanced.TypeObject, Title: "Chat row"}
	roleMetadata = &enhanced.ConfigMetadata{
		Type: enhanced.TypeString,
		Options: []enhanced.Option{
			{Label: "system", Value: "system"},
			{Label: "user", Value: "user"},
			{Label: "assistant", Value: "assistant"},
		},
	}
	messageMetadata = &enhanced.ConfigMetadata{
		Type: enhanced.TypeObject,
		Properties: map[string]*enhanced.ConfigMetadata{
			models.MessageRole:    roleMetadata,
			models.MessageContent: textMetadata,
		},
	}
	historyMetadata = &enhanced.ConfigMetadata{Type: enhanced.TypeArray, ItemMetadata: messageMetadata}
)

// NewInputRow creates a generation row with an empty value per variable.
func (t *Transformer) NewInputRow(keys []string) *enhanced.Node {
	fields := make(map[string]*enhanced.Node, len(keys))
	for _, key := range keys {
		fields[key] = t.newText("")
	}

	return enhanced.NewObject(t.newID(), t.store.HashMetadata(rowMetadata), fields)
}

// SyncRowVariables adds missing variables to a row and drops the ones no longer used. Kept
// values and identities are untouched. It reports whether the row changed.
func (t *Transformer) SyncRowVariables(row *enhanced.Node, keys []string) bool {
	if row == nil || row.Kind != enhanced.KindObject {
		return false
	}

	changed := false
	wanted := make(map[string]bool, len(keys))

	for _, key := range keys {
		wanted[key] = true

		if _, ok := row.Fields[key]; !ok {
			row.Fields[key] = t.newText("")
			changed = true
		}
	}

	for key := range row.Fields {
		if !wanted[key] {
			delete(row.Fields, key)
			changed = true
		}
	}

	return changed
}

// NewMessageRow creates a role/content message row.
func (t *Transformer) NewMessageRow(role, text string) *enhanced.Node {
	return enhanced.NewObject(t.newID(), t.store.HashMetadata(messageMetadata), map[string]*enhanced.Node{
		models.MessageRole:    enhanced.NewLeaf(t.newID(), t.store.HashMetadata(roleMetadata), role),
		models.MessageContent: t.newText(text),
	})
}

// NewChatRow creates a chat row holding the given history.
func (t *Transformer) NewChatRow(history ...*enhanced.Node) *enhanced.Node {
	return enhanced.NewObject(t.newID(), t.store.HashMetadata(chatMetadata), map[string]*enhanced.Node{
		models.RowHistory: enhanced.NewArray(t.newID(), t.store.HashMetadata(historyMetadata), history),
	})
}

// NewPromptMessage creates a message node shaped like the existing messages of a prompt so it
// deflates the same way. It falls back to the generic message shape.
func (t *Transformer) NewPromptMessage(p *models.Prompt, role, text string) *enhanced.Node {
	messages := p.Messages()
	if messages == nil {
		return t.NewMessageRow(role, text)
	}

	md, err := t.store.MetadataLazy(messages.MetadataRef)
	if err != nil || md.ItemMetadata == nil {
		return t.NewMessageRow(role, text)
	}

	return t.transform(map[string]any{models.MessageRole: role, models.MessageContent: text}, md.ItemMetadata)
}

func (t *Transformer) newText(value string) *enhanced.Node {
	return enhanced.NewLeaf(t.newID(), t.store.HashMetadata(textMetadata), value)
}
