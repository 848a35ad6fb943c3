package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/state"
)

// VariantView is scoped to Config.VariantID.
type VariantView struct {
	sub *Subscription
	id  string
}

func VariantLayer() Middleware {
	return layer(
		[]string{SliceVariant, SliceProperty},
		func(sub *Subscription) { sub.Variant = &VariantView{sub: sub, id: sub.Config.VariantID} },
		sameVariantSlice,
	)
}

func sameVariantSlice(sub *Subscription, s Slice, prev, next *models.State) bool {
	switch s.Name {
	case SliceVariant:
		a, b := prev.FindVariantByID(s.ID), next.FindVariantByID(s.ID)
		if a == b {
			return true
		}

		if a == nil || b == nil {
			return false
		}

		return sub.hasher().Hash(a) == sub.hasher().Hash(b)
	case SliceProperty:
		variantID, propertyID := splitPropertySlice(s.ID)

		a, b := prev.FindVariantByID(variantID), next.FindVariantByID(variantID)
		if a == b {
			return true
		}

		na, nb := models.FindPropertyInVariant(a, propertyID), models.FindPropertyInVariant(b, propertyID)
		if na == nil || nb == nil {
			return na == nb
		}

		return sub.hasher().Hash(na) == sub.hasher().Hash(nb)
	}

	return true
}

func propertySlice(variantID, propertyID string) Slice {
	return Slice{Name: SliceProperty, ID: variantID + "/" + propertyID}
}

func splitPropertySlice(id string) (string, string) {
	variantID, propertyID, _ := strings.Cut(id, "/")

	return variantID, propertyID
}

func (v *VariantView) ID() string {
	return v.id
}

// Get returns the variant, or nil when it no longer exists.
func (v *VariantView) Get() *models.Variant {
	return v.sub.read(Slice{Name: SliceVariant, ID: v.id}).FindVariantByID(v.id)
}

// Property returns one configuration node by identity. The consumer depends on that node only.
func (v *VariantView) Property(propertyID string) *enhanced.Node {
	st := v.sub.read(propertySlice(v.id, propertyID))

	return models.FindPropertyInVariant(st.FindVariantByID(v.id), propertyID)
}

// PropertyMetadata resolves the shape description of a property.
func (v *VariantView) PropertyMetadata(propertyID string) (*enhanced.ConfigMetadata, error) {
	node := v.Property(propertyID)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	return v.sub.store.Content().MetadataLazy(node.MetadataRef)
}

// Mutate runs fn on the variant inside a store mutation and returns the committed variant.
func (v *VariantView) Mutate(ctx context.Context, op string, fn func(st *models.State, variant *models.Variant) error) (*models.Variant, error) {
	if v.id == "" {
		return nil, ErrNoVariantScope
	}

	st, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		variant := st.FindVariantByID(v.id)
		if variant == nil {
			return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, v.id)
		}

		if err := fn(st, variant); err != nil {
			return nil, err
		}

		return st, nil
	}, state.MutateOptions{Op: op})
	if err != nil {
		return nil, err
	}

	return st.FindVariantByID(v.id), nil
}

// UpdateProperty replaces a configuration value. Leaves are checked against their metadata;
// arrays and objects are rebuilt from the plain value under the same identity. Prompt input keys
// and generation rows follow the new template variables.
func (v *VariantView) UpdateProperty(ctx context.Context, propertyID string, value any) (*models.Variant, error) {
	cs := v.sub.store.Content()
	tr := v.sub.store.Transformer()

	return v.Mutate(ctx, "update-property", func(st *models.State, variant *models.Variant) error {
		node := models.FindPropertyInVariant(variant, propertyID)
		if node == nil {
			return fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
		}

		md, err := cs.MetadataLazy(node.MetadataRef)
		if err != nil {
			return err
		}

		if node.Kind == enhanced.KindLeaf {
			normalized, err := checkValue(md, value)
			if err != nil {
				return fmt.Errorf("%s: %w", propertyID, err)
			}

			node.Value = normalized
		} else {
			replacement := tr.TransformValue(value, nil, md)
			replacement.ID = node.ID
			*node = *replacement
		}

		syncVariables(st, variant, v.sub)

		return nil
	})
}

// AddMessage appends a message to a prompt and returns the new message id.
func (v *VariantView) AddMessage(ctx context.Context, promptKey, role, text string) (string, error) {
	tr := v.sub.store.Transformer()

	var id string

	_, err := v.Mutate(ctx, "add-message", func(st *models.State, variant *models.Variant) error {
		p := variant.Prompt(promptKey)
		if p == nil || p.Messages() == nil {
			return fmt.Errorf("%w: prompt %s", ErrPropertyNotFound, promptKey)
		}

		msg := tr.NewPromptMessage(p, role, text)
		p.Messages().Append(msg)
		id = msg.ID

		syncVariables(st, variant, v.sub)

		return nil
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// DeleteMessage removes a prompt message by identity.
func (v *VariantView) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := v.Mutate(ctx, "delete-message", func(st *models.State, variant *models.Variant) error {
		for _, p := range variant.Prompts {
			messages := p.Messages()
			if messages == nil {
				continue
			}

			if parent := enhanced.FindParent(p.Node, messageID); parent == messages {
				enhanced.RemoveByID(messages, messageID)
				syncVariables(st, variant, v.sub)

				return nil
			}
		}

		return fmt.Errorf("%w: message %s", ErrPropertyNotFound, messageID)
	})

	return err
}

func syncVariables(st *models.State, variant *models.Variant, sub *Subscription) {
	tr := sub.store.Transformer()

	for _, p := range variant.Prompts {
		tr.SyncInputKeys(p)
	}

	state.EnsureGenerationRows(st, tr)
}

// Save persists the variant.
func (v *VariantView) Save(ctx context.Context) (*models.Variant, error) {
	if v.sub.svc.Variants == nil {
		return nil, fmt.Errorf("%w: variants", ErrNoService)
	}

	if v.id == "" {
		return nil, ErrNoVariantScope
	}

	return v.sub.svc.Variants.Save(ctx, v.id)
}

// Delete removes the variant from the backend and the state.
func (v *VariantView) Delete(ctx context.Context) error {
	if v.sub.svc.Variants == nil {
		return fmt.Errorf("%w: variants", ErrNoService)
	}

	if v.id == "" {
		return ErrNoVariantScope
	}

	return v.sub.svc.Variants.Delete(ctx, v.id)
}
