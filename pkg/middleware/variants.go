package middleware

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/playground/pkg/models"
)

// VariantsView covers the list of loaded variants.
type VariantsView struct {
	sub *Subscription
}

func VariantsLayer() Middleware {
	return layer(
		[]string{SliceVariants, SliceVariantIDs},
		func(sub *Subscription) { sub.Variants = &VariantsView{sub: sub} },
		sameVariantsSlice,
	)
}

func sameVariantsSlice(sub *Subscription, s Slice, prev, next *models.State) bool {
	switch s.Name {
	case SliceVariantIDs:
		return slices.Equal(prev.VariantIDs(), next.VariantIDs())
	case SliceVariants:
		if len(prev.Variants) != len(next.Variants) {
			return false
		}

		hasher := sub.hasher()

		for i, a := range prev.Variants {
			b := next.Variants[i]
			if a == b {
				continue
			}

			if hasher.Hash(a) != hasher.Hash(b) {
				return false
			}
		}

		return true
	}

	return true
}

func (v *VariantsView) List() []*models.Variant {
	return v.sub.read(Slice{Name: SliceVariants}).Variants
}

func (v *VariantsView) IDs() []string {
	return v.sub.read(Slice{Name: SliceVariantIDs}).VariantIDs()
}

// CreateFromBase saves a copy of an existing variant under a new name.
func (v *VariantsView) CreateFromBase(ctx context.Context, baseVariantID, name string) (*models.Variant, error) {
	if v.sub.svc.Variants == nil {
		return nil, fmt.Errorf("%w: variants", ErrNoService)
	}

	return v.sub.svc.Variants.CreateFromBase(ctx, baseVariantID, name)
}
