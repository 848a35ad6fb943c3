package middleware

import (
	"fmt"
	"maps"

	"github.com/dukex/playground/pkg/dirty"
	"github.com/dukex/playground/pkg/models"
)

// DirtyView exposes unsaved-change flags.
type DirtyView struct {
	sub *Subscription
}

func DirtyLayer() Middleware {
	return layer(
		[]string{SliceDirty, SliceDataRef},
		func(sub *Subscription) { sub.Dirty = &DirtyView{sub: sub} },
		sameDirtySlice,
	)
}

func sameDirtySlice(_ *Subscription, s Slice, prev, next *models.State) bool {
	switch s.Name {
	case SliceDirty:
		if s.ID != "" {
			return prev.DirtyStates[s.ID] == next.DirtyStates[s.ID]
		}

		return maps.Equal(prev.DirtyStates, next.DirtyStates)
	case SliceDataRef:
		if s.ID != "" {
			return prev.DataRef[s.ID] == next.DataRef[s.ID]
		}

		return maps.Equal(prev.DataRef, next.DataRef)
	}

	return true
}

func (v *DirtyView) IsDirty(variantID string) bool {
	return v.sub.read(Slice{Name: SliceDirty, ID: variantID}).DirtyStates[variantID]
}

// States returns a copy of every flag.
func (v *DirtyView) States() map[string]bool {
	return maps.Clone(v.sub.read(Slice{Name: SliceDirty}).DirtyStates)
}

func (v *DirtyView) AnyDirty() bool {
	for _, d := range v.sub.read(Slice{Name: SliceDirty}).DirtyStates {
		if d {
			return true
		}
	}

	return false
}

// Changes lists the fields that differ from the saved baseline.
func (v *DirtyView) Changes(variantID string) (dirty.Delta, error) {
	if v.sub.svc.Tracker == nil {
		return dirty.Delta{}, fmt.Errorf("%w: dirty tracker", ErrNoService)
	}

	st := v.sub.read(Slice{Name: SliceDataRef, ID: variantID}, Slice{Name: SliceVariant, ID: variantID})
	if st.FindVariantByID(variantID) == nil {
		return dirty.Delta{}, fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
	}

	return v.sub.svc.Tracker.Changes(st, variantID)
}
