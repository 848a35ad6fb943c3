package middleware

import (
	"reflect"

	"github.com/dukex/playground/pkg/models"
)

// SelectorView evaluates Config.Selector.
type SelectorView struct {
	sub *Subscription
}

func SelectorLayer() Middleware {
	return layer(
		[]string{SliceSelector},
		func(sub *Subscription) { sub.Selector = &SelectorView{sub: sub} },
		func(sub *Subscription, _ Slice, prev, next *models.State) bool {
			sel := sub.Config.Selector
			if sel == nil {
				return true
			}

			return reflect.DeepEqual(sel(prev), sel(next))
		},
	)
}

// Value returns the selected value, or nil without a selector.
func (v *SelectorView) Value() any {
	st := v.sub.read(Slice{Name: SliceSelector})

	if v.sub.Config.Selector == nil {
		return nil
	}

	return v.sub.Config.Selector(st)
}
