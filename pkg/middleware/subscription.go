package middleware

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/state"
)

// Subscription is one consumer's handle on the store. Views are nil when their layer is not part of
// the chain.
type Subscription struct {
	Key    string
	Config Config

	UI       *UIView
	Variants *VariantsView
	Variant  *VariantView
	Schema   *SchemaView
	Dirty    *DirtyView
	Selector *SelectorView

	store  *state.Store
	svc    Services
	logger *slog.Logger
	deps   *Deps
	owned  map[string]bool

	compareMu sync.RWMutex
	compare   state.Compare

	pass atomic.Pointer[models.State]
}

func (s *Subscription) Store() *state.Store {
	return s.store
}

func (s *Subscription) Deps() *Deps {
	return s.deps
}

// Compare reports whether the transition leaves everything this consumer read unchanged.
func (s *Subscription) Compare(prev, next *models.State) bool {
	if prev == next {
		return true
	}

	s.compareMu.RLock()
	compare := s.compare
	s.compareMu.RUnlock()

	return compare(prev, next)
}

// WrapCompare replaces the predicate with fn applied to the current one.
func (s *Subscription) WrapCompare(fn func(next state.Compare) state.Compare) {
	s.compareMu.Lock()
	defer s.compareMu.Unlock()

	s.compare = fn(s.compare)
}

// Own declares slice names checked by an installed layer.
func (s *Subscription) Own(names ...string) {
	s.compareMu.Lock()
	defer s.compareMu.Unlock()

	for _, n := range names {
		s.owned[n] = true
	}
}

// Render runs fn over the current snapshot with a fresh dependency set. Views read that snapshot
// for the duration of the pass.
func (s *Subscription) Render(fn func(st *models.State)) *models.State {
	st := s.store.Snapshot()

	s.deps.Reset()
	s.pass.Store(st)

	defer s.pass.Store(nil)

	fn(st)

	return st
}

// Subscribe calls fn for every commit that changes a slice read in the last render pass.
func (s *Subscription) Subscribe(fn state.Listener) func() {
	return s.store.Subscribe(s.Compare, fn)
}

// Mutate forwards to the store.
func (s *Subscription) Mutate(ctx context.Context, updater state.Updater, opts state.MutateOptions) (*models.State, error) {
	return s.store.Mutate(ctx, updater, opts)
}

// read tracks slices and returns the snapshot of the current pass, or the latest one outside a pass.
func (s *Subscription) read(slices ...Slice) *models.State {
	s.deps.Track(slices...)

	if st := s.pass.Load(); st != nil {
		return st
	}

	return s.store.Snapshot()
}

func (s *Subscription) hasher() *content.Hasher {
	return s.store.Content().Hasher()
}

// layer installs a view on every subscription and compares the slices named by names. A layer with
// no tracked slice delegates; a changed slice reports not-equal; unchanged slices delegate inward.
func layer(names []string, install func(sub *Subscription), same func(sub *Subscription, s Slice, prev, next *models.State) bool) Middleware {
	return func(next Hook) Hook {
		return func(key string, cfg Config) *Subscription {
			sub := next(key, cfg)

			install(sub)
			sub.Own(names...)

			sub.WrapCompare(func(inner state.Compare) state.Compare {
				return func(prev, nxt *models.State) bool {
					tracked := sub.deps.Tracked(names...)
					if len(tracked) == 0 {
						return inner(prev, nxt)
					}

					for _, s := range tracked {
						if !same(sub, s, prev, nxt) {
							return false
						}
					}

					return inner(prev, nxt)
				}
			})

			return sub
		}
	}
}
