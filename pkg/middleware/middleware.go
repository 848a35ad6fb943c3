// Package middleware layers derived views and scoped change detection over the state store.
//
// A Hook builds a Subscription for one consumer. Each layer wraps the hook, installs its view on the
// subscription and wraps the subscription's Compare with a check of the slices it owns. Views record
// what a consumer reads in the subscription's Deps, so a commit only reaches the consumer when one of
// those slices changed.
package middleware

import (
	"context"
	"log/slog"

	"github.com/dukex/playground/pkg/dirty"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/notify"
	"github.com/dukex/playground/pkg/state"
)

// Config scopes a subscription.
type Config struct {
	// VariantID binds the single-variant view.
	VariantID string
	// Selector feeds the generic selector view.
	Selector func(*models.State) any
}

// Runner dispatches generation jobs.
type Runner interface {
	RunRow(ctx context.Context, variantID, rowID string) error
	RunChat(ctx context.Context, variantID, rowID string) error
	RunAll(ctx context.Context) error
}

// VariantService persists variant changes.
type VariantService interface {
	Save(ctx context.Context, variantID string) (*models.Variant, error)
	Delete(ctx context.Context, variantID string) error
	CreateFromBase(ctx context.Context, baseVariantID, name string) (*models.Variant, error)
}

// Services are the collaborators views delegate actions to. Any of them may be nil; the actions
// needing a missing one fail with ErrNoService.
type Services struct {
	Runner   Runner
	Variants VariantService
	Notifier notify.Notifier
	Tracker  *dirty.Tracker
	Logger   *slog.Logger
}

type Hook func(key string, cfg Config) *Subscription

type Middleware func(Hook) Hook

// Wrap applies middlewares in left-to-right order: Wrap(inner, A, B) is A(B(inner)).
func Wrap(inner Hook, mws ...Middleware) Hook {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}

	return out
}

// Chain builds a hook over store with the given layers, outermost first.
func Chain(store *state.Store, svc Services, mws ...Middleware) Hook {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}

	if svc.Notifier == nil {
		svc.Notifier = notify.Discard{}
	}

	return Wrap(base(store, svc), mws...)
}

// DefaultLayers returns the layers from coarse to fine: selection, variant list, single variant,
// schema, dirty flags, generic selector.
func DefaultLayers() []Middleware {
	return []Middleware{
		UILayer(),
		VariantsLayer(),
		VariantLayer(),
		SchemaLayer(),
		DirtyLayer(),
		SelectorLayer(),
	}
}

// New builds the default chain.
func New(store *state.Store, svc Services) Hook {
	return Chain(store, svc, DefaultLayers()...)
}

// base is the innermost hook. Once every layer found its own slices unchanged, a consumer that
// tracked only owned slices has nothing left to re-render. A consumer that tracked nothing, or a
// slice no installed layer owns, sees every commit.
func base(store *state.Store, svc Services) Hook {
	return func(key string, cfg Config) *Subscription {
		sub := &Subscription{
			Key:    key,
			Config: cfg,
			store:  store,
			svc:    svc,
			logger: svc.Logger.With("module", "middleware", "subscription", key),
			deps:   NewDeps(),
			owned:  map[string]bool{},
		}

		sub.compare = func(prev, next *models.State) bool {
			tracked := sub.deps.All()
			if len(tracked) == 0 {
				return prev == next
			}

			for _, s := range tracked {
				if !sub.owned[s.Name] {
					return prev == next
				}
			}

			return true
		}

		return sub
	}
}
