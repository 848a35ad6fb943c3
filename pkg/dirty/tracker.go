// Package dirty decides which variants carry unsaved local edits.
package dirty

import (
	"log/slog"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/transform"
)

// DefaultIgnoreKeys are volatile fields that never make a variant dirty: derived input keys,
// generation inputs and the in-flight save marker.
var DefaultIgnoreKeys = []string{"input_keys", "inputs", "__isMutating"}

type Option func(*Tracker)

func WithIgnoreKeys(keys ...string) Option {
	return func(t *Tracker) {
		for _, k := range keys {
			t.ignore[k] = true
		}
	}
}

// Tracker is a commit hook that keeps State.DirtyStates and State.DataRef current.
//
// DataRef holds the digest of each variant's baseline: the last version known to be persisted.
// The baseline only advances to a version that is newer (see models.IsNewer), so a late response
// can never replace a newer baseline.
type Tracker struct {
	content *content.Store
	logger  *slog.Logger
	ignore  map[string]bool
}

func NewTracker(contentStore *content.Store, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		content: contentStore,
		logger:  logger.With("module", "dirty"),
		ignore:  map[string]bool{},
	}

	for _, k := range DefaultIgnoreKeys {
		t.ignore[k] = true
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *Tracker) OnCommit(prev, next *models.State) {
	if next.DataRef == nil {
		next.DataRef = map[string]enhanced.Digest{}
	}

	if next.DirtyStates == nil {
		next.DirtyStates = map[string]bool{}
	}

	present := make(map[string]bool, len(next.Variants))

	for _, v := range next.Variants {
		present[v.ID] = true
		t.track(prev, next, v)
	}

	for id := range next.DataRef {
		if !present[id] {
			delete(next.DataRef, id)
		}
	}

	for id := range next.DirtyStates {
		if !present[id] {
			delete(next.DirtyStates, id)
		}
	}
}

func (t *Tracker) track(prev, next *models.State, v *models.Variant) {
	digest := t.content.HashVariant(v)

	ref, ok := next.DataRef[v.ID]
	if !ok {
		next.DataRef[v.ID] = digest
		next.DirtyStates[v.ID] = false

		return
	}

	if digest == ref {
		next.DirtyStates[v.ID] = false

		return
	}

	if prev != nil && prev.DataRef[v.ID] == ref {
		if old := prev.FindVariantByID(v.ID); old == v {
			return
		}
	}

	baseline, err := t.content.VariantLazy(ref)
	if err != nil {
		t.logger.Warn("Baseline missing, adopting current version", "variant_id", v.ID, "error", err)
		next.DataRef[v.ID] = digest
		next.DirtyStates[v.ID] = false

		return
	}

	if models.IsNewer(v, baseline) {
		next.DataRef[v.ID] = digest
		next.DirtyStates[v.ID] = false

		return
	}

	next.DirtyStates[v.ID] = !Equal(t.Snapshot(baseline), t.Snapshot(v))
}

// Snapshot is the comparable form of a variant: its name and deflated configuration with the
// ignored keys removed.
func (t *Tracker) Snapshot(v *models.Variant) any {
	if v == nil {
		return nil
	}

	return OmitDeep(normalizeJSON(map[string]any{
		"variant_name": v.VariantName,
		"parameters":   transform.AgConfig(v),
	}), t.ignore)
}

// Changes lists what differs between the variant's baseline and its current version.
func (t *Tracker) Changes(st *models.State, variantID string) (Delta, error) {
	v := st.FindVariantByID(variantID)

	baseline, err := t.content.VariantLazy(st.DataRef[variantID])
	if err != nil {
		return Delta{}, err
	}

	return Diff(t.Snapshot(baseline), t.Snapshot(v)), nil
}

// Baseline returns the last persisted version of a variant.
func (t *Tracker) Baseline(st *models.State, variantID string) (*models.Variant, error) {
	return t.content.VariantLazy(st.DataRef[variantID])
}
