package dirty

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/testutil"
	"github.com/dukex/playground/pkg/transform"
)

type fixture struct {
	store   *state.Store
	tracker *Tracker
	tr      *transform.Transformer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cs := content.NewStore(nil)
	tr := transform.New(cs)
	tracker := NewTracker(cs, log.Discard())
	s := state.NewStore(cs, tr, log.Discard(), state.WithCommitHook(tracker))

	t.Cleanup(func() { _ = s.Close() })

	v, err := tr.TransformVariant(testutil.CreateTestRecord(), testutil.RequestSchema(t, testutil.CompletionSpec))
	require.NoError(t, err)

	_, err = s.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		st.Variants = []*models.Variant{v}
		st.Selected = []string{v.ID}

		return st, nil
	}, state.MutateOptions{Op: "load"})
	require.NoError(t, err)

	return &fixture{store: s, tracker: tracker, tr: tr}
}

func (f *fixture) mutate(t *testing.T, fn func(st *models.State)) *models.State {
	t.Helper()

	st, err := f.store.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		fn(st)

		return st, nil
	}, state.MutateOptions{})
	require.NoError(t, err)

	return st
}

func setTemperature(st *models.State, value float64) {
	v := st.Variants[0]
	v.Prompts[0].LLMConfig().Field("temperature").Value = value
}

func TestFirstSightIsClean(t *testing.T) {
	f := newFixture(t)
	st := f.store.Snapshot()

	assert.False(t, st.DirtyStates["variant-1"])
	assert.Equal(t, f.store.Content().Hash(st.Variants[0]), st.DataRef["variant-1"])
}

func TestEditingConfigurationMakesDirty(t *testing.T) {
	f := newFixture(t)

	st := f.mutate(t, func(st *models.State) { setTemperature(st, 0.9) })
	assert.True(t, st.DirtyStates["variant-1"])

	changes, err := f.tracker.Changes(st, "variant-1")
	require.NoError(t, err)
	require.Len(t, changes.Modified, 1)
	assert.Equal(t, "parameters.prompt.llm_config.temperature", changes.Modified[0].Field)
	assert.Equal(t, 0.2, changes.Modified[0].Before)
	assert.Equal(t, 0.9, changes.Modified[0].After)

	// Reverting the edit clears the flag even though node identities were kept.
	st = f.mutate(t, func(st *models.State) { setTemperature(st, 0.2) })
	assert.False(t, st.DirtyStates["variant-1"])
}

func TestIgnoredChangesKeepFlag(t *testing.T) {
	f := newFixture(t)

	st := f.mutate(t, func(st *models.State) {
		st.GenerationData.Inputs.Append(f.tr.NewInputRow([]string{"country"}))
		st.Variants[0].IsMutating = true
	})
	assert.False(t, st.DirtyStates["variant-1"])

	st = f.mutate(t, func(st *models.State) { setTemperature(st, 1.5) })
	require.True(t, st.DirtyStates["variant-1"])

	st = f.mutate(t, func(st *models.State) {
		st.Variants[0].IsMutating = false
		st.Selected = nil
	})
	assert.True(t, st.DirtyStates["variant-1"])
}

func TestSaveResetsDirtyAndAdvancesBaseline(t *testing.T) {
	f := newFixture(t)

	st := f.mutate(t, func(st *models.State) { setTemperature(st, 0.9) })
	require.True(t, st.DirtyStates["variant-1"])

	oldRef := st.DataRef["variant-1"]

	st = f.mutate(t, func(st *models.State) {
		st.Variants[0].Revision = 2
		st.Variants[0].UpdatedAt = time.Now()
	})

	assert.False(t, st.DirtyStates["variant-1"])
	assert.NotEqual(t, oldRef, st.DataRef["variant-1"])
	assert.Equal(t, f.store.Content().Hash(st.Variants[0]), st.DataRef["variant-1"])

	baseline, err := f.tracker.Baseline(st, "variant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, baseline.Revision)
}

func TestStaleVersionDoesNotMoveBaseline(t *testing.T) {
	f := newFixture(t)

	st := f.mutate(t, func(st *models.State) {
		st.Variants[0].Revision = 3
		st.Variants[0].UpdatedAt = time.Now()
	})
	ref := st.DataRef["variant-1"]

	// A late response carrying an older revision is reported dirty against the newer baseline.
	st = f.mutate(t, func(st *models.State) {
		st.Variants[0].Revision = 2
		setTemperature(st, 0.7)
	})

	assert.Equal(t, ref, st.DataRef["variant-1"])
	assert.True(t, st.DirtyStates["variant-1"])
}

func TestRemovedVariantsArePruned(t *testing.T) {
	f := newFixture(t)

	st := f.mutate(t, func(st *models.State) { st.Variants = nil })

	assert.Empty(t, st.DataRef)
	assert.Empty(t, st.DirtyStates)
}

func TestDiff(t *testing.T) {
	before := map[string]any{"a": 1, "b": map[string]any{"c": "x", "d": []any{1, 2}}, "gone": true}
	after := map[string]any{"a": 1, "b": map[string]any{"c": "y", "d": []any{1, 2, 3}}, "new": "z"}

	d := Diff(before, after)

	assert.Equal(t, []string{"new"}, d.Added)
	assert.Equal(t, []string{"gone"}, d.Removed)

	fields := make([]string, 0, len(d.Modified))
	for _, m := range d.Modified {
		fields = append(fields, m.Field)
	}

	assert.Equal(t, []string{"b.c", "b.d", "gone", "new"}, fields)
	assert.True(t, Diff(before, before).Empty())
	assert.True(t, Equal(map[string]any{"x": 1}, map[string]any{"x": 1.0}))
}

func TestOmitDeep(t *testing.T) {
	v := normalizeJSON(map[string]any{
		"keep":   1,
		"inputs": []any{1},
		"nested": []any{map[string]any{"inputs": 2, "other": 3}},
	})

	out := OmitDeep(v, map[string]bool{"inputs": true})

	assert.Equal(t, map[string]any{
		"keep":   1.0,
		"nested": []any{map[string]any{"other": 3.0}},
	}, out)
}
