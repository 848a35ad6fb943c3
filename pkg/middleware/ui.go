package middleware

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/state"
)

// UIView covers variant selection, generation rows and run slots.
type UIView struct {
	sub *Subscription
}

func UILayer() Middleware {
	return layer(
		[]string{SliceSelected, SliceInputs, SliceMessages, SliceRuns},
		func(sub *Subscription) { sub.UI = &UIView{sub: sub} },
		sameUISlice,
	)
}

func sameUISlice(sub *Subscription, s Slice, prev, next *models.State) bool {
	switch s.Name {
	case SliceSelected:
		if slices.Equal(prev.Selected, next.Selected) {
			return true
		}

		return sameSet(prev.Selected, next.Selected)
	case SliceInputs:
		a, b := prev.GenerationData.Inputs, next.GenerationData.Inputs
		if a == b {
			return true
		}

		return sub.hasher().Hash(a) == sub.hasher().Hash(b)
	case SliceMessages:
		a, b := prev.GenerationData.Messages, next.GenerationData.Messages
		if a == b {
			return true
		}

		return sub.hasher().Hash(a) == sub.hasher().Hash(b)
	case SliceRuns:
		if s.ID != "" {
			return sameSlots(prev.GenerationData.Runs[s.ID], next.GenerationData.Runs[s.ID])
		}

		if len(prev.GenerationData.Runs) != len(next.GenerationData.Runs) {
			return false
		}

		for rowID, slots := range prev.GenerationData.Runs {
			if !sameSlots(slots, next.GenerationData.Runs[rowID]) {
				return false
			}
		}

		return true
	}

	return true
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	set := make(map[string]int, len(a))
	for _, id := range a {
		set[id]++
	}

	for _, id := range b {
		if set[id] == 0 {
			return false
		}

		set[id]--
	}

	return true
}

// sameSlots compares run slots by value. Results are immutable, so their pointers are compared.
func sameSlots(a, b map[string]*models.RunSlot) bool {
	if len(a) != len(b) {
		return false
	}

	for variantID, sa := range a {
		sb, ok := b[variantID]
		if !ok {
			return false
		}

		if (sa == nil) != (sb == nil) {
			return false
		}

		if sa != nil && (sa.IsRunning != sb.IsRunning || sa.Result != sb.Result || sa.ResultRef != sb.ResultRef) {
			return false
		}
	}

	return true
}

// DisplayedVariantIDs returns the selected ids that still name a variant.
func (v *UIView) DisplayedVariantIDs() []string {
	st := v.sub.read(Slice{Name: SliceSelected})

	ids := make([]string, 0, len(st.Selected))
	for _, d := range st.DisplayedVariants() {
		ids = append(ids, d.ID)
	}

	return ids
}

// DisplayedVariants returns the displayed variants. The consumer then depends on each of them.
func (v *UIView) DisplayedVariants() []*models.Variant {
	st := v.sub.read(Slice{Name: SliceSelected})
	displayed := st.DisplayedVariants()

	for _, d := range displayed {
		v.sub.deps.Track(Slice{Name: SliceVariant, ID: d.ID})
	}

	return displayed
}

func (v *UIView) IsDisplayed(variantID string) bool {
	st := v.sub.read(Slice{Name: SliceSelected})

	return slices.Contains(st.Selected, variantID)
}

// IsChat reports whether any displayed variant is a chat application.
func (v *UIView) IsChat() bool {
	return state.DisplaysChat(v.sub.read(Slice{Name: SliceSelected}))
}

// SetDisplayedVariants replaces the selection. Unknown ids are rejected.
func (v *UIView) SetDisplayedVariants(ctx context.Context, ids []string) error {
	_, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		selected := make([]string, 0, len(ids))

		for _, id := range ids {
			if st.FindVariantByID(id) == nil {
				return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, id)
			}

			if !slices.Contains(selected, id) {
				selected = append(selected, id)
			}
		}

		st.Selected = selected
		state.EnsureGenerationRows(st, v.sub.store.Transformer())

		return st, nil
	}, state.MutateOptions{Op: "set-displayed"})

	return err
}

// ToggleVariantDisplay shows or hides one variant. The last displayed variant cannot be hidden.
func (v *UIView) ToggleVariantDisplay(ctx context.Context, variantID string, display bool) error {
	_, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		if st.FindVariantByID(variantID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
		}

		idx := slices.Index(st.Selected, variantID)

		switch {
		case display && idx < 0:
			st.Selected = append(st.Selected, variantID)
		case !display && idx >= 0 && len(st.Selected) > 1:
			st.Selected = slices.Delete(st.Selected, idx, idx+1)
		default:
			return st, nil
		}

		state.EnsureGenerationRows(st, v.sub.store.Transformer())

		return st, nil
	}, state.MutateOptions{Op: "toggle-displayed"})

	return err
}

// Rows returns the input rows.
func (v *UIView) Rows() []*enhanced.Node {
	return v.sub.read(Slice{Name: SliceInputs}).GenerationData.Inputs.Items
}

// ChatRows returns the chat rows.
func (v *UIView) ChatRows() []*enhanced.Node {
	return v.sub.read(Slice{Name: SliceMessages}).GenerationData.Messages.Items
}

// AddRow appends an empty test case and returns its id: a chat row when a chat variant is
// displayed, an input row otherwise.
func (v *UIView) AddRow(ctx context.Context) (string, error) {
	tr := v.sub.store.Transformer()

	var id string

	_, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		var row *enhanced.Node

		if state.DisplaysChat(st) {
			row = tr.NewChatRow(tr.NewMessageRow("user", ""))
			st.GenerationData.Messages.Append(row)
		} else {
			row = tr.NewInputRow(state.DisplayedVariables(st))
			st.GenerationData.Inputs.Append(row)
		}

		id = row.ID

		return st, nil
	}, state.MutateOptions{Op: "add-row"})
	if err != nil {
		return "", err
	}

	return id, nil
}

// DeleteRow removes a row, chat row or message row with its run slots.
func (v *UIView) DeleteRow(ctx context.Context, rowID string) error {
	_, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		if !st.DeleteRow(rowID) {
			return nil, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
		}

		return st, nil
	}, state.MutateOptions{Op: "delete-row"})

	return err
}

// UpdateRowVariable sets one variable of an input row, or the content of a message row when key is
// "content" or "role".
func (v *UIView) UpdateRowVariable(ctx context.Context, rowID, key, value string) error {
	_, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		row := st.FindRow(rowID)
		if row == nil {
			return nil, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
		}

		field := row.Field(key)
		if field == nil || field.Kind != enhanced.KindLeaf {
			return nil, fmt.Errorf("%w: %s has no variable %q", ErrPropertyNotFound, rowID, key)
		}

		field.Value = value

		return st, nil
	}, state.MutateOptions{Op: "update-row"})

	return err
}

// AddChatMessage appends a message to a chat row's history and returns its id.
func (v *UIView) AddChatMessage(ctx context.Context, chatRowID, role, text string) (string, error) {
	tr := v.sub.store.Transformer()

	var id string

	_, err := v.sub.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		row := enhanced.FindByID(st.GenerationData.Messages, chatRowID)

		history := row.Field(models.RowHistory)
		if history == nil || history.Kind != enhanced.KindArray {
			return nil, fmt.Errorf("%w: %s", ErrRowNotFound, chatRowID)
		}

		msg := tr.NewMessageRow(role, text)
		history.Append(msg)
		id = msg.ID

		return st, nil
	}, state.MutateOptions{Op: "add-chat-message"})
	if err != nil {
		return "", err
	}

	return id, nil
}

// RunSlot returns the execution record of a (row, variant) pair, or nil.
func (v *UIView) RunSlot(rowID, variantID string) *models.RunSlot {
	return v.sub.read(Slice{Name: SliceRuns, ID: rowID}).RunSlot(rowID, variantID)
}

// IsRunning reports whether any job is in flight.
func (v *UIView) IsRunning() bool {
	st := v.sub.read(Slice{Name: SliceRuns})

	for _, slots := range st.GenerationData.Runs {
		for _, slot := range slots {
			if slot != nil && slot.IsRunning {
				return true
			}
		}
	}

	return false
}

// RunTests dispatches runs. With an empty rowID every row runs against every displayed variant;
// otherwise the row runs against variantIDs, or the displayed variants when none are given.
func (v *UIView) RunTests(ctx context.Context, rowID string, variantIDs ...string) error {
	runner := v.sub.svc.Runner
	if runner == nil {
		return fmt.Errorf("%w: runner", ErrNoService)
	}

	if rowID == "" {
		if err := runner.RunAll(ctx); err != nil {
			v.sub.svc.Notifier.Error(ctx, "Failed to run tests", err)

			return err
		}

		return nil
	}

	st := v.sub.store.Snapshot()

	if st.FindRow(rowID) == nil {
		return fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
	}

	if len(variantIDs) == 0 {
		for _, d := range st.DisplayedVariants() {
			variantIDs = append(variantIDs, d.ID)
		}
	}

	chat := enhanced.FindByID(st.GenerationData.Messages, rowID) != nil

	var errs []error

	for _, variantID := range variantIDs {
		var err error
		if chat {
			err = runner.RunChat(ctx, variantID, rowID)
		} else {
			err = runner.RunRow(ctx, variantID, rowID)
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		v.sub.svc.Notifier.Error(ctx, "Failed to run tests", err)

		return err
	}

	return nil
}
