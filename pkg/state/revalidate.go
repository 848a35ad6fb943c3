package state

import (
	"context"
	"errors"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/transform"
)

var errNoFetcher = errors.New("store has no fetcher")

// Load performs the initial fetch. It is Revalidate under another name so callers read well.
func (s *Store) Load(ctx context.Context) error {
	return s.Revalidate(ctx)
}

// Revalidate refetches variants and specs and merges them into the state. A failed fetch is
// recorded in State.Error and also returned.
func (s *Store) Revalidate(ctx context.Context) error {
	if s.fetcher == nil {
		return errNoFetcher
	}

	res, fetchErr := s.fetcher.Fetch(ctx)

	_, err := s.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		if fetchErr != nil {
			st.Error = fetchErr

			return st, nil
		}

		s.mergeFetched(st, res)
		st.Error = nil

		return st, nil
	}, MutateOptions{Op: "revalidate"})
	if err != nil {
		return err
	}

	if fetchErr != nil {
		s.logger.ErrorContext(ctx, "Failed to fetch variants", "error", fetchErr)
	}

	return fetchErr
}

// mergeFetched applies a fetch result. Locally dirty variants keep their edits; the fetched
// version only replaces their baseline when it is newer. Variants missing from the fetch are
// removed.
func (s *Store) mergeFetched(st *models.State, res *FetchResult) {
	merged := make([]*models.Variant, 0, len(res.Variants))

	for _, fetched := range res.Variants {
		local := st.FindVariantByID(fetched.ID)

		switch {
		case local == nil:
			merged = append(merged, fetched)
		case st.DirtyStates[fetched.ID]:
			merged = append(merged, local)

			baseline, err := s.content.VariantLazy(st.DataRef[fetched.ID])
			if err != nil || models.IsNewer(fetched, baseline) {
				st.DataRef[fetched.ID] = s.content.HashVariant(fetched)
			}
		case models.IsNewer(fetched, local):
			merged = append(merged, fetched)
		default:
			// Same version: keep the local instance so node identities survive the refetch.
			merged = append(merged, local)
		}
	}

	st.Variants = merged
	st.Spec = res.Spec

	selected := make([]string, 0, len(st.Selected))
	for _, id := range st.Selected {
		if st.FindVariantByID(id) != nil {
			selected = append(selected, id)
		}
	}

	if len(selected) == 0 && len(merged) > 0 {
		selected = append(selected, merged[0].ID)
	}

	st.Selected = selected

	st.PruneRuns()
	EnsureGenerationRows(st, s.transformer)
}

// EnsureGenerationRows keeps generation rows in line with the displayed variants: input rows
// carry exactly the variables those variants use, and an empty session gets one row to fill.
func EnsureGenerationRows(st *models.State, tr *transform.Transformer) {
	if tr == nil {
		return
	}

	displayed := st.DisplayedVariants()
	if len(displayed) == 0 {
		return
	}

	keys := DisplayedVariables(st)

	inputs := st.GenerationData.Inputs
	if len(inputs.Items) == 0 {
		inputs.Append(tr.NewInputRow(keys))
	} else {
		for _, row := range inputs.Items {
			tr.SyncRowVariables(row, keys)
		}
	}

	if DisplaysChat(st) && len(st.GenerationData.Messages.Items) == 0 {
		st.GenerationData.Messages.Append(tr.NewChatRow(tr.NewMessageRow("user", "")))
	}
}

// DisplayedVariables is the ordered union of the template variables of the displayed variants.
func DisplayedVariables(st *models.State) []string {
	var keys []string

	seen := map[string]bool{}

	for _, v := range st.DisplayedVariants() {
		for _, k := range transform.VariantVariables(v) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	return keys
}

// DisplaysChat reports whether any displayed variant is a chat application.
func DisplaysChat(st *models.State) bool {
	for _, v := range st.DisplayedVariants() {
		if v.IsChat {
			return true
		}
	}

	return false
}
