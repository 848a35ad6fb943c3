package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/dirty"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/transform"
)

// Session is one playground state with its content store, transformer and dirty tracker.
type Session struct {
	Content     *content.Store
	Transformer *transform.Transformer
	Tracker     *dirty.Tracker
	Store       *state.Store
}

// NewSession builds a store that loads variants from source and the service specs through loadSpec.
// The caller loads it and closes it.
func NewSession(source state.VariantSource, loadSpec state.SpecLoader, logger *slog.Logger) *Session {
	cs := content.NewStore(nil)
	tr := transform.New(cs)
	tracker := dirty.NewTracker(cs, logger)

	store := state.NewStore(cs, tr, logger,
		state.WithFetcher(state.NewRemoteFetcher(source, loadSpec, tr, logger)),
		state.WithCommitHook(tracker),
	)

	return &Session{
		Content:     cs,
		Transformer: tr,
		Tracker:     tracker,
		Store:       store,
	}
}

// FilterByApp restricts source to the variants of one application. An empty appID keeps them all.
func FilterByApp(source state.VariantSource, appID string) state.VariantSource {
	if appID == "" {
		return source
	}

	return appFilter{source: source, appID: appID}
}

type appFilter struct {
	source state.VariantSource
	appID  string
}

func (f appFilter) Variants(ctx context.Context) ([]*models.VariantRecord, error) {
	records, err := f.source.Variants(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.VariantRecord, 0, len(records))

	for _, r := range records {
		if r.AppID == f.appID {
			out = append(out, r)
		}
	}

	return out, nil
}
