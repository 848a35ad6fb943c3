package state

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/transform"
)

// FetchResult is one consistent read of the backing services.
type FetchResult struct {
	Spec     *openapi.Document
	Variants []*models.Variant
	// Skipped lists variants whose service spec could not be loaded.
	Skipped map[string]error
}

type Fetcher interface {
	Fetch(ctx context.Context) (*FetchResult, error)
}

type FetcherFunc func(ctx context.Context) (*FetchResult, error)

func (f FetcherFunc) Fetch(ctx context.Context) (*FetchResult, error) {
	return f(ctx)
}

// VariantSource lists persisted variants.
type VariantSource interface {
	Variants(ctx context.Context) ([]*models.VariantRecord, error)
}

// SpecLoader loads the OpenAPI document of one service.
type SpecLoader func(ctx context.Context, uri string) (*openapi.Document, error)

// HTTPSpecLoader fetches {uri}/openapi.json with client.
func HTTPSpecLoader(client *http.Client) SpecLoader {
	return func(ctx context.Context, uri string) (*openapi.Document, error) {
		return openapi.Fetch(ctx, client, uri)
	}
}

// RemoteFetcher reads variant records, loads one spec per distinct service concurrently and
// transforms every record against its service's run schema.
type RemoteFetcher struct {
	source      VariantSource
	loadSpec    SpecLoader
	transformer *transform.Transformer
	logger      *slog.Logger
	concurrency int
}

func NewRemoteFetcher(source VariantSource, loadSpec SpecLoader, transformer *transform.Transformer, logger *slog.Logger) *RemoteFetcher {
	return &RemoteFetcher{
		source:      source,
		loadSpec:    loadSpec,
		transformer: transformer,
		logger:      logger.With("module", "fetcher"),
		concurrency: 4,
	}
}

func (f *RemoteFetcher) Fetch(ctx context.Context) (*FetchResult, error) {
	records, err := f.source.Variants(ctx)
	if err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(records))
	seen := map[string]bool{}

	for _, r := range records {
		if !seen[r.URI] {
			seen[r.URI] = true
			uris = append(uris, r.URI)
		}
	}

	var (
		mu      sync.Mutex
		docs    = make(map[string]*openapi.Document, len(uris))
		failed  = make(map[string]error)
		g, gctx = errgroup.WithContext(ctx)
	)

	g.SetLimit(f.concurrency)

	for _, uri := range uris {
		g.Go(func() error {
			doc, err := f.loadSpec(gctx, uri)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed[uri] = &FetchError{URI: uri, Err: err}
				f.logger.WarnContext(gctx, "Failed to load service spec", "uri", uri, "error", err)

				return nil
			}

			docs[uri] = doc

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &FetchResult{Variants: make([]*models.Variant, 0, len(records)), Skipped: map[string]error{}}

	for _, r := range records {
		if err, ok := failed[r.URI]; ok {
			result.Skipped[r.ID] = err

			continue
		}

		doc := docs[r.URI]

		schema, err := openapi.RunRequestSchema(doc)
		if err != nil {
			result.Skipped[r.ID] = &FetchError{URI: r.URI, Err: err}

			continue
		}

		v, err := f.transformer.TransformVariant(r, schema)
		if err != nil {
			result.Skipped[r.ID] = err
			f.logger.WarnContext(ctx, "Failed to transform variant", "variant_id", r.ID, "error", err)

			continue
		}

		if result.Spec == nil {
			result.Spec = doc
		}

		result.Variants = append(result.Variants, v)
	}

	if len(result.Variants) == 0 && len(records) > 0 {
		errs := make([]error, 0, len(result.Skipped))
		for _, err := range result.Skipped {
			errs = append(errs, err)
		}

		return nil, errors.Join(append([]error{ErrNoVariants}, errs...)...)
	}

	return result, nil
}
