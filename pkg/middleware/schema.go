package middleware

import (
	"context"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/openapi"
)

// SchemaView exposes the fetched OpenAPI document and the fetch error.
type SchemaView struct {
	sub *Subscription
}

func SchemaLayer() Middleware {
	return layer(
		[]string{SliceSpec, SliceError},
		func(sub *Subscription) { sub.Schema = &SchemaView{sub: sub} },
		sameSchemaSlice,
	)
}

func sameSchemaSlice(sub *Subscription, s Slice, prev, next *models.State) bool {
	switch s.Name {
	case SliceSpec:
		if prev.Spec == next.Spec {
			return true
		}

		if prev.Spec == nil || next.Spec == nil {
			return false
		}

		return sub.hasher().Hash(prev.Spec) == sub.hasher().Hash(next.Spec)
	case SliceError:
		if prev.Error == next.Error {
			return true
		}

		if prev.Error == nil || next.Error == nil {
			return false
		}

		return prev.Error.Error() == next.Error.Error()
	}

	return true
}

func (v *SchemaView) Spec() *openapi.Document {
	return v.sub.read(Slice{Name: SliceSpec}).Spec
}

// Error is the whole-fetch failure, if the last load failed.
func (v *SchemaView) Error() error {
	return v.sub.read(Slice{Name: SliceError}).Error
}

// RequestSchema returns the run request body schema.
func (v *SchemaView) RequestSchema() (*openapi.Schema, error) {
	doc := v.Spec()
	if doc == nil {
		return nil, openapi.ErrNoSpec
	}

	return openapi.RunRequestSchema(doc)
}

// IsChat reports whether the service accepts a message history.
func (v *SchemaView) IsChat() bool {
	schema, err := v.RequestSchema()
	if err != nil {
		return false
	}

	return openapi.IsChat(schema)
}

// Revalidate refetches variants and specs.
func (v *SchemaView) Revalidate(ctx context.Context) error {
	if err := v.sub.store.Revalidate(ctx); err != nil {
		v.sub.svc.Notifier.Error(ctx, "Failed to load variants", err)

		return err
	}

	return nil
}
