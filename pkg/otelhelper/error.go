package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records err with the given attributes.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// RunAttributes are the span attributes of one run request.
func RunAttributes(variantID, rowID, appID, uri string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(VariantIDKey, variantID),
		attribute.String(RowIDKey, rowID),
		attribute.String(URIKey, uri),
	}

	if appID != "" {
		attrs = append(attrs, attribute.String(AppIDKey, appID))
	}

	return attrs
}
